package services

import (
	"errors"
	"testing"

	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

func outcomes(success, failure int, ms int64) []domain.RowOutcome {
	var out []domain.RowOutcome
	for i := 0; i < success+failure; i++ {
		out = append(out, domain.RowOutcome{RowNumber: i + 1, Success: i < success, ProcessingTimeMs: ms})
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name        string
		results     []domain.RowOutcome
		wantRate    float64
		wantAvg     float64
		wantTotalMs int64
		wantFailed  int
	}{
		{"seven of ten", outcomes(7, 3, 100), 70.0, 100, 1000, 3},
		{"all succeed", outcomes(2, 0, 5), 100.0, 5, 10, 0},
		{"all fail", outcomes(0, 4, 0), 0, 0, 0, 4},
		{"one of three", outcomes(1, 2, 0), 33.3, 0, 0, 2},
		{"two of three", outcomes(2, 1, 0), 66.7, 0, 0, 1},
		{
			"average rounds to one decimal",
			[]domain.RowOutcome{{Success: true, ProcessingTimeMs: 10}, {Success: true, ProcessingTimeMs: 11}, {Success: true, ProcessingTimeMs: 11}},
			100, 10.7, 32, 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Aggregate(tt.results)
			if err != nil {
				t.Fatalf("Aggregate: %v", err)
			}
			if got.TotalRows != len(tt.results) {
				t.Errorf("TotalRows = %d", got.TotalRows)
			}
			if got.SuccessRate != tt.wantRate {
				t.Errorf("SuccessRate = %v, want %v", got.SuccessRate, tt.wantRate)
			}
			if got.AverageProcessingTimeMs != tt.wantAvg {
				t.Errorf("AverageProcessingTimeMs = %v, want %v", got.AverageProcessingTimeMs, tt.wantAvg)
			}
			if got.TotalProcessingTimeMs != tt.wantTotalMs {
				t.Errorf("TotalProcessingTimeMs = %v, want %v", got.TotalProcessingTimeMs, tt.wantTotalMs)
			}
			if got.FailedRequests != tt.wantFailed {
				t.Errorf("FailedRequests = %d, want %d", got.FailedRequests, tt.wantFailed)
			}
			if got.SuccessfulRequests+got.FailedRequests != got.TotalRows {
				t.Errorf("successful + failed != total")
			}
		})
	}
}

func TestAggregateEmpty(t *testing.T) {
	if _, err := Aggregate(nil); !errors.Is(err, ErrEmptyResults) {
		t.Fatalf("expected ErrEmptyResults, got %v", err)
	}
}

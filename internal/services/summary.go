package services

import (
	"math"

	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

// Aggregate reduces row outcomes into job totals. Rates and averages are
// rounded to one decimal place.
func Aggregate(results []domain.RowOutcome) (domain.JobSummary, error) {
	n := len(results)
	if n == 0 {
		return domain.JobSummary{}, ErrEmptyResults
	}
	var ok int
	var total int64
	for _, r := range results {
		if r.Success {
			ok++
		}
		total += r.ProcessingTimeMs
	}
	return domain.JobSummary{
		TotalRows:               n,
		SuccessfulRequests:      ok,
		FailedRequests:          n - ok,
		SuccessRate:             math.Round(float64(ok)/float64(n)*1000) / 10,
		TotalProcessingTimeMs:   total,
		AverageProcessingTimeMs: math.Round(float64(total)/float64(n)*10) / 10,
	}, nil
}

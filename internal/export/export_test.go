package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

func sampleOutput() *domain.JobOutput {
	code := 200
	size := int64(12)
	return &domain.JobOutput{
		Summary: &domain.JobSummary{TotalRows: 2, SuccessfulRequests: 1, FailedRequests: 1, SuccessRate: 50},
		Results: []domain.RowOutcome{
			{RowNumber: 1, Success: true, StatusCode: &code, ResponseSize: &size, ProcessingTimeMs: 40, ParameterCount: 3, URL: "https://x/e/f2?a=1", Data: domain.Row{"email": "a@b.com"}},
			{RowNumber: 2, Error: "request timeout after 10s", ProcessingTimeMs: 10000, ParameterCount: 4, Data: domain.Row{"email": "c@d.com", "city": "Lisbon, PT"}},
		},
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestWriteResultsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, sampleOutput()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d", len(records))
	}
	wantHeader := "rowNumber,success,statusCode,processingTimeMs,parameterCount,responseSize,error,url,city,email"
	if got := strings.Join(records[0], ","); got != wantHeader {
		t.Errorf("header = %s", got)
	}
	if records[1][2] != "200" || records[1][5] != "12" || records[1][9] != "a@b.com" {
		t.Errorf("row 1 = %v", records[1])
	}
	if records[2][1] != "false" || records[2][2] != "" || records[2][8] != "Lisbon, PT" {
		t.Errorf("row 2 = %v", records[2])
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, sampleOutput()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	for _, k := range []string{"summary", "results", "timestamp"} {
		if _, ok := decoded[k]; !ok {
			t.Errorf("missing key %q", k)
		}
	}
	if _, ok := decoded["validation"]; ok {
		t.Errorf("validation should be omitted")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"xlsx", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

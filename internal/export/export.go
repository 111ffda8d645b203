package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported output format %q (want json or csv)", s)
}

func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Write renders out in the given format. CSV output carries the row results
// only; JSON carries the whole output document.
func Write(w io.Writer, f Format, out *domain.JobOutput) error {
	if f == FormatCSV {
		return WriteResultsCSV(w, out.Results)
	}
	return WriteJSON(w, out)
}

func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var fixedColumns = []string{
	"rowNumber", "success", "statusCode", "processingTimeMs",
	"parameterCount", "responseSize", "error", "url",
}

// WriteResultsCSV writes one line per outcome. Row data columns follow the
// fixed columns, in name order.
func WriteResultsCSV(w io.Writer, results []domain.RowOutcome) error {
	dataCols := dataColumns(results)
	cw := csv.NewWriter(w)

	header := append(append([]string{}, fixedColumns...), dataCols...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		rec := []string{
			strconv.Itoa(r.RowNumber),
			strconv.FormatBool(r.Success),
			optInt(r.StatusCode),
			strconv.FormatInt(r.ProcessingTimeMs, 10),
			strconv.Itoa(r.ParameterCount),
			optInt64(r.ResponseSize),
			r.Error,
			r.URL,
		}
		for _, c := range dataCols {
			rec = append(rec, r.Data[c])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ResultsCSV is WriteResultsCSV into memory.
func ResultsCSV(results []domain.RowOutcome) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteResultsCSV(&buf, results); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func dataColumns(results []domain.RowOutcome) []string {
	seen := make(map[string]struct{})
	for _, r := range results {
		for k := range r.Data {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optInt64(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

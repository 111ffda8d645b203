package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

var (
	ErrEmptyInput          = errors.New("csv input is empty")
	ErrMalformedCSV        = errors.New("malformed csv")
	ErrNoHeaders           = errors.New("csv header has no column names")
	ErrInputTooLarge       = errors.New("csv input exceeds size limit")
	ErrUnsupportedEncoding = errors.New("unsupported csv encoding")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type Options struct {
	// Delimiter defaults to ','.
	Delimiter rune
	// Encoding is one of utf-8 (default), windows-1251, windows-1252, iso-8859-1.
	Encoding string
	// MaxBytes bounds the raw input size; 0 disables the check.
	MaxBytes int64
}

type Result struct {
	Rows             []domain.Row
	Headers          []string
	SkippedRecords   int
	NeutralizedCells int
}

// Parse reads comma-separated UTF-8 text into rows.
func Parse(raw string) ([]domain.Row, error) {
	res, err := ParseReader(strings.NewReader(raw), Options{})
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

func ParseReader(r io.Reader, opts Options) (*Result, error) {
	data, err := readAll(r, opts.MaxBytes)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyInput
	}

	src, err := decoder(bytes.NewReader(data), opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(src)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: need a header and at least one data row, got %d line(s)", ErrMalformedCSV, len(records))
	}

	headers := make([]string, len(records[0]))
	named := 0
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
		if headers[i] != "" {
			named++
		}
	}
	if named == 0 {
		return nil, ErrNoHeaders
	}

	res := &Result{Headers: headers, Rows: make([]domain.Row, 0, len(records)-1)}
	for _, rec := range records[1:] {
		row := make(domain.Row)
		for i, value := range rec {
			if i >= len(headers) || headers[i] == "" {
				continue
			}
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			clean, neutralized := SanitizeValue(value)
			if neutralized {
				res.NeutralizedCells++
			}
			row[headers[i]] = clean
		}
		if len(row) == 0 {
			res.SkippedRecords++
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("%w: every data row is blank", ErrMalformedCSV)
	}
	return res, nil
}

func readAll(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrInputTooLarge, maxBytes)
	}
	return data, nil
}

func decoder(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return r, nil
	case "windows-1251", "cp1251":
		return charmap.Windows1251.NewDecoder().Reader(r), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(r), nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, encoding)
	}
}

// ValidDelimiter reports whether d can be used as a field separator.
func ValidDelimiter(d string) (rune, bool) {
	if d == "" {
		return ',', true
	}
	r, size := utf8.DecodeRuneInString(d)
	if size != len(d) {
		return 0, false
	}
	switch r {
	case ',', ';', '\t', '|':
		return r, true
	}
	return 0, false
}

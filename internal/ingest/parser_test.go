package ingest

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func TestParseBasic(t *testing.T) {
	rows, err := Parse("a,b\n1,2\n3,4")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["a"] != "1" || rows[0]["b"] != "2" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if rows[1]["a"] != "3" || rows[1]["b"] != "4" {
		t.Errorf("row 1 = %v", rows[1])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", ErrEmptyInput},
		{"whitespace only", "  \n\t\n", ErrEmptyInput},
		{"header only", "a,b\n", ErrMalformedCSV},
		{"blank header", " , \n1,2", ErrNoHeaders},
		{"only blank data rows", "a,b\n,\n , ", ErrMalformedCSV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := Parse(tt.raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if rows != nil {
				t.Errorf("expected nil rows on error, got %v", rows)
			}
		})
	}
}

func TestParseQuoting(t *testing.T) {
	raw := "name,notes\n\"Doe, Jane\",\"said \"\"hi\"\"\"\n"
	rows, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rows[0]["name"] != "Doe, Jane" {
		t.Errorf("name = %q", rows[0]["name"])
	}
	// html escaping turns the embedded quotes into entities
	if rows[0]["notes"] != "said &#34;hi&#34;" {
		t.Errorf("notes = %q", rows[0]["notes"])
	}
}

func TestParseSkipsBlankRowsAndEmptyFields(t *testing.T) {
	res, err := ParseReader(strings.NewReader("email,first,,last\nx@y.com,,ignored,\n,,,\nz@y.com,Zed,,Z\n"), Options{})
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if res.SkippedRecords != 1 {
		t.Errorf("SkippedRecords = %d, want 1", res.SkippedRecords)
	}
	if _, ok := res.Rows[0]["first"]; ok {
		t.Errorf("empty field should be omitted: %v", res.Rows[0])
	}
	if len(res.Rows[0]) != 1 {
		t.Errorf("unnamed column must be dropped: %v", res.Rows[0])
	}
	if res.Rows[1]["first"] != "Zed" || res.Rows[1]["last"] != "Z" {
		t.Errorf("row 1 = %v", res.Rows[1])
	}
}

func TestParseNeutralizesFormula(t *testing.T) {
	res, err := ParseReader(strings.NewReader("a,b\n=SUM(A1:A2),ok\n"), Options{})
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("row must be kept, got %d rows", len(res.Rows))
	}
	if got := res.Rows[0]["a"]; got != "'=SUM(A1:A2)" {
		t.Errorf("a = %q, want quote-prefixed formula", got)
	}
	if res.NeutralizedCells != 1 {
		t.Errorf("NeutralizedCells = %d", res.NeutralizedCells)
	}
}

func TestParseSemicolonAndBOM(t *testing.T) {
	raw := "\xEF\xBB\xBFa;b\n1;2\n"
	res, err := ParseReader(strings.NewReader(raw), Options{Delimiter: ';'})
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}
	if res.Headers[0] != "a" {
		t.Errorf("BOM not stripped: %q", res.Headers[0])
	}
	if res.Rows[0]["b"] != "2" {
		t.Errorf("row = %v", res.Rows[0])
	}
}

func TestParseWindows1251(t *testing.T) {
	encoded, err := charmap.Windows1251.NewEncoder().String("имя\nИван\n")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	res, err := ParseReader(strings.NewReader(encoded), Options{Encoding: "windows-1251"})
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}
	if res.Rows[0]["имя"] != "Иван" {
		t.Errorf("decoded row = %v", res.Rows[0])
	}
}

func TestParseUnsupportedEncoding(t *testing.T) {
	_, err := ParseReader(strings.NewReader("a\n1\n"), Options{Encoding: "ebcdic"})
	if !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("expected ErrUnsupportedEncoding, got %v", err)
	}
}

func TestParseMaxBytes(t *testing.T) {
	_, err := ParseReader(strings.NewReader("a,b\n1,2\n"), Options{MaxBytes: 4})
	if !errors.Is(err, ErrInputTooLarge) {
		t.Fatalf("expected ErrInputTooLarge, got %v", err)
	}
	if _, err := ParseReader(strings.NewReader("a,b\n1,2\n"), Options{MaxBytes: 64}); err != nil {
		t.Fatalf("unexpected error under limit: %v", err)
	}
}

func TestValidDelimiter(t *testing.T) {
	tests := []struct {
		in   string
		want rune
		ok   bool
	}{
		{"", ',', true},
		{",", ',', true},
		{";", ';', true},
		{"\t", '\t', true},
		{"::", 0, false},
		{"x", 0, false},
	}
	for _, tt := range tests {
		got, ok := ValidDelimiter(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ValidDelimiter(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"pnr_quality/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVReader yields string-typed rows. Cells are never coerced; short rows
// are padded with empty strings and long rows truncated to the header.
type CSVReader struct {
	Comma rune
}

func NewCSVReader(delimiter string) *CSVReader {
	c := &CSVReader{Comma: ','}
	switch d := strings.TrimSpace(delimiter); {
	case d == `\t` || d == "tab" || delimiter == "\t":
		c.Comma = '\t'
	case len(d) == 1:
		c.Comma = rune(d[0])
	}
	return c
}

func (c *CSVReader) Read(r io.Reader) (domain.Table, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = c.Comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.Table{}, domain.ErrEmptyTable
	}
	if err != nil {
		return domain.Table{}, fmt.Errorf("read header: %w", err)
	}
	if blank(header) {
		return domain.Table{}, domain.ErrEmptyTable
	}

	t := domain.Table{Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Table{}, fmt.Errorf("read row %d: %w", len(t.Rows)+2, err)
		}
		if blank(rec) {
			continue
		}
		row := make([]string, len(header))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a header-addressed view over a delimited file.
type Table struct {
	Header []string
	Rows   [][]string
	cols   map[string]int
}

// ReadTable reads name and parses it as a CSV file with a header row.
// Rows shorter than the header yield empty strings for missing columns.
func ReadTable(p Provider, name string) (*Table, error) {
	data, err := p.Read(name)
	if err != nil {
		return nil, err
	}
	return ParseTable(data)
}

// ParseTable parses CSV bytes with a header row.
func ParseTable(data []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("storage: parse csv: %w", err)
	}
	t := &Table{cols: make(map[string]int)}
	if len(records) == 0 {
		return t, nil
	}
	t.Header = records[0]
	for i, h := range t.Header {
		if _, dup := t.cols[h]; !dup {
			t.cols[h] = i
		}
	}
	t.Rows = records[1:]
	return t, nil
}

// Require returns an error naming the first column absent from the header.
func (t *Table) Require(cols ...string) error {
	for _, c := range cols {
		if _, ok := t.cols[c]; !ok {
			return fmt.Errorf("storage: missing column %q", c)
		}
	}
	return nil
}

// Get returns the value of col in row, or "" when absent.
func (t *Table) Get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// EncodeRows renders rows as CSV bytes.
func EncodeRows(rows ...[]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("storage: encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

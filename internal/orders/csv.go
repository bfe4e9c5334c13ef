package orders

import (
	"encoding/csv"
	"io"
	"strings"
)

// RawRecord is one unparsed row from a batch source. Err carries a
// row-level read error (e.g. a broken CSV line) so one bad row never
// aborts the batch.
type RawRecord struct {
	Row    int
	Fields map[string]string
	Err    error
}

// BatchSource yields raw records in row order. Next returns io.EOF when
// the source is exhausted.
type BatchSource interface {
	Next() (*RawRecord, error)
}

// defaultColumns is the positional layout assumed when the first row is
// data rather than a header.
var defaultColumns = []string{"id", "longitude", "latitude", "timestamp", "subtotal"}

// csvSource reads order rows from a CSV stream. A header row is
// detected by field names; headerless files fall back to the default
// column order. Unknown columns are ignored and short rows are
// tolerated, mirroring how upstream export files actually look.
type csvSource struct {
	reader  *csv.Reader
	columns []string
	pending *RawRecord
	row     int
}

// NewCSVSource wraps a CSV stream as a batch source.
func NewCSVSource(r io.Reader) (BatchSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	src := &csvSource{reader: cr}
	first, err := cr.Read()
	if err == io.EOF {
		src.columns = defaultColumns
		return src, nil
	}
	if err != nil {
		return nil, err
	}

	if isHeaderRow(first) {
		src.columns = make([]string, len(first))
		for i, name := range first {
			src.columns[i] = strings.ToLower(strings.TrimSpace(name))
		}
	} else {
		src.columns = defaultColumns
		src.row++
		src.pending = src.record(first)
	}
	return src, nil
}

func (s *csvSource) Next() (*RawRecord, error) {
	if s.pending != nil {
		rec := s.pending
		s.pending = nil
		return rec, nil
	}
	fields, err := s.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	s.row++
	if err != nil {
		return &RawRecord{Row: s.row, Err: err}, nil
	}
	return s.record(fields), nil
}

func (s *csvSource) record(fields []string) *RawRecord {
	rec := &RawRecord{Row: s.row, Fields: make(map[string]string, len(fields))}
	for i, v := range fields {
		if i >= len(s.columns) {
			break // unexpected extra fields are ignored
		}
		v = strings.TrimSpace(v)
		if v != "" {
			rec.Fields[s.columns[i]] = v
		}
	}
	return rec
}

// isHeaderRow reports whether any cell names a known order field.
func isHeaderRow(fields []string) bool {
	known := map[string]bool{}
	for _, c := range defaultColumns {
		known[c] = true
	}
	for _, f := range fields {
		if known[strings.ToLower(strings.TrimSpace(f))] {
			return true
		}
	}
	return false
}

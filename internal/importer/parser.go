package importer

import (
	"encoding/csv"
	"errors"
	"io"

	"github.com/fairyhunter13/catalog-import-service/internal/obs"
)

// Row is one parsed data row, keyed by header-derived field names.
type Row map[string]string

// RowReader lazily yields one Row per CSV data row, scanner-style. The first
// record supplies the field names. It reads the stream incrementally and
// never buffers the whole file; the caller owns closing the underlying
// reader. A malformed row stops iteration and surfaces through Err.
type RowReader struct {
	cr     *csv.Reader
	header []string
	row    Row
	count  int
	err    error
	done   bool
}

// NewRowReader wraps r in a RowReader.
func NewRowReader(r io.Reader) *RowReader {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true
	return &RowReader{cr: cr}
}

// Next advances to the next data row. It returns false at end of input or on
// error; check Err to tell the two apart.
func (rr *RowReader) Next() bool {
	if rr.done {
		return false
	}
	if rr.header == nil {
		rec, err := rr.cr.Read()
		if err != nil {
			rr.finish(err)
			return false
		}
		rr.header = make([]string, len(rec))
		copy(rr.header, rec)
	}
	rec, err := rr.cr.Read()
	if err != nil {
		rr.finish(err)
		return false
	}
	row := make(Row, len(rr.header))
	for i, name := range rr.header {
		if i < len(rec) {
			row[name] = rec[i]
		}
	}
	rr.row = row
	rr.count++
	obs.RowsParsed.Inc()
	return true
}

func (rr *RowReader) finish(err error) {
	rr.done = true
	if !errors.Is(err, io.EOF) {
		rr.err = err
	}
}

// Row returns the row read by the last successful Next.
func (rr *RowReader) Row() Row { return rr.row }

// Count returns the number of data rows yielded so far.
func (rr *RowReader) Count() int { return rr.count }

// Err returns the terminal error, if iteration stopped on one. End of input
// is not an error.
func (rr *RowReader) Err() error { return rr.err }

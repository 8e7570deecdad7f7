package csv

import (
	"encoding/csv"
	"io"

	"golang.org/x/xerrors"
)

// Produces a list of fields making up a record.
type Recorder interface {
	Record() []string
}

// An Encoder writes CSV records to an output stream.
type Encoder struct {
	w *csv.Writer
}

// NewEncoder returns a new encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: csv.NewWriter(w)}
}

// WriteHeader writes a single record of column names.
func (enc *Encoder) WriteHeader(columns ...string) error {
	if err := enc.w.Write(columns); err != nil {
		return xerrors.Errorf("csv header: %w", err)
	}
	enc.w.Flush()
	return enc.w.Error()
}

// Encode writes a CSV record representing v to the stream followed by a
// newline character. Value given must implement the Recorder interface.
func (enc *Encoder) Encode(v interface{}) (err error) {
	defer func() {
		if r, ok := recover().(error); ok {
			err = xerrors.Errorf("recovered: %w", r)
		}
	}()

	rec, ok := v.(Recorder)
	if !ok {
		return xerrors.Errorf("csv: %T does not implement Recorder", v)
	}

	if err = enc.w.Write(rec.Record()); err != nil {
		return xerrors.Errorf("csv record: %w", err)
	}
	enc.w.Flush()

	return enc.w.Error()
}

package series

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// ErrColumnMismatch is returned when the header does not have one column
// for the label plus one per track.
var ErrColumnMismatch = errors.New("column count does not match tracks")

type csvOptions struct {
	precision map[int]int
}

// CSVOption tunes ExportCSV.
type CSVOption func(*csvOptions)

// WithPrecision renders track i with a fixed number of decimals.
func WithPrecision(track, digits int) CSVOption {
	return func(o *csvOptions) {
		o.precision[track] = digits
	}
}

// ExportCSV writes a header row followed by one row per retained sample,
// oldest first. Missing values are written as empty fields.
func (r *Rolling) ExportCSV(w io.Writer, columns []string, opts ...CSVOption) error {
	return r.Snapshot().WriteCSV(w, columns, opts...)
}

// WriteCSV writes the snapshot in the ExportCSV format.
func (s Snapshot) WriteCSV(w io.Writer, columns []string, opts ...CSVOption) error {
	if len(columns) != len(s.Tracks)+1 {
		return errors.Wrapf(ErrColumnMismatch, "got %d columns for %d tracks", len(columns), len(s.Tracks))
	}

	o := csvOptions{precision: map[int]int{}}
	for _, opt := range opts {
		opt(&o)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return errors.Wrap(err, "write csv header")
	}

	row := make([]string, len(columns))
	for i, label := range s.Labels {
		row[0] = label
		for t, track := range s.Tracks {
			row[t+1] = formatValue(track[i], o.precision, t)
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "write csv row %d", i)
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

func formatValue(v Value, precision map[int]int, track int) string {
	f, ok := v.Float()
	if !ok {
		return ""
	}
	digits, fixed := precision[track]
	if !fixed {
		digits = -1
	}
	return strconv.FormatFloat(f, 'f', digits, 64)
}

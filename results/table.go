// Package results - The score table written at the end of an evaluation run.
package results

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// Header is the CSV header. The first, unnamed column is the row index.
var Header = []string{"", "Iteration", "Inception_mean", "Inception std", "FID"}

// Row is the score of one checkpoint.
type Row struct {
	Iteration     int     `json:"iteration"`
	InceptionMean float64 `json:"inception_mean"`
	InceptionStd  float64 `json:"inception_std"`
	FID           float64 `json:"fid"`
}

// Table accumulates rows ordered by ascending iteration.
type Table struct {
	rows []Row
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// Add inserts a row, keeping the table sorted by iteration.
func (t *Table) Add(row Row) {
	i := sort.Search(len(t.rows), func(i int) bool {
		return t.rows[i].Iteration > row.Iteration
	})
	t.rows = append(t.rows, Row{})
	copy(t.rows[i+1:], t.rows[i:])
	t.rows[i] = row
}

// Rows returns the rows in iteration order.
func (t *Table) Rows() []Row {
	return t.rows
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// WriteCSV writes the table with a leading row index column.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return errors.Wrap(err, "error writing header")
	}

	for i, row := range t.rows {
		record := []string{
			strconv.Itoa(i),
			strconv.Itoa(row.Iteration),
			formatFloat(row.InceptionMean),
			formatFloat(row.InceptionStd),
			formatFloat(row.FID),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "error writing row %d", i)
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "error flushing score table")
}

// Save writes the table to path, creating the parent directory.
func (t *Table) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "error creating %s", filepath.Dir(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "error creating %s", path)
	}
	defer f.Close()

	if err := t.WriteCSV(f); err != nil {
		return err
	}
	return f.Close()
}

// formatFloat prints the shortest representation that round-trips, keeping a decimal point
// on integral values (1.0, not 1).
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	s := strconv.FormatFloat(v, 'g', -1, 64)
	for _, c := range s {
		if c == '.' || c == 'e' {
			return s
		}
	}
	return s + ".0"
}

package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"ftmgraph/internal/cypher"
	"ftmgraph/internal/graph"
)

var (
	ErrColumnMismatch = errors.New("column set mismatch")
	ErrKindMismatch   = errors.New("label used for both nodes and edges")
	ErrClosed         = errors.New("writer closed")
	ErrNotClosed      = errors.New("registry not closed")
	ErrFileCollision  = errors.New("label file name collision")
)

// LabelWriter owns the CSV file of one label. Its column order is
// fixed by the first row and every identity key is written once.
type LabelWriter struct {
	Label       string
	Edge        bool
	NodeLabel   string
	ExtraLabels []string
	SourceLabel string
	TargetLabel string
	FileName    string

	columns []string
	index   map[string]struct{}
	keys    KeySet
	file    *os.File
	buf     *bufio.Writer
	csv     *csv.Writer
	rows    int
	closed  bool
}

func newLabelWriter(dir string, w *LabelWriter, columns []string, keys KeySet) (*LabelWriter, error) {
	w.columns = slices.Clone(columns)
	w.index = make(map[string]struct{}, len(columns))
	for _, c := range columns {
		w.index[c] = struct{}{}
	}
	w.keys = keys

	f, err := os.Create(filepath.Join(dir, w.FileName))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", w.FileName, err)
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, 256*1024)
	w.csv = csv.NewWriter(w.buf)
	if err := w.csv.Write(w.columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header %s: %w", w.FileName, err)
	}
	return w, nil
}

// Columns returns the fixed column order.
func (w *LabelWriter) Columns() []string { return slices.Clone(w.columns) }

// Rows returns the number of rows written so far.
func (w *LabelWriter) Rows() int { return w.rows }

func (w *LabelWriter) identity(values map[string]string) string {
	if w.Edge {
		return values[graph.ColSourceID] + "->" + values[graph.ColTargetID]
	}
	return values[graph.ColID]
}

// write sanitizes row, suppresses duplicates and appends it.
// It reports whether a new row was written.
func (w *LabelWriter) write(row graph.Row) (bool, error) {
	if w.closed {
		return false, fmt.Errorf("%s: %w", w.Label, ErrClosed)
	}
	if row.Len() != len(w.columns) {
		return false, fmt.Errorf("%w: %s: got %v, want %v", ErrColumnMismatch, w.Label, row.Names(), w.columns)
	}
	values := make(map[string]string, row.Len())
	for _, c := range row.Columns() {
		if _, ok := w.index[c.Name]; !ok {
			return false, fmt.Errorf("%w: %s: unexpected column %q", ErrColumnMismatch, w.Label, c.Name)
		}
		values[c.Name] = Sanitize(c.Value, fieldLimit(c.Name))
	}

	if w.Edge {
		if values[graph.ColSourceID] == "" || values[graph.ColTargetID] == "" {
			return false, nil
		}
	} else if values[graph.ColID] == "" {
		return false, nil
	}

	fresh, err := w.keys.Add(w.identity(values))
	if err != nil {
		return false, fmt.Errorf("%s: key set: %w", w.Label, err)
	}
	if !fresh {
		return false, nil
	}

	record := make([]string, len(w.columns))
	for i, c := range w.columns {
		record[i] = values[c]
	}
	if err := w.csv.Write(record); err != nil {
		return false, fmt.Errorf("write %s: %w", w.FileName, err)
	}
	w.rows++
	return true, nil
}

func (w *LabelWriter) close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.csv.Flush()
	err := w.csv.Error()
	if ferr := w.buf.Flush(); err == nil {
		err = ferr
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("close %s: %w", w.FileName, err)
	}
	return nil
}

func (w *LabelWriter) descriptor() cypher.File {
	return cypher.File{
		Label:       w.Label,
		Edge:        w.Edge,
		NodeLabel:   w.NodeLabel,
		ExtraLabels: slices.Clone(w.ExtraLabels),
		SourceLabel: w.SourceLabel,
		TargetLabel: w.TargetLabel,
		Columns:     w.Columns(),
		Name:        w.FileName,
		Rows:        w.rows,
	}
}

// FileName returns the file name used for a label.
func FileName(label string, edge bool) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, label)
	if edge {
		return safe + ".edges.csv"
	}
	return safe + ".nodes.csv"
}

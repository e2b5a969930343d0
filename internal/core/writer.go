package core

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// TableWriter writes one normalized table file as comma-separated values.
// Empty fields are written unquoted so the bulk copy reads them as NULL.
//
// Progress is forwarded to the ProgressFunc only when it has advanced by at
// least one percentage point since the last emission; Close always emits a
// final 100% Done snapshot.
type TableWriter struct {
	table Table
	path  string
	file  *os.File
	buf   *bufio.Writer
	csv   *csv.Writer

	rows       int64
	lastPct    float64
	emitted    bool
	onProgress ProgressFunc
}

// CreateTableWriter creates (or truncates) root/<table>.csv.
func CreateTableWriter(root string, table Table, fn ProgressFunc) (*TableWriter, error) {
	path := filepath.Join(root, table.FileName())
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	buf := bufio.NewWriterSize(f, streamBufferSize)
	return &TableWriter{
		table:      table,
		path:       path,
		file:       f,
		buf:        buf,
		csv:        csv.NewWriter(buf),
		onProgress: fn,
	}, nil
}

// Write appends one row.
func (w *TableWriter) Write(row Row) error {
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("write %s: %w", w.table, err)
	}
	w.rows++
	return nil
}

// Progress reports source progress in [0,100].
func (w *TableWriter) Progress(pct float64) {
	if w.onProgress == nil {
		return
	}
	if w.emitted && pct-w.lastPct < 1 {
		return
	}
	w.lastPct = pct
	w.emitted = true
	w.onProgress(Progress{Table: w.table, Percent: pct, Rows: w.rows})
}

// Rows returns the number of rows written so far.
func (w *TableWriter) Rows() int64 {
	return w.rows
}

// Table returns the table being written.
func (w *TableWriter) Table() Table {
	return w.table
}

// Path returns the output file path.
func (w *TableWriter) Path() string {
	return w.path
}

// Close flushes and closes the file, then emits the final progress.
func (w *TableWriter) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush %s: %w", w.table, err)
	}
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush %s: %w", w.table, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", w.table, err)
	}

	if w.onProgress != nil {
		w.onProgress(Progress{Table: w.table, Percent: 100, Rows: w.rows, Done: true})
	}
	return nil
}

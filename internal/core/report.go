package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Rejection is one rejected record kept as a sample in the report.
type Rejection struct {
	Line   int               `json:"line"`
	Code   string            `json:"code"`
	Reason string            `json:"reason"`
	Record map[string]string `json:"record,omitempty"`
	Raw    string            `json:"raw,omitempty"`
}

// TableRejections holds the rejections collected for one table.
type TableRejections struct {
	Count   int64            `json:"count"`
	Codes   map[string]int64 `json:"codes"`
	Samples []Rejection      `json:"samples,omitempty"`
}

// ErrorReport collects rejected records per table. Counts are exact, samples
// are capped per table. Safe for concurrent use.
type ErrorReport struct {
	mu         sync.Mutex
	runID      string
	maxSamples int
	tables     map[Table]*TableRejections
	replaced   map[Table]int64
	onReject   func(Table, string)
}

// NewErrorReport creates an empty report. maxSamples <= 0 keeps counts only.
func NewErrorReport(runID string, maxSamples int) *ErrorReport {
	return &ErrorReport{
		runID:      runID,
		maxSamples: maxSamples,
		tables:     make(map[Table]*TableRejections),
		replaced:   make(map[Table]int64),
	}
}

// OnReject registers a hook called with the table and code of every
// rejection, e.g. to feed metrics.
func (r *ErrorReport) OnReject(fn func(table Table, code string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReject = fn
}

// Add records a rejection of rec under table.
func (r *ErrorReport) Add(table Table, rec Record, err error) {
	code := CodeFor(err)

	r.mu.Lock()
	tr, ok := r.tables[table]
	if !ok {
		tr = &TableRejections{Codes: make(map[string]int64)}
		r.tables[table] = tr
	}
	tr.Count++
	tr.Codes[code]++

	if len(tr.Samples) < r.maxSamples {
		rej := Rejection{Line: rec.Line, Code: code, Reason: err.Error()}
		var mre *MalformedRecordError
		if errors.As(err, &mre) {
			rej.Raw = mre.Raw
		} else {
			rej.Record = rec.Map()
		}
		tr.Samples = append(tr.Samples, rej)
	}
	hook := r.onReject
	r.mu.Unlock()

	if hook != nil {
		hook(table, code)
	}
}

// AddReplacedBytes records n invalid UTF-8 bytes that were rewritten while
// reading the source of table. The records stay accepted, so these are kept
// apart from rejections.
func (r *ErrorReport) AddReplacedBytes(table Table, n int64) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaced[table] += n
}

// ReplacedBytes returns the invalid UTF-8 bytes rewritten for table.
func (r *ErrorReport) ReplacedBytes(table Table) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replaced[table]
}

// Count returns the number of rejections recorded for table.
func (r *ErrorReport) Count(table Table) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tr, ok := r.tables[table]; ok {
		return tr.Count
	}
	return 0
}

// CountCode returns the rejections for table with the given code.
func (r *ErrorReport) CountCode(table Table, code string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tr, ok := r.tables[table]; ok {
		return tr.Codes[code]
	}
	return 0
}

// Total returns the number of rejections across all tables.
func (r *ErrorReport) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, tr := range r.tables {
		n += tr.Count
	}
	return n
}

// Samples returns a copy of the samples kept for table.
func (r *ErrorReport) Samples(table Table) []Rejection {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.tables[table]
	if !ok {
		return nil
	}
	return append([]Rejection(nil), tr.Samples...)
}

// Tables returns the tables with at least one rejection, sorted by name.
func (r *ErrorReport) Tables() []Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Table, 0, len(r.tables))
	for t := range r.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type reportFile struct {
	RunID       string                     `json:"run_id"`
	GeneratedAt time.Time                  `json:"generated_at"`
	Total       int64                      `json:"total"`
	Tables      map[Table]*TableRejections `json:"tables"`

	ReplacedBytes map[Table]int64 `json:"replaced_bytes,omitempty"`
}

// WriteFile writes the report as JSON, replacing any previous report.
func (r *ErrorReport) WriteFile(path string) error {
	r.mu.Lock()
	out := reportFile{
		RunID:       r.runID,
		GeneratedAt: time.Now().UTC(),
		Tables:      r.tables,

		ReplacedBytes: r.replaced,
	}
	for _, tr := range r.tables {
		out.Total += tr.Count
	}
	data, err := json.MarshalIndent(out, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode error report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write error report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write error report: %w", err)
	}
	return nil
}

// Summary returns one line per table with rejections, e.g.
// "cast_link: 12 rejected (REF001=12)".
func (r *ErrorReport) Summary() string {
	tables := r.Tables()
	if len(tables) == 0 {
		return "no rejected records"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	for i, t := range tables {
		tr := r.tables[t]
		codes := make([]string, 0, len(tr.Codes))
		for c := range tr.Codes {
			codes = append(codes, c)
		}
		sort.Strings(codes)
		parts := make([]string, len(codes))
		for j, c := range codes {
			parts[j] = fmt.Sprintf("%s=%d", c, tr.Codes[c])
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %d rejected (%s)", t, tr.Count, strings.Join(parts, ", "))
	}
	return b.String()
}

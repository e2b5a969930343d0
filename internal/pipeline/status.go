package pipeline

import (
	"sync"
	"time"

	"github.com/JonMunkholm/imdbload/internal/core"
	"github.com/JonMunkholm/imdbload/internal/loader"
	"github.com/JonMunkholm/imdbload/internal/metrics"
)

// Stage is a step of a run.
type Stage string

const (
	StageIdle      Stage = "idle"
	StagePreflight Stage = "preflight"
	StageCleanup   Stage = "cleanup"
	StageNormalize Stage = "normalize"
	StageEmit      Stage = "emit"
	StageSplit     Stage = "split"
	StageLoad      Stage = "load"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// TableStatus is the live state of one table.
type TableStatus struct {
	Table      core.Table `json:"table"`
	InWindow   bool       `json:"in_window"`
	Percent    float64    `json:"percent"`
	Rows       int64      `json:"rows"`
	Rejected   int64      `json:"rejected"`
	Chunks     int        `json:"chunks"`
	ChunksDone int        `json:"chunks_done"`
	Loaded     int64      `json:"loaded"`
	Cleared    bool       `json:"cleared"`
	Error      string     `json:"error,omitempty"`
}

// Status is a point-in-time copy of the run state.
type Status struct {
	RunID      string        `json:"run_id"`
	Stage      Stage         `json:"stage"`
	DryRun     bool          `json:"dry_run"`
	Resume     core.Table    `json:"resume,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Error      string        `json:"error,omitempty"`
	Tables     []TableStatus `json:"tables"`
}

// Tracker follows a run for the status server and mirrors it into metrics.
// Safe for concurrent use.
type Tracker struct {
	metrics *metrics.Metrics

	mu         sync.RWMutex
	status     Status
	tables     map[core.Table]*TableStatus
	stageStart time.Time
}

// NewTracker creates an idle tracker. A nil m gets a private metrics set.
func NewTracker(m *metrics.Metrics) *Tracker {
	if m == nil {
		m = metrics.New()
	}
	t := &Tracker{
		metrics: m,
		status:  Status{Stage: StageIdle},
		tables:  make(map[core.Table]*TableStatus, len(core.LoadOrder)),
	}
	for _, table := range core.LoadOrder {
		t.tables[table] = &TableStatus{Table: table}
	}
	m.SetStage(string(StageIdle))
	return t
}

// Metrics returns the collectors the tracker feeds.
func (t *Tracker) Metrics() *metrics.Metrics {
	return t.metrics
}

// Start resets the tracker for a new run.
func (t *Tracker) Start(runID string, plan Plan, dryRun bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = Status{
		RunID:     runID,
		Stage:     StageIdle,
		DryRun:    dryRun,
		Resume:    plan.Resume,
		StartedAt: time.Now(),
	}
	for _, table := range core.LoadOrder {
		t.tables[table] = &TableStatus{Table: table, InWindow: plan.Includes(table)}
	}
}

// SetStage moves the run to stage and records how long the previous stage
// took.
func (t *Tracker) SetStage(stage Stage) {
	t.mu.Lock()
	prev := t.status.Stage
	started := t.stageStart
	t.status.Stage = stage
	t.stageStart = time.Now()
	t.mu.Unlock()

	if prev != StageIdle && !started.IsZero() {
		t.metrics.ObserveStage(string(prev), time.Since(started))
	}
	t.metrics.SetStage(string(stage))
}

// Stage returns the current stage.
func (t *Tracker) Stage() Stage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status.Stage
}

// Progress records normalization progress. It matches core.ProgressFunc.
func (t *Tracker) Progress(p core.Progress) {
	t.mu.Lock()
	ts := t.tables[p.Table]
	var delta int64
	if ts != nil {
		delta = p.Rows - ts.Rows
		ts.Percent = p.Percent
		ts.Rows = p.Rows
	}
	t.mu.Unlock()

	if delta > 0 {
		t.metrics.RowsWritten.WithLabelValues(string(p.Table)).Add(float64(delta))
	}
}

// Rejected counts one rejected record.
func (t *Tracker) Rejected(table core.Table, code string) {
	t.mu.Lock()
	if ts := t.tables[table]; ts != nil {
		ts.Rejected++
	}
	t.mu.Unlock()
	t.metrics.RowsRejected.WithLabelValues(string(table), code).Inc()
}

// Replaced counts invalid UTF-8 bytes rewritten while reading a source.
func (t *Tracker) Replaced(table core.Table, n int64) {
	if n <= 0 {
		return
	}
	t.metrics.ReplacedUTF8.WithLabelValues(string(table)).Add(float64(n))
}

// Split records the chunk files produced per table.
func (t *Tracker) Split(chunks map[core.Table][]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for table, files := range chunks {
		if ts := t.tables[table]; ts != nil {
			ts.Chunks = len(files)
		}
	}
}

// Finish marks the run done, or failed when err is non-nil.
func (t *Tracker) Finish(err error) {
	now := time.Now()
	t.mu.Lock()
	t.status.FinishedAt = &now
	if err != nil {
		t.status.Error = err.Error()
	}
	t.mu.Unlock()

	if err != nil {
		t.SetStage(StageFailed)
		t.metrics.LastRunSuccess.Set(0)
		return
	}
	t.SetStage(StageDone)
	t.metrics.LastRunSuccess.Set(1)
}

// Snapshot returns a copy of the current status with tables in load order.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.status
	s.Tables = make([]TableStatus, 0, len(core.LoadOrder))
	for _, table := range core.LoadOrder {
		s.Tables = append(s.Tables, *t.tables[table])
	}
	return s
}

// StateChanged implements loader.Events.
func (t *Tracker) StateChanged(s loader.State) {
	switch s {
	case loader.StateCleaningUp:
		t.SetStage(StageCleanup)
	case loader.StateLoading:
		t.SetStage(StageLoad)
	}
}

// TableCleared implements loader.Events.
func (t *Tracker) TableCleared(table core.Table, rows int64) {
	t.mu.Lock()
	if ts := t.tables[table]; ts != nil {
		ts.Cleared = true
	}
	t.mu.Unlock()
	t.metrics.RowsDeleted.WithLabelValues(string(table)).Add(float64(rows))
}

// ChunkDone implements loader.Events.
func (t *Tracker) ChunkDone(c loader.ChunkResult) {
	t.mu.Lock()
	if ts := t.tables[c.Table]; ts != nil {
		ts.ChunksDone++
		ts.Loaded += c.Rows
	}
	t.mu.Unlock()

	label := string(c.Table)
	switch {
	case c.Skipped:
		t.metrics.ChunksLoaded.WithLabelValues(label, "skipped").Inc()
	case c.Err != nil:
		t.metrics.ChunksLoaded.WithLabelValues(label, "error").Inc()
	default:
		t.metrics.ChunksLoaded.WithLabelValues(label, "success").Inc()
		t.metrics.RowsLoaded.WithLabelValues(label).Add(float64(c.Rows))
		t.metrics.ChunkDuration.WithLabelValues(label).Observe(c.Duration.Seconds())
	}
}

// TableDone implements loader.Events.
func (t *Tracker) TableDone(r loader.TableResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ts := t.tables[r.Table]; ts != nil && r.Err != nil {
		ts.Error = core.FormatUserError(r.Err)
	}
}

var _ loader.Events = (*Tracker)(nil)

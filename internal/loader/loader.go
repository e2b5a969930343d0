package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/imdbload/internal/core"
	"github.com/JonMunkholm/imdbload/internal/logging"
)

// State is the loader's lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StateCleaningUp State = "cleaning_up"
	StateLoading    State = "loading"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Options configures a Loader.
type Options struct {
	// Root is the directory holding the per-table chunk directories.
	Root string

	// Parallelism bounds the chunk copies in flight for one table.
	Parallelism int

	// DryRun logs each chunk instead of copying it. Cleanup still runs.
	DryRun bool
}

// ChunkResult describes one chunk file after the loader processed it.
type ChunkResult struct {
	Table    core.Table
	File     string
	Rows     int64
	Duration time.Duration
	Skipped  bool
	Err      error
}

// TableResult summarizes one table's load.
type TableResult struct {
	Table    core.Table
	Chunks   int
	Rows     int64
	Duration time.Duration
	Err      error
}

// Failed reports whether any chunk of the table failed.
func (r TableResult) Failed() bool {
	return r.Err != nil
}

// Events receives loader progress. Any method may be called from worker
// goroutines.
type Events interface {
	StateChanged(State)
	TableCleared(table core.Table, rows int64)
	ChunkDone(ChunkResult)
	TableDone(TableResult)
}

type noEvents struct{}

func (noEvents) StateChanged(State)             {}
func (noEvents) TableCleared(core.Table, int64) {}
func (noEvents) ChunkDone(ChunkResult)          {}
func (noEvents) TableDone(TableResult)          {}

// Loader runs cleanup and bulk copy against a Store.
type Loader struct {
	store  Store
	opts   Options
	events Events

	mu    sync.RWMutex
	state State
}

// New creates a loader. events may be nil.
func New(store Store, opts Options, events Events) *Loader {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if events == nil {
		events = noEvents{}
	}
	return &Loader{
		store:  store,
		opts:   opts,
		events: events,
		state:  StateIdle,
	}
}

// State returns the current lifecycle state.
func (l *Loader) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Loader) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	l.events.StateChanged(s)
}

// Run clears the store from the most dependent table up to and including
// resume, then loads tables in the order given. An empty resume clears
// every table. A cleanup failure stops the run; a failed table does not
// stop later tables, and all table failures are returned together.
func (l *Loader) Run(ctx context.Context, resume core.Table, tables []core.Table) ([]TableResult, error) {
	if _, err := l.Cleanup(ctx, resume); err != nil {
		return nil, err
	}
	return l.Load(ctx, tables)
}

// Cleanup deletes the rows of every table in reverse dependency order,
// stopping after resume. It returns the tables cleared.
func (l *Loader) Cleanup(ctx context.Context, resume core.Table) ([]core.Table, error) {
	l.setState(StateCleaningUp)
	logger := logging.FromContext(ctx)

	var cleared []core.Table
	for _, t := range core.CleanupOrder() {
		if err := ctx.Err(); err != nil {
			l.setState(StateFailed)
			return cleared, err
		}

		n, err := l.store.Delete(ctx, t)
		if err != nil {
			l.setState(StateFailed)
			return cleared, fmt.Errorf("cleanup %s: %w", t, err)
		}
		logger.Info("table cleared", "table", t, "rows", n)
		l.events.TableCleared(t, n)
		cleared = append(cleared, t)

		if t == resume {
			break
		}
	}
	return cleared, nil
}

// Load copies each table's chunk files, one table at a time in the order
// given. Chunks within a table run concurrently up to Parallelism.
func (l *Loader) Load(ctx context.Context, tables []core.Table) ([]TableResult, error) {
	l.setState(StateLoading)

	var (
		results []TableResult
		errs    *multierror.Error
	)
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			l.setState(StateFailed)
			return results, multierror.Append(errs, err).ErrorOrNil()
		}

		res := l.loadTable(ctx, t)
		results = append(results, res)
		l.events.TableDone(res)
		if res.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("load %s: %w", t, res.Err))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		l.setState(StateFailed)
		return results, err
	}
	l.setState(StateDone)
	return results, nil
}

func (l *Loader) loadTable(ctx context.Context, table core.Table) TableResult {
	logger := logging.WithFields(ctx, "table", table)
	start := time.Now()
	res := TableResult{Table: table}

	files, err := core.ChunkFiles(l.opts.Root, table)
	if err != nil {
		res.Err = fmt.Errorf("%w: list chunks: %v", core.ErrBulkCopy, err)
		return res
	}
	res.Chunks = len(files)
	logger.Info("load started", "chunks", len(files), "dry_run", l.opts.DryRun)

	var (
		mu   sync.Mutex
		errs *multierror.Error
	)

	// Workers never return an error so one failed chunk does not cancel
	// its siblings.
	var g errgroup.Group
	g.SetLimit(l.opts.Parallelism)
	for _, file := range files {
		g.Go(func() error {
			chunk := l.loadChunk(ctx, table, file)
			l.events.ChunkDone(chunk)

			mu.Lock()
			defer mu.Unlock()
			res.Rows += chunk.Rows
			if chunk.Err != nil {
				errs = multierror.Append(errs, chunk.Err)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Duration = time.Since(start)
	res.Err = errs.ErrorOrNil()
	if res.Err != nil {
		logger.Error("load failed", "rows", res.Rows, "error", res.Err)
	} else {
		logger.Info("load finished", "rows", res.Rows, "duration", res.Duration)
	}
	return res
}

func (l *Loader) loadChunk(ctx context.Context, table core.Table, file string) ChunkResult {
	start := time.Now()
	res := ChunkResult{Table: table, File: file}
	logger := logging.WithFields(ctx, "table", table, "chunk", filepath.Base(file))

	if l.opts.DryRun {
		res.Skipped = true
		logger.Info("dry run: chunk not copied")
		return res
	}

	f, err := os.Open(file)
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %v", core.ErrBulkCopy, filepath.Base(file), err)
		return res
	}
	defer f.Close()

	n, err := l.store.CopyFrom(ctx, table, table.Columns(), f)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %v", core.ErrBulkCopy, filepath.Base(file), err)
		logger.Error("chunk copy failed", "error", err)
		return res
	}
	res.Rows = n
	logger.Debug("chunk copied", "rows", n, "duration", res.Duration)
	return res
}

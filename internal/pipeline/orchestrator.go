package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/imdbload/internal/core"
	_ "github.com/JonMunkholm/imdbload/internal/core/tables" // register normalizers
	"github.com/JonMunkholm/imdbload/internal/loader"
	"github.com/JonMunkholm/imdbload/internal/logging"
)

// Options configures a run.
type Options struct {
	// Root holds the normalized table files and chunk directories.
	Root string

	// Sources are normalized in this order.
	Sources []Source

	Stream core.StreamOptions

	// Parallelism bounds split and load workers; 0 means one per CPU.
	Parallelism int

	Resume string
	One    bool
	DryRun bool

	// ReportPath is where the rejected-record report is written.
	ReportPath string

	// MaxSamples caps the rejected records kept per table.
	MaxSamples int

	// Prepare, if set, runs once preflight has passed and before anything
	// is written, e.g. to apply the schema.
	Prepare func(ctx context.Context) error
}

// Result describes a finished run.
type Result struct {
	RunID      string
	Plan       Plan
	Normalized []core.NormalizeResult
	Chunks     map[core.Table][]string
	Loaded     []loader.TableResult
	Report     *core.ErrorReport
}

// FailedTables lists the tables whose load failed.
func (r *Result) FailedTables() []core.Table {
	var failed []core.Table
	for _, t := range r.Loaded {
		if t.Failed() {
			failed = append(failed, t.Table)
		}
	}
	return failed
}

// pinger is implemented by stores that can check reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

// Orchestrator runs the stages of a load in order.
type Orchestrator struct {
	store   loader.Store
	opts    Options
	tracker *Tracker
}

// New creates an orchestrator. A nil tracker gets a private one.
func New(store loader.Store, opts Options, tracker *Tracker) *Orchestrator {
	if opts.Parallelism < 1 {
		opts.Parallelism = runtime.NumCPU()
	}
	if opts.ReportPath == "" {
		opts.ReportPath = filepath.Join(opts.Root, "rejected.json")
	}
	if tracker == nil {
		tracker = NewTracker(nil)
	}
	return &Orchestrator{store: store, opts: opts, tracker: tracker}
}

// Tracker returns the run tracker.
func (o *Orchestrator) Tracker() *Tracker {
	return o.tracker
}

// Run executes preflight, normalize, emit, split and load. The error report
// is written whenever the run got past preflight, including runs whose load
// failed. Per-record problems never fail a run; they are in the report.
func (o *Orchestrator) Run(ctx context.Context) (res *Result, err error) {
	runID := uuid.NewString()
	ctx = logging.WithRun(ctx, runID)
	logger := logging.FromContext(ctx)

	res = &Result{
		RunID:  runID,
		Report: core.NewErrorReport(runID, o.opts.MaxSamples),
	}
	res.Report.OnReject(o.tracker.Rejected)

	plan, err := NewPlan(o.opts.Resume, o.opts.One)
	if err != nil {
		o.tracker.Finish(err)
		return res, err
	}
	res.Plan = plan
	o.tracker.Start(runID, plan, o.opts.DryRun)

	start := time.Now()
	logger.Info("run started",
		"resume", plan.Resume,
		"window", plan.Window,
		"dry_run", o.opts.DryRun,
		"parallelism", o.opts.Parallelism,
	)

	o.tracker.SetStage(StagePreflight)
	if err := o.preflight(ctx); err != nil {
		logger.Error("preflight failed", "error", err)
		o.tracker.Finish(err)
		return res, err
	}

	if o.opts.Prepare != nil {
		if err := o.opts.Prepare(ctx); err != nil {
			logger.Error("prepare failed", "error", err)
			o.tracker.Finish(err)
			return res, err
		}
	}

	defer func() {
		if werr := res.Report.WriteFile(o.opts.ReportPath); werr != nil {
			logger.Error("write error report", "path", o.opts.ReportPath, "error", werr)
			err = errors.Join(err, werr)
		}
		o.logReport(ctx, res.Report)
		o.tracker.Finish(err)
		logger.Info("run finished", "duration", time.Since(start), "failed", err != nil)
	}()

	o.tracker.SetStage(StageNormalize)
	st := core.NewState(res.Report)
	res.Normalized, err = o.normalize(ctx, plan, st)
	if err != nil {
		return res, err
	}

	o.tracker.SetStage(StageEmit)
	if err := o.emit(ctx, plan, st); err != nil {
		return res, err
	}

	o.tracker.SetStage(StageSplit)
	res.Chunks, err = core.SplitAll(ctx, o.opts.Root, plan.Window, o.opts.Parallelism)
	if err != nil {
		return res, err
	}
	o.tracker.Split(res.Chunks)

	ld := loader.New(o.store, loader.Options{
		Root:        o.opts.Root,
		Parallelism: o.opts.Parallelism,
		DryRun:      o.opts.DryRun,
	}, o.tracker)
	res.Loaded, err = ld.Run(ctx, plan.CleanupUntil(), plan.Window)
	return res, err
}

// preflight checks everything that can be checked before the store is
// touched. Every failure is a configuration error.
func (o *Orchestrator) preflight(ctx context.Context) error {
	if len(o.opts.Sources) == 0 {
		return core.ConfigError("no source files configured")
	}

	for _, src := range o.opts.Sources {
		def, ok := core.Get(src.Kind)
		if !ok {
			return core.ConfigError("no normalizer registered for %s", src.Kind)
		}

		header, err := core.ReadHeader(src.Path, o.streamOptions(src))
		if err != nil {
			return err
		}
		if missing := core.MakeHeaderIndex(header).Missing(def.SourceColumns); len(missing) > 0 {
			return core.ConfigError("%s: missing required column(s) %v", src.Path, missing)
		}
	}

	if err := os.MkdirAll(o.opts.Root, 0o755); err != nil {
		return core.ConfigError("data root %s: %v", o.opts.Root, err)
	}

	if p, ok := o.store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return core.ConfigError("store unreachable: %v", err)
		}
	}
	return nil
}

// streamOptions applies a source's own delimiter over the run default.
func (o *Orchestrator) streamOptions(src Source) core.StreamOptions {
	opts := o.opts.Stream
	if src.Delimiter != 0 {
		opts.Delimiter = src.Delimiter
	}
	return opts
}

// normalize streams every source through its normalizer, in source order.
// Tables outside the window are normalized into a discarding sink so the
// indices later sources depend on are still built.
func (o *Orchestrator) normalize(ctx context.Context, plan Plan, st *core.State) (results []core.NormalizeResult, err error) {
	pf, closePF, err := o.sink(ctx, plan, core.TablePersonFilm)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := closePF(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	st.SetPersonFilmWriter(pf)

	seen := make(map[core.Kind]bool, len(o.opts.Sources))
	for _, src := range o.opts.Sources {
		res, err := o.normalizeSource(ctx, plan, src, st)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		seen[src.Kind] = true
	}

	// A kind without a source still gets an empty table file.
	for _, kind := range core.Kinds() {
		if seen[kind] || !plan.Includes(kind.Table()) {
			continue
		}
		logging.FromContext(ctx).Warn("no source configured, table will be empty", "table", kind.Table())
		_, closeFn, err := o.sink(ctx, plan, kind.Table())
		if err != nil {
			return results, err
		}
		if err := closeFn(); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (o *Orchestrator) normalizeSource(ctx context.Context, plan Plan, src Source, st *core.State) (res core.NormalizeResult, err error) {
	def, _ := core.Get(src.Kind)
	logger := logging.WithFields(ctx, "table", def.Table(), "source", filepath.Base(src.Path))

	stream, err := core.OpenStream(src.Path, o.streamOptions(src))
	if err != nil {
		return res, err
	}
	defer stream.Close()

	out, closeOut, err := o.sink(ctx, plan, def.Table())
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := closeOut(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	logger.Info("normalizing", "in_window", plan.Includes(def.Table()))
	res, err = core.NormalizeStream(ctx, def, stream, st, out)
	if err != nil {
		return res, err
	}
	logger.Info("normalized", "read", res.Read, "accepted", res.Accepted, "rejected", res.Rejected)
	if res.ReplacedBytes > 0 {
		logger.Warn("source is not valid UTF-8, bytes replaced with '?'", "bytes", res.ReplacedBytes)
		o.tracker.Replaced(def.Table(), res.ReplacedBytes)
	}
	return res, nil
}

// emit writes the lookup and association tables built during normalization.
func (o *Orchestrator) emit(ctx context.Context, plan Plan, st *core.State) error {
	for _, idx := range st.AuxIndexes() {
		if err := o.emitIndex(ctx, plan, idx); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) emitIndex(ctx context.Context, plan Plan, idx *core.AuxIndex) (err error) {
	lookup, closeLookup, err := o.sink(ctx, plan, idx.LookupTable())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeLookup(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var assoc core.RowWriter = core.Discard
	if idx.AssocTable() != "" {
		var (
			w          core.TableSink
			closeAssoc func() error
		)
		w, closeAssoc, err = o.sink(ctx, plan, idx.AssocTable())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := closeAssoc(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		assoc = w
	}

	logging.FromContext(ctx).Info("emitting auxiliary table",
		"table", idx.LookupTable(), "names", idx.Len(), "refs", idx.RefCount())
	return idx.Emit(lookup, assoc)
}

// sink opens the writer for table, or a discarding sink when the table is
// outside the window.
func (o *Orchestrator) sink(ctx context.Context, plan Plan, table core.Table) (core.TableSink, func() error, error) {
	if !plan.Includes(table) {
		return core.DiscardSink(), func() error { return nil }, nil
	}
	w, err := core.CreateTableWriter(o.opts.Root, table, o.progress(ctx))
	if err != nil {
		return nil, nil, err
	}
	return w, w.Close, nil
}

func (o *Orchestrator) progress(ctx context.Context) core.ProgressFunc {
	logger := logging.FromContext(ctx)
	return func(p core.Progress) {
		o.tracker.Progress(p)
		if p.Done {
			logger.Info("table written", "table", p.Table, "rows", p.Rows)
			return
		}
		logger.Info("progress", "table", p.Table, "percent", fmt.Sprintf("%.0f", p.Percent), "rows", p.Rows)
	}
}

func (o *Orchestrator) logReport(ctx context.Context, report *core.ErrorReport) {
	logger := logging.FromContext(ctx)
	logger.Info("rejected records", "total", report.Total(), "summary", report.Summary(), "report", o.opts.ReportPath)

	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	for _, table := range report.Tables() {
		for _, s := range report.Samples(table) {
			logger.Debug("rejected", "table", table, "line", s.Line, "code", s.Code, "reason", s.Reason)
		}
	}
}

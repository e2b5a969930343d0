package core

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ctxCheckInterval is how many records are processed between context checks.
const ctxCheckInterval = 10000

// TableSink receives the rows of one table and the source progress.
type TableSink interface {
	RowWriter
	Progress(pct float64)
}

type discardSink struct{}

func (discardSink) Write(Row) error  { return nil }
func (discardSink) Progress(float64) {}

// DiscardSink returns a TableSink that drops rows and progress.
func DiscardSink() TableSink {
	return discardSink{}
}

// NormalizeResult summarizes one normalized source.
type NormalizeResult struct {
	Table    Table
	Read     int64 // Data records read, including malformed ones
	Accepted int64
	Rejected int64

	// ReplacedBytes counts invalid UTF-8 bytes rewritten to '?' while
	// reading the source. Records containing them are still accepted.
	ReplacedBytes int64
}

// NormalizeStream drains stream through def, writing accepted rows to out
// and rejected records to st.Report. Per-record problems never stop the
// stream; only I/O failures and cancellation do.
func NormalizeStream(ctx context.Context, def TableDefinition, stream *RecordStream, st *State, out TableSink) (NormalizeResult, error) {
	res := NormalizeResult{Table: def.Table()}

	if missing := stream.HeaderIndex().Missing(def.SourceColumns); len(missing) > 0 {
		return res, ConfigError("%s: missing required column(s) %v", stream.Path(), missing)
	}

	for {
		if res.Read%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}

		rec, pct, err := stream.Next()
		if err == io.EOF {
			res.ReplacedBytes = stream.ReplacedBytes()
			st.Report.AddReplacedBytes(res.Table, res.ReplacedBytes)
			return res, nil
		}
		if err != nil {
			var mre *MalformedRecordError
			if !errors.As(err, &mre) {
				return res, fmt.Errorf("read %s: %w", stream.Path(), err)
			}
			res.Read++
			res.Rejected++
			st.Report.Add(res.Table, rec, err)
			out.Progress(pct)
			continue
		}
		res.Read++

		row, err := def.Normalize(rec, st)
		if err != nil {
			var re *RecordError
			if !errors.As(err, &re) {
				return res, fmt.Errorf("normalize %s line %d: %w", res.Table, rec.Line, err)
			}
			res.Rejected++
			st.Report.Add(res.Table, rec, err)
			out.Progress(pct)
			continue
		}

		if err := out.Write(row); err != nil {
			return res, err
		}
		res.Accepted++
		out.Progress(pct)
	}
}

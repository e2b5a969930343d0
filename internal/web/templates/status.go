// Package templates renders the run status page.
package templates

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
)

// TableRow is one line of the status table.
type TableRow struct {
	Table      string
	InWindow   bool
	Percent    float64
	Rows       int64
	Rejected   int64
	Chunks     int
	ChunksDone int
	Loaded     int64
	Error      string
}

// StatusData is everything the status page shows.
type StatusData struct {
	RunID      string
	Stage      string
	DryRun     bool
	Resume     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Error      string
	Tables     []TableRow
}

// StatusPage renders the full HTML page. It refreshes itself every few
// seconds while the run is in progress.
func StatusPage(d StatusData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}

		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		p.raw(`<title>imdbload `)
		p.text(d.Stage)
		p.raw(`</title>`)
		if d.FinishedAt == nil {
			p.raw(`<meta http-equiv="refresh" content="5">`)
		}
		p.raw(`<style>body{font-family:sans-serif;margin:2rem}table{border-collapse:collapse}` +
			`td,th{padding:.25rem .75rem;border-bottom:1px solid #ddd;text-align:right}` +
			`td:first-child,th:first-child{text-align:left}.out{color:#999}.err{color:#b00}</style>`)
		p.raw(`</head><body>`)

		p.raw(`<h1>Run `)
		p.text(d.RunID)
		p.raw(`</h1><p>Stage: <strong>`)
		p.text(d.Stage)
		p.raw(`</strong>`)
		if d.DryRun {
			p.raw(` (dry run)`)
		}
		if d.Resume != "" {
			p.raw(` &middot; resumed from `)
			p.text(d.Resume)
		}
		p.raw(`</p><p>Started `)
		p.text(d.StartedAt.Format(time.RFC3339))
		if d.FinishedAt != nil {
			p.raw(` &middot; finished `)
			p.text(d.FinishedAt.Format(time.RFC3339))
		}
		p.raw(`</p>`)

		if d.Error != "" {
			p.raw(`<p class="err">`)
			p.text(d.Error)
			p.raw(`</p>`)
		}

		p.raw(`<table><thead><tr><th>Table</th><th>Written</th><th>Rows</th><th>Rejected</th>` +
			`<th>Chunks</th><th>Loaded</th><th></th></tr></thead><tbody>`)
		for _, t := range d.Tables {
			tableRow(p, t)
		}
		p.raw(`</tbody></table></body></html>`)

		return p.err
	})
}

// ErrorAlert renders an error message fragment.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw(`<div class="err" role="alert"><p>`)
		p.text(message)
		p.raw(`</p>`)
		if action != "" {
			p.raw(`<p>`)
			p.text(action)
			p.raw(`</p>`)
		}
		p.raw(`<small>Code: `)
		p.text(code)
		p.raw(`</small></div>`)
		return p.err
	})
}

func tableRow(p *printer, t TableRow) {
	if t.InWindow {
		p.raw(`<tr>`)
	} else {
		p.raw(`<tr class="out">`)
	}
	p.raw(`<td>`)
	p.text(t.Table)
	p.raw(`</td><td>`)
	p.text(fmt.Sprintf("%.0f%%", t.Percent))
	p.raw(`</td><td>`)
	p.text(fmt.Sprint(t.Rows))
	p.raw(`</td><td>`)
	p.text(fmt.Sprint(t.Rejected))
	p.raw(`</td><td>`)
	p.text(fmt.Sprintf("%d/%d", t.ChunksDone, t.Chunks))
	p.raw(`</td><td>`)
	p.text(fmt.Sprint(t.Loaded))
	p.raw(`</td><td class="err">`)
	p.text(t.Error)
	p.raw(`</td></tr>`)
}

// printer writes HTML and keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) text(s string) {
	p.raw(templ.EscapeString(s))
}

// Package pipeline drives a load run: preflight checks, normalization of the
// source files in kind order, auxiliary table emission, chunk splitting and
// the bulk load.
package pipeline

import (
	"path/filepath"
	"slices"

	"github.com/JonMunkholm/imdbload/internal/config"
	"github.com/JonMunkholm/imdbload/internal/core"
)

// Plan is the set of tables a run clears and loads.
type Plan struct {
	// Resume is the table the run restarts from; empty for a full run.
	Resume core.Table

	// Window lists the tables loaded, in load order.
	Window []core.Table
}

// NewPlan builds the load window. An empty resume starts at the first table.
// With one set, only the first table of the window is kept.
func NewPlan(resume string, one bool) (Plan, error) {
	p := Plan{Window: core.LoadOrder}

	if resume != "" {
		t, err := core.ParseTable(resume)
		if err != nil {
			return Plan{}, err
		}
		p.Resume = t
		p.Window = core.LoadOrder[t.Position():]
	}

	if one {
		p.Window = p.Window[:1]
	}
	p.Window = slices.Clone(p.Window)
	return p, nil
}

// Includes reports whether t is loaded by this run.
func (p Plan) Includes(t core.Table) bool {
	return slices.Contains(p.Window, t)
}

// CleanupUntil is the last table cleared. Clearing always reaches the first
// table of the window so nothing in the window keeps rows from a previous
// run.
func (p Plan) CleanupUntil() core.Table {
	return p.Window[0]
}

// Source is one input file resolved against the data root.
type Source struct {
	Kind core.Kind
	Path string

	// Delimiter overrides Options.Stream.Delimiter for this file; 0 keeps it.
	Delimiter rune
}

// SourcesFromManifest resolves manifest entries against root. Relative file
// names are joined to root.
func SourcesFromManifest(root string, m config.Manifest) ([]Source, error) {
	sources := make([]Source, 0, len(m.Datasets))
	seen := make(map[core.Kind]bool, len(m.Datasets))

	for _, ds := range m.Datasets {
		kind, err := core.ParseKind(ds.Kind)
		if err != nil {
			return nil, core.ConfigError("manifest: %v", err)
		}
		if seen[kind] {
			return nil, core.ConfigError("manifest: kind %s listed twice", kind)
		}
		seen[kind] = true

		path := ds.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		sources = append(sources, Source{Kind: kind, Path: path, Delimiter: ds.DelimiterRune()})
	}
	return sources, nil
}

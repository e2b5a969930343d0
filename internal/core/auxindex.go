package core

import "fmt"

// AuxIndex discovers the values of a free-text lookup column (genre,
// profession, job category) and assigns each distinct name a dense id in
// first-seen order, starting at 1. When it tracks references it also keeps,
// per name, the ids of the records that mentioned it.
type AuxIndex struct {
	lookup Table
	assoc  Table

	ids   map[string]int32
	names []string
	refs  [][]int32 // refs[id-1], nil when not tracking
	track bool
	nrefs int
}

// NewAuxIndex creates an index writing lookup rows to lookup and, when
// trackRefs is set, association rows to assoc.
func NewAuxIndex(lookup, assoc Table, trackRefs bool) *AuxIndex {
	return &AuxIndex{
		lookup: lookup,
		assoc:  assoc,
		ids:    make(map[string]int32),
		track:  trackRefs,
	}
}

// Add registers name, referenced by ref, and returns the id assigned to the
// name. The same name always maps to the same id.
func (a *AuxIndex) Add(name string, ref int32) int32 {
	id, ok := a.ids[name]
	if !ok {
		a.names = append(a.names, name)
		id = int32(len(a.names))
		a.ids[name] = id
		if a.track {
			a.refs = append(a.refs, nil)
		}
	}
	if a.track {
		a.refs[id-1] = append(a.refs[id-1], ref)
		a.nrefs++
	}
	return id
}

// ID returns the id assigned to name, if any.
func (a *AuxIndex) ID(name string) (int32, bool) {
	id, ok := a.ids[name]
	return id, ok
}

// Len returns the number of distinct names.
func (a *AuxIndex) Len() int {
	return len(a.names)
}

// RefCount returns the number of association rows Emit will write.
func (a *AuxIndex) RefCount() int {
	return a.nrefs
}

// LookupTable returns the lookup table name.
func (a *AuxIndex) LookupTable() Table {
	return a.lookup
}

// AssocTable returns the association table name, or "" when not tracking.
func (a *AuxIndex) AssocTable() Table {
	if !a.track {
		return ""
	}
	return a.assoc
}

// Emit writes (id, name) rows in first-seen order to lookup and, when
// tracking, (id, ref) rows to assoc grouped by name in first-seen order and
// by reference in insertion order.
func (a *AuxIndex) Emit(lookup, assoc RowWriter) error {
	for i, name := range a.names {
		if err := lookup.Write(Row{FormatID(int32(i + 1)), name}); err != nil {
			return fmt.Errorf("emit %s: %w", a.lookup, err)
		}
	}

	if !a.track {
		return nil
	}

	for i, refs := range a.refs {
		id := FormatID(int32(i + 1))
		for _, ref := range refs {
			if err := assoc.Write(Row{id, FormatID(ref)}); err != nil {
				return fmt.Errorf("emit %s: %w", a.assoc, err)
			}
		}
	}
	return nil
}

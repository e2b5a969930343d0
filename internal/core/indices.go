package core

import (
	"github.com/weaviate/sroar"
)

// IDSet is the referential index of accepted ids for one entity kind,
// backed by a roaring bitmap. IMDB ids are dense, so ten million ids cost a
// few megabytes.
type IDSet struct {
	bm *sroar.Bitmap
}

// NewIDSet returns an empty set.
func NewIDSet() *IDSet {
	return &IDSet{bm: sroar.NewBitmap()}
}

// Add inserts id and reports whether it was newly added.
func (s *IDSet) Add(id int32) bool {
	return s.bm.Set(uint64(id))
}

// Contains reports whether id has been accepted.
func (s *IDSet) Contains(id int32) bool {
	return s.bm.Contains(uint64(id))
}

// Len returns the number of ids in the set.
func (s *IDSet) Len() int {
	return s.bm.GetCardinality()
}

// PairSet deduplicates (a, b) id pairs of an association table.
type PairSet struct {
	seen map[uint64]struct{}
}

// NewPairSet returns an empty set.
func NewPairSet() *PairSet {
	return &PairSet{seen: make(map[uint64]struct{})}
}

// Add inserts the pair and reports whether it was newly added.
func (p *PairSet) Add(a, b int32) bool {
	key := uint64(uint32(a))<<32 | uint64(uint32(b))
	if _, ok := p.seen[key]; ok {
		return false
	}
	p.seen[key] = struct{}{}
	return true
}

// Len returns the number of distinct pairs.
func (p *PairSet) Len() int {
	return len(p.seen)
}

// RowWriter accepts normalized rows.
type RowWriter interface {
	Write(Row) error
}

type discard struct{}

func (discard) Write(Row) error { return nil }

// Discard is a RowWriter that drops every row. Tables outside the load
// window are normalized into it so the indices are still built.
var Discard RowWriter = discard{}

// State is the mutable state of one normalization run. It is owned by a
// single goroutine and passed to every normalizer in kind order.
type State struct {
	Films   *IDSet
	Persons *IDSet

	Genres        *AuxIndex
	Professions   *AuxIndex
	JobCategories *AuxIndex

	Report *ErrorReport

	personFilms   *PairSet
	personFilmOut RowWriter
	seq           map[Table]int32
}

// NewState creates empty indices. Person-film rows go to Discard until
// SetPersonFilmWriter is called.
func NewState(report *ErrorReport) *State {
	return &State{
		Films:         NewIDSet(),
		Persons:       NewIDSet(),
		Genres:        NewAuxIndex(TableGenre, TableGenreFilm, true),
		Professions:   NewAuxIndex(TableProfession, TableProfessionPerson, true),
		JobCategories: NewAuxIndex(TableJobCategory, "", false),
		Report:        report,
		personFilms:   NewPairSet(),
		personFilmOut: Discard,
		seq:           make(map[Table]int32),
	}
}

// SetPersonFilmWriter sets where person-film association rows are streamed.
func (s *State) SetPersonFilmWriter(w RowWriter) {
	s.personFilmOut = w
}

// LinkPersonFilm records a person-film association. Repeated pairs are
// written once.
func (s *State) LinkPersonFilm(person, film int32) error {
	if !s.personFilms.Add(person, film) {
		return nil
	}
	return s.personFilmOut.Write(Row{FormatID(person), FormatID(film)})
}

// PersonFilmCount returns the number of distinct person-film pairs.
func (s *State) PersonFilmCount() int {
	return s.personFilms.Len()
}

// NextSeq returns the next surrogate id for table, starting at 1.
func (s *State) NextSeq(t Table) int32 {
	s.seq[t]++
	return s.seq[t]
}

// AuxIndexes returns the auxiliary indices in emission order.
func (s *State) AuxIndexes() []*AuxIndex {
	return []*AuxIndex{s.JobCategories, s.Genres, s.Professions}
}

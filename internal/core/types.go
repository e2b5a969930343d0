package core

import (
	"fmt"
	"strings"
)

// Kind identifies a source entity type. The declared order is the
// normalization order: a kind may only reference kinds declared before it.
type Kind int

const (
	KindFilm Kind = iota
	KindPerson
	KindCastLink
	KindRating
)

var kindNames = [...]string{"film", "person", "cast_link", "rating"}

// Kinds returns every entity kind in normalization order.
func Kinds() []Kind {
	return []Kind{KindFilm, KindPerson, KindCastLink, KindRating}
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Table returns the table a kind's normalizer writes.
func (k Kind) Table() Table {
	return Table(k.String())
}

// ParseKind resolves a kind by name ("film", "person", "cast_link", "rating").
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown entity kind %q", s)
}

// Table is the name of a target table in the relational store.
type Table string

const (
	TableFilm             Table = "film"
	TablePerson           Table = "person"
	TableJobCategory      Table = "job_category"
	TableCastLink         Table = "cast_link"
	TableRating           Table = "rating"
	TableGenre            Table = "genre"
	TableProfession       Table = "profession"
	TablePersonFilm       Table = "person_film"
	TableGenreFilm        Table = "genre_film"
	TableProfessionPerson Table = "profession_person"
)

// LoadOrder lists every table so that each one follows the tables it
// references.
var LoadOrder = []Table{
	TableFilm,
	TablePerson,
	TableJobCategory,
	TableCastLink,
	TableRating,
	TableGenre,
	TableProfession,
	TablePersonFilm,
	TableGenreFilm,
	TableProfessionPerson,
}

// CleanupOrder returns LoadOrder reversed: dependents are cleared before the
// tables they reference.
func CleanupOrder() []Table {
	out := make([]Table, len(LoadOrder))
	for i, t := range LoadOrder {
		out[len(LoadOrder)-1-i] = t
	}
	return out
}

// ParseTable resolves a table name.
func ParseTable(s string) (Table, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range LoadOrder {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown table %q", ErrConfiguration, s)
}

// Position returns the index of t in LoadOrder, or -1.
func (t Table) Position() int {
	for i, lt := range LoadOrder {
		if lt == t {
			return i
		}
	}
	return -1
}

// FileName is the normalized output file name under the data root.
func (t Table) FileName() string {
	return string(t) + ".csv"
}

var tableColumns = map[Table][]string{
	TableFilm:             {"id", "title", "is_adult", "start_year", "runtime_minutes"},
	TablePerson:           {"id", "name", "birth_year", "death_year"},
	TableJobCategory:      {"id", "name"},
	TableCastLink:         {"id", "film_id", "person_id", "job_category_id"},
	TableRating:           {"id", "film_id", "average_rating", "num_votes"},
	TableGenre:            {"id", "name"},
	TableProfession:       {"id", "name"},
	TablePersonFilm:       {"person_id", "film_id"},
	TableGenreFilm:        {"genre_id", "film_id"},
	TableProfessionPerson: {"profession_id", "person_id"},
}

// Columns returns the store column names in output file order.
func (t Table) Columns() []string {
	return tableColumns[t]
}

// Row is one normalized output row. An empty string is written as NULL.
type Row []string

// HeaderIndex maps column names (lowercase) to their position in a source row.
type HeaderIndex map[string]int

// MakeHeaderIndex creates a HeaderIndex from a header row.
// Keys are lowercased for case-insensitive matching.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

// Missing returns the required columns absent from the header.
func (h HeaderIndex) Missing(required []string) []string {
	var missing []string
	for _, col := range required {
		if _, ok := h[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// Progress is a snapshot of one table's normalization.
type Progress struct {
	Table   Table
	Percent float64
	Rows    int64
	Done    bool
}

// ProgressFunc is called whenever a table's progress advances.
type ProgressFunc func(Progress)

package tables

import (
	"github.com/JonMunkholm/imdbload/internal/core"
)

func init() {
	registerFilm()
}

func registerFilm() {
	core.Register(core.TableDefinition{
		Kind:          core.KindFilm,
		SourceColumns: []string{"tconst", "primaryTitle", "isAdult", "startYear", "runtimeMinutes", "genres"},
		Normalize:     normalizeFilm,
	})
}

// normalizeFilm accepts a title.basics record, indexes its id and registers
// its genres.
func normalizeFilm(rec core.Record, st *core.State) (core.Row, error) {
	id, err := parseID(rec, "tconst")
	if err != nil {
		return nil, err
	}
	if st.Films.Contains(id) {
		return nil, core.Duplicate("tconst", rec.Get("tconst"))
	}

	isAdult, err := flag(rec, "isAdult")
	if err != nil {
		return nil, err
	}
	startYear, err := nullInt(rec, "startYear")
	if err != nil {
		return nil, err
	}
	runtime, err := nullInt(rec, "runtimeMinutes")
	if err != nil {
		return nil, err
	}

	st.Films.Add(id)
	for _, genre := range core.SplitMulti(rec.Get("genres")) {
		st.Genres.Add(genre, id)
	}

	return core.Row{
		core.FormatID(id),
		core.NullText(rec.Get("primaryTitle")),
		isAdult,
		startYear,
		runtime,
	}, nil
}

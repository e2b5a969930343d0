package tables

import (
	"github.com/JonMunkholm/imdbload/internal/core"
)

func init() {
	registerRating()
}

func registerRating() {
	core.Register(core.TableDefinition{
		Kind:          core.KindRating,
		SourceColumns: []string{"tconst", "averageRating", "numVotes"},
		Normalize:     normalizeRating,
	})
}

func normalizeRating(rec core.Record, st *core.State) (core.Row, error) {
	filmID, err := parseID(rec, "tconst")
	if err != nil {
		return nil, err
	}

	average, err := nullFloat(rec, "averageRating")
	if err != nil {
		return nil, err
	}
	votes, err := nullInt(rec, "numVotes")
	if err != nil {
		return nil, err
	}

	if !st.Films.Contains(filmID) {
		return nil, core.Dangling("tconst", rec.Get("tconst"), "film not indexed")
	}

	return core.Row{
		core.FormatID(st.NextSeq(core.TableRating)),
		core.FormatID(filmID),
		average,
		votes,
	}, nil
}

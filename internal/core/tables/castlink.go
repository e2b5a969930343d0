package tables

import (
	"github.com/JonMunkholm/imdbload/internal/core"
)

func init() {
	registerCastLink()
}

func registerCastLink() {
	core.Register(core.TableDefinition{
		Kind:          core.KindCastLink,
		SourceColumns: []string{"tconst", "nconst", "category"},
		Normalize:     normalizeCastLink,
	})
}

// normalizeCastLink accepts a title.principals record whose film and person
// are both indexed. An accepted link also implies a person-film association.
// A blank category leaves job_category_id NULL.
func normalizeCastLink(rec core.Record, st *core.State) (core.Row, error) {
	filmID, err := parseID(rec, "tconst")
	if err != nil {
		return nil, err
	}
	personID, err := parseID(rec, "nconst")
	if err != nil {
		return nil, err
	}

	if !st.Films.Contains(filmID) {
		return nil, core.Dangling("tconst", rec.Get("tconst"), "film not indexed")
	}
	if !st.Persons.Contains(personID) {
		return nil, core.Dangling("nconst", rec.Get("nconst"), "person not indexed")
	}

	jobCategory := ""
	if name := core.NullText(rec.Get("category")); name != "" {
		jobCategory = core.FormatID(st.JobCategories.Add(name, 0))
	}

	if err := st.LinkPersonFilm(personID, filmID); err != nil {
		return nil, err
	}

	return core.Row{
		core.FormatID(st.NextSeq(core.TableCastLink)),
		core.FormatID(filmID),
		core.FormatID(personID),
		jobCategory,
	}, nil
}

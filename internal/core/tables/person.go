package tables

import (
	"github.com/JonMunkholm/imdbload/internal/core"
)

func init() {
	registerPerson()
}

func registerPerson() {
	core.Register(core.TableDefinition{
		Kind:          core.KindPerson,
		SourceColumns: []string{"nconst", "primaryName", "birthYear", "deathYear", "primaryProfession", "knownForTitles"},
		Normalize:     normalizePerson,
	})
}

// normalizePerson accepts a name.basics record, indexes its id, registers its
// professions and links it to the known-for films that are already indexed.
// Known-for ids that cannot be linked are reported under person_film; they
// never reject the person.
func normalizePerson(rec core.Record, st *core.State) (core.Row, error) {
	id, err := parseID(rec, "nconst")
	if err != nil {
		return nil, err
	}
	if st.Persons.Contains(id) {
		return nil, core.Duplicate("nconst", rec.Get("nconst"))
	}

	birthYear, err := nullInt(rec, "birthYear")
	if err != nil {
		return nil, err
	}
	deathYear, err := nullInt(rec, "deathYear")
	if err != nil {
		return nil, err
	}

	st.Persons.Add(id)
	for _, profession := range core.SplitMulti(rec.Get("primaryProfession")) {
		st.Professions.Add(profession, id)
	}

	for _, raw := range core.SplitMulti(rec.Get("knownForTitles")) {
		filmID, ok := core.ParseID(raw)
		if !ok {
			st.Report.Add(core.TablePersonFilm, rec, core.Malformed("knownForTitles", raw, "not a valid identifier"))
			continue
		}
		if !st.Films.Contains(filmID) {
			st.Report.Add(core.TablePersonFilm, rec, core.Dangling("knownForTitles", raw, "film not indexed"))
			continue
		}
		if err := st.LinkPersonFilm(id, filmID); err != nil {
			return nil, err
		}
	}

	return core.Row{
		core.FormatID(id),
		core.NullText(rec.Get("primaryName")),
		birthYear,
		deathYear,
	}, nil
}

package tables

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/imdbload/internal/core"
)

const (
	filmHeader     = "tconst\ttitleType\tprimaryTitle\tisAdult\tstartYear\truntimeMinutes\tgenres"
	personHeader   = "nconst\tprimaryName\tbirthYear\tdeathYear\tprimaryProfession\tknownForTitles"
	castLinkHeader = "tconst\tordering\tnconst\tcategory"
	ratingHeader   = "tconst\taverageRating\tnumVotes"
)

type memSink struct {
	rows []core.Row
	pct  float64
}

func (m *memSink) Write(r core.Row) error {
	m.rows = append(m.rows, r)
	return nil
}

func (m *memSink) Progress(p float64) { m.pct = p }

func writeSource(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func normalize(t *testing.T, st *core.State, kind core.Kind, path string) (*memSink, core.NormalizeResult) {
	t.Helper()
	def, ok := core.Get(kind)
	require.True(t, ok, "kind %s not registered", kind)

	s, err := core.OpenStream(path, core.StreamOptions{Delimiter: '\t'})
	require.NoError(t, err)
	defer s.Close()

	out := &memSink{}
	res, err := core.NormalizeStream(context.Background(), def, s, st, out)
	require.NoError(t, err)
	return out, res
}

func newState() (*core.State, *memSink) {
	st := core.NewState(core.NewErrorReport("test", 100))
	pf := &memSink{}
	st.SetPersonFilmWriter(pf)
	return st, pf
}

func TestRegistry_AllKindsRegistered(t *testing.T) {
	defs := core.All()
	require.Len(t, defs, 4)
	for i, kind := range core.Kinds() {
		assert.Equal(t, kind, defs[i].Kind)
		assert.NotEmpty(t, defs[i].SourceColumns)
	}
}

func TestFilm_MalformedLineIsReported(t *testing.T) {
	lines := []string{filmHeader}
	for i := 1; i <= 8; i++ {
		lines = append(lines, strings.Join([]string{
			"tt000000" + string(rune('0'+i)), "movie", "Film", "0", "1999", "90", "Drama",
		}, "\t"))
	}
	lines = append(lines, "tt0000099\tmovie\tBroken")
	path := writeSource(t, "title.basics.tsv", lines...)

	st, _ := newState()
	out, res := normalize(t, st, core.KindFilm, path)

	assert.Len(t, out.rows, 8)
	assert.Equal(t, int64(9), res.Read)
	assert.Equal(t, int64(1), st.Report.Count(core.TableFilm))
	assert.Equal(t, int64(1), st.Report.CountCode(core.TableFilm, core.CodeMalformedRecord))
	assert.Equal(t, 8, st.Films.Len())

	samples := st.Report.Samples(core.TableFilm)
	require.Len(t, samples, 1)
	assert.Equal(t, 10, samples[0].Line)
	assert.Equal(t, "tt0000099\tmovie\tBroken", samples[0].Raw)
}

func TestFilm_RowShapeAndNulls(t *testing.T) {
	path := writeSource(t, "title.basics.tsv",
		filmHeader,
		"tt0000001\tshort\tCarmencita\t0\t1894\t1\tDocumentary,Short",
		`tt0000002`+"\tshort\tUntitled\t1\t\\N\t\\N\t\\N",
	)

	st, _ := newState()
	out, _ := normalize(t, st, core.KindFilm, path)

	require.Len(t, out.rows, 2)
	assert.Equal(t, core.Row{"1", "Carmencita", "false", "1894", "1"}, out.rows[0])
	assert.Equal(t, core.Row{"2", "Untitled", "true", "", ""}, out.rows[1])
	assert.Equal(t, 2, st.Genres.Len())
	assert.Equal(t, 2, st.Genres.RefCount())
}

func TestFilm_Rejections(t *testing.T) {
	tests := []struct {
		name string
		line string
		code string
	}{
		{"bad identifier", "xx\tmovie\tA\t0\t2000\t90\tDrama", core.CodeMalformedRecord},
		{"id out of range", "tt9999999999\tmovie\tA\t0\t2000\t90\tDrama", core.CodeMalformedRecord},
		{"bad year", "tt0000002\tmovie\tA\t0\tsoon\t90\tDrama", core.CodeMalformedRecord},
		{"bad flag", "tt0000002\tmovie\tA\tmaybe\t2000\t90\tDrama", core.CodeMalformedRecord},
		{"duplicate id", "tt0000001\tmovie\tA\t0\t2000\t90\tDrama", core.CodeDuplicateKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSource(t, "title.basics.tsv",
				filmHeader,
				"tt0000001\tmovie\tFirst\t0\t2000\t90\tDrama",
				tt.line,
			)
			st, _ := newState()
			out, _ := normalize(t, st, core.KindFilm, path)

			assert.Len(t, out.rows, 1)
			assert.Equal(t, int64(1), st.Report.CountCode(core.TableFilm, tt.code))
		})
	}
}

func TestPerson_SharedProfessionGetsOneID(t *testing.T) {
	st, _ := newState()
	persons := writeSource(t, "name.basics.tsv",
		personHeader,
		"nm0000001\tFred Astaire\t1899\t1987\tactor,soundtrack\t\\N",
		"nm0000002\tLauren Bacall\t1924\t2014\tactor\t\\N",
	)
	normalize(t, st, core.KindPerson, persons)

	lookup, assoc := &memSink{}, &memSink{}
	require.NoError(t, st.Professions.Emit(lookup, assoc))

	actorRows := 0
	for _, r := range lookup.rows {
		if r[1] == "actor" {
			actorRows++
			assert.Equal(t, "1", r[0])
		}
	}
	assert.Equal(t, 1, actorRows)

	var actorLinks []core.Row
	for _, r := range assoc.rows {
		if r[0] == "1" {
			actorLinks = append(actorLinks, r)
		}
	}
	assert.Equal(t, []core.Row{{"1", "1"}, {"1", "2"}}, actorLinks)
}

func TestPerson_KnownForLinksOnlyIndexedFilms(t *testing.T) {
	st, pf := newState()
	films := writeSource(t, "title.basics.tsv",
		filmHeader,
		"tt0000001\tmovie\tA\t0\t2000\t90\tDrama",
	)
	normalize(t, st, core.KindFilm, films)

	persons := writeSource(t, "name.basics.tsv",
		personHeader,
		"nm0000001\tAnn\t\\N\t\\N\tactress\ttt0000001,tt0000777,bogus",
	)
	out, _ := normalize(t, st, core.KindPerson, persons)

	require.Len(t, out.rows, 1)
	assert.Equal(t, []core.Row{{"1", "1"}}, pf.rows)
	assert.Equal(t, int64(1), st.Report.CountCode(core.TablePersonFilm, core.CodeDanglingReference))
	assert.Equal(t, int64(1), st.Report.CountCode(core.TablePersonFilm, core.CodeMalformedRecord))
	assert.Equal(t, int64(0), st.Report.Count(core.TablePerson))
}

func TestCastLink_DanglingFilmIsDropped(t *testing.T) {
	st, pf := newState()
	normalize(t, st, core.KindFilm, writeSource(t, "title.basics.tsv",
		filmHeader,
		"tt0000001\tmovie\tA\t0\t2000\t90\tDrama",
	))
	normalize(t, st, core.KindPerson, writeSource(t, "name.basics.tsv",
		personHeader,
		"nm0000001\tAnn\t\\N\t\\N\tactress\t\\N",
	))

	out, _ := normalize(t, st, core.KindCastLink, writeSource(t, "title.principals.tsv",
		castLinkHeader,
		"tt0000001\t1\tnm0000001\tactress",
		"tt0000404\t1\tnm0000001\tactress",
		"tt0000001\t2\tnm0000404\tdirector",
	))

	require.Len(t, out.rows, 1)
	assert.Equal(t, core.Row{"1", "1", "1", "1"}, out.rows[0])
	assert.Equal(t, int64(2), st.Report.CountCode(core.TableCastLink, core.CodeDanglingReference))
	assert.Equal(t, []core.Row{{"1", "1"}}, pf.rows)
	assert.Equal(t, 1, st.JobCategories.Len())
}

func TestCastLink_ProcessedBeforePersonsIsDropped(t *testing.T) {
	st, _ := newState()
	normalize(t, st, core.KindFilm, writeSource(t, "title.basics.tsv",
		filmHeader,
		"tt0000001\tmovie\tA\t0\t2000\t90\tDrama",
	))

	out, _ := normalize(t, st, core.KindCastLink, writeSource(t, "title.principals.tsv",
		castLinkHeader,
		"tt0000001\t1\tnm0000001\tactor",
	))
	assert.Empty(t, out.rows)
	assert.Equal(t, int64(1), st.Report.Count(core.TableCastLink))

	normalize(t, st, core.KindPerson, writeSource(t, "name.basics.tsv",
		personHeader,
		"nm0000001\tBob\t\\N\t\\N\tactor\t\\N",
	))
	assert.Equal(t, int64(1), st.Report.Count(core.TableCastLink))
}

func TestCastLink_PairWrittenOnce(t *testing.T) {
	st, pf := newState()
	normalize(t, st, core.KindFilm, writeSource(t, "title.basics.tsv",
		filmHeader,
		"tt0000001\tmovie\tA\t0\t2000\t90\tDrama",
	))
	normalize(t, st, core.KindPerson, writeSource(t, "name.basics.tsv",
		personHeader,
		"nm0000001\tAnn\t\\N\t\\N\tactress\ttt0000001",
	))
	out, _ := normalize(t, st, core.KindCastLink, writeSource(t, "title.principals.tsv",
		castLinkHeader,
		"tt0000001\t1\tnm0000001\tactress",
		"tt0000001\t2\tnm0000001\tproducer",
	))

	require.Len(t, out.rows, 2)
	assert.Equal(t, "1", out.rows[0][0])
	assert.Equal(t, "2", out.rows[1][0])
	assert.Equal(t, []core.Row{{"1", "1"}}, pf.rows)
	assert.Equal(t, 2, st.JobCategories.Len())
}

func TestRating_SequenceAndDangling(t *testing.T) {
	st, _ := newState()
	normalize(t, st, core.KindFilm, writeSource(t, "title.basics.tsv",
		filmHeader,
		"tt0000001\tmovie\tA\t0\t2000\t90\tDrama",
		"tt0000002\tmovie\tB\t0\t2001\t95\tComedy",
	))

	out, _ := normalize(t, st, core.KindRating, writeSource(t, "title.ratings.tsv",
		ratingHeader,
		"tt0000001\t5.7\t1971",
		"tt0000003\t6.1\t10",
		"tt0000002\t8.25\t42",
		"tt0000002\tgreat\t42",
	))

	assert.Equal(t, []core.Row{
		{"1", "1", "5.7", "1971"},
		{"2", "2", "8.25", "42"},
	}, out.rows)
	assert.Equal(t, int64(1), st.Report.CountCode(core.TableRating, core.CodeDanglingReference))
	assert.Equal(t, int64(1), st.Report.CountCode(core.TableRating, core.CodeMalformedRecord))
}

func TestNormalize_MissingColumnIsConfigurationError(t *testing.T) {
	path := writeSource(t, "title.ratings.tsv",
		"tconst\taverageRating",
		"tt0000001\t5.7",
	)
	def, _ := core.Get(core.KindRating)
	s, err := core.OpenStream(path, core.StreamOptions{Delimiter: '\t'})
	require.NoError(t, err)
	defer s.Close()

	st, _ := newState()
	_, err = core.NormalizeStream(context.Background(), def, s, st, &memSink{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfiguration))
	assert.Contains(t, err.Error(), "numVotes")
}

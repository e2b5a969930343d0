package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"malformed record", Malformed("startYear", "soon", "invalid integer"), CodeMalformedRecord},
		{"malformed line", &MalformedRecordError{Line: 3, Want: 3, Got: 2}, CodeMalformedRecord},
		{"duplicate", Duplicate("tconst", "tt1"), CodeDuplicateKey},
		{"dangling", Dangling("tconst", "tt1", "film not indexed"), CodeDanglingReference},
		{"configuration", ConfigError("unknown table %q", "x"), CodeConfiguration},
		{"wrapped configuration", fmt.Errorf("preflight: %w", ConfigError("bad")), CodeConfiguration},
		{"bulk copy", fmt.Errorf("%w: chunk 3: %w", ErrBulkCopy, errors.New("unexpected EOF")), CodeBulkCopy},
		{"bulk copy foreign key", fmt.Errorf("%w: %w", ErrBulkCopy, errors.New("ERROR: insert violates foreign key constraint")), "DB003"},
		{"unknown error returns default", errors.New("some random internal error"), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeFor(tt.err); got != tt.wantCode {
				t.Errorf("CodeFor() = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(Dangling("tconst", "tt9", "film not indexed"))
	want := "Record references an id that is not known yet (Code: REF001). Check the dataset order and the parent file"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
}

func TestRecordError_Message(t *testing.T) {
	err := Malformed("startYear", "soon", "invalid integer")
	assert.Equal(t, `malformed record: startYear "soon": invalid integer`, err.Error())
	assert.True(t, errors.Is(err, ErrMalformedRecord))
	assert.False(t, errors.Is(err, ErrDanglingReference))
}

func TestErrorReport_CountsAndSamples(t *testing.T) {
	r := NewErrorReport("run-1", 2)
	header := []string{"tconst", "averageRating", "numVotes"}

	var hooked []string
	r.OnReject(func(table Table, code string) { hooked = append(hooked, string(table)+":"+code) })

	for i := 0; i < 3; i++ {
		rec := NewRecord(i+2, header, []string{fmt.Sprintf("tt%d", i), "5", "1"})
		r.Add(TableRating, rec, Dangling("tconst", rec.Get("tconst"), "film not indexed"))
	}
	r.Add(TableRating, Record{Line: 9}, &MalformedRecordError{Line: 9, Raw: "tt9\t5", Want: 3, Got: 2})

	assert.Equal(t, int64(4), r.Count(TableRating))
	assert.Equal(t, int64(3), r.CountCode(TableRating, CodeDanglingReference))
	assert.Equal(t, int64(4), r.Total())
	assert.Equal(t, []Table{TableRating}, r.Tables())
	assert.Len(t, hooked, 4)

	samples := r.Samples(TableRating)
	require.Len(t, samples, 2)
	assert.Equal(t, 2, samples[0].Line)
	assert.Equal(t, "tt0", samples[0].Record["tconst"])
	assert.Empty(t, samples[0].Raw)

	assert.Equal(t, "rating: 4 rejected (REC001=1, REF001=3)", r.Summary())
}

func TestErrorReport_MalformedKeepsRawLine(t *testing.T) {
	r := NewErrorReport("run-1", 10)
	r.Add(TableFilm, Record{Line: 4}, &MalformedRecordError{Line: 4, Raw: "tt1\tx", Want: 6, Got: 2})

	samples := r.Samples(TableFilm)
	require.Len(t, samples, 1)
	assert.Equal(t, "tt1\tx", samples[0].Raw)
	assert.Nil(t, samples[0].Record)
	assert.Equal(t, CodeMalformedRecord, samples[0].Code)
}

func TestErrorReport_WriteFile(t *testing.T) {
	r := NewErrorReport("run-42", 5)
	r.Add(TableCastLink, NewRecord(2, []string{"tconst"}, []string{"tt1"}), Dangling("tconst", "tt1", "film not indexed"))

	path := filepath.Join(t.TempDir(), "logs", "rejected.json")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got struct {
		RunID  string                     `json:"run_id"`
		Total  int64                      `json:"total"`
		Tables map[string]TableRejections `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-42", got.RunID)
	assert.Equal(t, int64(1), got.Total)
	assert.Equal(t, int64(1), got.Tables["cast_link"].Count)
	assert.Equal(t, int64(1), got.Tables["cast_link"].Codes[CodeDanglingReference])
	require.Len(t, got.Tables["cast_link"].Samples, 1)
	assert.Equal(t, "tt1", got.Tables["cast_link"].Samples[0].Record["tconst"])
}

func TestErrorReport_ReplacedBytes(t *testing.T) {
	r := NewErrorReport("run-7", 5)
	r.AddReplacedBytes(TablePerson, 2)
	r.AddReplacedBytes(TablePerson, 3)
	r.AddReplacedBytes(TableFilm, 0)

	assert.Equal(t, int64(5), r.ReplacedBytes(TablePerson))
	assert.Zero(t, r.ReplacedBytes(TableFilm))
	assert.Zero(t, r.Total(), "replaced bytes are not rejections")

	path := filepath.Join(t.TempDir(), "rejected.json")
	require.NoError(t, r.WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got struct {
		ReplacedBytes map[string]int64 `json:"replaced_bytes"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]int64{"person": 5}, got.ReplacedBytes)
}

func TestErrorReport_EmptySummary(t *testing.T) {
	assert.Equal(t, "no rejected records", NewErrorReport("", 0).Summary())
}

package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetStage_OnlyOneActive(t *testing.T) {
	m := New()
	m.SetStage("normalize")
	m.SetStage("load")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Stage.WithLabelValues("load")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Stage.WithLabelValues("normalize")))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.RowsWritten.WithLabelValues("film").Add(8)
	m.RowsRejected.WithLabelValues("film", "REC001").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `imdbload_rows_written_total{table="film"} 8`)
	assert.Contains(t, body, `imdbload_rows_rejected_total{code="REC001",table="film"} 1`)
}

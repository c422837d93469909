package observability

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("track halted", "step", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"track halted"`)
	assert.Contains(t, out, `"step":3`)

	buf.Reset()
	NewLogger(&buf, "bogus", "text").Info("assembled", "files", 2)
	assert.Contains(t, buf.String(), "msg=assembled files=2")
}

func TestMetricsForTesting_Handler(t *testing.T) {
	m := NewMetricsForTesting()
	m.TrackRuns.WithLabelValues(OutcomeHalted).Inc()
	m.TrackSteps.Add(12)
	m.PlotsRendered.WithLabelValues("verify").Add(3)

	// A second instance must not collide.
	_ = NewMetricsForTesting()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `cyclone_track_runs_total{outcome="halted"} 1`)
	assert.Contains(t, string(body), "cyclone_track_steps_total 12")
	assert.Contains(t, string(body), `cyclone_plots_rendered_total{kind="verify"} 3`)
}

package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/cyclone-tracker/internal/adapter/plot"
	"go.ngs.io/cyclone-tracker/internal/adapter/store/csv"
	"go.ngs.io/cyclone-tracker/internal/domain"
	"go.ngs.io/cyclone-tracker/internal/observability"
	"go.ngs.io/cyclone-tracker/internal/usecase"
)

type stubLoader struct {
	ds  *domain.Dataset
	err error
}

func (s *stubLoader) LoadDataset(_ context.Context, _ string) (*domain.Dataset, error) {
	return s.ds, s.err
}

// lowDataset has a stationary low at 10N 130E and a 25 m/s wind everywhere.
func lowDataset(t *testing.T) *domain.Dataset {
	t.Helper()
	var lat, lon []float64
	for i := 0; i <= 10; i++ {
		lat = append(lat, 5+float64(i))
		lon = append(lon, 125+float64(i))
	}
	times := []time.Time{
		time.Date(2018, 10, 1, 6, 0, 0, 0, time.UTC),
		time.Date(2018, 10, 1, 12, 0, 0, 0, time.UTC),
	}
	n := len(times) * len(lat) * len(lon)
	msl, u, v := make([]float64, n), make([]float64, n), make([]float64, n)
	for s := range times {
		for i, la := range lat {
			for j, lo := range lon {
				k := (s*len(lat)+i)*len(lon) + j
				d2 := (la-10)*(la-10) + (lo-130)*(lo-130)
				msl[k] = 101000 - 2000*math.Exp(-d2/4)
				u[k], v[k] = 20, 15
			}
		}
	}
	field := func(name string, values []float64) *domain.Field {
		f, err := domain.NewField(name, times, domain.MustAxis(lat...), domain.MustAxis(lon...), values)
		require.NoError(t, err)
		return f
	}
	return &domain.Dataset{Pressure: field("msl", msl), WindU: field("u10", u), WindV: field("v10", v)}
}

func setupTestRouter(t *testing.T, loader *stubLoader) (*gin.Engine, *csv.TrackStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tracks := csv.NewTrackStore(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	uc := usecase.NewTrackUseCase(loader, tracks, plot.NewRenderer(), domain.DefaultParams(domain.Position{}), logger, metrics)
	return SetupRouter(uc, metrics, ""), tracks
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	router, _ := setupTestRouter(t, &stubLoader{})

	w := doRequest(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestCreateAndFetchTrack(t *testing.T) {
	router, tracks := setupTestRouter(t, &stubLoader{ds: lowDataset(t)})

	w := doRequest(router, http.MethodPost, "/v1/tracks",
		`{"input_file":"/data/trami/combined.nc","start_lat":10.2,"start_lon":130.1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var created usecase.TrackResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "trami", created.Run)
	require.Len(t, created.Points, 2)
	assert.Equal(t, domain.CategoryTY, created.Points[0].Category)
	assert.FileExists(t, tracks.TrackPath("trami"))

	w = doRequest(router, http.MethodGet, "/v1/tracks", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"runs":["trami"],"count":1}`, w.Body.String())

	w = doRequest(router, http.MethodGet, "/v1/tracks/trami", "")
	require.Equal(t, http.StatusOK, w.Code)
	var fetched struct {
		Run    string              `json:"run"`
		Points []domain.TrackPoint `json:"points"`
		Count  int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, 2, fetched.Count)
	assert.Equal(t, 10.0, fetched.Points[1].Lat)
	assert.Equal(t, 130.0, fetched.Points[1].Lon)

	w = doRequest(router, http.MethodGet, "/v1/tracks/trami/plot", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestCreateTrack_Errors(t *testing.T) {
	loader := &stubLoader{ds: lowDataset(t)}
	router, _ := setupTestRouter(t, loader)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"missing seed", `{"input_file":"a.nc","start_lat":10}`, http.StatusBadRequest},
		{"latitude out of range", `{"input_file":"a.nc","start_lat":95,"start_lon":130}`, http.StatusBadRequest},
		{"bad run name", `{"input_file":"a.nc","start_lat":10,"start_lon":130,"run":"../etc"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodPost, "/v1/tracks", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}

	loader.err = os.ErrNotExist
	w := doRequest(router, http.MethodPost, "/v1/tracks", `{"input_file":"missing.nc","start_lat":10,"start_lon":130}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	loader.err = nil
	loader.ds = lowDataset(t)
	loader.ds.WindU = nil
	w = doRequest(router, http.MethodPost, "/v1/tracks", `{"input_file":"x/a.nc","start_lat":10,"start_lon":130}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGetTrack_NotFound(t *testing.T) {
	router, _ := setupTestRouter(t, &stubLoader{})

	w := doRequest(router, http.MethodGet, "/v1/tracks/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodGet, "/v1/tracks/unknown/plot", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodGet, "/v1/tracks", "")
	assert.JSONEq(t, `{"runs":[],"count":0}`, w.Body.String())
}

func TestGetCategories(t *testing.T) {
	router, _ := setupTestRouter(t, &stubLoader{})

	w := doRequest(router, http.MethodGet, "/v1/categories", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Categories []CategoryInfo `json:"categories"`
		Count      int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, domain.NumCategories, body.Count)

	first, last := body.Categories[0], body.Categories[body.Count-1]
	assert.Equal(t, "LOW", first.Code)
	assert.Equal(t, 0.0, first.MinWind)
	require.NotNil(t, first.MaxWind)
	assert.Equal(t, 10.8, *first.MaxWind)

	assert.Equal(t, "SuperTY", last.Code)
	assert.Equal(t, "red", last.Color)
	assert.Equal(t, 51.0, last.MinWind)
	assert.Nil(t, last.MaxWind)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t, &stubLoader{ds: lowDataset(t)})

	w := doRequest(router, http.MethodPost, "/v1/tracks", `{"input_file":"x/a.nc","start_lat":10,"start_lon":130}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `cyclone_track_runs_total{outcome="complete"} 1`)
}

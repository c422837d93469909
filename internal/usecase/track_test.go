package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/cyclone-tracker/internal/adapter/store/csv"
	"go.ngs.io/cyclone-tracker/internal/domain"
	"go.ngs.io/cyclone-tracker/internal/observability"
)

var t0 = time.Date(2018, 10, 1, 6, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(v float64) *float64 { return &v }

// stormDataset builds a 1° grid over 0..20N, 120..140E with a low moving
// one degree north-west per step and a uniform 25 m/s wind.
func stormDataset(t *testing.T, steps int) *domain.Dataset {
	t.Helper()
	lat := make([]float64, 21)
	lon := make([]float64, 21)
	for i := range lat {
		lat[i] = float64(i)
		lon[i] = 120 + float64(i)
	}
	latAxis, lonAxis := domain.MustAxis(lat...), domain.MustAxis(lon...)

	times := make([]time.Time, steps)
	n := steps * len(lat) * len(lon)
	msl, u, v := make([]float64, n), make([]float64, n), make([]float64, n)
	for s := 0; s < steps; s++ {
		times[s] = t0.Add(time.Duration(s) * 6 * time.Hour)
		cLat, cLon := 10+float64(s), 130-float64(s)
		for i, la := range lat {
			for j, lo := range lon {
				k := (s*len(lat)+i)*len(lon) + j
				d2 := (la-cLat)*(la-cLat) + (lo-cLon)*(lo-cLon)
				msl[k] = 101000 - 3000*math.Exp(-d2/4)
				u[k], v[k] = 20, 15
			}
		}
	}

	field := func(name string, values []float64) *domain.Field {
		f, err := domain.NewField(name, times, latAxis, lonAxis, values)
		require.NoError(t, err)
		return f
	}
	return &domain.Dataset{
		Source:   "/data/trami/combined_surface_timeseries.nc",
		Pressure: field("msl", msl),
		WindU:    field("u10", u),
		WindV:    field("v10", v),
	}
}

type fakeLoader struct {
	ds    *domain.Dataset
	err   error
	paths []string
}

func (f *fakeLoader) LoadDataset(_ context.Context, path string) (*domain.Dataset, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return nil, f.err
	}
	return f.ds, nil
}

type fakePlotter struct {
	tracks  map[string]int
	verify  []int
	centers []domain.Position
	err     error
}

func (f *fakePlotter) SaveTrack(path string, points []domain.TrackPoint) error {
	if f.err != nil {
		return f.err
	}
	if f.tracks == nil {
		f.tracks = make(map[string]int)
	}
	f.tracks[path] = len(points)
	return nil
}

func (f *fakePlotter) SaveVerify(dir string, _ *domain.Field, step int, center domain.Position, _ float64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.verify = append(f.verify, step)
	f.centers = append(f.centers, center)
	return filepath.Join(dir, "verify.png"), nil
}

type fakePublisher struct {
	run    string
	at     time.Time
	points int
	err    error
}

func (f *fakePublisher) PublishTrack(_ context.Context, run string, generatedAt time.Time, points []domain.TrackPoint) error {
	f.run, f.at, f.points = run, generatedAt, len(points)
	return f.err
}

func newTrackUseCase(t *testing.T, loader *fakeLoader, plotter *fakePlotter) (*TrackUseCase, *csv.TrackStore, *observability.Metrics) {
	t.Helper()
	tracks := csv.NewTrackStore(t.TempDir())
	metrics := observability.NewMetricsForTesting()
	uc := NewTrackUseCase(loader, tracks, plotter, domain.DefaultParams(domain.Position{}), discardLogger(), metrics)
	return uc, tracks, metrics
}

func TestTrackRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     TrackRequest
		wantErr bool
	}{
		{"ok", TrackRequest{InputFile: "a.nc", Lat: ptr(10), Lon: ptr(130)}, false},
		{"no input", TrackRequest{Lat: ptr(10), Lon: ptr(130)}, true},
		{"no seed", TrackRequest{InputFile: "a.nc", Lat: ptr(10)}, true},
		{"lat range", TrackRequest{InputFile: "a.nc", Lat: ptr(91), Lon: ptr(130)}, true},
		{"lon range", TrackRequest{InputFile: "a.nc", Lat: ptr(10), Lon: ptr(400)}, true},
		{"negative radius", TrackRequest{InputFile: "a.nc", Lat: ptr(10), Lon: ptr(130), TrackingRadius: -1}, true},
		{"bad run", TrackRequest{InputFile: "a.nc", Lat: ptr(10), Lon: ptr(130), Run: "../x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTrackUseCase_Execute(t *testing.T) {
	loader := &fakeLoader{ds: stormDataset(t, 4)}
	plotter := &fakePlotter{}
	uc, tracks, _ := newTrackUseCase(t, loader, plotter)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	uc.SetClock(clock)
	pub := &fakePublisher{}
	uc.SetPublisher(pub)

	resp, err := uc.Execute(context.Background(), TrackRequest{
		InputFile: "/data/trami/combined_surface_timeseries.nc",
		Lat:       ptr(10.4),
		Lon:       ptr(130.3),
	})
	require.NoError(t, err)

	assert.Equal(t, "trami", resp.Run)
	assert.Equal(t, "2026-03-01T12:00:00Z", resp.GeneratedAt)
	assert.False(t, resp.Halted)
	require.Len(t, resp.Points, 4)
	for s, p := range resp.Points {
		assert.Equal(t, domain.Position{Lat: 10 + float64(s), Lon: 130 - float64(s)}, p.Position())
		assert.InDelta(t, 35.0, p.MaxWind, 1e-9)
		assert.Equal(t, domain.CategoryTY, p.Category)
	}
	assert.Equal(t, "CMA", resp.Meta["scale"])

	assert.Equal(t, tracks.TrackPath("trami"), resp.CSVPath)
	saved, err := tracks.Load("trami")
	require.NoError(t, err)
	assert.Len(t, saved, 4)

	assert.Equal(t, tracks.PlotPath("trami"), resp.PlotPath)
	assert.Equal(t, 4, plotter.tracks[resp.PlotPath])

	assert.Equal(t, "trami", pub.run)
	assert.Equal(t, 4, pub.points)
	assert.True(t, pub.at.Equal(clock.Now()))
}

func TestTrackUseCase_Overrides(t *testing.T) {
	loader := &fakeLoader{ds: stormDataset(t, 2)}
	uc, _, _ := newTrackUseCase(t, loader, &fakePlotter{})

	resp, err := uc.Execute(context.Background(), TrackRequest{
		InputFile:        "combined.nc",
		Run:              "custom-run",
		Lat:              ptr(10),
		Lon:              ptr(130),
		CorrectionFactor: 1.0,
		SearchRadius:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, "custom-run", resp.Run)
	assert.InDelta(t, 25.0, resp.Points[0].MaxWind, 1e-9)
	assert.Equal(t, domain.CategorySTS, resp.Points[0].Category)
	assert.Equal(t, "1", resp.Meta["correction_factor"])
}

func TestTrackUseCase_HaltedRun(t *testing.T) {
	loader := &fakeLoader{ds: stormDataset(t, 3)}
	plotter := &fakePlotter{}
	uc, tracks, _ := newTrackUseCase(t, loader, plotter)

	resp, err := uc.Execute(context.Background(), TrackRequest{
		InputFile: "/data/far/combined.nc",
		Lat:       ptr(45),
		Lon:       ptr(130),
	})
	require.NoError(t, err)
	assert.True(t, resp.Halted)
	assert.Equal(t, "2018-10-01T06:00:00Z", resp.HaltTime)
	assert.Empty(t, resp.Points)
	assert.Empty(t, resp.PlotPath, "no plot for an empty track")
	assert.Empty(t, plotter.tracks)
	assert.FileExists(t, tracks.TrackPath("far"))
}

func TestTrackUseCase_Errors(t *testing.T) {
	loader := &fakeLoader{err: os.ErrNotExist}
	uc, _, _ := newTrackUseCase(t, loader, &fakePlotter{})

	_, err := uc.Execute(context.Background(), TrackRequest{InputFile: "missing.nc", Lat: ptr(10), Lon: ptr(130)})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = uc.Execute(context.Background(), TrackRequest{InputFile: "missing.nc"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	loader.err = nil
	loader.ds = stormDataset(t, 2)
	loader.ds.WindV = nil
	_, err = uc.Execute(context.Background(), TrackRequest{InputFile: "x/a.nc", Lat: ptr(10), Lon: ptr(130)})
	assert.ErrorIs(t, err, domain.ErrVariableNotFound)
}

func TestTrackUseCase_PublishFailureIsNotFatal(t *testing.T) {
	loader := &fakeLoader{ds: stormDataset(t, 2)}
	uc, _, _ := newTrackUseCase(t, loader, &fakePlotter{})
	uc.SetPublisher(&fakePublisher{err: errors.New("broker down")})

	resp, err := uc.Execute(context.Background(), TrackRequest{InputFile: "x/a.nc", Lat: ptr(10), Lon: ptr(130)})
	require.NoError(t, err)
	assert.Len(t, resp.Points, 2)
}

func TestTrackUseCase_PlotFailure(t *testing.T) {
	loader := &fakeLoader{ds: stormDataset(t, 2)}
	uc, _, _ := newTrackUseCase(t, loader, &fakePlotter{err: errors.New("disk full")})

	_, err := uc.Execute(context.Background(), TrackRequest{InputFile: "x/a.nc", Lat: ptr(10), Lon: ptr(130)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

package main

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/cyclone-tracker/internal/adapter/store/forecast"
)

func TestRegionalGridAxes(t *testing.T) {
	lat, lon := RegionalGrid{LatMin: 10, LatMax: 12, LonMin: 130, LonMax: 131, Resolution: 0.5}.axes()
	assert.Equal(t, []float64{12, 11.5, 11, 10.5, 10}, lat)
	assert.Equal(t, []float64{130, 130.5, 131}, lon)
}

func TestStormState(t *testing.T) {
	s := Storm{StartLat: 10, StartLon: 140, DLat: 1, DLon: -1, Depth: 5000, MaxWind: 40}

	first := s.state(0, 3)
	assert.Equal(t, 10.0, first.lat)
	assert.Equal(t, 140.0, first.lon)

	peak := s.state(1, 3)
	assert.Equal(t, 11.0, peak.lat)
	assert.Equal(t, 139.0, peak.lon)
	assert.InDelta(t, 5000*math.Sin(math.Pi/2), peak.depth, 1e-9)
	assert.Greater(t, peak.maxWind, first.maxWind)
}

func TestStormFields(t *testing.T) {
	s := Storm{Depth: 4000, Radius: 1, MaxWind: 30, RMW: 0.5}
	lat, lon := RegionalGrid{LatMin: 8, LatMax: 12, LonMin: 128, LonMax: 132, Resolution: 1}.axes()
	st := stepState{lat: 10, lon: 130, depth: 4000, maxWind: 30}

	msl, u, v := s.fields(st, lat, lon)
	idx := func(la, lo float64) int {
		return int(12-la)*len(lon) + int(lo-128)
	}

	// Lowest pressure at the center.
	center := idx(10, 130)
	for k := range msl {
		assert.GreaterOrEqual(t, msl[k], msl[center])
	}
	assert.InDelta(t, ambientPressure-4000, float64(msl[center]), 0.01)

	// Northern hemisphere circulation is counter-clockwise: east of the
	// center the wind blows north.
	east := idx(10, 131)
	assert.InDelta(t, 0, float64(u[east]), 1e-4)
	assert.Greater(t, v[east], float32(0))
	assert.InDelta(t, 30*math.Pow(0.5, 0.6), float64(v[east]), 1e-4)
}

func TestWriteStepIsAssemblable(t *testing.T) {
	dir := t.TempDir()
	s := Storm{Depth: 4000, Radius: 1, MaxWind: 30, RMW: 0.5}
	lat, lon := RegionalGrid{LatMin: 8, LatMax: 12, LonMin: 128, LonMax: 132, Resolution: 1}.axes()
	msl, u, v := s.fields(stepState{lat: 10, lon: 130, depth: 4000, maxWind: 30}, lat, lon)

	path := filepath.Join(dir, "output_surface_2018-10-01-06-00.nc")
	require.NoError(t, writeStep(path, lat, lon, msl, u, v))

	step, err := forecast.ReadStep(path, forecast.DefaultVariables(forecast.FileTypeSurface))
	require.NoError(t, err)
	assert.Equal(t, lat, step.Lat.Values)
	assert.Len(t, step.Vars, 3)
}

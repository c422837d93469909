// Package domain contains the storm tracking core: grids, the center
// locator, the track builder and the intensity scale.
package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Default tracking parameters.
const (
	DefaultTrackingRadiusDeg = 5.0
	DefaultSearchRadiusDeg   = 3.0
	DefaultCorrectionFactor  = 1.4
)

// ErrEmptyWindow is returned when a search window holds no usable cells.
var ErrEmptyWindow = errors.New("search window contains no grid cells")

// Position is a geographic location in degrees.
type Position struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Window is a square search region around a center.
type Window struct {
	Center    Position
	HalfWidth float64
}

// cells resolves the window to index ranges on the field's axes.
func (w Window) cells(f *Field) (i0, i1, j0, j1 int) {
	lon := f.Lon.NormalizeLon(w.Center.Lon)
	i0, i1 = f.Lat.Select(w.Center.Lat-w.HalfWidth, w.Center.Lat+w.HalfWidth)
	j0, j1 = f.Lon.Select(lon-w.HalfWidth, lon+w.HalfWidth)
	return i0, i1, j0, j1
}

// Cell is one grid cell picked out of a window.
type Cell struct {
	Position
	Value float64
}

// windowValues gathers the non-NaN values of a window at one step along
// with their positions.
func windowValues(f *Field, step int, w Window) ([]float64, []Position) {
	i0, i1, j0, j1 := w.cells(f)
	if i0 >= i1 || j0 >= j1 {
		return nil, nil
	}

	vals := make([]float64, 0, (i1-i0)*(j1-j0))
	pos := make([]Position, 0, cap(vals))
	for i := i0; i < i1; i++ {
		for j := j0; j < j1; j++ {
			v := f.At(step, i, j)
			if math.IsNaN(v) {
				continue
			}
			vals = append(vals, v)
			pos = append(pos, Position{Lat: f.Lat.Values[i], Lon: f.Lon.Values[j]})
		}
	}
	return vals, pos
}

// LocateCenter returns the minimum-pressure cell inside the window at the
// given step. Ties go to the first cell in storage order.
func LocateCenter(pressure *Field, step int, w Window) (Cell, error) {
	if step < 0 || step >= pressure.NumSteps() {
		return Cell{}, fmt.Errorf("time step %d out of range [0, %d)", step, pressure.NumSteps())
	}
	vals, pos := windowValues(pressure, step, w)
	if len(vals) == 0 {
		return Cell{}, ErrEmptyWindow
	}
	idx := floats.MinIdx(vals)
	return Cell{Position: pos[idx], Value: vals[idx]}, nil
}

// MaxInWindow returns the largest value inside the window, or 0 when the
// window is empty.
func MaxInWindow(f *Field, step int, w Window) float64 {
	vals, _ := windowValues(f, step, w)
	if len(vals) == 0 {
		return 0
	}
	return vals[floats.MaxIdx(vals)]
}

// TrackPoint is one tracked storm position.
type TrackPoint struct {
	Time        time.Time `json:"time"`
	Lat         float64   `json:"latitude"`
	Lon         float64   `json:"longitude"`
	MinPressure float64   `json:"min_pressure_pa"`
	MaxWind     float64   `json:"max_wind_speed_ms"`
	Category    Category  `json:"intensity_category"`
}

// Position returns the point's location.
func (p TrackPoint) Position() Position {
	return Position{Lat: p.Lat, Lon: p.Lon}
}

// TrackResult is the output of a tracking run. When Halted is set, the
// window at step HaltStep was empty and Points holds the HaltStep points
// computed before it.
type TrackResult struct {
	Points   []TrackPoint `json:"points"`
	Halted   bool         `json:"halted"`
	HaltStep int          `json:"halt_step"`
	HaltTime time.Time    `json:"halt_time,omitzero"`
}

// trackState is the accumulator threaded through the step fold.
type trackState struct {
	estimate Position
	points   []TrackPoint
}

// foldSteps folds fn over steps 0..n-1 until fn returns an error. It
// returns the last good state and the failing step, or -1.
func foldSteps[S any](n int, init S, fn func(S, int) (S, error)) (S, int, error) {
	state := init
	for step := 0; step < n; step++ {
		next, err := fn(state, step)
		if err != nil {
			return state, step, err
		}
		state = next
	}
	return state, -1, nil
}

// BuildTrack follows the pressure minimum from seed through every time step.
// Each center is searched within radius degrees of the previous one. An
// empty window stops the walk and keeps the points found so far.
func BuildTrack(pressure *Field, seed Position, radius float64) (TrackResult, error) {
	if pressure == nil {
		return TrackResult{}, fmt.Errorf("%w: pressure", ErrVariableNotFound)
	}
	if radius <= 0 {
		return TrackResult{}, fmt.Errorf("tracking radius must be positive, got %g", radius)
	}

	init := trackState{
		estimate: seed,
		points:   make([]TrackPoint, 0, pressure.NumSteps()),
	}
	final, stopped, err := foldSteps(pressure.NumSteps(), init, func(s trackState, step int) (trackState, error) {
		c, err := LocateCenter(pressure, step, Window{Center: s.estimate, HalfWidth: radius})
		if err != nil {
			return s, err
		}
		s.estimate = c.Position
		s.points = append(s.points, TrackPoint{
			Time:        pressure.Times[step],
			Lat:         c.Lat,
			Lon:         c.Lon,
			MinPressure: c.Value,
		})
		return s, nil
	})

	result := TrackResult{Points: final.points, HaltStep: -1}
	if err != nil {
		if !errors.Is(err, ErrEmptyWindow) {
			return TrackResult{}, err
		}
		result.Halted = true
		result.HaltStep = stopped
		result.HaltTime = pressure.Times[stopped]
	}
	return result, nil
}

// WindSpeed derives the wind speed magnitude field from u and v components.
func WindSpeed(u, v *Field) (*Field, error) {
	if !u.SameGrid(v) {
		return nil, fmt.Errorf("wind components %s and %s are on different grids", u.Name, v.Name)
	}
	speed := make([]float64, len(u.Values))
	for i := range speed {
		speed[i] = math.Hypot(u.Values[i], v.Values[i])
	}
	out, err := NewField("wind_speed_10m", u.Times, u.Lat, u.Lon, speed)
	if err != nil {
		return nil, err
	}
	out.Units = "m s**-1"
	return out, nil
}

// IntensityParams controls the peak wind estimate.
type IntensityParams struct {
	SearchRadius     float64
	CorrectionFactor float64
	Scale            Scale
}

// EstimateIntensity fills MaxWind and Category for each point. Point i is
// evaluated at time step i of speed. The input slice is not modified.
func EstimateIntensity(speed *Field, points []TrackPoint, p IntensityParams) ([]TrackPoint, error) {
	if len(points) > speed.NumSteps() {
		return nil, fmt.Errorf("track has %d points but wind field has %d steps", len(points), speed.NumSteps())
	}
	if p.SearchRadius <= 0 {
		return nil, fmt.Errorf("intensity search radius must be positive, got %g", p.SearchRadius)
	}

	out := make([]TrackPoint, len(points))
	for i, pt := range points {
		raw := MaxInWindow(speed, i, Window{Center: pt.Position(), HalfWidth: p.SearchRadius})
		pt.MaxWind = raw * p.CorrectionFactor
		pt.Category = p.Scale.Classify(pt.MaxWind)
		out[i] = pt
	}
	return out, nil
}

// Params configures a full tracking run.
type Params struct {
	Seed             Position
	TrackingRadius   float64
	SearchRadius     float64
	CorrectionFactor float64
	Scale            Scale
}

// DefaultParams returns the default radii, correction factor and scale.
func DefaultParams(seed Position) Params {
	return Params{
		Seed:             seed,
		TrackingRadius:   DefaultTrackingRadiusDeg,
		SearchRadius:     DefaultSearchRadiusDeg,
		CorrectionFactor: DefaultCorrectionFactor,
		Scale:            CMAScale(),
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.Seed.Lat < -90 || p.Seed.Lat > 90 {
		return fmt.Errorf("seed latitude must be between -90 and 90")
	}
	if p.Seed.Lon < -180 || p.Seed.Lon > 360 {
		return fmt.Errorf("seed longitude must be between -180 and 360")
	}
	if p.TrackingRadius <= 0 {
		return fmt.Errorf("tracking radius must be positive")
	}
	if p.SearchRadius <= 0 {
		return fmt.Errorf("search radius must be positive")
	}
	if p.CorrectionFactor <= 0 {
		return fmt.Errorf("correction factor must be positive")
	}
	return p.Scale.Validate()
}

// TrackStorm runs the track builder and the intensity estimator on ds.
func TrackStorm(ds *Dataset, p Params) (TrackResult, error) {
	if err := ds.Validate(); err != nil {
		return TrackResult{}, err
	}
	if err := p.Validate(); err != nil {
		return TrackResult{}, err
	}

	result, err := BuildTrack(ds.Pressure, p.Seed, p.TrackingRadius)
	if err != nil {
		return TrackResult{}, fmt.Errorf("failed to build track: %w", err)
	}

	speed, err := WindSpeed(ds.WindU, ds.WindV)
	if err != nil {
		return TrackResult{}, err
	}

	result.Points, err = EstimateIntensity(speed, result.Points, IntensityParams{
		SearchRadius:     p.SearchRadius,
		CorrectionFactor: p.CorrectionFactor,
		Scale:            p.Scale,
	})
	if err != nil {
		return TrackResult{}, fmt.Errorf("failed to estimate intensity: %w", err)
	}
	return result, nil
}

package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// coordEpsilon absorbs floating point noise when comparing window edges
// against stored coordinates (e.g. 17.3+5.0 vs a 22.3 grid line).
const coordEpsilon = 1e-9

// ErrNotMonotonic is returned when a coordinate axis is not strictly ordered.
var ErrNotMonotonic = errors.New("axis is not strictly monotonic")

// Axis is a strictly monotonic coordinate axis. Orientation is detected once
// when the axis is built, so range selection never re-checks it.
type Axis struct {
	Values     []float64
	Descending bool
}

// NewAxis validates values and detects the axis orientation.
func NewAxis(values []float64) (Axis, error) {
	if len(values) == 0 {
		return Axis{}, fmt.Errorf("axis has no values")
	}
	for i, v := range values {
		if math.IsNaN(v) {
			return Axis{}, fmt.Errorf("axis value at index %d is NaN", i)
		}
	}

	desc := len(values) > 1 && values[1] < values[0]
	for i := 1; i < len(values); i++ {
		if desc && values[i] >= values[i-1] {
			return Axis{}, fmt.Errorf("%w: descending axis breaks at index %d", ErrNotMonotonic, i)
		}
		if !desc && values[i] <= values[i-1] {
			return Axis{}, fmt.Errorf("%w: ascending axis breaks at index %d", ErrNotMonotonic, i)
		}
	}

	return Axis{Values: values, Descending: desc}, nil
}

// MustAxis is NewAxis for literals in tests and generators.
func MustAxis(values ...float64) Axis {
	a, err := NewAxis(values)
	if err != nil {
		panic(err)
	}
	return a
}

// Len returns the number of coordinates.
func (a Axis) Len() int { return len(a.Values) }

// Min returns the smallest coordinate.
func (a Axis) Min() float64 {
	if a.Descending {
		return a.Values[len(a.Values)-1]
	}
	return a.Values[0]
}

// Max returns the largest coordinate.
func (a Axis) Max() float64 {
	if a.Descending {
		return a.Values[0]
	}
	return a.Values[len(a.Values)-1]
}

// Select returns the index range [start, end) of coordinates lying in the
// inclusive interval [lo, hi]. The bounds may be given in either order and
// the result is the same logical subset for ascending and descending axes.
// An empty selection has start == end.
func (a Axis) Select(lo, hi float64) (start, end int) {
	if lo > hi {
		lo, hi = hi, lo
	}
	lo -= coordEpsilon
	hi += coordEpsilon

	n := len(a.Values)
	if a.Descending {
		start = sort.Search(n, func(i int) bool { return a.Values[i] <= hi })
		end = sort.Search(n, func(i int) bool { return a.Values[i] < lo })
		return start, end
	}
	start = sort.Search(n, func(i int) bool { return a.Values[i] >= lo })
	end = sort.Search(n, func(i int) bool { return a.Values[i] > hi })
	return start, end
}

// Slice returns a new axis restricted to [lo, hi].
func (a Axis) Slice(lo, hi float64) (Axis, int, int) {
	start, end := a.Select(lo, hi)
	return Axis{Values: a.Values[start:end], Descending: a.Descending}, start, end
}

// NormalizeLon maps lon onto the longitude convention used by the axis.
// Grids stored on 0..360 accept -180..180 seeds and vice versa.
func (a Axis) NormalizeLon(lon float64) float64 {
	if a.Len() == 0 {
		return lon
	}
	if a.Max() > 180 && lon < 0 {
		return lon + 360
	}
	if a.Min() < 0 && lon > 180 {
		return lon - 360
	}
	return lon
}

// Field is a scalar variable on a (time, latitude, longitude) grid.
// Values are stored row-major; missing cells hold NaN.
type Field struct {
	Name   string
	Units  string
	Times  []time.Time
	Lat    Axis
	Lon    Axis
	Values []float64
}

// NewField validates the shape of values against the axes.
func NewField(name string, times []time.Time, lat, lon Axis, values []float64) (*Field, error) {
	want := len(times) * lat.Len() * lon.Len()
	if len(values) != want {
		return nil, fmt.Errorf("field %s: expected %d values (%d×%d×%d), got %d",
			name, want, len(times), lat.Len(), lon.Len(), len(values))
	}
	return &Field{
		Name:   name,
		Times:  times,
		Lat:    lat,
		Lon:    lon,
		Values: values,
	}, nil
}

// NumSteps returns the number of time steps.
func (f *Field) NumSteps() int { return len(f.Times) }

// At returns the value at (time step, lat index, lon index).
func (f *Field) At(step, i, j int) float64 {
	return f.Values[f.index(step, i, j)]
}

func (f *Field) index(step, i, j int) int {
	return (step*f.Lat.Len()+i)*f.Lon.Len() + j
}

// SameGrid reports whether g shares the time and spatial axes of f.
func (f *Field) SameGrid(g *Field) bool {
	if len(f.Times) != len(g.Times) || f.Lat.Len() != g.Lat.Len() || f.Lon.Len() != g.Lon.Len() {
		return false
	}
	for i := range f.Times {
		if !f.Times[i].Equal(g.Times[i]) {
			return false
		}
	}
	for i := range f.Lat.Values {
		if f.Lat.Values[i] != g.Lat.Values[i] {
			return false
		}
	}
	for j := range f.Lon.Values {
		if f.Lon.Values[j] != g.Lon.Values[j] {
			return false
		}
	}
	return true
}

// Crop returns a copy of the field restricted to a latitude/longitude box.
func (f *Field) Crop(latLo, latHi, lonLo, lonHi float64) (*Field, error) {
	lat, i0, i1 := f.Lat.Slice(latLo, latHi)
	lon, j0, j1 := f.Lon.Slice(lonLo, lonHi)
	if lat.Len() == 0 || lon.Len() == 0 {
		return nil, fmt.Errorf("crop of %s to lat [%g, %g] lon [%g, %g] is empty", f.Name, latLo, latHi, lonLo, lonHi)
	}

	values := make([]float64, 0, len(f.Times)*lat.Len()*lon.Len())
	for t := range f.Times {
		for i := i0; i < i1; i++ {
			row := f.index(t, i, 0)
			values = append(values, f.Values[row+j0:row+j1]...)
		}
	}

	out, err := NewField(f.Name, f.Times, lat, lon, values)
	if err != nil {
		return nil, err
	}
	out.Units = f.Units
	return out, nil
}

// Dataset groups the fields the tracker needs. All fields share one grid.
type Dataset struct {
	Source   string
	Pressure *Field
	WindU    *Field
	WindV    *Field
}

// Validate checks that every field is present and on the same grid.
func (d *Dataset) Validate() error {
	if d.Pressure == nil {
		return fmt.Errorf("%w: pressure", ErrVariableNotFound)
	}
	if d.WindU == nil || d.WindV == nil {
		return fmt.Errorf("%w: wind components", ErrVariableNotFound)
	}
	if !d.Pressure.SameGrid(d.WindU) || !d.Pressure.SameGrid(d.WindV) {
		return fmt.Errorf("pressure and wind fields are on different grids")
	}
	return nil
}

// ErrVariableNotFound is returned when a required variable is absent.
var ErrVariableNotFound = errors.New("required variable not found")

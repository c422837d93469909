// Package forecast reads and writes weather-model NetCDF output: the
// per-step surface/upper files and the combined time series the tracker
// consumes.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/cyclone-tracker/internal/domain"
)

// Default variable names written by the model decoder.
const (
	PressureVarName = "mean_sea_level_pressure"
	WindUVarName    = "u_component_of_wind_10m"
	WindVVarName    = "v_component_of_wind_10m"
)

var (
	timeNames     = []string{"time", "valid_time", "t"}
	latNames      = []string{"latitude", "lat", "y"}
	lonNames      = []string{"longitude", "lon", "x"}
	levelNames    = []string{"level", "pressure_level", "isobaricInhPa", "plev"}
	pressureNames = []string{PressureVarName, "msl", "mslp", "MSL"}
	windUNames    = []string{WindUVarName, "u10", "10u", "U10"}
	windVNames    = []string{WindVVarName, "v10", "10v", "V10"}
)

// FileConfig overrides the variable names looked up in a file. Empty
// fields fall back to the built-in candidate lists.
type FileConfig struct {
	TimeVarName     string
	LatVarName      string
	LonVarName      string
	PressureVarName string
	WindUVarName    string
	WindVVarName    string
}

// DefaultConfig returns the naming used by the model decoder.
func DefaultConfig() FileConfig {
	return FileConfig{
		TimeVarName:     "time",
		LatVarName:      "latitude",
		LonVarName:      "longitude",
		PressureVarName: PressureVarName,
		WindUVarName:    WindUVarName,
		WindVVarName:    WindVVarName,
	}
}

// candidates puts preferred in front of fallbacks without duplicates.
func candidates(preferred string, fallbacks []string) []string {
	out := make([]string, 0, len(fallbacks)+1)
	seen := make(map[string]bool)
	for _, name := range append([]string{preferred}, fallbacks...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Store loads combined time-series files, keeping the most recently used
// ones in memory keyed by path and mtime.
type Store struct {
	config FileConfig
	cache  *lruCache
}

// NewStore creates a new forecast NetCDF store holding up to cacheSize
// datasets. A size below 1 keeps one.
func NewStore(config FileConfig, cacheSize int) *Store {
	return &Store{
		config: config,
		cache:  newLRUCache(cacheSize),
	}
}

// LoadDataset implements store.DatasetLoader.
func (s *Store) LoadDataset(ctx context.Context, path string) (*domain.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	// Check cache first.
	if c, ok := s.cache.get(path); ok && c.modTime.Equal(info.ModTime()) {
		return c.dataset, nil
	}

	ds, err := LoadDataset(path, s.config)
	if err != nil {
		return nil, err
	}
	s.cache.put(path, cachedDataset{modTime: info.ModTime(), dataset: ds})

	return ds, nil
}

// LoadDataset reads the pressure and 10 m wind fields from a combined
// time-series file. A missing pressure or wind variable is an error.
func LoadDataset(path string, config FileConfig) (*domain.Dataset, error) {
	//nolint:gosec // G304: path comes from operator configuration.
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	// Read coordinates.
	times, err := readTimes(nc, candidates(config.TimeVarName, timeNames))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	lat, latName, err := readAxis(nc, candidates(config.LatVarName, latNames))
	if err != nil {
		return nil, fmt.Errorf("%s: latitude: %w", path, err)
	}
	lon, lonName, err := readAxis(nc, candidates(config.LonVarName, lonNames))
	if err != nil {
		return nil, fmt.Errorf("%s: longitude: %w", path, err)
	}
	grid, err := gridDimsOf(nc, latName, lonName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Read data variables.
	pressure, err := readField(nc, candidates(config.PressureVarName, pressureNames), times, lat, lon, grid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	windU, err := readField(nc, candidates(config.WindUVarName, windUNames), times, lat, lon, grid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	windV, err := readField(nc, candidates(config.WindVVarName, windVNames), times, lat, lon, grid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &domain.Dataset{
		Source:   path,
		Pressure: pressure,
		WindU:    windU,
		WindV:    windV,
	}, nil
}

// findVar returns the first variable present under one of names.
func findVar(nc netcdf.Dataset, names []string) (netcdf.Var, string, bool) {
	for _, name := range names {
		if v, err := nc.Var(name); err == nil {
			return v, name, true
		}
	}
	return netcdf.Var{}, "", false
}

// readAxis reads a 1-D coordinate variable into an ordering-aware axis.
func readAxis(nc netcdf.Dataset, names []string) (domain.Axis, string, error) {
	v, name, ok := findVar(nc, names)
	if !ok {
		return domain.Axis{}, "", fmt.Errorf("coordinate variable not found (tried: %v)", names)
	}
	values, err := readFloat64Var(v)
	if err != nil {
		return domain.Axis{}, name, fmt.Errorf("failed to read %s: %w", name, err)
	}
	axis, err := domain.NewAxis(values)
	if err != nil {
		return domain.Axis{}, name, fmt.Errorf("invalid %s axis: %w", name, err)
	}
	return axis, name, nil
}

// readTimes decodes a CF time coordinate ("<unit> since <reference>").
func readTimes(nc netcdf.Dataset, names []string) ([]time.Time, error) {
	v, name, ok := findVar(nc, names)
	if !ok {
		return nil, fmt.Errorf("time variable not found (tried: %v)", names)
	}
	offsets, err := readFloat64Var(v)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	units, ok := readStringAttr(v, "units")
	if !ok {
		return nil, fmt.Errorf("time variable %s has no units attribute", name)
	}
	return DecodeTimes(offsets, units)
}

// ErrDimensionOrder is returned when a data variable's trailing dimensions
// are not (latitude, longitude).
var ErrDimensionOrder = errors.New("unexpected dimension order")

// gridDims holds the dimension names the coordinate variables are defined on.
type gridDims struct {
	lat string
	lon string
}

// gridDimsOf resolves the dimensions of the latitude and longitude
// coordinate variables.
func gridDimsOf(nc netcdf.Dataset, latName, lonName string) (gridDims, error) {
	latDim, err := coordDim(nc, latName)
	if err != nil {
		return gridDims{}, err
	}
	lonDim, err := coordDim(nc, lonName)
	if err != nil {
		return gridDims{}, err
	}
	return gridDims{lat: latDim, lon: lonDim}, nil
}

// coordDim returns the single dimension of a coordinate variable.
func coordDim(nc netcdf.Dataset, name string) (string, error) {
	v, err := nc.Var(name)
	if err != nil {
		return "", fmt.Errorf("coordinate variable %s: %w", name, err)
	}
	dims, err := varDimNames(v)
	if err != nil {
		return "", fmt.Errorf("failed to get dimension of %s: %w", name, err)
	}
	if len(dims) != 1 {
		return "", fmt.Errorf("coordinate variable %s has %d dimensions, expected 1", name, len(dims))
	}
	return dims[0], nil
}

// check verifies that the last two of dims are (latitude, longitude).
func (g gridDims) check(name string, dims []string) error {
	n := len(dims)
	if n < 2 {
		return fmt.Errorf("%w: %s has dimensions %v", ErrDimensionOrder, name, dims)
	}
	if dims[n-2] == g.lat && dims[n-1] == g.lon {
		return nil
	}
	if dims[n-2] == g.lon && dims[n-1] == g.lat {
		return fmt.Errorf("%w: %s is stored as (..., %s, %s), expected (..., %s, %s)",
			ErrDimensionOrder, name, g.lon, g.lat, g.lat, g.lon)
	}
	return fmt.Errorf("%w: %s has dimensions %v, expected (..., %s, %s)",
		ErrDimensionOrder, name, dims, g.lat, g.lon)
}

// readField reads a (time, latitude, longitude) variable.
func readField(nc netcdf.Dataset, names []string, times []time.Time, lat, lon domain.Axis, grid gridDims) (*domain.Field, error) {
	v, name, ok := findVar(nc, names)
	if !ok {
		return nil, fmt.Errorf("%w (tried: %v)", domain.ErrVariableNotFound, names)
	}

	shape, err := varShape(v)
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions of %s: %w", name, err)
	}
	want := []int{len(times), lat.Len(), lon.Len()}
	if len(shape) != 3 || shape[0] != want[0] || shape[1] != want[1] || shape[2] != want[2] {
		return nil, fmt.Errorf("dimension mismatch for %s: data is %v, expected (time, latitude, longitude) %v",
			name, shape, want)
	}
	dims, err := varDimNames(v)
	if err != nil {
		return nil, fmt.Errorf("failed to get dimension names of %s: %w", name, err)
	}
	if err := grid.check(name, dims); err != nil {
		return nil, err
	}

	values, err := readValues(v, want[0]*want[1]*want[2])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	field, err := domain.NewField(name, times, lat, lon, values)
	if err != nil {
		return nil, err
	}
	if units, ok := readStringAttr(v, "units"); ok {
		field.Units = units
	}
	return field, nil
}

// varShape returns the dimension lengths of v.
func varShape(v netcdf.Var) ([]int, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, err
	}
	shape := make([]int, len(dims))
	for i, d := range dims {
		n, err := d.Len()
		if err != nil {
			return nil, fmt.Errorf("failed to get dim%d length: %w", i, err)
		}
		shape[i] = int(n) //nolint:gosec // G115: dimension lengths fit in int.
	}
	return shape, nil
}

// varDimNames returns the dimension names of v.
func varDimNames(v netcdf.Var) ([]string, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(dims))
	for i, d := range dims {
		name, err := d.Name()
		if err != nil {
			return nil, fmt.Errorf("failed to get dim%d name: %w", i, err)
		}
		names[i] = name
	}
	return names, nil
}

// readFloat64Var reads a whole 1-D variable as float64.
func readFloat64Var(v netcdf.Var) ([]float64, error) {
	shape, err := varShape(v)
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions: %w", err)
	}
	if len(shape) != 1 {
		return nil, fmt.Errorf("expected 1D variable, got %dD", len(shape))
	}
	return readValues(v, shape[0])
}

// readValues reads total values of any numeric type as float64, turning
// fill values into NaN and applying scale_factor/add_offset packing.
//
//nolint:gocyclo // One branch per NetCDF numeric type.
func readValues(v netcdf.Var, total int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}

	out := make([]float64, total)
	switch t {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
	case netcdf.FLOAT:
		tmp := make([]float32, total)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT64:
		tmp := make([]int64, total)
		if err := v.ReadInt64s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, total)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, total)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.BYTE, netcdf.CHAR, netcdf.UBYTE, netcdf.USHORT, netcdf.UINT, netcdf.UINT64, netcdf.STRING:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}

	// Missing cells become NaN before unpacking.
	if fv, ok := getFillValue(v); ok {
		for i := range out {
			if out[i] == fv {
				out[i] = math.NaN()
			}
		}
	}

	scale, hasScale := readFloatAttr(v, "scale_factor")
	offset, hasOffset := readFloatAttr(v, "add_offset")
	if (hasScale && scale != 0 && scale != 1) || (hasOffset && offset != 0) {
		if !hasScale || scale == 0 {
			scale = 1
		}
		for i := range out {
			out[i] = out[i]*scale + offset
		}
	}

	return out, nil
}

// getFillValue returns the _FillValue or missing_value attribute if present as float64.
func getFillValue(v netcdf.Var) (float64, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		if fv, ok := readFloatAttr(v, name); ok {
			return fv, true
		}
	}
	return 0, false
}

// readFloatAttr reads the first element of a numeric attribute.
func readFloatAttr(v netcdf.Var, name string) (float64, bool) {
	a := v.Attr(name)
	if n, err := a.Len(); err != nil || n == 0 {
		return 0, false
	}

	// Try float64.
	buf64 := make([]float64, 1)
	if err := a.ReadFloat64s(buf64); err == nil {
		return buf64[0], true
	}
	// Try float32.
	buf32 := make([]float32, 1)
	if err := a.ReadFloat32s(buf32); err == nil {
		return float64(buf32[0]), true
	}
	// Try int32.
	bufi := make([]int32, 1)
	if err := a.ReadInt32s(bufi); err == nil {
		return float64(bufi[0]), true
	}
	// Try int16.
	bufs := make([]int16, 1)
	if err := a.ReadInt16s(bufs); err == nil {
		return float64(bufs[0]), true
	}
	return 0, false
}

// readStringAttr reads a text attribute.
func readStringAttr(v netcdf.Var, name string) (string, bool) {
	a := v.Attr(name)
	n, err := a.Len()
	if err != nil || n == 0 {
		return "", false
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return "", false
	}
	return strings.TrimRight(string(buf), "\x00"), true
}

var timeUnits = map[string]time.Duration{
	"second":  time.Second,
	"seconds": time.Second,
	"secs":    time.Second,
	"s":       time.Second,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"mins":    time.Minute,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"hrs":     time.Hour,
	"h":       time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
}

var referenceLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15",
	"2006-01-02",
	time.RFC3339,
}

// DecodeTimes converts CF offsets like "hours since 2018-10-01 06:00:00"
// to UTC timestamps.
func DecodeTimes(offsets []float64, units string) ([]time.Time, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return nil, fmt.Errorf("unsupported time units %q", units)
	}
	step, ok := timeUnits[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return nil, fmt.Errorf("unsupported time unit %q", unit)
	}

	ref = strings.TrimSpace(ref)
	ref = strings.TrimSuffix(ref, " UTC")
	ref = strings.TrimSuffix(ref, "Z")
	var base time.Time
	var parsed bool
	for _, layout := range referenceLayouts {
		if t, err := time.ParseInLocation(layout, ref, time.UTC); err == nil {
			base = t
			parsed = true
			break
		}
	}
	if !parsed {
		return nil, fmt.Errorf("unsupported time reference %q", ref)
	}

	times := make([]time.Time, len(offsets))
	for i, off := range offsets {
		if math.IsNaN(off) {
			return nil, fmt.Errorf("time offset %d is missing", i)
		}
		times[i] = base.Add(time.Duration(math.Round(off * float64(step)))).UTC()
	}
	return times, nil
}

// EncodeTimes converts timestamps to whole minutes since the Unix epoch.
func EncodeTimes(times []time.Time) ([]float64, string) {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = float64(t.Unix()) / 60
	}
	return out, "minutes since 1970-01-01 00:00:00"
}

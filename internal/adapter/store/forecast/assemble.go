package forecast

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/cyclone-tracker/internal/domain"
)

// StepTimeLayout is the time stamp embedded in per-step file names,
// e.g. output_surface_2018-10-01-06-00.nc.
const StepTimeLayout = "2006-01-02-15-04"

// File types produced by the model decoder.
const (
	FileTypeSurface = "surface"
	FileTypeUpper   = "upper"
)

// ErrNoValidFiles is returned when no per-step file can be assembled.
var ErrNoValidFiles = errors.New("no valid step files")

// DefaultVariables returns the variables combined for a file type.
func DefaultVariables(fileType string) []string {
	if fileType == FileTypeUpper {
		return []string{"geopotential", "specific_humidity", "temperature", "u_component_of_wind", "v_component_of_wind"}
	}
	return []string{PressureVarName, WindUVarName, WindVVarName}
}

// CombinedFileName returns the default output name for a file type.
func CombinedFileName(fileType string) string {
	return fmt.Sprintf("combined_%s_timeseries.nc", fileType)
}

// StepFile is one per-step model output file.
type StepFile struct {
	Path string
	Time time.Time
}

// ParseStepTime extracts the valid time from a per-step file name.
func ParseStepTime(name, fileType string) (time.Time, error) {
	base := filepath.Base(name)
	prefix := fmt.Sprintf("output_%s_", fileType)
	if !strings.HasPrefix(base, prefix) || !strings.HasSuffix(base, ".nc") {
		return time.Time{}, fmt.Errorf("file name %s does not match %s*.nc", base, prefix)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(base, prefix), ".nc")
	t, err := time.ParseInLocation(StepTimeLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not parse time from file name %s: %w", base, err)
	}
	return t, nil
}

// ListStepFiles returns the per-step files of fileType in dir sorted by
// name. Matching files whose time stamp does not parse are returned in
// skipped instead.
func ListStepFiles(dir, fileType string) (files []StepFile, skipped []string, err error) {
	pattern := filepath.Join(dir, fmt.Sprintf("output_%s_*.nc", fileType))
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list %s: %w", pattern, err)
	}
	sort.Strings(paths)

	for _, p := range paths {
		t, err := ParseStepTime(p, fileType)
		if err != nil {
			skipped = append(skipped, p)
			continue
		}
		files = append(files, StepFile{Path: p, Time: t})
	}
	return files, skipped, nil
}

// Variable is one data variable of a per-step file. The last two
// dimensions are latitude and longitude.
type Variable struct {
	Name   string
	Units  string
	Dims   []string
	Shape  []int
	Values []float64
}

// Step is the content of one per-step file.
type Step struct {
	Path      string
	Lat       domain.Axis
	Lon       domain.Axis
	LatName   string
	LonName   string
	Level     []float64 // Optional vertical coordinate.
	LevelName string
	Vars      []Variable
}

// ReadStep reads the named variables from a per-step file.
func ReadStep(path string, varNames []string) (*Step, error) {
	//nolint:gosec // G304: path comes from a directory listing.
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	lat, latName, err := readAxis(nc, latNames)
	if err != nil {
		return nil, fmt.Errorf("%s: latitude: %w", path, err)
	}
	lon, lonName, err := readAxis(nc, lonNames)
	if err != nil {
		return nil, fmt.Errorf("%s: longitude: %w", path, err)
	}

	grid, err := gridDimsOf(nc, latName, lonName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	step := &Step{Path: path, Lat: lat, Lon: lon, LatName: latName, LonName: lonName}

	for _, name := range varNames {
		v, err := nc.Var(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %s", path, domain.ErrVariableNotFound, name)
		}
		shape, err := varShape(v)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to get dimensions of %s: %w", path, name, err)
		}
		dims, err := varDimNames(v)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to get dimension names of %s: %w", path, name, err)
		}
		n := len(shape)
		if n < 2 || n > 3 || shape[n-2] != lat.Len() || shape[n-1] != lon.Len() {
			return nil, fmt.Errorf("%s: dimension mismatch for %s: data is %v, expected ([level,] %d, %d)",
				path, name, shape, lat.Len(), lon.Len())
		}

		if err := grid.check(name, dims); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		total := 1
		for _, s := range shape {
			total *= s
		}
		values, err := readValues(v, total)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read %s: %w", path, name, err)
		}

		variable := Variable{Name: name, Dims: dims, Shape: shape, Values: values}
		if units, ok := readStringAttr(v, "units"); ok {
			variable.Units = units
		}
		step.Vars = append(step.Vars, variable)

		// Read the vertical coordinate once.
		if n == 3 && step.LevelName == "" {
			step.LevelName = dims[0]
			if lv, _, ok := findVar(nc, candidates(dims[0], levelNames)); ok {
				if levels, err := readFloat64Var(lv); err == nil && len(levels) == shape[0] {
					step.Level = levels
				}
			}
		}
	}

	return step, nil
}

// Region is an inclusive latitude/longitude box.
type Region struct {
	LatMin float64 `yaml:"lat_min" json:"lat_min"`
	LatMax float64 `yaml:"lat_max" json:"lat_max"`
	LonMin float64 `yaml:"lon_min" json:"lon_min"`
	LonMax float64 `yaml:"lon_max" json:"lon_max"`
}

// Validate checks the box ordering.
func (r Region) Validate() error {
	if r.LatMin >= r.LatMax {
		return fmt.Errorf("region lat_min (%g) must be below lat_max (%g)", r.LatMin, r.LatMax)
	}
	if r.LonMin >= r.LonMax {
		return fmt.Errorf("region lon_min (%g) must be below lon_max (%g)", r.LonMin, r.LonMax)
	}
	return nil
}

// ErrRegionCrossesSeam is returned when a crop box straddles the
// longitude seam of the grid (0/360 or -180/180). Windows do not wrap.
var ErrRegionCrossesSeam = errors.New("region crosses the longitude seam of the grid")

// lonBounds maps the box longitudes onto the convention of axis. full is
// set when the box spans every longitude.
func (r Region) lonBounds(axis domain.Axis) (lo, hi float64, full bool, err error) {
	if r.LonMax-r.LonMin >= 360 {
		return 0, 0, true, nil
	}
	lo, hi = axis.NormalizeLon(r.LonMin), axis.NormalizeLon(r.LonMax)
	if math.Abs((hi-lo)-(r.LonMax-r.LonMin)) > 1e-9 {
		return 0, 0, false, fmt.Errorf("%w: lon %g..%g maps to %g..%g on a %g..%g grid",
			ErrRegionCrossesSeam, r.LonMin, r.LonMax, lo, hi, axis.Min(), axis.Max())
	}
	return lo, hi, false, nil
}

// Combined describes a time series assembled from step files.
type Combined struct {
	Times []time.Time
	Lat   domain.Axis
	Lon   domain.Axis
	Steps int
	Vars  []string
}

// checkCompatible verifies that s has the same grid and variables as ref.
func checkCompatible(ref, s *Step) error {
	if len(ref.Lat.Values) != len(s.Lat.Values) || len(ref.Lon.Values) != len(s.Lon.Values) {
		return fmt.Errorf("%s: grid %dx%d differs from %dx%d in %s",
			s.Path, s.Lat.Len(), s.Lon.Len(), ref.Lat.Len(), ref.Lon.Len(), ref.Path)
	}
	for i := range ref.Lat.Values {
		if ref.Lat.Values[i] != s.Lat.Values[i] {
			return fmt.Errorf("%s: latitude differs from %s at index %d", s.Path, ref.Path, i)
		}
	}
	for j := range ref.Lon.Values {
		if ref.Lon.Values[j] != s.Lon.Values[j] {
			return fmt.Errorf("%s: longitude differs from %s at index %d", s.Path, ref.Path, j)
		}
	}
	for k, v := range ref.Vars {
		if len(s.Vars[k].Shape) != len(v.Shape) {
			return fmt.Errorf("%s: %s has rank %d, expected %d", s.Path, v.Name, len(s.Vars[k].Shape), len(v.Shape))
		}
		for d := range v.Shape {
			if s.Vars[k].Shape[d] != v.Shape[d] {
				return fmt.Errorf("%s: %s has shape %v, expected %v", s.Path, v.Name, s.Vars[k].Shape, v.Shape)
			}
		}
	}
	return nil
}

// WriteCombined concatenates steps along a new leading time dimension and
// writes the result to path. When region is set, the output is cropped to
// it using the orientation of each axis.
//
//nolint:gocyclo,nestif // Dimension bookkeeping for a generic variable set.
func WriteCombined(path string, times []time.Time, steps []*Step, region *Region) (*Combined, error) {
	if len(steps) == 0 {
		return nil, ErrNoValidFiles
	}
	if len(times) != len(steps) {
		return nil, fmt.Errorf("got %d times for %d steps", len(times), len(steps))
	}
	ref := steps[0]
	for _, s := range steps[1:] {
		if err := checkCompatible(ref, s); err != nil {
			return nil, err
		}
	}

	// Resolve the spatial window once.
	lat, i0, i1 := ref.Lat, 0, ref.Lat.Len()
	lon, j0, j1 := ref.Lon, 0, ref.Lon.Len()
	if region != nil {
		if err := region.Validate(); err != nil {
			return nil, err
		}
		lonLo, lonHi, full, err := region.lonBounds(ref.Lon)
		if err != nil {
			return nil, err
		}
		lat, i0, i1 = ref.Lat.Slice(region.LatMin, region.LatMax)
		if !full {
			lon, j0, j1 = ref.Lon.Slice(lonLo, lonHi)
		}
		if lat.Len() == 0 || lon.Len() == 0 {
			return nil, fmt.Errorf("region %+v does not overlap the grid", *region)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	ds, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = ds.Close() }()

	// Create dimensions.
	timeDim, err := ds.AddDim("time", uint64(len(times)))
	if err != nil {
		return nil, fmt.Errorf("failed to add time dimension: %w", err)
	}
	latDim, err := ds.AddDim(ref.LatName, uint64(lat.Len()))
	if err != nil {
		return nil, fmt.Errorf("failed to add latitude dimension: %w", err)
	}
	lonDim, err := ds.AddDim(ref.LonName, uint64(lon.Len()))
	if err != nil {
		return nil, fmt.Errorf("failed to add longitude dimension: %w", err)
	}
	var levelDim netcdf.Dim
	hasLevel := ref.LevelName != ""
	if hasLevel {
		var levelLen int
		for _, v := range ref.Vars {
			if len(v.Shape) == 3 {
				levelLen = v.Shape[0]
				break
			}
		}
		levelDim, err = ds.AddDim(ref.LevelName, uint64(levelLen))
		if err != nil {
			return nil, fmt.Errorf("failed to add level dimension: %w", err)
		}
	}

	// Create coordinate variables.
	timeVar, err := ds.AddVar("time", netcdf.DOUBLE, []netcdf.Dim{timeDim})
	if err != nil {
		return nil, err
	}
	offsets, units := EncodeTimes(times)
	if err := timeVar.Attr("units").WriteBytes([]byte(units)); err != nil {
		return nil, fmt.Errorf("failed to write time units: %w", err)
	}
	if err := timeVar.Attr("calendar").WriteBytes([]byte("proleptic_gregorian")); err != nil {
		return nil, fmt.Errorf("failed to write time calendar: %w", err)
	}

	latVar, err := ds.AddVar(ref.LatName, netcdf.DOUBLE, []netcdf.Dim{latDim})
	if err != nil {
		return nil, err
	}
	if err := latVar.Attr("units").WriteBytes([]byte("degrees_north")); err != nil {
		return nil, err
	}
	lonVar, err := ds.AddVar(ref.LonName, netcdf.DOUBLE, []netcdf.Dim{lonDim})
	if err != nil {
		return nil, err
	}
	if err := lonVar.Attr("units").WriteBytes([]byte("degrees_east")); err != nil {
		return nil, err
	}

	var levelVar netcdf.Var
	writeLevel := hasLevel && len(ref.Level) > 0
	if writeLevel {
		levelVar, err = ds.AddVar(ref.LevelName, netcdf.DOUBLE, []netcdf.Dim{levelDim})
		if err != nil {
			return nil, err
		}
	}

	// Create data variables.
	dataVars := make([]netcdf.Var, len(ref.Vars))
	for k, v := range ref.Vars {
		dims := []netcdf.Dim{timeDim}
		if len(v.Shape) == 3 {
			dims = append(dims, levelDim)
		}
		dims = append(dims, latDim, lonDim)
		dataVars[k], err = ds.AddVar(v.Name, netcdf.FLOAT, dims)
		if err != nil {
			return nil, fmt.Errorf("failed to add variable %s: %w", v.Name, err)
		}
		if v.Units != "" {
			if err := dataVars[k].Attr("units").WriteBytes([]byte(v.Units)); err != nil {
				return nil, err
			}
		}
	}

	if err := ds.EndDef(); err != nil {
		return nil, fmt.Errorf("failed to end define mode: %w", err)
	}

	// Write coordinates.
	if err := timeVar.WriteFloat64s(offsets); err != nil {
		return nil, fmt.Errorf("failed to write time: %w", err)
	}
	if err := latVar.WriteFloat64s(lat.Values); err != nil {
		return nil, fmt.Errorf("failed to write latitude: %w", err)
	}
	if err := lonVar.WriteFloat64s(lon.Values); err != nil {
		return nil, fmt.Errorf("failed to write longitude: %w", err)
	}
	if writeLevel {
		if err := levelVar.WriteFloat64s(ref.Level); err != nil {
			return nil, fmt.Errorf("failed to write level: %w", err)
		}
	}

	// Write data, time-major.
	nLat, nLon := ref.Lat.Len(), ref.Lon.Len()
	names := make([]string, len(ref.Vars))
	for k, v := range ref.Vars {
		names[k] = v.Name
		levels := 1
		if len(v.Shape) == 3 {
			levels = v.Shape[0]
		}
		out := make([]float32, 0, len(steps)*levels*lat.Len()*lon.Len())
		for _, s := range steps {
			src := s.Vars[k].Values
			for l := 0; l < levels; l++ {
				for i := i0; i < i1; i++ {
					row := (l*nLat + i) * nLon
					for j := j0; j < j1; j++ {
						out = append(out, float32(src[row+j]))
					}
				}
			}
		}
		if err := dataVars[k].WriteFloat32s(out); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", v.Name, err)
		}
	}

	return &Combined{Times: times, Lat: lat, Lon: lon, Steps: len(steps), Vars: names}, nil
}

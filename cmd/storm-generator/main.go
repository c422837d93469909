// Package main writes synthetic per-step surface files holding a moving
// tropical low, for exercising assemble and track without model output.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/cyclone-tracker/internal/adapter/store/forecast"
	"go.ngs.io/cyclone-tracker/internal/observability"
)

const ambientPressure = 101300.0 // Pa

// RegionalGrid defines the geographic bounds and resolution.
type RegionalGrid struct {
	LatMin     float64
	LatMax     float64
	LonMin     float64
	LonMax     float64
	Resolution float64 // degrees
}

// Storm describes the synthetic cyclone.
type Storm struct {
	StartLat float64
	StartLon float64
	DLat     float64 // degrees per step
	DLon     float64 // degrees per step
	Depth    float64 // peak central pressure deficit, Pa
	Radius   float64 // pressure e-folding radius, degrees
	MaxWind  float64 // peak tangential wind, m/s
	RMW      float64 // radius of maximum wind, degrees
}

// stepState is the storm at one step.
type stepState struct {
	lat, lon float64
	depth    float64
	maxWind  float64
}

// state returns the storm at step s of n. Intensity ramps up to a peak at
// mid-track and decays after.
func (s Storm) state(step, n int) stepState {
	life := math.Sin(math.Pi * float64(step+1) / float64(n+1))
	return stepState{
		lat:     s.StartLat + float64(step)*s.DLat,
		lon:     s.StartLon + float64(step)*s.DLon,
		depth:   s.Depth * life,
		maxWind: s.MaxWind * life,
	}
}

func main() {
	// Command line flags
	outDir := flag.String("out", "./data/synthetic", "Output directory for per-step NetCDF files")
	start := flag.String("start", "2018-10-01-06-00", "Valid time of the first step (YYYY-MM-DD-HH-MM, UTC)")
	steps := flag.Int("steps", 20, "Number of time steps")
	interval := flag.Duration("interval", 6*time.Hour, "Time between steps")
	latMin := flag.Float64("lat-min", 0.0, "Minimum latitude")
	latMax := flag.Float64("lat-max", 40.0, "Maximum latitude")
	lonMin := flag.Float64("lon-min", 110.0, "Minimum longitude")
	lonMax := flag.Float64("lon-max", 160.0, "Maximum longitude")
	resolution := flag.Float64("resolution", 0.25, "Grid resolution in degrees")
	startLat := flag.Float64("storm-lat", 12.0, "Initial storm latitude")
	startLon := flag.Float64("storm-lon", 140.0, "Initial storm longitude")
	dLat := flag.Float64("dlat", 0.6, "Northward motion per step, degrees")
	dLon := flag.Float64("dlon", -0.8, "Eastward motion per step, degrees")
	depth := flag.Float64("depth", 6000, "Peak central pressure deficit, Pa")
	radius := flag.Float64("radius", 2.0, "Pressure e-folding radius, degrees")
	maxWind := flag.Float64("max-wind", 45, "Peak tangential wind, m/s")
	rmw := flag.Float64("rmw", 0.5, "Radius of maximum wind, degrees")

	flag.Parse()

	logger := observability.NewLogger(os.Stderr, "info", "text")

	t0, err := time.ParseInLocation(forecast.StepTimeLayout, *start, time.UTC)
	if err != nil {
		logger.Error("invalid start time", "start", *start, "error", err)
		os.Exit(1)
	}
	if *steps < 1 || *resolution <= 0 || *latMax <= *latMin || *lonMax <= *lonMin {
		logger.Error("invalid grid or step count")
		os.Exit(1)
	}

	grid := RegionalGrid{
		LatMin:     *latMin,
		LatMax:     *latMax,
		LonMin:     *lonMin,
		LonMax:     *lonMax,
		Resolution: *resolution,
	}
	storm := Storm{
		StartLat: *startLat,
		StartLon: *startLon,
		DLat:     *dLat,
		DLon:     *dLon,
		Depth:    *depth,
		Radius:   *radius,
		MaxWind:  *maxWind,
		RMW:      *rmw,
	}

	// Create output directory
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}

	lat, lon := grid.axes()
	for s := 0; s < *steps; s++ {
		valid := t0.Add(time.Duration(s) * *interval)
		st := storm.state(s, *steps)
		path := filepath.Join(*outDir, fmt.Sprintf("output_%s_%s.nc", forecast.FileTypeSurface, valid.Format(forecast.StepTimeLayout)))

		msl, u, v := storm.fields(st, lat, lon)
		if err := writeStep(path, lat, lon, msl, u, v); err != nil {
			logger.Error("failed to write step", "path", path, "error", err)
			os.Exit(1)
		}
		logger.Info("wrote step", "path", path, "center_lat", st.lat, "center_lon", st.lon,
			"central_pressure_pa", ambientPressure-st.depth, "max_wind_ms", st.maxWind)
	}

	logger.Info("generation complete", "dir", *outDir, "steps", *steps,
		"lat_points", len(lat), "lon_points", len(lon))
}

// axes returns latitude north to south, as in ECMWF output, and longitude
// west to east.
func (g RegionalGrid) axes() (lat, lon []float64) {
	nLat := int(math.Round((g.LatMax-g.LatMin)/g.Resolution)) + 1
	nLon := int(math.Round((g.LonMax-g.LonMin)/g.Resolution)) + 1

	lat = make([]float64, nLat)
	for i := range lat {
		lat[i] = g.LatMax - float64(i)*g.Resolution
	}
	lon = make([]float64, nLon)
	for j := range lon {
		lon[j] = g.LonMin + float64(j)*g.Resolution
	}
	return lat, lon
}

// fields builds a Gaussian pressure low and a Rankine-like vortex, cyclonic
// for the hemisphere of the center.
func (s Storm) fields(st stepState, lat, lon []float64) (msl, u, v []float32) {
	n := len(lat) * len(lon)
	msl = make([]float32, n)
	u = make([]float32, n)
	v = make([]float32, n)

	sense := 1.0
	if st.lat < 0 {
		sense = -1.0
	}

	for i, la := range lat {
		for j, lo := range lon {
			idx := i*len(lon) + j
			dy := la - st.lat
			dx := lo - st.lon
			r := math.Hypot(dx, dy)

			msl[idx] = float32(ambientPressure - st.depth*math.Exp(-(r*r)/(s.Radius*s.Radius)))

			var speed float64
			switch {
			case r == 0:
				speed = 0
			case r < s.RMW:
				speed = st.maxWind * r / s.RMW
			default:
				speed = st.maxWind * math.Pow(s.RMW/r, 0.6)
			}
			theta := math.Atan2(dy, dx)
			u[idx] = float32(-sense * speed * math.Sin(theta))
			v[idx] = float32(sense * speed * math.Cos(theta))
		}
	}
	return msl, u, v
}

// writeStep writes one per-step surface file.
func writeStep(path string, lat, lon []float64, msl, u, v []float32) (err error) {
	ds, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	// Create dimensions
	latDim, err := ds.AddDim("latitude", uint64(len(lat)))
	if err != nil {
		return err
	}
	lonDim, err := ds.AddDim("longitude", uint64(len(lon)))
	if err != nil {
		return err
	}

	// Create coordinate variables
	latVar, err := ds.AddVar("latitude", netcdf.DOUBLE, []netcdf.Dim{latDim})
	if err != nil {
		return err
	}
	if err := latVar.Attr("units").WriteBytes([]byte("degrees_north")); err != nil {
		return err
	}
	lonVar, err := ds.AddVar("longitude", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	if err != nil {
		return err
	}
	if err := lonVar.Attr("units").WriteBytes([]byte("degrees_east")); err != nil {
		return err
	}

	// Create data variables
	fields := []struct {
		name  string
		units string
		data  []float32
	}{
		{forecast.PressureVarName, "Pa", msl},
		{forecast.WindUVarName, "m s**-1", u},
		{forecast.WindVVarName, "m s**-1", v},
	}
	vars := make([]netcdf.Var, len(fields))
	for k, f := range fields {
		vars[k], err = ds.AddVar(f.name, netcdf.FLOAT, []netcdf.Dim{latDim, lonDim})
		if err != nil {
			return err
		}
		if err := vars[k].Attr("units").WriteBytes([]byte(f.units)); err != nil {
			return err
		}
	}
	if err := ds.EndDef(); err != nil {
		return err
	}

	if err := latVar.WriteFloat64s(lat); err != nil {
		return err
	}
	if err := lonVar.WriteFloat64s(lon); err != nil {
		return err
	}
	for k, f := range fields {
		if err := vars[k].WriteFloat32s(f.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	return nil
}

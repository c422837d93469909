package forecast

import (
	"fmt"
	"time"

	"github.com/fhs/go-netcdf/netcdf"
)

// AxisSummary describes a coordinate variable.
type AxisSummary struct {
	Name       string  `json:"name"`
	Len        int     `json:"len"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Descending bool    `json:"descending"`
}

// VariableSummary reports whether a variable is present and its layout.
type VariableSummary struct {
	Role  string   `json:"role"`
	Name  string   `json:"name,omitempty"`
	Found bool     `json:"found"`
	Dims  []string `json:"dims,omitempty"`
	Shape []int    `json:"shape,omitempty"`
	Units string   `json:"units,omitempty"`
}

// Description is the structure report of a NetCDF file.
type Description struct {
	Path      string            `json:"path"`
	Latitude  *AxisSummary      `json:"latitude,omitempty"`
	Longitude *AxisSummary      `json:"longitude,omitempty"`
	Level     *AxisSummary      `json:"level,omitempty"`
	Times     []time.Time       `json:"times,omitempty"`
	Variables []VariableSummary `json:"variables"`
}

// TrackerReady reports whether the file holds everything the tracker needs.
func (d *Description) TrackerReady() bool {
	if d.Latitude == nil || d.Longitude == nil || len(d.Times) == 0 {
		return false
	}
	for _, v := range d.Variables {
		if isTrackerRole(v.Role) && !v.Found {
			return false
		}
	}
	return true
}

type lookup struct {
	role  string
	names []string
}

func isTrackerRole(role string) bool {
	return role == "pressure" || role == "wind_u" || role == "wind_v"
}

// Describe reports the coordinates of path and the presence of the tracker
// variables plus any extra variable names.
func Describe(path string, config FileConfig, extra ...string) (*Description, error) {
	//nolint:gosec // G304: path comes from the command line.
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	d := &Description{Path: path}

	summarize := func(names []string) *AxisSummary {
		axis, name, err := readAxis(nc, names)
		if err != nil {
			return nil
		}
		return &AxisSummary{
			Name:       name,
			Len:        axis.Len(),
			Min:        axis.Min(),
			Max:        axis.Max(),
			Descending: axis.Descending,
		}
	}
	d.Latitude = summarize(candidates(config.LatVarName, latNames))
	d.Longitude = summarize(candidates(config.LonVarName, lonNames))
	d.Level = summarize(levelNames)

	// Per-step files carry no time coordinate.
	if times, err := readTimes(nc, candidates(config.TimeVarName, timeNames)); err == nil {
		d.Times = times
	}

	roles := []lookup{
		{"pressure", candidates(config.PressureVarName, pressureNames)},
		{"wind_u", candidates(config.WindUVarName, windUNames)},
		{"wind_v", candidates(config.WindVVarName, windVNames)},
	}
	for _, name := range extra {
		roles = append(roles, lookup{"extra", []string{name}})
	}

	for _, r := range roles {
		summary := VariableSummary{Role: r.role}
		v, name, ok := findVar(nc, r.names)
		if !ok {
			if r.role == "extra" {
				summary.Name = r.names[0]
			}
			d.Variables = append(d.Variables, summary)
			continue
		}
		summary.Name = name
		summary.Found = true
		if shape, err := varShape(v); err == nil {
			summary.Shape = shape
		}
		if dims, err := varDimNames(v); err == nil {
			summary.Dims = dims
		}
		if units, ok := readStringAttr(v, "units"); ok {
			summary.Units = units
		}
		d.Variables = append(d.Variables, summary)
	}

	return d, nil
}

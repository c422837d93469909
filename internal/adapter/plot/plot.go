// Package plot renders storm tracks and verification heatmaps as PNG images.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"go.ngs.io/cyclone-tracker/internal/domain"
)

// TrackTitle is the title of the track plot.
const TrackTitle = "Typhoon Track & Intensity (CMA Standard)"

// VerifyTimeLayout is the time stamp in verification plot file names.
const VerifyTimeLayout = "2006-01-02_15-04-05"

// ErrNoPoints is returned when a track plot is requested for an empty track.
var ErrNoPoints = errors.New("no track points to plot")

var namedColors = map[string]color.RGBA{
	"gray":    {R: 128, G: 128, B: 128, A: 255},
	"skyblue": {R: 135, G: 206, B: 235, A: 255},
	"blue":    {R: 0, G: 0, B: 255, A: 255},
	"green":   {R: 0, G: 128, B: 0, A: 255},
	"yellow":  {R: 255, G: 255, B: 0, A: 255},
	"orange":  {R: 255, G: 165, B: 0, A: 255},
	"red":     {R: 255, G: 0, B: 0, A: 255},
	"black":   {A: 255},
	"white":   {R: 255, G: 255, B: 255, A: 255},
}

// CategoryColor returns the plot color of a category.
func CategoryColor(c domain.Category) color.Color {
	if rgba, ok := namedColors[c.ColorName()]; ok {
		return rgba
	}
	return namedColors["gray"]
}

// Renderer draws plots at a fixed size.
type Renderer struct {
	Width  vg.Length
	Height vg.Length
}

// NewRenderer returns a renderer with the default 10x8 inch canvas.
func NewRenderer() *Renderer {
	return &Renderer{
		Width:  10 * vg.Inch,
		Height: 8 * vg.Inch,
	}
}

// TrackPlot builds the track plot: a black path, points colored by
// category, start and end markers and periodic time annotations.
func (r *Renderer) TrackPlot(points []domain.TrackPoint) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}

	p := plot.New()
	p.Title.Text = TrackTitle
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	p.Add(plotter.NewGrid())

	path := make(plotter.XYs, len(points))
	for i, pt := range points {
		path[i] = plotter.XY{X: pt.Lon, Y: pt.Lat}
	}

	line, err := plotter.NewLine(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create track line: %w", err)
	}
	line.LineStyle.Color = namedColors["black"]
	line.LineStyle.Width = vg.Points(1)
	p.Add(line)

	// One scatter per category keeps the legend to the categories present.
	groups := make(map[domain.Category]plotter.XYs)
	for i, pt := range points {
		groups[pt.Category] = append(groups[pt.Category], path[i])
	}
	for _, c := range domain.AllCategories() {
		xys, ok := groups[c]
		if !ok {
			continue
		}
		s, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s scatter: %w", c, err)
		}
		s.GlyphStyle.Color = CategoryColor(c)
		s.GlyphStyle.Radius = vg.Points(5)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add(c.Label(), s)
	}

	start, err := marker(path[0], namedColors["green"], draw.TriangleGlyph{})
	if err != nil {
		return nil, err
	}
	end, err := marker(path[len(path)-1], namedColors["red"], draw.CrossGlyph{})
	if err != nil {
		return nil, err
	}
	p.Add(start, end)
	p.Legend.Add("Start", start)
	p.Legend.Add("End", end)

	labels, err := plotter.NewLabels(annotations(points, path))
	if err != nil {
		return nil, fmt.Errorf("failed to create time labels: %w", err)
	}
	labels.Offset = vg.Point{X: vg.Points(5), Y: vg.Points(5)}
	p.Add(labels)

	p.Legend.Top = true
	return p, nil
}

func marker(at plotter.XY, c color.Color, shape draw.GlyphDrawer) (*plotter.Scatter, error) {
	s, err := plotter.NewScatter(plotter.XYs{at})
	if err != nil {
		return nil, fmt.Errorf("failed to create marker: %w", err)
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = vg.Points(8)
	s.GlyphStyle.Shape = shape
	return s, nil
}

// annotations labels every max(1, n/10)-th point with its time.
func annotations(points []domain.TrackPoint, path plotter.XYs) plotter.XYLabels {
	every := max(1, len(points)/10)
	var out plotter.XYLabels
	for i := 0; i < len(points); i += every {
		out.XYs = append(out.XYs, path[i])
		out.Labels = append(out.Labels, points[i].Time.UTC().Format("01-02 15h"))
	}
	return out
}

// WriteTrack renders the track plot as PNG to w.
func (r *Renderer) WriteTrack(w io.Writer, points []domain.TrackPoint) error {
	p, err := r.TrackPlot(points)
	if err != nil {
		return err
	}
	return r.writePNG(w, p)
}

// SaveTrack renders the track plot to a PNG file, creating its directory.
func (r *Renderer) SaveTrack(path string, points []domain.TrackPoint) error {
	p, err := r.TrackPlot(points)
	if err != nil {
		return err
	}
	return r.savePNG(path, p)
}

// windowGrid exposes a window of one field step as a heat map grid with
// increasing X and Y regardless of the axis orientation.
type windowGrid struct {
	f      *domain.Field
	step   int
	i0, i1 int
	j0, j1 int
}

func (g windowGrid) Dims() (c, r int) { return g.j1 - g.j0, g.i1 - g.i0 }

func (g windowGrid) row(r int) int {
	if g.f.Lat.Descending {
		return g.i1 - 1 - r
	}
	return g.i0 + r
}

func (g windowGrid) col(c int) int {
	if g.f.Lon.Descending {
		return g.j1 - 1 - c
	}
	return g.j0 + c
}

func (g windowGrid) Z(c, r int) float64 { return g.f.At(g.step, g.row(r), g.col(c)) }
func (g windowGrid) X(c int) float64    { return g.f.Lon.Values[g.col(c)] }
func (g windowGrid) Y(r int) float64    { return g.f.Lat.Values[g.row(r)] }

// VerifyPlot draws the pressure field around center at one step with the
// center marked by a white x.
func (r *Renderer) VerifyPlot(pressure *domain.Field, step int, center domain.Position, radius float64) (*plot.Plot, error) {
	if step < 0 || step >= pressure.NumSteps() {
		return nil, fmt.Errorf("step %d out of range [0, %d)", step, pressure.NumSteps())
	}
	lon := pressure.Lon.NormalizeLon(center.Lon)
	i0, i1 := pressure.Lat.Select(center.Lat-radius, center.Lat+radius)
	j0, j1 := pressure.Lon.Select(lon-radius, lon+radius)
	if i0 >= i1 || j0 >= j1 {
		return nil, domain.ErrEmptyWindow
	}

	grid := windowGrid{f: pressure, step: step, i0: i0, i1: i1, j0: j0, j1: j1}
	heat := plotter.NewHeatMap(grid, palette.Heat(16, 1))
	if heat.Min > heat.Max {
		return nil, domain.ErrEmptyWindow
	}
	if heat.Min == heat.Max {
		heat.Max = heat.Min + 1
	}
	heat.NaN = color.Transparent

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Verification: %s (center %.2fN, %.2fE)",
		pressure.Times[step].UTC().Format("2006-01-02 15:04"), center.Lat, lon)
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	p.Add(heat)

	c, err := marker(plotter.XY{X: lon, Y: center.Lat}, namedColors["white"], draw.CrossGlyph{})
	if err != nil {
		return nil, err
	}
	p.Add(c)
	return p, nil
}

// VerifyFileName returns the file name of the verification plot for t.
func VerifyFileName(t time.Time) string {
	return "verify_" + t.UTC().Format(VerifyTimeLayout) + ".png"
}

// SaveVerify renders a verification plot into dir and returns its path.
func (r *Renderer) SaveVerify(dir string, pressure *domain.Field, step int, center domain.Position, radius float64) (string, error) {
	p, err := r.VerifyPlot(pressure, step, center, radius)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, VerifyFileName(pressure.Times[step]))
	if err := r.savePNG(path, p); err != nil {
		return "", err
	}
	return path, nil
}

func (r *Renderer) writePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(r.Width, r.Height, "png")
	if err != nil {
		return fmt.Errorf("failed to create PNG writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write PNG: %w", err)
	}
	return nil
}

func (r *Renderer) savePNG(path string, p *plot.Plot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create plot directory: %w", err)
	}
	if err := p.Save(r.Width, r.Height, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

package plot

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/plotter"

	"go.ngs.io/cyclone-tracker/internal/domain"
)

var t0 = time.Date(2018, 10, 1, 6, 0, 0, 0, time.UTC)

func track(n int) []domain.TrackPoint {
	points := make([]domain.TrackPoint, n)
	for i := range points {
		points[i] = domain.TrackPoint{
			Time:     t0.Add(time.Duration(i) * 6 * time.Hour),
			Lat:      15 + float64(i)*0.5,
			Lon:      135 - float64(i)*0.75,
			MaxWind:  12 + float64(i)*4,
			Category: domain.CMAScale().Classify(12 + float64(i)*4),
		}
	}
	return points
}

func smallRenderer() *Renderer {
	r := NewRenderer()
	r.Width, r.Height = 200, 160
	return r
}

func TestWriteTrack_PNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, smallRenderer().WriteTrack(&buf, track(12)))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Positive(t, img.Bounds().Dx())
}

func TestTrackPlot_Empty(t *testing.T) {
	_, err := smallRenderer().TrackPlot(nil)
	assert.ErrorIs(t, err, ErrNoPoints)
}

func toXYs(points []domain.TrackPoint) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i] = plotter.XY{X: pt.Lon, Y: pt.Lat}
	}
	return xys
}

func TestAnnotations_Stride(t *testing.T) {
	points := track(25)
	labels := annotations(points, toXYs(points))
	// 25/10 = 2: points 0, 2, ..., 24.
	assert.Len(t, labels.Labels, 13)
	assert.Equal(t, "10-01 06h", labels.Labels[0])
	assert.Equal(t, "10-01 18h", labels.Labels[1])

	short := track(3)
	assert.Len(t, annotations(short, toXYs(short)).Labels, 3)
}

func TestCategoryColor(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 135, G: 206, B: 235, A: 255}, CategoryColor(domain.CategoryTD))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, CategoryColor(domain.CategorySuperTY))
	for _, c := range domain.AllCategories() {
		_, ok := namedColors[c.ColorName()]
		assert.True(t, ok, c.String())
	}
}

func pressureField(t *testing.T, lat domain.Axis) *domain.Field {
	t.Helper()
	lon := domain.MustAxis(130, 131, 132, 133, 134)
	values := make([]float64, 2*lat.Len()*lon.Len())
	for i := range values {
		values[i] = 100000 + float64(i%7)*50
	}
	values[3] = math.NaN()
	f, err := domain.NewField("msl", []time.Time{t0, t0.Add(6 * time.Hour)}, lat, lon, values)
	require.NoError(t, err)
	return f
}

func TestSaveVerify(t *testing.T) {
	dir := t.TempDir()
	for _, lat := range []domain.Axis{
		domain.MustAxis(10, 11, 12, 13),
		domain.MustAxis(13, 12, 11, 10),
	} {
		f := pressureField(t, lat)
		path, err := smallRenderer().SaveVerify(dir, f, 1, domain.Position{Lat: 11.5, Lon: 132}, 5)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "verify_2018-10-01_12-00-00.png"), path)
		assert.FileExists(t, path)
	}
}

func TestVerifyPlot_Errors(t *testing.T) {
	f := pressureField(t, domain.MustAxis(10, 11, 12, 13))
	r := smallRenderer()

	_, err := r.VerifyPlot(f, 5, domain.Position{Lat: 11, Lon: 132}, 5)
	assert.Error(t, err)

	_, err = r.VerifyPlot(f, 0, domain.Position{Lat: 40, Lon: 132}, 1)
	assert.ErrorIs(t, err, domain.ErrEmptyWindow)
}

func TestVerifyFileName(t *testing.T) {
	assert.Equal(t, "verify_2018-10-01_06-00-00.png", VerifyFileName(t0))
}

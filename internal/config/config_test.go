package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/cyclone-tracker/internal/adapter/store/forecast"
	"go.ngs.io/cyclone-tracker/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5.0, cfg.TrackingRadiusDeg)
	assert.Equal(t, 3.0, cfg.SearchRadiusDeg)
	assert.Equal(t, 1.4, cfg.CorrectionFactor)
	assert.Equal(t, "./figure_csv", cfg.OutputBaseDir)
	assert.Equal(t, []float64{10.8, 17.2, 24.5, 32.7, 41.5, 51.0}, cfg.IntensityThresholds)
	assert.Equal(t, 10, cfg.VerificationSteps)
	assert.Equal(t, forecast.DefaultCacheSize, cfg.DatasetCacheSize)
	assert.Equal(t, forecast.FileTypeSurface, cfg.Assemble.FileType)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "cyclone-track-points", cfg.Kafka.Topic)
	assert.Nil(t, cfg.StartLat)

	_, err = cfg.TrackParams()
	assert.Error(t, err, "seed is required for tracking")
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
input_file: /data/trami/combined_surface_timeseries.nc
start_lat: 15.0
start_lon: 135.5
search_radius_deg: 2.5
correction_factor: 1.2
output_base_dir: /tmp/out
variables:
  pressure: msl
assemble:
  input_dir: /data/trami
  file_type: upper
  region:
    lat_min: 5
    lat_max: 40
    lon_min: 100
    lon_max: 150
kafka:
  brokers: [broker1:9092]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/trami/combined_surface_timeseries.nc", cfg.InputFile)
	assert.Equal(t, 5.0, cfg.TrackingRadiusDeg, "absent keys keep defaults")
	assert.Equal(t, []string{"broker1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, forecast.FileTypeUpper, cfg.Assemble.FileType)
	assert.Equal(t, "msl", cfg.FileConfig().PressureVarName)
	assert.Equal(t, forecast.WindUVarName, cfg.FileConfig().WindUVarName)

	p, err := cfg.TrackParams()
	require.NoError(t, err)
	assert.Equal(t, domain.Position{Lat: 15, Lon: 135.5}, p.Seed)
	assert.Equal(t, 2.5, p.SearchRadius)
	assert.Equal(t, 1.2, p.CorrectionFactor)
	assert.Equal(t, domain.CMAScale(), p.Scale)

	assert.Nil(t, cfg.AssembleRegion(false), "a configured region only applies with crop")
	assert.Equal(t, &forecast.Region{LatMin: 5, LatMax: 40, LonMin: 100, LonMax: 150}, cfg.AssembleRegion(true))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("OUTPUT_BASE_DIR", "/srv/tracks")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092,")
	t.Setenv("KAFKA_TOPIC", "tracks")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://example.org")

	cfg, err := Load(writeConfig(t, "output_base_dir: ./ignored\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "/srv/tracks", cfg.OutputBaseDir)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "tracks", cfg.Kafka.Topic)
	assert.Equal(t, "https://example.org", cfg.Server.CORSAllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"radius", "tracking_radius_deg: 0\n", "tracking_radius_deg"},
		{"search radius", "search_radius_deg: -1\n", "search_radius_deg"},
		{"factor", "correction_factor: 0\n", "correction_factor"},
		{"thresholds", "intensity_thresholds: [10, 5, 20, 30, 40, 50]\n", "intensity_thresholds"},
		{"steps", "verification_steps: 0\n", "verification_steps"},
		{"cache size", "dataset_cache_size: 0\n", "dataset_cache_size"},
		{"file type", "assemble:\n  file_type: pressure\n", "file_type"},
		{"region", "assemble:\n  region: {lat_min: 50, lat_max: 10, lon_min: 90, lon_max: 160}\n", "lat_min"},
		{"log level", "log:\n  level: loud\n", "log level"},
		{"latitude", "start_lat: 95\n", "start_lat"},
		{"yaml", "start_lat: [\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestAssembleRegion(t *testing.T) {
	cfg := Default()
	assert.Nil(t, cfg.AssembleRegion(false))
	assert.Equal(t, &DefaultRegion, cfg.AssembleRegion(true))

	cfg.Assemble.Region = &forecast.Region{LatMin: 0, LatMax: 30, LonMin: 120, LonMax: 140}
	assert.Nil(t, cfg.AssembleRegion(false))
	assert.Equal(t, cfg.Assemble.Region, cfg.AssembleRegion(true))
}

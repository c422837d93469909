// Package config loads the tracker configuration from a YAML document with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"go.ngs.io/cyclone-tracker/internal/adapter/store/forecast"
	"go.ngs.io/cyclone-tracker/internal/domain"
)

// Config holds all tracker settings.
type Config struct {
	InputFile           string    `yaml:"input_file"`
	StartLat            *float64  `yaml:"start_lat"`
	StartLon            *float64  `yaml:"start_lon"`
	TrackingRadiusDeg   float64   `yaml:"tracking_radius_deg"`
	SearchRadiusDeg     float64   `yaml:"search_radius_deg"`
	CorrectionFactor    float64   `yaml:"correction_factor"`
	OutputBaseDir       string    `yaml:"output_base_dir"`
	IntensityThresholds []float64 `yaml:"intensity_thresholds"`
	VerificationSteps   int       `yaml:"verification_steps"`
	DatasetCacheSize    int       `yaml:"dataset_cache_size"`

	Variables VariablesConfig `yaml:"variables"`
	Assemble  AssembleConfig  `yaml:"assemble"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Kafka     KafkaConfig     `yaml:"kafka"`
}

// VariablesConfig overrides the variable names read from combined files.
type VariablesConfig struct {
	Pressure string `yaml:"pressure"`
	WindU    string `yaml:"wind_u"`
	WindV    string `yaml:"wind_v"`
}

// AssembleConfig configures combining per-step files.
type AssembleConfig struct {
	InputDir   string           `yaml:"input_dir"`
	FileType   string           `yaml:"file_type"`
	OutputFile string           `yaml:"output_file"`
	Variables  []string         `yaml:"variables"`
	Region     *forecast.Region `yaml:"region"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr               string `yaml:"addr"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// KafkaConfig configures track point publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// DefaultRegion is the crop box used when assembly cropping is requested
// without an explicit region.
var DefaultRegion = forecast.Region{LatMin: 10, LatMax: 50, LonMin: 90, LonMax: 160}

// Default returns the configuration used when a key is absent.
func Default() *Config {
	cma := domain.CMAScale()
	return &Config{
		TrackingRadiusDeg:   domain.DefaultTrackingRadiusDeg,
		SearchRadiusDeg:     domain.DefaultSearchRadiusDeg,
		CorrectionFactor:    domain.DefaultCorrectionFactor,
		OutputBaseDir:       "./figure_csv",
		IntensityThresholds: cma.Thresholds[:],
		VerificationSteps:   10,
		DatasetCacheSize:    forecast.DefaultCacheSize,
		Assemble: AssembleConfig{
			FileType: forecast.FileTypeSurface,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Kafka: KafkaConfig{
			Topic: "cyclone-track-points",
		},
	}
}

// Load reads the YAML document at path, applying defaults for absent keys
// and then environment overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // G304: path comes from the command line.
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("OUTPUT_BASE_DIR"); v != "" {
		c.OutputBaseDir = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = ParseBrokers(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.CORSAllowedOrigins = v
	}
}

// ParseBrokers splits a comma-separated broker list, dropping blanks.
func ParseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Validate checks the settings shared by every command.
func (c *Config) Validate() error {
	if c.TrackingRadiusDeg <= 0 {
		return errors.New("tracking_radius_deg must be positive")
	}
	if c.SearchRadiusDeg <= 0 {
		return errors.New("search_radius_deg must be positive")
	}
	if c.CorrectionFactor <= 0 {
		return errors.New("correction_factor must be positive")
	}
	if c.OutputBaseDir == "" {
		return errors.New("output_base_dir is required")
	}
	if _, err := domain.NewScale(c.IntensityThresholds); err != nil {
		return fmt.Errorf("intensity_thresholds: %w", err)
	}
	if c.VerificationSteps < 1 {
		return errors.New("verification_steps must be at least 1")
	}
	if c.DatasetCacheSize < 1 {
		return errors.New("dataset_cache_size must be at least 1")
	}
	if c.StartLat != nil && (*c.StartLat < -90 || *c.StartLat > 90) {
		return fmt.Errorf("start_lat %g is out of range", *c.StartLat)
	}
	switch c.Assemble.FileType {
	case forecast.FileTypeSurface, forecast.FileTypeUpper:
	default:
		return fmt.Errorf("assemble.file_type must be %q or %q, got %q",
			forecast.FileTypeSurface, forecast.FileTypeUpper, c.Assemble.FileType)
	}
	if c.Assemble.Region != nil {
		if err := c.Assemble.Region.Validate(); err != nil {
			return fmt.Errorf("assemble.%w", err)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}
	return nil
}

// TrackParams builds the tracking parameters. The seed is required.
func (c *Config) TrackParams() (domain.Params, error) {
	if c.StartLat == nil || c.StartLon == nil {
		return domain.Params{}, errors.New("start_lat and start_lon are required")
	}
	scale, err := domain.NewScale(c.IntensityThresholds)
	if err != nil {
		return domain.Params{}, fmt.Errorf("intensity_thresholds: %w", err)
	}
	return domain.Params{
		Seed:             domain.Position{Lat: *c.StartLat, Lon: *c.StartLon},
		TrackingRadius:   c.TrackingRadiusDeg,
		SearchRadius:     c.SearchRadiusDeg,
		CorrectionFactor: c.CorrectionFactor,
		Scale:            scale,
	}, nil
}

// FileConfig returns the forecast reader naming with overrides applied.
func (c *Config) FileConfig() forecast.FileConfig {
	fc := forecast.DefaultConfig()
	if c.Variables.Pressure != "" {
		fc.PressureVarName = c.Variables.Pressure
	}
	if c.Variables.WindU != "" {
		fc.WindUVarName = c.Variables.WindU
	}
	if c.Variables.WindV != "" {
		fc.WindVVarName = c.Variables.WindV
	}
	return fc
}

// AssembleRegion returns the crop box for assembly: the configured region,
// or DefaultRegion when none is set. It returns nil when crop is false.
func (c *Config) AssembleRegion(crop bool) *forecast.Region {
	if !crop {
		return nil
	}
	if c.Assemble.Region != nil {
		return c.Assemble.Region
	}
	r := DefaultRegion
	return &r
}

// Package main provides the cyclone command line tool: assemble per-step
// model output, inspect NetCDF files, track a storm and render verification
// plots.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/akamensky/argparse"

	"go.ngs.io/cyclone-tracker/internal/adapter/kafka"
	"go.ngs.io/cyclone-tracker/internal/adapter/plot"
	"go.ngs.io/cyclone-tracker/internal/adapter/store/csv"
	"go.ngs.io/cyclone-tracker/internal/adapter/store/forecast"
	"go.ngs.io/cyclone-tracker/internal/config"
	"go.ngs.io/cyclone-tracker/internal/observability"
	"go.ngs.io/cyclone-tracker/internal/usecase"
)

const version = "0.1.0"

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) > 1 && (args[1] == "--version" || args[1] == "version") {
		fmt.Printf("cyclone version %s\n", version)
		return nil
	}

	parser := argparse.NewParser("cyclone", "Tropical cyclone tracker for gridded forecast output")

	assembleCmd := parser.NewCommand("assemble", "Combine per-step NetCDF files into one time series")
	assembleConfig := assembleCmd.String("c", "config", &argparse.Options{Help: "Configuration file"})
	assembleDir := assembleCmd.String("d", "dir", &argparse.Options{Help: "Directory holding output_<type>_<stamp>.nc files"})
	assembleType := assembleCmd.Selector("t", "type", []string{forecast.FileTypeSurface, forecast.FileTypeUpper},
		&argparse.Options{Help: "File type to combine"})
	assembleOutput := assembleCmd.String("o", "output", &argparse.Options{Help: "Combined output file"})
	assembleCrop := assembleCmd.Flag("", "crop", &argparse.Options{Help: "Crop to assemble.region, or 10-50N 90-160E when none is configured"})

	inspectCmd := parser.NewCommand("inspect", "Report the structure of a NetCDF file")
	inspectConfig := inspectCmd.String("c", "config", &argparse.Options{Help: "Configuration file"})
	inspectFile := inspectCmd.StringPositional(&argparse.Options{Help: "NetCDF file to inspect"})

	trackCmd := parser.NewCommand("track", "Track a storm from a seed position")
	trackConfig := trackCmd.String("c", "config", &argparse.Options{Help: "Configuration file"})
	trackLat := trackCmd.String("", "lat", &argparse.Options{Help: "Seed latitude (overrides start_lat)"})
	trackLon := trackCmd.String("", "lon", &argparse.Options{Help: "Seed longitude (overrides start_lon)"})
	trackInput := trackCmd.String("i", "input", &argparse.Options{Help: "Combined NetCDF file (overrides input_file)"})
	trackOutput := trackCmd.String("", "output-dir", &argparse.Options{Help: "Output base directory (overrides output_base_dir)"})

	verifyCmd := parser.NewCommand("verify", "Render pressure plots around saved track centers")
	verifyConfig := verifyCmd.String("c", "config", &argparse.Options{Help: "Configuration file"})
	verifySteps := verifyCmd.Int("", "steps", &argparse.Options{Help: "Number of evenly spaced steps to plot"})

	if err := parser.Parse(args); err != nil {
		fmt.Print(parser.Usage(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case assembleCmd.Happened():
		cfg, err := config.Load(*assembleConfig)
		if err != nil {
			return err
		}
		if *assembleDir != "" {
			cfg.Assemble.InputDir = *assembleDir
		}
		if *assembleType != "" {
			cfg.Assemble.FileType = *assembleType
		}
		if *assembleOutput != "" {
			cfg.Assemble.OutputFile = *assembleOutput
		}
		return runAssemble(ctx, cfg, *assembleCrop)
	case inspectCmd.Happened():
		cfg, err := config.Load(*inspectConfig)
		if err != nil {
			return err
		}
		return runInspect(cfg, *inspectFile)
	case trackCmd.Happened():
		cfg, err := config.Load(*trackConfig)
		if err != nil {
			return err
		}
		if err := applyTrackOverrides(cfg, *trackLat, *trackLon, *trackInput, *trackOutput); err != nil {
			return err
		}
		return runTrack(ctx, cfg)
	case verifyCmd.Happened():
		cfg, err := config.Load(*verifyConfig)
		if err != nil {
			return err
		}
		return runVerify(ctx, cfg, *verifySteps)
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
}

func applyTrackOverrides(cfg *config.Config, lat, lon, input, outputDir string) error {
	if lat != "" {
		v, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return fmt.Errorf("invalid --lat %q: %w", lat, err)
		}
		cfg.StartLat = &v
	}
	if lon != "" {
		v, err := strconv.ParseFloat(lon, 64)
		if err != nil {
			return fmt.Errorf("invalid --lon %q: %w", lon, err)
		}
		cfg.StartLon = &v
	}
	if input != "" {
		cfg.InputFile = input
	}
	if outputDir != "" {
		cfg.OutputBaseDir = outputDir
	}
	return nil
}

func runAssemble(ctx context.Context, cfg *config.Config, crop bool) error {
	logger := newLogger(cfg)
	uc := usecase.NewAssembleUseCase(logger, observability.NewMetrics())

	resp, err := uc.Execute(ctx, usecase.AssembleRequest{
		InputDir:   cfg.Assemble.InputDir,
		FileType:   cfg.Assemble.FileType,
		OutputFile: cfg.Assemble.OutputFile,
		Variables:  cfg.Assemble.Variables,
		Region:     cfg.AssembleRegion(crop),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Combined %d steps into %s\n", resp.Steps, resp.OutputFile)
	fmt.Printf("  Time range: %s to %s\n", resp.Start.Format(csv.TimeLayout), resp.End.Format(csv.TimeLayout))
	fmt.Printf("  Grid: %d x %d (lat x lon)\n", resp.LatCount, resp.LonCount)
	fmt.Printf("  Variables: %s\n", strings.Join(resp.Variables, ", "))
	if len(resp.Skipped) > 0 {
		fmt.Printf("  Skipped %d files\n", len(resp.Skipped))
	}
	return nil
}

func runInspect(cfg *config.Config, path string) error {
	if path == "" {
		return errors.New("a file to inspect is required")
	}
	desc, err := forecast.Describe(path, cfg.FileConfig())
	if err != nil {
		return err
	}

	fmt.Printf("File: %s\n", desc.Path)
	for _, axis := range []*forecast.AxisSummary{desc.Latitude, desc.Longitude, desc.Level} {
		if axis == nil {
			continue
		}
		order := "ascending"
		if axis.Descending {
			order = "descending"
		}
		fmt.Printf("  %-10s %5d  %g .. %g (%s)\n", axis.Name, axis.Len, axis.Min, axis.Max, order)
	}
	if n := len(desc.Times); n > 0 {
		fmt.Printf("  time       %5d  %s .. %s\n", n,
			desc.Times[0].Format(csv.TimeLayout), desc.Times[n-1].Format(csv.TimeLayout))
	}
	fmt.Println("Variables:")
	for _, v := range desc.Variables {
		if !v.Found {
			fmt.Printf("  %-9s missing\n", v.Role)
			continue
		}
		fmt.Printf("  %-9s %s %v %v %s\n", v.Role, v.Name, v.Dims, v.Shape, v.Units)
	}
	if desc.TrackerReady() {
		fmt.Println("Ready for tracking.")
	} else {
		fmt.Println("Not ready for tracking: required coordinates or variables are missing.")
	}
	return nil
}

func runTrack(ctx context.Context, cfg *config.Config) error {
	params, err := cfg.TrackParams()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	metrics := observability.NewMetrics()

	uc := usecase.NewTrackUseCase(
		forecast.NewStore(cfg.FileConfig(), cfg.DatasetCacheSize),
		csv.NewTrackStore(cfg.OutputBaseDir),
		plot.NewRenderer(),
		params,
		logger,
		metrics,
	)
	if len(cfg.Kafka.Brokers) > 0 {
		writer := kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		uc.SetPublisher(writer)
		logger.Info("publishing track points", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	resp, err := uc.Execute(ctx, usecase.TrackRequest{
		InputFile: cfg.InputFile,
		Lat:       cfg.StartLat,
		Lon:       cfg.StartLon,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Tracked %d steps for run %s\n", len(resp.Points), resp.Run)
	if resp.Halted {
		fmt.Printf("  Tracking stopped at %s: no valid data in the search window\n", resp.HaltTime)
	}
	for _, p := range resp.Points {
		fmt.Printf("  %s  %7.2f %8.2f  %9.1f Pa  %5.1f m/s  %s\n",
			p.Time.Format(csv.TimeLayout), p.Lat, p.Lon, p.MinPressure, p.MaxWind, p.Category)
	}
	fmt.Printf("Track CSV: %s\n", resp.CSVPath)
	if resp.PlotPath != "" {
		fmt.Printf("Track plot: %s\n", resp.PlotPath)
	}
	return nil
}

func runVerify(ctx context.Context, cfg *config.Config, steps int) error {
	logger := newLogger(cfg)
	uc := usecase.NewVerifyUseCase(
		forecast.NewStore(cfg.FileConfig(), cfg.DatasetCacheSize),
		csv.NewTrackStore(cfg.OutputBaseDir),
		plot.NewRenderer(),
		cfg.VerificationSteps,
		cfg.TrackingRadiusDeg,
		logger,
		observability.NewMetrics(),
	)

	resp, err := uc.Execute(ctx, usecase.VerifyRequest{InputFile: cfg.InputFile, Steps: steps})
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %d verification plots for run %s\n", len(resp.Files), resp.Run)
	for _, f := range resp.Files {
		fmt.Printf("  %s\n", f)
	}
	return nil
}

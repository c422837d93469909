// Package main provides the cyclone tracker HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.ngs.io/cyclone-tracker/internal/adapter/kafka"
	"go.ngs.io/cyclone-tracker/internal/adapter/plot"
	"go.ngs.io/cyclone-tracker/internal/adapter/store/csv"
	"go.ngs.io/cyclone-tracker/internal/adapter/store/forecast"
	"go.ngs.io/cyclone-tracker/internal/config"
	"go.ngs.io/cyclone-tracker/internal/domain"
	httpHandler "go.ngs.io/cyclone-tracker/internal/http"
	"go.ngs.io/cyclone-tracker/internal/observability"
	"go.ngs.io/cyclone-tracker/internal/usecase"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Parse command-line flags.
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("cyclone-server version %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	metrics := observability.NewMetrics()

	scale, err := domain.NewScale(cfg.IntensityThresholds)
	if err != nil {
		logger.Error("invalid intensity thresholds", "error", err)
		os.Exit(1)
	}
	defaults := domain.Params{
		TrackingRadius:   cfg.TrackingRadiusDeg,
		SearchRadius:     cfg.SearchRadiusDeg,
		CorrectionFactor: cfg.CorrectionFactor,
		Scale:            scale,
	}

	// Initialize stores.
	loader := forecast.NewStore(cfg.FileConfig(), cfg.DatasetCacheSize)
	tracks := csv.NewTrackStore(cfg.OutputBaseDir)

	trackUC := usecase.NewTrackUseCase(loader, tracks, plot.NewRenderer(), defaults, logger, metrics)

	// Track point publishing is optional.
	var writer *kafka.Writer
	if len(cfg.Kafka.Brokers) > 0 {
		writer = kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		trackUC.SetPublisher(writer)
		logger.Info("kafka publishing enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	router := httpHandler.SetupRouter(trackUC, metrics, cfg.Server.CORSAllowedOrigins)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr, "output_base_dir", cfg.OutputBaseDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("Cyclone Tracker Server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  cyclone-server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -config PATH   YAML configuration file (optional)")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  HTTP_ADDR               Listen address (default: :8080)")
	fmt.Println("  OUTPUT_BASE_DIR         Track output directory (default: ./figure_csv)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println("  LOG_LEVEL               debug, info, warn or error (default: info)")
	fmt.Println("  LOG_FORMAT              text or json (default: text)")
	fmt.Println("  KAFKA_BROKERS           Comma-separated brokers; enables track publishing")
	fmt.Println("  KAFKA_TOPIC             Topic for track points (default: cyclone-track-points)")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET  /health                Health check")
	fmt.Println("  GET  /metrics               Prometheus metrics")
	fmt.Println("  GET  /v1/categories         Intensity scale")
	fmt.Println("  GET  /v1/tracks             List tracked runs")
	fmt.Println("  POST /v1/tracks             Track a storm")
	fmt.Println("  GET  /v1/tracks/:run        Track points of a run")
	fmt.Println("  GET  /v1/tracks/:run/plot   Track plot of a run")
	fmt.Println()
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"go.ngs.io/cyclone-tracker/internal/adapter/store"
	"go.ngs.io/cyclone-tracker/internal/adapter/store/csv"
	"go.ngs.io/cyclone-tracker/internal/domain"
	"go.ngs.io/cyclone-tracker/internal/observability"
)

// ErrInvalidRequest marks request validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// TrackPublisher streams finished tracks to downstream consumers.
type TrackPublisher interface {
	PublishTrack(ctx context.Context, run string, generatedAt time.Time, points []domain.TrackPoint) error
}

// TrackPlotter renders the track plot to a file.
type TrackPlotter interface {
	SaveTrack(path string, points []domain.TrackPoint) error
}

// TrackRequest encapsulates a tracking run.
type TrackRequest struct {
	InputFile string
	Run       string // Derived from InputFile when empty.

	// Seed position.
	Lat *float64
	Lon *float64

	// Optional overrides; zero means the configured default.
	TrackingRadius   float64
	SearchRadius     float64
	CorrectionFactor float64
}

// TrackResponse contains the tracking results.
type TrackResponse struct {
	Run         string              `json:"run"`
	Source      string              `json:"source"`
	GeneratedAt string              `json:"generated_at"`
	Halted      bool                `json:"halted"`
	HaltTime    string              `json:"halt_time,omitempty"`
	Points      []domain.TrackPoint `json:"points"`
	CSVPath     string              `json:"csv_path"`
	PlotPath    string              `json:"plot_path,omitempty"`
	Meta        map[string]string   `json:"meta"`
}

// Validate checks if the request is valid.
func (r *TrackRequest) Validate() error {
	if r.InputFile == "" {
		return fmt.Errorf("input_file must be provided")
	}
	if r.Lat == nil || r.Lon == nil {
		return fmt.Errorf("start_lat and start_lon must be provided")
	}
	if *r.Lat < -90 || *r.Lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90")
	}
	if *r.Lon < -180 || *r.Lon > 360 {
		return fmt.Errorf("longitude must be between -180 and 360")
	}
	if r.TrackingRadius < 0 || r.SearchRadius < 0 || r.CorrectionFactor < 0 {
		return fmt.Errorf("radii and correction factor must not be negative")
	}
	if r.Run != "" {
		if err := csv.ValidateRunName(r.Run); err != nil {
			return err
		}
	}
	return nil
}

// TrackUseCase orchestrates tracking: load, track, estimate, persist, plot
// and publish.
type TrackUseCase struct {
	loader    store.DatasetLoader
	tracks    store.TrackStore
	plotter   TrackPlotter
	publisher TrackPublisher
	defaults  domain.Params
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewTrackUseCase creates a new tracking use case. defaults supplies the
// radii, correction factor and scale used when a request leaves them unset.
func NewTrackUseCase(
	loader store.DatasetLoader,
	tracks store.TrackStore,
	plotter TrackPlotter,
	defaults domain.Params,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *TrackUseCase {
	return &TrackUseCase{
		loader:   loader,
		tracks:   tracks,
		plotter:  plotter,
		defaults: defaults,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		metrics:  metrics,
	}
}

// SetPublisher enables publishing finished tracks. Pass nil to disable.
func (uc *TrackUseCase) SetPublisher(p TrackPublisher) {
	uc.publisher = p
}

// SetClock swaps the time source for generated_at. Pass nil to reset.
func (uc *TrackUseCase) SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	uc.clock = c
}

// Scale returns the intensity scale used for classification.
func (uc *TrackUseCase) Scale() domain.Scale {
	return uc.defaults.Scale
}

func (uc *TrackUseCase) params(req TrackRequest) domain.Params {
	p := uc.defaults
	p.Seed = domain.Position{Lat: *req.Lat, Lon: *req.Lon}
	if req.TrackingRadius > 0 {
		p.TrackingRadius = req.TrackingRadius
	}
	if req.SearchRadius > 0 {
		p.SearchRadius = req.SearchRadius
	}
	if req.CorrectionFactor > 0 {
		p.CorrectionFactor = req.CorrectionFactor
	}
	return p
}

// Execute performs a tracking run.
func (uc *TrackUseCase) Execute(ctx context.Context, req TrackRequest) (*TrackResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	start := uc.clock.Now()
	resp, err := uc.execute(ctx, req)
	uc.metrics.TrackDuration.Observe(uc.clock.Since(start).Seconds())
	if err != nil {
		uc.metrics.TrackRuns.WithLabelValues(observability.OutcomeError).Inc()
		return nil, err
	}

	outcome := observability.OutcomeComplete
	if resp.Halted {
		outcome = observability.OutcomeHalted
	}
	uc.metrics.TrackRuns.WithLabelValues(outcome).Inc()
	uc.metrics.TrackSteps.Add(float64(len(resp.Points)))
	return resp, nil
}

func (uc *TrackUseCase) execute(ctx context.Context, req TrackRequest) (*TrackResponse, error) {
	run := req.Run
	if run == "" {
		run = csv.RunName(req.InputFile)
	}
	params := uc.params(req)
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	ds, err := uc.loader.LoadDataset(ctx, req.InputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	result, err := domain.TrackStorm(ds, params)
	if err != nil {
		return nil, fmt.Errorf("failed to track storm in %s: %w", ds.Source, err)
	}
	if result.Halted {
		uc.logger.Warn("tracking halted: search window is empty",
			"run", run,
			"step", result.HaltStep,
			"time", result.HaltTime,
			"points", len(result.Points),
		)
	}

	scaleName := "CMA"
	if params.Scale != domain.CMAScale() {
		scaleName = "custom"
	}

	generatedAt := uc.clock.Now().UTC()
	resp := &TrackResponse{
		Run:         run,
		Source:      ds.Source,
		GeneratedAt: generatedAt.Format(time.RFC3339),
		Halted:      result.Halted,
		Points:      result.Points,
		Meta: map[string]string{
			"scale":             scaleName,
			"tracking_radius":   fmt.Sprintf("%g", params.TrackingRadius),
			"search_radius":     fmt.Sprintf("%g", params.SearchRadius),
			"correction_factor": fmt.Sprintf("%g", params.CorrectionFactor),
		},
	}
	if result.Halted {
		resp.HaltTime = result.HaltTime.UTC().Format(time.RFC3339)
	}

	resp.CSVPath, err = uc.tracks.Save(run, result.Points)
	if err != nil {
		return nil, fmt.Errorf("failed to save track: %w", err)
	}
	uc.logger.Info("track saved", "run", run, "points", len(result.Points), "path", resp.CSVPath)

	if uc.plotter != nil && len(result.Points) > 0 {
		path := uc.tracks.PlotPath(run)
		if err := uc.plotter.SaveTrack(path, result.Points); err != nil {
			return nil, fmt.Errorf("failed to plot track: %w", err)
		}
		uc.metrics.PlotsRendered.WithLabelValues("track").Inc()
		resp.PlotPath = path
	}

	if uc.publisher != nil {
		if err := uc.publisher.PublishTrack(ctx, run, generatedAt, result.Points); err != nil {
			// The track is already on disk; publishing is best effort.
			uc.metrics.PublishFailures.Inc()
			uc.logger.Error("failed to publish track", "run", run, "error", err)
		} else {
			uc.metrics.PublishedPoints.Add(float64(len(result.Points)))
		}
	}

	return resp, nil
}

// Load returns a saved track.
func (uc *TrackUseCase) Load(run string) ([]domain.TrackPoint, error) {
	return uc.tracks.Load(run)
}

// ListRuns returns the runs with a saved track.
func (uc *TrackUseCase) ListRuns() ([]string, error) {
	return uc.tracks.ListRuns()
}

// PlotPath returns the track plot path of a run.
func (uc *TrackUseCase) PlotPath(run string) (string, error) {
	if err := csv.ValidateRunName(run); err != nil {
		return "", err
	}
	return uc.tracks.PlotPath(run), nil
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"go.ngs.io/cyclone-tracker/internal/adapter/store"
	"go.ngs.io/cyclone-tracker/internal/adapter/store/csv"
	"go.ngs.io/cyclone-tracker/internal/domain"
	"go.ngs.io/cyclone-tracker/internal/observability"
)

// VerifyPlotter renders one verification plot into dir.
type VerifyPlotter interface {
	SaveVerify(dir string, pressure *domain.Field, step int, center domain.Position, radius float64) (string, error)
}

// VerifyRequest selects the run to verify.
type VerifyRequest struct {
	InputFile string
	Run       string  // Derived from InputFile when empty.
	Steps     int     // Number of plots; zero means the configured default.
	Radius    float64 // Window half-width; zero means the tracking radius.
}

// VerifyResponse lists the written plots.
type VerifyResponse struct {
	Run   string   `json:"run"`
	Steps []int    `json:"steps"`
	Files []string `json:"files"`
}

// VerifyUseCase draws the pressure field around saved track centers.
type VerifyUseCase struct {
	loader       store.DatasetLoader
	tracks       store.TrackStore
	plotter      VerifyPlotter
	defaultSteps int
	radius       float64
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewVerifyUseCase creates a new verification use case.
func NewVerifyUseCase(
	loader store.DatasetLoader,
	tracks store.TrackStore,
	plotter VerifyPlotter,
	defaultSteps int,
	radius float64,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *VerifyUseCase {
	return &VerifyUseCase{
		loader:       loader,
		tracks:       tracks,
		plotter:      plotter,
		defaultSteps: defaultSteps,
		radius:       radius,
		logger:       logger,
		metrics:      metrics,
	}
}

// EvenlySpacedSteps picks up to k indices spread over [0, n-1], truncating
// like an integer linspace and dropping duplicates. All indices are
// returned when n <= k.
func EvenlySpacedSteps(n, k int) []int {
	if n <= 0 || k <= 0 {
		return nil
	}
	if n <= k {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if k == 1 {
		return []int{0}
	}
	out := make([]int, 0, k)
	for i := 0; i < k; i++ {
		idx := int(float64(i) * float64(n-1) / float64(k-1))
		if len(out) > 0 && out[len(out)-1] == idx {
			continue
		}
		out = append(out, idx)
	}
	return out
}

// Execute renders verification plots for the saved track of a run.
func (uc *VerifyUseCase) Execute(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	if req.InputFile == "" {
		return nil, fmt.Errorf("%w: input file must be provided", ErrInvalidRequest)
	}
	if req.Steps < 0 || req.Radius < 0 {
		return nil, fmt.Errorf("%w: steps and radius must not be negative", ErrInvalidRequest)
	}
	run := req.Run
	if run == "" {
		run = csv.RunName(req.InputFile)
	}
	steps := req.Steps
	if steps == 0 {
		steps = uc.defaultSteps
	}
	radius := req.Radius
	if radius == 0 {
		radius = uc.radius
	}

	points, err := uc.tracks.Load(run)
	if err != nil {
		return nil, fmt.Errorf("failed to load track (run the tracker first): %w", err)
	}
	ds, err := uc.loader.LoadDataset(ctx, req.InputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	if len(points) > ds.Pressure.NumSteps() {
		return nil, fmt.Errorf("track of run %s has %d points but %s has %d steps",
			run, len(points), req.InputFile, ds.Pressure.NumSteps())
	}

	resp := &VerifyResponse{Run: run, Steps: EvenlySpacedSteps(len(points), steps)}
	dir := uc.tracks.VerifyDir(run)
	for _, step := range resp.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, err := uc.plotter.SaveVerify(dir, ds.Pressure, step, points[step].Position(), radius)
		if err != nil {
			return nil, fmt.Errorf("failed to plot step %d: %w", step, err)
		}
		uc.metrics.PlotsRendered.WithLabelValues("verify").Inc()
		uc.logger.Debug("verification plot written", "step", step, "file", path)
		resp.Files = append(resp.Files, path)
	}

	uc.logger.Info("verification plots written", "run", run, "count", len(resp.Files), "dir", dir)
	return resp, nil
}

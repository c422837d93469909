package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.ngs.io/cyclone-tracker/internal/adapter/store/forecast"
	"go.ngs.io/cyclone-tracker/internal/observability"
)

// AssembleRequest describes a directory of per-step files to combine.
type AssembleRequest struct {
	InputDir   string
	FileType   string
	OutputFile string           // Defaults to combined_<type>_timeseries.nc in InputDir.
	Variables  []string         // Defaults by file type.
	Region     *forecast.Region // Optional crop.
}

// AssembleResponse summarizes the combined file.
type AssembleResponse struct {
	OutputFile string    `json:"output_file"`
	Steps      int       `json:"steps"`
	Skipped    []string  `json:"skipped,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Variables  []string  `json:"variables"`
	LatCount   int       `json:"lat_count"`
	LonCount   int       `json:"lon_count"`
}

// Validate checks if the request is valid.
func (r *AssembleRequest) Validate() error {
	if r.InputDir == "" {
		return fmt.Errorf("input directory must be provided")
	}
	switch r.FileType {
	case forecast.FileTypeSurface, forecast.FileTypeUpper:
	default:
		return fmt.Errorf("file type must be %q or %q", forecast.FileTypeSurface, forecast.FileTypeUpper)
	}
	if r.Region != nil {
		return r.Region.Validate()
	}
	return nil
}

// AssembleUseCase combines per-step model output into one time series.
type AssembleUseCase struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAssembleUseCase creates a new assembly use case.
func NewAssembleUseCase(logger *slog.Logger, metrics *observability.Metrics) *AssembleUseCase {
	return &AssembleUseCase{logger: logger, metrics: metrics}
}

// Execute lists, reads and combines the step files of req.InputDir. Files
// whose names carry no parseable time are skipped with a warning.
func (uc *AssembleUseCase) Execute(ctx context.Context, req AssembleRequest) (*AssembleResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	files, skipped, err := forecast.ListStepFiles(req.InputDir, req.FileType)
	if err != nil {
		return nil, err
	}
	for _, path := range skipped {
		uc.logger.Warn("could not parse time from file name, skipping", "file", filepath.Base(path))
	}
	uc.metrics.AssembleFiles.WithLabelValues("skipped").Add(float64(len(skipped)))
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s for type %s", forecast.ErrNoValidFiles, req.InputDir, req.FileType)
	}

	names := req.Variables
	if len(names) == 0 {
		names = forecast.DefaultVariables(req.FileType)
	}

	times := make([]time.Time, len(files))
	steps := make([]*forecast.Step, len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step, err := forecast.ReadStep(f.Path, names)
		if err != nil {
			return nil, fmt.Errorf("failed to read step file: %w", err)
		}
		times[i] = f.Time
		steps[i] = step
		uc.logger.Debug("read step file", "file", filepath.Base(f.Path), "time", f.Time)
	}

	out := req.OutputFile
	if out == "" {
		out = filepath.Join(req.InputDir, forecast.CombinedFileName(req.FileType))
	}

	combined, err := forecast.WriteCombined(out, times, steps, req.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to write combined file: %w", err)
	}
	uc.metrics.AssembleFiles.WithLabelValues("combined").Add(float64(combined.Steps))

	uc.logger.Info("combined time series written",
		"file", out,
		"steps", combined.Steps,
		"skipped", len(skipped),
		"lat", combined.Lat.Len(),
		"lon", combined.Lon.Len(),
	)

	return &AssembleResponse{
		OutputFile: out,
		Steps:      combined.Steps,
		Skipped:    skipped,
		Start:      times[0],
		End:        times[len(times)-1],
		Variables:  combined.Vars,
		LatCount:   combined.Lat.Len(),
		LonCount:   combined.Lon.Len(),
	}, nil
}

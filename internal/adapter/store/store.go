package store

import (
	"context"

	"go.ngs.io/cyclone-tracker/internal/domain"
)

// DatasetLoader is the interface for loading forecast fields.
type DatasetLoader interface {
	// LoadDataset loads pressure and 10 m wind from a combined time-series file.
	LoadDataset(ctx context.Context, path string) (*domain.Dataset, error)
}

// TrackStore is the interface for persisting intensity tracks per run.
type TrackStore interface {
	// Save writes the track of a run and returns the written path.
	Save(run string, points []domain.TrackPoint) (string, error)

	// Load reads a previously saved track.
	Load(run string) ([]domain.TrackPoint, error)

	// ListRuns returns the runs that have a saved track.
	ListRuns() ([]string, error)

	// RunDir returns the output directory of a run.
	RunDir(run string) string

	// PlotPath returns where the track plot of a run is written.
	PlotPath(run string) string

	// VerifyDir returns where the verification plots of a run are written.
	VerifyDir(run string) string
}

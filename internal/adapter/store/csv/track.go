// Package csv provides CSV-based intensity track storage.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.ngs.io/cyclone-tracker/internal/domain"
)

// TimeLayout is the time format of the time column.
const TimeLayout = "2006-01-02 15:04:05"

// Header is the column layout of a track file.
var Header = []string{
	"time",
	"latitude",
	"longitude",
	"min_pressure_pa",
	"max_wind_speed_ms",
	"intensity_category",
	"intensity_color",
}

// ErrInvalidRunName is returned for run names that could escape the output directory.
var ErrInvalidRunName = errors.New("invalid run name")

// RunName derives the run name from an input file: its parent directory name.
func RunName(inputFile string) string {
	dir := filepath.Base(filepath.Dir(filepath.Clean(inputFile)))
	if dir == "." || dir == string(filepath.Separator) || dir == "" {
		return "default"
	}
	return dir
}

// ValidateRunName rejects names that are empty or contain path elements.
func ValidateRunName(run string) error {
	if run == "" || run == "." || run == ".." || strings.ContainsAny(run, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidRunName, run)
	}
	return nil
}

// TrackStore stores intensity tracks under <baseDir>/<run>/.
type TrackStore struct {
	baseDir string
}

// NewTrackStore creates a new CSV-based track store.
func NewTrackStore(baseDir string) *TrackStore {
	return &TrackStore{
		baseDir: baseDir,
	}
}

// BaseDir returns the root output directory.
func (s *TrackStore) BaseDir() string {
	return s.baseDir
}

// RunDir returns the output directory of a run.
func (s *TrackStore) RunDir(run string) string {
	return filepath.Join(s.baseDir, run)
}

// TrackPath returns the CSV path of a run.
func (s *TrackStore) TrackPath(run string) string {
	return filepath.Join(s.RunDir(run), run+"_intensity.csv")
}

// PlotPath returns the track plot path of a run.
func (s *TrackStore) PlotPath(run string) string {
	return filepath.Join(s.RunDir(run), run+"_intensity_track.png")
}

// VerifyDir returns the verification plot directory of a run.
func (s *TrackStore) VerifyDir(run string) string {
	return filepath.Join(s.RunDir(run), "verification_plots")
}

// Save writes the track of a run, creating the run directory.
func (s *TrackStore) Save(run string, points []domain.TrackPoint) (string, error) {
	if err := ValidateRunName(run); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.RunDir(run), 0o755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	path := s.TrackPath(run)
	//nolint:gosec // G304: path built from baseDir (config) and a validated run name.
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteTrack(file, points); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}

// Load reads the track of a run.
func (s *TrackStore) Load(run string) ([]domain.TrackPoint, error) {
	if err := ValidateRunName(run); err != nil {
		return nil, err
	}

	path := s.TrackPath(run)
	//nolint:gosec // G304: path built from baseDir (config) and a validated run name.
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open track for run %s: %w", run, err)
	}
	defer func() { _ = file.Close() }()

	points, err := ReadTrack(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return points, nil
}

// ListRuns returns the runs with a track file, sorted by name.
func (s *TrackStore) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	runs := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		run := entry.Name()
		if _, err := os.Stat(s.TrackPath(run)); err == nil {
			runs = append(runs, run)
		}
	}
	sort.Strings(runs)
	return runs, nil
}

// WriteTrack writes points as CSV with a header row.
func WriteTrack(w io.Writer, points []domain.TrackPoint) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			p.Time.UTC().Format(TimeLayout),
			formatFloat(p.Lat),
			formatFloat(p.Lon),
			formatFloat(p.MinPressure),
			formatFloat(p.MaxWind),
			p.Category.Label(),
			p.Category.ColorName(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadTrack parses a track written by WriteTrack.
func ReadTrack(r io.Reader) ([]domain.TrackPoint, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	// Read header.
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	// Validate header.
	if len(header) != len(Header) {
		return nil, fmt.Errorf("invalid CSV header: expected %v, got %v", Header, header)
	}
	for i, h := range header {
		if h != Header[i] {
			return nil, fmt.Errorf("invalid CSV header: expected column %d to be %s, got %s", i, Header[i], h)
		}
	}

	// Read data rows.
	points := make([]domain.TrackPoint, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		p, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		points = append(points, p)
	}

	return points, nil
}

func parseRecord(record []string) (domain.TrackPoint, error) {
	var p domain.TrackPoint

	ts, err := parseTime(strings.TrimSpace(record[0]))
	if err != nil {
		return p, err
	}
	p.Time = ts

	floats := []struct {
		name string
		dst  *float64
	}{
		{"latitude", &p.Lat},
		{"longitude", &p.Lon},
		{"min_pressure_pa", &p.MinPressure},
		{"max_wind_speed_ms", &p.MaxWind},
	}
	for i, f := range floats {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
		if err != nil {
			return p, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = v
	}

	category, err := domain.ParseCategory(strings.TrimSpace(record[5]))
	if err != nil {
		return p, err
	}
	p.Category = category
	return p, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(TimeLayout, s, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", s)
	}
	return t.UTC(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Package storage defines the run store interface shared by the SQLite and
// TimescaleDB backends, and the run model they persist.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/chrissnell/containergeometry/internal/geometry"
)

// ErrRunNotFound is returned when no run has the requested ID
var ErrRunNotFound = errors.New("run not found")

// DefaultListLimit bounds ListRuns when the caller passes a non-positive limit
const DefaultListLimit = 50

// RunStore persists analysis runs
type RunStore interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	// ListRuns returns run summaries, most recent first
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	DeleteRun(ctx context.Context, id uuid.UUID) error
	Ping(ctx context.Context) error
	Close() error
}

// Run is one stored analysis: its input, the settings used and the result
type Run struct {
	ID           uuid.UUID              `json:"id"`
	Name         string                 `json:"name"`
	CreatedAt    time.Time              `json:"created_at"`
	Params       geometry.Params        `json:"params"`
	Measurements []geometry.Measurement `json:"measurements"`
	Result       *geometry.Result       `json:"result"`
}

// RunSummary is the listing view of a run
type RunSummary struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	DataPoints     int       `json:"data_points"`
	SegmentCount   int       `json:"segment_count"`
	Strategy       string    `json:"strategy"`
	VolumeErrorPct float64   `json:"volume_error_pct"`
	VolumeValid    bool      `json:"volume_valid"`
}

// NewRun assigns a fresh ID and creation time to an analysis result
func NewRun(name string, params geometry.Params, ms []geometry.Measurement, res *geometry.Result) *Run {
	return &Run{
		ID:           uuid.New(),
		Name:         name,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
		Params:       params,
		Measurements: ms,
		Result:       res,
	}
}

// Summary returns the listing view of r
func (r *Run) Summary() RunSummary {
	s := RunSummary{
		ID:         r.ID,
		Name:       r.Name,
		CreatedAt:  r.CreatedAt,
		DataPoints: len(r.Measurements),
	}
	if r.Result != nil {
		s.SegmentCount = len(r.Result.Segments)
		s.Strategy = r.Result.Strategy.String()
		s.VolumeErrorPct = r.Result.Volume.ErrorPct
		s.VolumeValid = r.Result.Volume.Valid
	}
	return s
}

// ListLimit normalizes a caller-supplied limit
func ListLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

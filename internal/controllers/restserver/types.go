package restserver

import (
	"time"

	"github.com/google/uuid"

	"github.com/chrissnell/containergeometry/internal/geometry"
	"github.com/chrissnell/containergeometry/internal/storage"
)

// AnalysisResponse is returned by POST /analyze and GET /runs/{id}
type AnalysisResponse struct {
	ID         *uuid.UUID                      `json:"id,omitempty"`
	Name       string                          `json:"name"`
	CreatedAt  time.Time                       `json:"created_at"`
	Stored     bool                            `json:"stored"`
	Strategy   geometry.Strategy               `json:"strategy"`
	Prediction geometry.SegmentCountPrediction `json:"prediction"`
	Boundaries []int                           `json:"boundaries"`
	Segments   []geometry.Segment              `json:"segments"`
	Volume     geometry.VolumeCheck            `json:"volume"`
	Warnings   []string                        `json:"warnings,omitempty"`
	Stats      geometry.Stats                  `json:"stats"`
	Params     *geometry.Params                `json:"params,omitempty"`
}

// ProfileResponse is returned by GET /runs/{id}/profile
type ProfileResponse struct {
	ID      uuid.UUID `json:"id"`
	Heights []float64 `json:"heights"`
	Radii   []float64 `json:"radii"`
	Volume  []float64 `json:"volume"`
}

// RunListResponse is returned by GET /runs
type RunListResponse struct {
	Runs []storage.RunSummary `json:"runs"`
}

// HealthResponse is returned by GET /healthz
type HealthResponse struct {
	Status  string                    `json:"status"`
	Storage map[string]storage.Health `json:"storage,omitempty"`
}

func newAnalysisResponse(run *storage.Run, stored, withParams bool) AnalysisResponse {
	resp := AnalysisResponse{
		Name:      run.Name,
		CreatedAt: run.CreatedAt,
		Stored:    stored,
	}
	if stored {
		id := run.ID
		resp.ID = &id
	}
	if withParams {
		p := run.Params
		resp.Params = &p
	}
	if res := run.Result; res != nil {
		resp.Strategy = res.Strategy
		resp.Prediction = res.Prediction
		resp.Boundaries = res.Boundaries
		resp.Segments = res.Segments
		resp.Volume = res.Volume
		resp.Warnings = res.Warnings
		resp.Stats = res.Stats
	}
	return resp
}

package database

import (
	"time"

	"github.com/google/uuid"
)

// RunRecord is one stored analysis run. Payload holds the msgpack-encoded
// parameters, measurements and result; the other columns exist for listing.
type RunRecord struct {
	ID             uuid.UUID       `gorm:"primaryKey;type:uuid;column:id"`
	Name           string          `gorm:"column:name;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;not null;index"`
	DataPoints     int             `gorm:"column:data_points;not null"`
	SegmentCount   int             `gorm:"column:segment_count;not null"`
	Strategy       string          `gorm:"column:strategy;not null"`
	VolumeErrorPct float64         `gorm:"column:volume_error_pct"`
	VolumeValid    bool            `gorm:"column:volume_valid"`
	Payload        []byte          `gorm:"column:payload;not null"`
	Segments       []SegmentRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for RunRecord
func (RunRecord) TableName() string {
	return "analysis_runs"
}

// SegmentRecord is one fitted segment of a run, kept queryable by shape
type SegmentRecord struct {
	RunID        uuid.UUID `gorm:"primaryKey;type:uuid;column:run_id"`
	Position     int       `gorm:"primaryKey;column:position"`
	Shape        string    `gorm:"column:shape;not null;index"`
	StartHeight  float64   `gorm:"column:start_height"`
	EndHeight    float64   `gorm:"column:end_height"`
	R1           float64   `gorm:"column:r1"`
	R2           float64   `gorm:"column:r2"`
	H            float64   `gorm:"column:h"`
	ErrorPct     float64   `gorm:"column:error_pct"`
	FallbackUsed bool      `gorm:"column:fallback_used"`
}

// TableName specifies the table name for SegmentRecord
func (SegmentRecord) TableName() string {
	return "analysis_segments"
}

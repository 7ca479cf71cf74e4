// Package timescaledb stores analysis runs in PostgreSQL/TimescaleDB through GORM
package timescaledb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chrissnell/containergeometry/internal/database"
	"github.com/chrissnell/containergeometry/internal/geometry"
	"github.com/chrissnell/containergeometry/internal/storage"
)

// Storage is a storage.RunStore backed by PostgreSQL
type Storage struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

var _ storage.RunStore = (*Storage)(nil)

// New connects to the database and creates the run tables
func New(ctx context.Context, connectionString string, logger *zap.SugaredLogger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := database.CreateConnection(connectionString)
	if err != nil {
		return nil, err
	}
	return NewWithDB(ctx, db, logger)
}

// NewWithDB uses an existing GORM connection
func NewWithDB(ctx context.Context, db *gorm.DB, logger *zap.SugaredLogger) (*Storage, error) {
	logger.Info("creating run tables...")
	if err := database.Migrate(db.WithContext(ctx)); err != nil {
		return nil, err
	}
	return &Storage{db: db, logger: logger}, nil
}

// SaveRun inserts run and its segments
func (t *Storage) SaveRun(ctx context.Context, run *storage.Run) error {
	rec, err := toRecord(run)
	if err != nil {
		return err
	}
	if err := t.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("could not store run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads one run with its full result
func (t *Storage) GetRun(ctx context.Context, id uuid.UUID) (*storage.Run, error) {
	var rec database.RunRecord
	err := t.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not query run %s: %w", id, err)
	}
	return fromRecord(&rec)
}

// ListRuns returns up to limit run summaries, most recent first
func (t *Storage) ListRuns(ctx context.Context, limit int) ([]storage.RunSummary, error) {
	var recs []database.RunRecord
	err := t.db.WithContext(ctx).
		Omit("payload").
		Order("created_at DESC").Order("id").
		Limit(storage.ListLimit(limit)).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("could not list runs: %w", err)
	}

	summaries := make([]storage.RunSummary, len(recs))
	for i, rec := range recs {
		summaries[i] = summaryFromRecord(&rec)
	}
	return summaries, nil
}

// DeleteRun removes a run; its segments cascade
func (t *Storage) DeleteRun(ctx context.Context, id uuid.UUID) error {
	res := t.db.WithContext(ctx).Where("id = ?", id).Delete(&database.RunRecord{})
	if res.Error != nil {
		return fmt.Errorf("could not delete run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrRunNotFound
	}
	return nil
}

// Ping checks the database connection
func (t *Storage) Ping(ctx context.Context) error {
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool
func (t *Storage) Close() error {
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(run *storage.Run) (*database.RunRecord, error) {
	blob, err := storage.EncodePayload(run)
	if err != nil {
		return nil, err
	}
	sum := run.Summary()

	rec := &database.RunRecord{
		ID:             run.ID,
		Name:           run.Name,
		CreatedAt:      run.CreatedAt,
		DataPoints:     sum.DataPoints,
		SegmentCount:   sum.SegmentCount,
		Strategy:       sum.Strategy,
		VolumeErrorPct: sum.VolumeErrorPct,
		VolumeValid:    sum.VolumeValid,
		Payload:        blob,
	}
	if run.Result != nil {
		rec.Segments = segmentRecords(run.ID, run.Result.Segments)
	}
	return rec, nil
}

func segmentRecords(id uuid.UUID, segs []geometry.Segment) []database.SegmentRecord {
	out := make([]database.SegmentRecord, len(segs))
	for i, s := range segs {
		out[i] = database.SegmentRecord{
			RunID:        id,
			Position:     i,
			Shape:        s.Shape.Kind.String(),
			StartHeight:  s.StartHeight,
			EndHeight:    s.EndHeight,
			R1:           s.Shape.R1,
			R2:           s.Shape.R2,
			H:            s.Shape.H,
			ErrorPct:     s.ErrorPct,
			FallbackUsed: s.FallbackUsed,
		}
	}
	return out
}

func fromRecord(rec *database.RunRecord) (*storage.Run, error) {
	run := &storage.Run{
		ID:        rec.ID,
		Name:      rec.Name,
		CreatedAt: rec.CreatedAt.UTC(),
	}
	if err := storage.DecodePayload(rec.Payload, run); err != nil {
		return nil, err
	}
	return run, nil
}

func summaryFromRecord(rec *database.RunRecord) storage.RunSummary {
	return storage.RunSummary{
		ID:             rec.ID,
		Name:           rec.Name,
		CreatedAt:      rec.CreatedAt.UTC(),
		DataPoints:     rec.DataPoints,
		SegmentCount:   rec.SegmentCount,
		Strategy:       rec.Strategy,
		VolumeErrorPct: rec.VolumeErrorPct,
		VolumeValid:    rec.VolumeValid,
	}
}

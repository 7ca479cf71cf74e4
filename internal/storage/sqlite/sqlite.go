// Package sqlite stores analysis runs in a local SQLite database
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/containergeometry/internal/storage"
	"github.com/chrissnell/containergeometry/pkg/migrate"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Storage is a storage.RunStore backed by SQLite
type Storage struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

var _ storage.RunStore = (*Storage)(nil)

// New opens (creating if needed) the database at path and applies pending migrations
func New(path string, logger *zap.SugaredLogger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err := Migrator(db, logger).MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate SQLite database: %w", err)
	}

	logger.Infof("run storage ready at %s", path)
	return &Storage{db: db, logger: logger}, nil
}

// Migrator returns a migrator over the embedded run schema migrations
func Migrator(db *sql.DB, logger *zap.SugaredLogger) *migrate.Migrator {
	provider := migrate.NewFSProvider(migrationFS, "migrations", "schema_migrations", "sqlite")
	return migrate.NewMigrator(db, provider, logger)
}

// SaveRun inserts run and its segments in one transaction
func (s *Storage) SaveRun(ctx context.Context, run *storage.Run) error {
	blob, err := storage.EncodePayload(run)
	if err != nil {
		return err
	}
	sum := run.Summary()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analysis_runs
			(id, name, created_at, data_points, segment_count, strategy, volume_error_pct, volume_valid, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.Name, run.CreatedAt.UnixNano(), sum.DataPoints, sum.SegmentCount,
		sum.Strategy, sum.VolumeErrorPct, sum.VolumeValid, blob)
	if err != nil {
		return fmt.Errorf("could not insert run %s: %w", run.ID, err)
	}

	if run.Result != nil {
		for i, seg := range run.Result.Segments {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO analysis_segments
					(run_id, position, shape, start_height, end_height, r1, r2, h, error_pct, fallback_used)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID.String(), i, seg.Shape.Kind.String(), seg.StartHeight, seg.EndHeight,
				seg.Shape.R1, seg.Shape.R2, seg.Shape.H, seg.ErrorPct, seg.FallbackUsed)
			if err != nil {
				return fmt.Errorf("could not insert segment %d of run %s: %w", i, run.ID, err)
			}
		}
	}

	return tx.Commit()
}

// GetRun loads one run with its full result
func (s *Storage) GetRun(ctx context.Context, id uuid.UUID) (*storage.Run, error) {
	var (
		name    string
		created int64
		blob    []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, created_at, payload FROM analysis_runs WHERE id = ?`, id.String()).
		Scan(&name, &created, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not query run %s: %w", id, err)
	}

	run := &storage.Run{ID: id, Name: name, CreatedAt: time.Unix(0, created).UTC()}
	if err := storage.DecodePayload(blob, run); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns up to limit run summaries, most recent first
func (s *Storage) ListRuns(ctx context.Context, limit int) ([]storage.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, data_points, segment_count, strategy, volume_error_pct, volume_valid
		FROM analysis_runs
		ORDER BY created_at DESC, id
		LIMIT ?`, storage.ListLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("could not list runs: %w", err)
	}
	defer rows.Close()

	summaries := []storage.RunSummary{}
	for rows.Next() {
		var (
			sum     storage.RunSummary
			id      string
			created int64
		)
		if err := rows.Scan(&id, &sum.Name, &created, &sum.DataPoints, &sum.SegmentCount,
			&sum.Strategy, &sum.VolumeErrorPct, &sum.VolumeValid); err != nil {
			return nil, fmt.Errorf("could not scan run row: %w", err)
		}
		if sum.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("stored run has invalid id %q: %w", id, err)
		}
		sum.CreatedAt = time.Unix(0, created).UTC()
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// DeleteRun removes a run and its segments
func (s *Storage) DeleteRun(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM analysis_segments WHERE run_id = ?`, id.String()); err != nil {
		return fmt.Errorf("could not delete segments of run %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM analysis_runs WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("could not delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrRunNotFound
	}
	return tx.Commit()
}

// SegmentShapes returns how many stored segments use each shape
func (s *Storage) SegmentShapes(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT shape, COUNT(*) FROM analysis_segments GROUP BY shape`)
	if err != nil {
		return nil, fmt.Errorf("could not count segment shapes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var shape string
		var n int
		if err := rows.Scan(&shape, &n); err != nil {
			return nil, err
		}
		counts[shape] = n
	}
	return counts, rows.Err()
}

// Ping checks the database connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

package timescaledb

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/containergeometry/internal/geometry"
	"github.com/chrissnell/containergeometry/internal/storage"
)

func coneRun(t *testing.T) *storage.Run {
	t.Helper()
	cone := geometry.Shape{Kind: geometry.Cone, R1: 10, H: 40}
	ms := make([]geometry.Measurement, 50)
	for i := range ms {
		h := 40 * float64(i) / 49
		ms[i] = geometry.Measurement{Height: h, Volume: cone.Volume(h)}
	}
	a, err := geometry.NewAnalyzer(geometry.DefaultParams(), nil)
	require.NoError(t, err)
	res, err := a.Analyze(ms)
	require.NoError(t, err)
	return storage.NewRun("funnel", a.Params(), ms, res)
}

func TestRecordConversion(t *testing.T) {
	run := coneRun(t)
	rec, err := toRecord(run)
	require.NoError(t, err)

	assert.Equal(t, run.ID, rec.ID)
	assert.Equal(t, 50, rec.DataPoints)
	assert.Equal(t, len(run.Result.Segments), rec.SegmentCount)
	require.Len(t, rec.Segments, len(run.Result.Segments))
	for i, seg := range rec.Segments {
		assert.Equal(t, run.ID, seg.RunID)
		assert.Equal(t, i, seg.Position)
		assert.Equal(t, run.Result.Segments[i].Shape.Kind.String(), seg.Shape)
		assert.InDelta(t, run.Result.Segments[i].Shape.R1, seg.R1, 0)
	}

	back, err := fromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, run.Measurements, back.Measurements)
	assert.Equal(t, run.Result.Segments, back.Result.Segments)
	assert.Equal(t, run.Summary(), summaryFromRecord(rec))
}

func TestRecordConversionWithoutResult(t *testing.T) {
	run := &storage.Run{ID: uuid.New(), Name: "empty"}
	rec, err := toRecord(run)
	require.NoError(t, err)
	assert.Empty(t, rec.Segments)
	assert.Zero(t, rec.SegmentCount)
}

// TestStorageAgainstDatabase needs a PostgreSQL server, for example
// CONTAINERGEOMETRY_TEST_DSN="host=localhost user=postgres dbname=geometry sslmode=disable"
func TestStorageAgainstDatabase(t *testing.T) {
	dsn := os.Getenv("CONTAINERGEOMETRY_TEST_DSN")
	if dsn == "" {
		t.Skip("CONTAINERGEOMETRY_TEST_DSN not set")
	}

	ctx := context.Background()
	s, err := New(ctx, dsn, nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	run := coneRun(t)
	require.NoError(t, s.SaveRun(ctx, run))
	defer s.DeleteRun(ctx, run.ID)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, run.Result.Segments, got.Result.Segments)

	runs, err := s.ListRuns(ctx, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, runs)

	require.NoError(t, s.DeleteRun(ctx, run.ID))
	assert.ErrorIs(t, s.DeleteRun(ctx, run.ID), storage.ErrRunNotFound)
	_, err = s.GetRun(ctx, run.ID)
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}

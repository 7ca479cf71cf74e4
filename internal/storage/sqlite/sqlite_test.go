package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/containergeometry/internal/geometry"
	"github.com/chrissnell/containergeometry/internal/storage"
)

func newStore(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func analyzedRun(t *testing.T, name string, radius float64) *storage.Run {
	t.Helper()
	ms := make([]geometry.Measurement, 30)
	for i := range ms {
		h := float64(i)
		ms[i] = geometry.Measurement{Height: h, Volume: math.Pi * radius * radius * h}
	}
	a, err := geometry.NewAnalyzer(geometry.DefaultParams(), nil)
	require.NoError(t, err)
	res, err := a.Analyze(ms)
	require.NoError(t, err)
	return storage.NewRun(name, a.Params(), ms, res)
}

func TestSaveAndGetRun(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	run := analyzedRun(t, "vial", 4)

	require.NoError(t, s.SaveRun(ctx, run))
	assert.Error(t, s.SaveRun(ctx, run), "duplicate ids must be rejected")

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "vial", got.Name)
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, run.Params, got.Params)
	assert.Equal(t, run.Measurements, got.Measurements)
	assert.Equal(t, run.Result.Segments, got.Result.Segments)
	assert.Equal(t, run.Result.Profile, got.Result.Profile)

	_, err = s.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i, name := range []string{"first", "second", "third"} {
		run := analyzedRun(t, name, float64(i+2))
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveRun(ctx, run))
		ids = append(ids, run.ID)
	}

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{all[0].Name, all[1].Name, all[2].Name})
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, 30, all[0].DataPoints)
	assert.Equal(t, 1, all[0].SegmentCount)
	assert.True(t, all[0].CreatedAt.Equal(base.Add(2*time.Minute)))

	limited, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	shapes, err := s.SegmentShapes(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cylinder": 3}, shapes)
}

func TestListRunsEmpty(t *testing.T) {
	runs, err := newStore(t).ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestDeleteRun(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	run := analyzedRun(t, "flask", 3)
	require.NoError(t, s.SaveRun(ctx, run))

	require.NoError(t, s.DeleteRun(ctx, run.ID))
	_, err := s.GetRun(ctx, run.ID)
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
	assert.ErrorIs(t, s.DeleteRun(ctx, run.ID), storage.ErrRunNotFound)

	shapes, err := s.SegmentShapes(ctx)
	require.NoError(t, err)
	assert.Empty(t, shapes)
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := New(path, nil)
	require.NoError(t, err)
	run := analyzedRun(t, "jar", 5)
	require.NoError(t, s.SaveRun(context.Background(), run))
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())

	s, err = New(path, nil)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.GetRun(context.Background(), run.ID)
	assert.NoError(t, err)
}

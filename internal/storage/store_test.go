package storage

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chrissnell/containergeometry/internal/geometry"
)

func cylinderRun(t *testing.T) *Run {
	t.Helper()
	ms := make([]geometry.Measurement, 40)
	for i := range ms {
		h := float64(i)
		ms[i] = geometry.Measurement{Height: h, Volume: math.Pi * 25 * h}
	}
	a, err := geometry.NewAnalyzer(geometry.DefaultParams(), nil)
	require.NoError(t, err)
	res, err := a.Analyze(ms)
	require.NoError(t, err)
	return NewRun("beaker", a.Params(), ms, res)
}

func TestNewRunSummary(t *testing.T) {
	run := cylinderRun(t)
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, time.UTC, run.CreatedAt.Location())

	sum := run.Summary()
	assert.Equal(t, run.ID, sum.ID)
	assert.Equal(t, "beaker", sum.Name)
	assert.Equal(t, 40, sum.DataPoints)
	assert.Equal(t, 1, sum.SegmentCount)
	assert.Equal(t, "multi_derivative", sum.Strategy)
	assert.True(t, sum.VolumeValid)

	empty := (&Run{Name: "pending"}).Summary()
	assert.Zero(t, empty.SegmentCount)
	assert.Empty(t, empty.Strategy)
}

func TestPayloadRoundTrip(t *testing.T) {
	run := cylinderRun(t)
	blob, err := EncodePayload(run)
	require.NoError(t, err)

	back := &Run{ID: run.ID}
	require.NoError(t, DecodePayload(blob, back))

	assert.Equal(t, run.Params, back.Params)
	assert.Equal(t, run.Measurements, back.Measurements)
	require.NotNil(t, back.Result)
	assert.Equal(t, run.Result.Segments, back.Result.Segments)
	assert.Equal(t, run.Result.Profile, back.Result.Profile)
	assert.Equal(t, run.Result.Volume, back.Result.Volume)
	assert.Equal(t, run.Result.Strategy, back.Result.Strategy)
	assert.Equal(t, run.Result.Stats.Total, back.Result.Stats.Total)

	assert.Error(t, DecodePayload([]byte{0xc1}, &Run{}))
}

func TestListLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, ListLimit(0))
	assert.Equal(t, DefaultListLimit, ListLimit(-3))
	assert.Equal(t, 7, ListLimit(7))
}

type pingStore struct {
	RunStore
	err error
}

func (p pingStore) Ping(context.Context) error { return p.err }

func TestHealthManager(t *testing.T) {
	hm := NewHealthManager()
	assert.False(t, hm.IsHealthy("sqlite", time.Minute))

	h := hm.CheckHealth(context.Background(), "sqlite", pingStore{})
	assert.Equal(t, StatusHealthy, h.Status)
	assert.True(t, hm.IsHealthy("sqlite", time.Minute))

	h = hm.CheckHealth(context.Background(), "timescaledb", pingStore{err: errors.New("connection refused")})
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, "connection refused", h.Error)
	assert.False(t, hm.IsHealthy("timescaledb", time.Minute))

	all := hm.GetAllHealth()
	assert.Len(t, all, 2)

	hm.UpdateHealth("stale", Health{Status: StatusHealthy, LastCheck: time.Now().Add(-time.Hour)})
	assert.False(t, hm.IsHealthy("stale", time.Minute))
}

func TestStartHealthMonitor(t *testing.T) {
	hm := NewHealthManager()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	hm.StartHealthMonitor(ctx, &wg, "sqlite", pingStore{}, time.Hour, zap.NewNop().Sugar())
	require.Eventually(t, func() bool {
		_, ok := hm.GetHealth("sqlite")
		return ok
	}, time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()
}

package restserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chrissnell/containergeometry/internal/geometry"
	"github.com/chrissnell/containergeometry/internal/storage"
	"github.com/chrissnell/containergeometry/internal/storage/sqlite"
	"github.com/chrissnell/containergeometry/pkg/config"
	"github.com/chrissnell/containergeometry/pkg/responseformat"
)

// cylinderCSV is a radius 10 mm cylinder sampled every millimetre, volume in ml
func cylinderCSV(n int) string {
	var b strings.Builder
	b.WriteString("Height (mm),Volume (ml)\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,%v\n", i, math.Pi*100*float64(i)/1000)
	}
	return b.String()
}

func newTestController(t *testing.T, withStore bool) *Controller {
	t.Helper()
	logger := zap.NewNop().Sugar()

	analyzer, err := geometry.NewAnalyzer(geometry.DefaultParams(), logger)
	require.NoError(t, err)

	opts := Options{Analyzer: analyzer}
	if withStore {
		store, err := sqlite.New(filepath.Join(t.TempDir(), "runs.db"), logger)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		opts.Store = store
	}

	ctrl, err := NewController(context.Background(), &sync.WaitGroup{}, config.ServerData{}, opts, logger)
	require.NoError(t, err)
	return ctrl
}

func serve(ctrl *Controller, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewControllerDefaults(t *testing.T) {
	ctrl := newTestController(t, false)
	assert.Equal(t, "0.0.0.0:8080", ctrl.Server.Addr)
	assert.Equal(t, int64(DefaultMaxUploadBytes), ctrl.serverConfig.MaxUploadBytes)

	_, err := NewController(context.Background(), &sync.WaitGroup{}, config.ServerData{}, Options{}, nil)
	assert.Error(t, err)
}

func TestRunLifecycle(t *testing.T) {
	ctrl := newTestController(t, true)

	rec := serve(ctrl, http.MethodPost, "/analyze?name=beaker", cylinderCSV(50))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[AnalysisResponse](t, rec)
	require.NotNil(t, created.ID)
	assert.True(t, created.Stored)
	assert.Equal(t, "beaker", created.Name)
	require.Len(t, created.Segments, 1)
	assert.Equal(t, geometry.Cylinder, created.Segments[0].Shape.Kind)
	assert.True(t, created.Volume.Valid)
	assert.Equal(t, "/runs/"+created.ID.String(), rec.Header().Get("Location"))

	id := created.ID.String()

	rec = serve(ctrl, http.MethodGet, "/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[RunListResponse](t, rec)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, *created.ID, list.Runs[0].ID)
	assert.Equal(t, 1, list.Runs[0].SegmentCount)

	rec = serve(ctrl, http.MethodGet, "/runs/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[AnalysisResponse](t, rec)
	require.NotNil(t, got.Params)
	assert.Equal(t, geometry.DefaultParams(), *got.Params)
	assert.Len(t, got.Segments, 1)

	rec = serve(ctrl, http.MethodGet, "/runs/"+id+"/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	prof := decode[ProfileResponse](t, rec)
	assert.NotEmpty(t, prof.Heights)
	assert.Len(t, prof.Radii, len(prof.Heights))
	assert.Len(t, prof.Volume, len(prof.Heights))

	rec = serve(ctrl, http.MethodGet, "/runs/"+id+"/plots/area", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	rec = serve(ctrl, http.MethodGet, "/runs/"+id+"/plots/profile?image=svg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))

	rec = serve(ctrl, http.MethodDelete, "/runs/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(ctrl, http.MethodGet, "/runs/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(ctrl, http.MethodDelete, "/runs/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestErrors(t *testing.T) {
	ctrl := newTestController(t, true)

	rec := serve(ctrl, http.MethodPost, "/analyze", cylinderCSV(50))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[AnalysisResponse](t, rec).ID.String()

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"no volume column", http.MethodPost, "/analyze", "height,weight\n1,2\n", http.StatusBadRequest},
		{"too few rows", http.MethodPost, "/analyze", cylinderCSV(3), http.StatusBadRequest},
		{"bad volume scale", http.MethodPost, "/analyze?volume_scale=-1", cylinderCSV(50), http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/runs?limit=zero", "", http.StatusBadRequest},
		{"bad id", http.MethodGet, "/runs/not-a-uuid", "", http.StatusBadRequest},
		{"unknown run", http.MethodGet, "/runs/00000000-0000-0000-0000-000000000001", "", http.StatusNotFound},
		{"unknown chart", http.MethodGet, "/runs/" + id + "/plots/histogram", "", http.StatusNotFound},
		{"unknown image format", http.MethodGet, "/runs/" + id + "/plots/area?image=gif", "", http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/analyze", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(ctrl, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusMethodNotAllowed {
				assert.NotEmpty(t, decode[responseformat.ErrorResponse](t, rec).Error)
			}
		})
	}
}

func TestUploadLimit(t *testing.T) {
	logger := zap.NewNop().Sugar()
	analyzer, err := geometry.NewAnalyzer(geometry.DefaultParams(), logger)
	require.NoError(t, err)
	ctrl, err := NewController(context.Background(), &sync.WaitGroup{},
		config.ServerData{MaxUploadBytes: 64}, Options{Analyzer: analyzer}, logger)
	require.NoError(t, err)

	rec := serve(ctrl, http.MethodPost, "/analyze", cylinderCSV(50))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWithoutStore(t *testing.T) {
	ctrl := newTestController(t, false)

	rec := serve(ctrl, http.MethodPost, "/analyze", cylinderCSV(50))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AnalysisResponse](t, rec)
	assert.Nil(t, resp.ID)
	assert.False(t, resp.Stored)
	assert.Len(t, resp.Segments, 1)

	for _, target := range []string{"/runs", "/runs/00000000-0000-0000-0000-000000000001"} {
		rec = serve(ctrl, http.MethodGet, target, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
}

func TestGetHealth(t *testing.T) {
	ctrl := newTestController(t, false)

	rec := serve(ctrl, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storage.StatusHealthy, decode[HealthResponse](t, rec).Status)

	ctrl.health.UpdateHealth("sqlite", storage.NewHealth(storage.StatusUnhealthy, "ping failed", nil))
	rec = serve(ctrl, http.MethodGet, "/healthz", "")
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, storage.StatusUnhealthy, resp.Storage["sqlite"].Status)
}

func TestStartController(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	logger := zap.NewNop().Sugar()
	analyzer, err := geometry.NewAnalyzer(geometry.DefaultParams(), logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	ctrl, err := NewController(ctx, &wg, config.ServerData{ListenAddr: "127.0.0.1", Port: port}, Options{Analyzer: analyzer}, logger)
	require.NoError(t, err)
	require.NoError(t, ctrl.StartController())

	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

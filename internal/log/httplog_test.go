package log

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := log
	log = zap.New(core).Sugar()
	t.Cleanup(func() { log = prev })
	return logs
}

func TestHTTPMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
		level   zapcore.Level
	}{
		{"implicit ok", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("hello")) }, http.StatusOK, zapcore.InfoLevel},
		{"not found", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }, http.StatusNotFound, zapcore.InfoLevel},
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }, http.StatusBadGateway, zapcore.ErrorLevel},
		{"no body", func(w http.ResponseWriter, r *http.Request) {}, http.StatusOK, zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := observe(t)

			rec := httptest.NewRecorder()
			HTTPMiddleware(tt.handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.level, entry.Level)
			fields := entry.ContextMap()
			assert.Equal(t, int64(tt.status), fields["status"])
			assert.Equal(t, "/runs", fields["path"])
			assert.Equal(t, http.MethodGet, fields["method"])
		})
	}
}

func TestNamed(t *testing.T) {
	logs := observe(t)
	Named("geometry").Infof("fitted %d segments", 2)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "geometry", logs.All()[0].LoggerName)
	assert.Equal(t, "fitted 2 segments", logs.All()[0].Message)
}

// Package restserver serves the analysis engine and the stored runs over HTTP
package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/containergeometry/internal/geometry"
	"github.com/chrissnell/containergeometry/internal/log"
	"github.com/chrissnell/containergeometry/internal/storage"
	"github.com/chrissnell/containergeometry/pkg/config"
)

// DefaultMaxUploadBytes caps the CSV body of an analyze request
const DefaultMaxUploadBytes = 10 << 20

// Options carries the collaborators of the controller
type Options struct {
	Analyzer *geometry.Analyzer
	// Store is optional; without it runs are analyzed but not kept
	Store storage.RunStore
	// Health is reported by /healthz
	Health *storage.HealthManager
	// VolumeScale is the loader volume scale, zero for the default
	VolumeScale float64
}

// Controller represents the REST server controller
type Controller struct {
	ctx          context.Context
	wg           *sync.WaitGroup
	serverConfig config.ServerData
	Server       http.Server
	analyzer     *geometry.Analyzer
	store        storage.RunStore
	health       *storage.HealthManager
	volumeScale  float64
	logger       *zap.SugaredLogger
	handlers     *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, sc config.ServerData, opts Options, logger *zap.SugaredLogger) (*Controller, error) {
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("REST server needs an analyzer")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.Health == nil {
		opts.Health = storage.NewHealthManager()
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if sc.ListenAddr == "" {
		logger.Info("server.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		sc.ListenAddr = "0.0.0.0"
	}

	// Set default HTTP port if not specified
	if sc.Port == 0 {
		logger.Info("server.port not provided; defaulting to 8080")
		sc.Port = 8080
	}

	if sc.MaxUploadBytes <= 0 {
		sc.MaxUploadBytes = DefaultMaxUploadBytes
	}

	if opts.Store == nil {
		logger.Warn("no run storage configured; analyses will not be persisted")
	}

	ctrl := &Controller{
		ctx:          ctx,
		wg:           wg,
		serverConfig: sc,
		analyzer:     opts.Analyzer,
		store:        opts.Store,
		health:       opts.Health,
		volumeScale:  opts.VolumeScale,
		logger:       logger,
	}
	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", sc.ListenAddr, sc.Port)
	ctrl.Server.Handler = ctrl.setupRouter()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController starts the REST server and shuts it down when the context ends
func (c *Controller) StartController() error {
	c.logger.Infof("starting REST server on %s", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		var err error
		if c.serverConfig.Cert != "" && c.serverConfig.Key != "" {
			err = c.Server.ListenAndServeTLS(c.serverConfig.Cert, c.serverConfig.Key)
		} else {
			err = c.Server.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			c.logger.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware)

	router.HandleFunc("/healthz", c.handlers.GetHealth).Methods(http.MethodGet)
	router.HandleFunc("/analyze", c.handlers.PostAnalyze).Methods(http.MethodPost)

	runs := router.PathPrefix("/runs").Subrouter()
	runs.HandleFunc("", c.handlers.ListRuns).Methods(http.MethodGet)
	runs.HandleFunc("/{id}", c.handlers.GetRun).Methods(http.MethodGet)
	runs.HandleFunc("/{id}", c.handlers.DeleteRun).Methods(http.MethodDelete)
	runs.HandleFunc("/{id}/profile", c.handlers.GetProfile).Methods(http.MethodGet)
	runs.HandleFunc("/{id}/plots/{kind}", c.handlers.GetPlot).Methods(http.MethodGet)

	return router
}

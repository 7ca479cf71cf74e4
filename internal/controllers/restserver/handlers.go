package restserver

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/chrissnell/containergeometry/internal/geometry"
	"github.com/chrissnell/containergeometry/internal/loader"
	"github.com/chrissnell/containergeometry/internal/plotting"
	"github.com/chrissnell/containergeometry/internal/storage"
	"github.com/chrissnell/containergeometry/pkg/responseformat"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// GetHealth reports service and storage health
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{Status: storage.StatusHealthy, Storage: h.controller.health.GetAllHealth()}
	for _, s := range resp.Storage {
		if s.Status != storage.StatusHealthy {
			resp.Status = "degraded"
		}
	}
	h.formatter.WriteResponse(w, req, resp, nil)
}

// PostAnalyze runs the engine on a CSV body and stores the run
func (h *Handlers) PostAnalyze(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		name = "upload"
	}

	opts := loader.Options{VolumeScale: h.controller.volumeScale}
	if s := q.Get("volume_scale"); s != "" {
		scale, err := strconv.ParseFloat(s, 64)
		if err != nil || scale <= 0 {
			h.formatter.WriteError(w, req, http.StatusBadRequest, "volume_scale must be a positive number")
			return
		}
		opts.VolumeScale = scale
	}

	body := http.MaxBytesReader(w, req.Body, h.controller.serverConfig.MaxUploadBytes)
	ms, err := loader.Read(body, opts)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.formatter.WriteError(w, req, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		h.formatter.WriteError(w, req, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.controller.analyzer.Analyze(ms)
	if err != nil {
		if errors.Is(err, geometry.ErrInsufficientData) || errors.Is(err, geometry.ErrNonMonotonic) {
			h.formatter.WriteError(w, req, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.controller.logger.Errorf("analysis of %s failed: %v", name, err)
		h.formatter.WriteError(w, req, http.StatusInternalServerError, "analysis failed")
		return
	}

	run := storage.NewRun(name, h.controller.analyzer.Params(), ms, res)
	if h.controller.store == nil {
		h.formatter.WriteResponse(w, req, newAnalysisResponse(run, false, false), nil)
		return
	}
	if err := h.controller.store.SaveRun(req.Context(), run); err != nil {
		h.controller.logger.Errorf("could not store run %s: %v", run.ID, err)
		h.formatter.WriteError(w, req, http.StatusInternalServerError, "could not store run")
		return
	}

	h.controller.logger.Infow("stored analysis run", "id", run.ID, "name", name,
		"segments", len(res.Segments), "volume_error_pct", res.Volume.ErrorPct)
	h.formatter.WriteStatus(w, req, http.StatusCreated, newAnalysisResponse(run, true, false),
		map[string]string{"Location": "/runs/" + run.ID.String()})
}

// ListRuns returns the most recent run summaries
func (h *Handlers) ListRuns(w http.ResponseWriter, req *http.Request) {
	if !h.requireStore(w, req) {
		return
	}

	limit := 0
	if s := req.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.formatter.WriteError(w, req, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.controller.store.ListRuns(req.Context(), limit)
	if err != nil {
		h.controller.logger.Errorf("could not list runs: %v", err)
		h.formatter.WriteError(w, req, http.StatusInternalServerError, "could not list runs")
		return
	}
	h.formatter.WriteResponse(w, req, RunListResponse{Runs: runs}, nil)
}

// GetRun returns one stored run
func (h *Handlers) GetRun(w http.ResponseWriter, req *http.Request) {
	run, ok := h.loadRun(w, req)
	if !ok {
		return
	}
	h.formatter.WriteResponse(w, req, newAnalysisResponse(run, true, true), nil)
}

// DeleteRun removes one stored run
func (h *Handlers) DeleteRun(w http.ResponseWriter, req *http.Request) {
	if !h.requireStore(w, req) {
		return
	}
	id, ok := h.runID(w, req)
	if !ok {
		return
	}

	err := h.controller.store.DeleteRun(req.Context(), id)
	switch {
	case errors.Is(err, storage.ErrRunNotFound):
		h.formatter.WriteError(w, req, http.StatusNotFound, "run not found")
	case err != nil:
		h.controller.logger.Errorf("could not delete run %s: %v", id, err)
		h.formatter.WriteError(w, req, http.StatusInternalServerError, "could not delete run")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetProfile returns the reconstructed profile of a run
func (h *Handlers) GetProfile(w http.ResponseWriter, req *http.Request) {
	run, ok := h.loadRun(w, req)
	if !ok {
		return
	}

	resp := ProfileResponse{ID: run.ID}
	if run.Result != nil {
		resp.Heights = run.Result.Profile.Heights
		resp.Radii = run.Result.Profile.Radii
		resp.Volume = run.Result.ProfileVolume
	}
	h.formatter.WriteResponse(w, req, resp, nil)
}

// GetPlot renders one diagnostic chart of a run; image=svg selects SVG output
func (h *Handlers) GetPlot(w http.ResponseWriter, req *http.Request) {
	run, ok := h.loadRun(w, req)
	if !ok {
		return
	}

	format := req.URL.Query().Get("image")
	if format == "" {
		format = "png"
	}
	format, err := plotting.ParseFormat(format)
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, err.Error())
		return
	}

	kind := plotting.Kind(mux.Vars(req)["kind"])
	var buf bytes.Buffer
	err = plotting.Write(&buf, kind, format, run.Name, run.Measurements, run.Result)
	switch {
	case errors.Is(err, plotting.ErrUnknownKind):
		h.formatter.WriteError(w, req, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, plotting.ErrNoData):
		h.formatter.WriteError(w, req, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		h.controller.logger.Errorf("could not render %s chart of run %s: %v", kind, run.ID, err)
		h.formatter.WriteError(w, req, http.StatusInternalServerError, "could not render chart")
		return
	}

	w.Header().Set("Content-Type", plotting.ContentType(format))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if _, err := buf.WriteTo(w); err != nil {
		h.controller.logger.Debugf("chart write to client failed: %v", err)
	}
}

func (h *Handlers) requireStore(w http.ResponseWriter, req *http.Request) bool {
	if h.controller.store == nil {
		h.formatter.WriteError(w, req, http.StatusServiceUnavailable, "run storage not configured")
		return false
	}
	return true
}

func (h *Handlers) runID(w http.ResponseWriter, req *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(req)["id"])
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) loadRun(w http.ResponseWriter, req *http.Request) (*storage.Run, bool) {
	if !h.requireStore(w, req) {
		return nil, false
	}
	id, ok := h.runID(w, req)
	if !ok {
		return nil, false
	}

	run, err := h.controller.store.GetRun(req.Context(), id)
	switch {
	case errors.Is(err, storage.ErrRunNotFound):
		h.formatter.WriteError(w, req, http.StatusNotFound, "run not found")
		return nil, false
	case err != nil:
		h.controller.logger.Errorf("could not load run %s: %v", id, err)
		h.formatter.WriteError(w, req, http.StatusInternalServerError, "could not load run")
		return nil, false
	}
	return run, true
}

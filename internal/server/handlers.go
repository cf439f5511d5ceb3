package server

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tfx/internal/metrics"
	"github.com/desertthunder/tfx/internal/repositories"
	"github.com/desertthunder/tfx/internal/shared"
)

// ReportFunc loads the current pipeline status.
type ReportFunc func() (*repositories.StatusReport, error)

// RunningFunc reports whether the scheduler loop is active.
type RunningFunc func() bool

// StatusHandler serves the pipeline [repositories.StatusReport] as JSON on /status.
type StatusHandler struct {
	load   ReportFunc
	logger *log.Logger
}

func NewStatusHandler(load ReportFunc, logger *log.Logger) *StatusHandler {
	return &StatusHandler{load: load, logger: logger}
}

func (h *StatusHandler) Routes() []string { return []string{"/status"} }

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, err := h.load()
	if err != nil {
		h.logger.Error("failed to load status", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HealthHandler answers /healthz. The database is pinged through load; a failing load is a 503.
type HealthHandler struct {
	load    ReportFunc
	running RunningFunc
}

func NewHealthHandler(load ReportFunc, running RunningFunc) *HealthHandler {
	return &HealthHandler{load: load, running: running}
}

func (h *HealthHandler) Routes() []string { return []string{"/healthz"} }

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "scheduler_running": h.running != nil && h.running()}

	if _, err := h.load(); err != nil {
		body["status"] = "unavailable"
		body["error"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// NewPipelineRouter wires /metrics, /healthz and /status behind request metrics, logging and panic recovery.
func NewPipelineRouter(load ReportFunc, running RunningFunc, logger *log.Logger) *BasicRouter {
	router := NewBasicRouter()
	router.Use(
		Recoverer(logger),
		Logging(logger),
		metrics.Middleware("/metrics", "/healthz", "/status"),
	)

	router.Handle(http.MethodGet, "/metrics", metrics.Handler())
	router.Handler(getOnly{NewHealthHandler(load, running)})
	router.Handler(getOnly{NewStatusHandler(load, logger)})
	return router
}

// getOnly rejects every method but GET and HEAD.
type getOnly struct{ Handler }

func (g getOnly) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	g.Handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := shared.MarshalJSON(v, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

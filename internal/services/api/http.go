// Package api exposes the gardener over HTTP (status, water, health,
// metrics) and gRPC.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/plants/internal/config"
	"github.com/LeonardoBeccarini/plants/internal/hw"
	"github.com/LeonardoBeccarini/plants/internal/services/gardener"
)

// Gardener is what the API needs from the control loop.
type Gardener interface {
	Status() gardener.Status
	State() gardener.State
	Water(pump string, d time.Duration, force bool) (bool, string, error)
}

type waterResponse struct {
	Status bool   `json:"status"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewRouter mounts the routes:
//
//	GET  /               status
//	POST /water/{pump}   ?duration=30s&force=1
//	GET  /healthz
//	GET  /readyz         503 until the loop is running
//	GET  /metrics
func NewRouter(g Gardener, logger *slog.Logger) *mux.Router {
	s := &server{g: g, logger: logger}
	r := mux.NewRouter()
	r.HandleFunc("/", s.status).Methods(http.MethodGet)
	r.HandleFunc("/water/{pump}", s.water).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.ready).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Handler wraps h with access logging to accessLog and panic recovery
// logged through logger.
func Handler(h http.Handler, accessLog io.Writer, logger *slog.Logger) http.Handler {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
	)
	return handlers.CombinedLoggingHandler(accessLog, recovery(h))
}

type server struct {
	g      Gardener
	logger *slog.Logger
}

func (s *server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.g.Status())
}

func (s *server) water(w http.ResponseWriter, r *http.Request) {
	pump := mux.Vars(r)["pump"]
	q := r.URL.Query()

	var d time.Duration
	if raw := strings.TrimSpace(q.Get("duration")); raw != "" {
		var err error
		if d, err = config.ParseDuration(raw); err != nil {
			writeJSON(w, http.StatusBadRequest, waterResponse{Error: err.Error()})
			return
		}
	}

	ok, id, err := s.g.Water(pump, d, truthy(q.Get("force")))
	switch {
	case errors.Is(err, gardener.ErrUnknownPump):
		writeJSON(w, http.StatusNotFound, waterResponse{Error: err.Error()})
	case errors.Is(err, gardener.ErrNotReady), errors.Is(err, hw.ErrPumpFaulted):
		writeJSON(w, http.StatusServiceUnavailable, waterResponse{Error: err.Error()})
	case err != nil:
		s.logger.Error("water request failed", "pump", pump, "err", err)
		writeJSON(w, http.StatusInternalServerError, waterResponse{Error: err.Error()})
	case !ok:
		writeJSON(w, http.StatusOK, waterResponse{Reason: "quota"})
	default:
		writeJSON(w, http.StatusOK, waterResponse{Status: true, ID: id})
	}
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "state": s.g.State().String()})
}

func (s *server) ready(w http.ResponseWriter, _ *http.Request) {
	ready := s.g.State() == gardener.Running
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]bool{"ready": ready})
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no":
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

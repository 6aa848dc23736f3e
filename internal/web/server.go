// Package web provides the HTTP status and control server for the busylight daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sweeney/busylight/internal/indicator"
	"github.com/sweeney/busylight/internal/status"
)

// Server serves the status page, activity controls and metrics over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ind        *indicator.Indicator
	logger     *slog.Logger
}

// ConfigRequest is the body accepted by PUT /config. Absent fields are left unchanged.
type ConfigRequest struct {
	Enabled           *bool  `json:"enabled,omitempty"`
	ActivationDelayMs *int64 `json:"activation_delay_ms,omitempty"`
	CompletionDelayMs *int64 `json:"completion_delay_ms,omitempty"`
}

// ConfigResponse is returned by GET and PUT /config.
type ConfigResponse struct {
	Enabled           bool  `json:"enabled"`
	ActivationDelayMs int64 `json:"activation_delay_ms"`
	CompletionDelayMs int64 `json:"completion_delay_ms"`
}

// New creates a Server that reads state from tracker and drives ind.
// metrics may be nil, in which case /metrics is not routed.
func New(addr string, tracker *status.Tracker, ind *indicator.Indicator, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{tracker: tracker, ind: ind, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.HandleFunc("/activity/increment", s.handleIncrement).Methods(http.MethodPost)
	r.HandleFunc("/activity/decrement", s.handleDecrement).Methods(http.MethodPost)
	r.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	r.HandleFunc("/config", s.handlePutConfig).Methods(http.MethodPut)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) snapshot() status.Snapshot {
	s.tracker.Update(s.ind.Snapshot())
	return s.tracker.Snapshot()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.snapshot()); err != nil {
		s.logger.Error("render status page", "err", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.snapshot()))
}

func (s *Server) handleIncrement(w http.ResponseWriter, r *http.Request) {
	s.ind.Increment()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDecrement(w http.ResponseWriter, r *http.Request) {
	if err := s.ind.Decrement(); err != nil {
		if errors.Is(err, indicator.ErrUnbalancedDecrement) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.currentConfig())
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid config: %v", err), http.StatusBadRequest)
		return
	}
	if !validDelayMs(req.ActivationDelayMs) || !validDelayMs(req.CompletionDelayMs) {
		http.Error(w, fmt.Sprintf("invalid config: delays must be between 0 and %d ms", maxDelayMs), http.StatusBadRequest)
		return
	}

	if req.ActivationDelayMs != nil {
		s.ind.SetActivationDelay(time.Duration(*req.ActivationDelayMs) * time.Millisecond)
	}
	if req.CompletionDelayMs != nil {
		s.ind.SetCompletionDelay(time.Duration(*req.CompletionDelayMs) * time.Millisecond)
	}
	if req.Enabled != nil {
		s.ind.SetEnabled(*req.Enabled)
	}

	cfg := s.currentConfig()
	s.logger.Info("indicator reconfigured",
		"enabled", cfg.Enabled,
		"activation_delay_ms", cfg.ActivationDelayMs,
		"completion_delay_ms", cfg.CompletionDelayMs,
	)
	writeJSON(w, cfg)
}

// maxDelayMs is the largest delay that fits in a time.Duration.
const maxDelayMs = math.MaxInt64 / int64(time.Millisecond)

// validDelayMs reports whether ms is absent or converts to a non-negative Duration.
func validDelayMs(ms *int64) bool {
	return ms == nil || (*ms >= 0 && *ms <= maxDelayMs)
}

func (s *Server) currentConfig() ConfigResponse {
	return ConfigResponse{
		Enabled:           s.ind.IsEnabled(),
		ActivationDelayMs: s.ind.ActivationDelay().Milliseconds(),
		CompletionDelayMs: s.ind.CompletionDelay().Milliseconds(),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

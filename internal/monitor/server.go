// Package monitor serves the bridge's HTTP surface: JSON status and runtime
// configuration, device identify, live pose streaming over websocket, and
// debug charts of recent tracker motion.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/mocap.bridge/internal/db"
	"github.com/banshee-data/mocap.bridge/internal/device"
	"github.com/banshee-data/mocap.bridge/internal/httputil"
	"github.com/banshee-data/mocap.bridge/internal/version"
)

// maxConfigBody caps POST /api/config bodies.
const maxConfigBody = 1 << 20

// Controller is the slice of the device driver the monitor drives.
type Controller interface {
	Status() []device.Status
	Settings() device.Settings
	Reconfigure(device.Settings) device.Settings
	Identify(serial string) error
	Frames() uint64
}

// Config configures the monitor server.
type Config struct {
	Address    string
	Controller Controller
	Traces     *Traces
	Hub        *PoseHub
	// DB enables session listing and the tailsql admin routes.
	DB *db.DB
}

// Server is the monitor HTTP server.
type Server struct {
	address    string
	controller Controller
	traces     *Traces
	hub        *PoseHub
	db         *db.DB
	started    time.Time

	statsMu sync.RWMutex
	stats   map[string]func() any

	mux    *http.ServeMux
	server *http.Server
}

// NewServer builds the server and its routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Controller == nil {
		return nil, errors.New("monitor: controller is required")
	}
	if cfg.Traces == nil {
		cfg.Traces = NewTraces(0)
	}
	if cfg.Hub == nil {
		cfg.Hub = NewPoseHub()
	}
	s := &Server{
		address:    cfg.Address,
		controller: cfg.Controller,
		traces:     cfg.Traces,
		hub:        cfg.Hub,
		db:         cfg.DB,
		started:    time.Now(),
		stats:      make(map[string]func() any),
	}
	mux, err := s.setupRoutes()
	if err != nil {
		return nil, err
	}
	s.mux = mux
	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// AddStats exposes an output's counters under name in /api/status.
func (s *Server) AddStats(name string, fn func() any) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats[name] = fn
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/poses", s.handlePoses)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("POST /api/devices/{serial}/identify", s.handleIdentify)
	mux.HandleFunc("GET /debug/charts/velocity", s.handleVelocityChart)
	mux.HandleFunc("GET /debug/plot/trace.png", s.handleTracePlot)
	mux.Handle("GET /ws/poses", s.hub)
	if s.db != nil {
		mux.HandleFunc("GET /api/sessions", s.handleSessions)
		if err := s.db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

// Start serves until ctx is cancelled, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[monitor] HTTP server listening on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("monitor server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("[monitor] shutting down HTTP server...")
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[monitor] HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			log.Printf("[monitor] HTTP server force close error: %v", err)
		}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Version       string          `json:"version"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	Frames        uint64          `json:"frames"`
	Settings      device.Settings `json:"settings"`
	Devices       []device.Status `json:"devices"`
	Outputs       map[string]any  `json:"outputs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:       version.Version,
		UptimeSeconds: time.Since(s.started).Seconds(),
		Frames:        s.controller.Frames(),
		Settings:      s.controller.Settings(),
		Devices:       s.controller.Status(),
		Outputs:       map[string]any{"websocket": s.hub.Stats()},
	}
	s.statsMu.RLock()
	for name, fn := range s.stats {
		resp.Outputs[name] = fn()
	}
	s.statsMu.RUnlock()
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handlePoses(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.traces.Latest())
}

// handleConfig reports the live pipeline settings on GET and replaces them
// on POST. Omitted fields keep their current value; out-of-range values are
// clamped, and the clamped result is returned.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.controller.Settings())
	case http.MethodPost:
		next := s.controller.Settings()
		if err := httputil.DecodeStrict(r.Body, maxConfigBody, &next); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid settings: %v", err))
			return
		}
		applied := s.controller.Reconfigure(next)
		log.Printf("[monitor] settings updated: capacity=%d max_age=%.3fs smoothing=%.2f offset=%.3fs",
			applied.HistoryCapacity, applied.MaxAgeSeconds, applied.SmoothingFactor, applied.RequestOffset)
		httputil.WriteJSONOK(w, applied)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	serial := r.PathValue("serial")
	if err := s.controller.Identify(serial); err != nil {
		if errors.Is(err, device.ErrUnknownDevice) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"serial": serial, "haptic": "vibrating"})
}

// traceFor resolves the serial query parameter, defaulting to the first
// device with a trace.
func (s *Server) traceFor(w http.ResponseWriter, r *http.Request) (string, bool) {
	serial := r.URL.Query().Get("serial")
	if serial == "" {
		serials := s.traces.Serials()
		if len(serials) == 0 {
			httputil.NotFound(w, "no poses recorded yet")
			return "", false
		}
		serial = serials[0]
	}
	return serial, true
}

func (s *Server) handleVelocityChart(w http.ResponseWriter, r *http.Request) {
	serial, ok := s.traceFor(w, r)
	if !ok {
		return
	}
	trace := s.traces.Trace(serial)
	if len(trace) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no trace for %q", serial))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderVelocityChart(w, serial, trace); err != nil {
		log.Printf("[monitor] %v", err)
	}
}

func (s *Server) handleTracePlot(w http.ResponseWriter, r *http.Request) {
	serial, ok := s.traceFor(w, r)
	if !ok {
		return
	}
	trace := s.traces.Trace(serial)
	if len(trace) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no trace for %q", serial))
		return
	}
	axes := r.URL.Query().Get("axes")
	for _, c := range axes {
		if c != 'x' && c != 'y' && c != 'z' {
			httputil.BadRequest(w, "axes must only contain x, y and z")
			return
		}
	}
	w.Header().Set("Content-Type", "image/png")
	if err := RenderTracePlot(w, serial, axes, trace); err != nil {
		log.Printf("[monitor] %v", err)
	}
}

// sessionSummary is one entry of GET /api/sessions.
type sessionSummary struct {
	db.Session
	Drops map[string]int `json:"drops"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	sessions, err := s.db.Sessions(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	out := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		drops, err := s.db.DropCounts(sess.ID)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		out = append(out, sessionSummary{Session: sess, Drops: drops})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Started.After(out[j].Started) })
	httputil.WriteJSONOK(w, out)
}

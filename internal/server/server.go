// Package server provides the HTTP server that exposes detections, the
// camera preview and runtime controls.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bernardo/visionups/internal/app"
	"github.com/bernardo/visionups/internal/detector"
	"github.com/bernardo/visionups/internal/server/api"
	"github.com/bernardo/visionups/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	App       *app.App
}

// Server represents the HTTP server.
type Server struct {
	config  Config
	mux     *http.ServeMux
	start   time.Time
	overlay *OverlayHandler
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	// Register session API handler if Store is configured
	if s.config.Store != nil {
		sessions := api.NewSessionHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}

	if a := s.config.App; a != nil {
		s.overlay = NewOverlayHandler(a.Overlay(), a.FPS)
		s.mux.HandleFunc("/api/overlay", s.handleOverlay)
		s.mux.Handle("/api/overlay/ws", s.overlay)
		s.mux.HandleFunc("/api/stats", s.handleStats)
		s.mux.Handle("/api/control", api.NewControlHandler(a))
		s.mux.Handle("/api/display", api.NewDisplayHandler(a))

		// Register camera stream endpoint if previews are enabled
		if a.Preview() != nil {
			s.mux.Handle("/api/stream", NewStreamHandler(a.Preview()))
		}
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close stops background broadcasters and disconnects websocket clients.
func (s *Server) Close() {
	if s.overlay != nil {
		s.overlay.Close()
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}

	if a := s.config.App; a != nil {
		status := a.Status()
		response["running"] = status.Running
		response["enabled"] = status.Enabled
		response["fps"] = status.FPS

		switch err := a.InitError(); {
		case err == nil:
			response["detector"] = "ready"
		case errors.Is(err, detector.ErrModelNotFound):
			response["status"] = "degraded"
			response["detector"] = "model not found"
			response["error"] = err.Error()
		default:
			response["status"] = "degraded"
			response["detector"] = "unavailable"
			response["error"] = err.Error()
		}
	}

	writeJSON(w, response)
}

// handleOverlay handles GET /api/overlay with the latest detections.
func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, newOverlayMessage(s.config.App.Overlay().Snapshot(), s.config.App.FPS()))
}

// handleStats handles GET /api/stats with the pipeline counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, s.config.App.Stats())
}

// HTTPServer returns an http.Server for addr serving s.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

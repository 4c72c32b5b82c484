// Package server provides the HTTP server for browsing pose sessions,
// changing detection settings and watching the live camera.
package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/gaitpose/internal/pose"
	"github.com/ayusman/gaitpose/internal/server/api"
	"github.com/ayusman/gaitpose/internal/store"
)

// LiveSource is the live detection pipeline as seen by the server.
type LiveSource interface {
	Start() error
	Stop()
	IsRunning() bool
	// Subscribe returns a channel of live results and a cancel function.
	Subscribe() (<-chan *pose.FrameResult, func())
	// LatestJPEG returns the most recent annotated frame, or nil.
	LatestJPEG() []byte
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Settings  api.SettingsService
	Live      LiveSource
}

// Server represents the HTTP server for the gaitpose application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
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

	if s.config.Settings != nil {
		settingsHandler := api.NewSettingsHandler(s.config.Settings)
		s.mux.Handle("/api/settings", settingsHandler)
		s.mux.Handle("/api/settings/", settingsHandler)
	}

	if s.config.Store != nil {
		sessionHandler := api.NewSessionHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessionHandler)
		s.mux.Handle("/api/sessions/", sessionHandler)
	}

	if s.config.Live != nil {
		s.mux.HandleFunc("/api/live/", s.handleLive)
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Live))
		s.mux.Handle("/api/landmarks", NewLandmarksHandler(s.config.Live))
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
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
		"live":   s.config.Live != nil && s.config.Live.IsRunning(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// handleLive handles POST /api/live/start and POST /api/live/stop.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch strings.TrimPrefix(r.URL.Path, "/api/live/") {
	case "start":
		if err := s.config.Live.Start(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
	case "stop":
		s.config.Live.Stop()
	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"running": s.config.Live.IsRunning()})
}

// HTTPServer returns an http.Server for s on addr so callers can shut it
// down gracefully.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

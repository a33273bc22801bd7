// Package server provides the HTTP server for the SignLink recognizer.
package server

import (
	"encoding/json"
	"image"
	"net/http"
	"time"

	"github.com/ayusman/signlink/internal/app"
	"github.com/ayusman/signlink/internal/capture"
	"github.com/ayusman/signlink/internal/classifier"
	"github.com/ayusman/signlink/internal/server/api"
	"github.com/ayusman/signlink/internal/store"
)

// Recognizer is the part of the app the HTTP surface talks to.
type Recognizer interface {
	Status() app.Status
	LastPrediction() (classifier.Prediction, bool)
	LastBox() image.Rectangle
	SetEnabled(enabled bool)
	OnPrediction(sink func(classifier.Prediction))
}

// Config holds the server configuration.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Recognizer Recognizer
	// Frames feeds /api/stream. It must not read the camera itself.
	Frames FrameSource
	// ROI is outlined on the camera stream. Defaults to capture.ROI.
	ROI image.Rectangle
}

// Server represents the HTTP server for the SignLink application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	hub    *PredictionHub
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.ROI.Empty() {
		config.ROI = capture.ROI
	}
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

	if s.config.Recognizer != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
		s.mux.HandleFunc("/api/prediction", s.handlePrediction)
		s.mux.HandleFunc("/api/signing", s.handleSigning)

		s.hub = NewPredictionHub()
		s.config.Recognizer.OnPrediction(s.hub.Publish)
		s.mux.Handle("/api/predictions", s.hub)
	}

	// Register message and settings APIs if Store is configured
	if s.config.Store != nil {
		var latest api.LatestFunc
		if s.config.Recognizer != nil {
			latest = s.config.Recognizer.LastPrediction
		}
		messages := api.NewMessageHandler(s.config.Store, latest)
		s.mux.Handle("/api/messages", messages)
		s.mux.Handle("/api/messages/", messages)
		s.mux.Handle("/api/settings", api.NewSettingsHandler(s.config.Store))
	}

	// Register camera stream endpoint if a frame source is configured
	if s.config.Frames != nil {
		var box func() image.Rectangle
		if s.config.Recognizer != nil {
			box = s.config.Recognizer.LastBox
		}
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames, s.config.ROI, box))
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

// Hub returns the prediction broadcaster, or nil without a recognizer.
func (s *Server) Hub() *PredictionHub {
	return s.hub
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// handleStatus handles GET /api/status. A failed startup shows up as
// ready=false with the error message.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.config.Recognizer.Status())
}

// handlePrediction handles GET /api/prediction, answering 204 until the
// first letter is recognized.
func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p, ok := s.config.Recognizer.LastPrediction()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type signingRequest struct {
	Enabled bool `json:"enabled"`
}

// handleSigning handles POST /api/signing to pause or resume recognition.
func (s *Server) handleSigning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req signingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	s.config.Recognizer.SetEnabled(req.Enabled)
	writeJSON(w, http.StatusOK, s.config.Recognizer.Status())
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

// HTTPServer wraps the handler in an http.Server for graceful shutdown.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

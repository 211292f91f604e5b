package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/wricardo/mcp-training/randompick/picker"
	"github.com/wricardo/mcp-training/randompick/transport/websocket"
)

const maxPickBodySize = 1 << 20

// Server represents the HTTP API server
type Server struct {
	picker   picker.Picker
	hub      *websocket.Hub
	listener http.Handler
	router   *mux.Router
}

// NewServer creates a new API server
func NewServer(p picker.Picker, hub *websocket.Hub, listener http.Handler) *Server {
	s := &Server{
		picker:   p,
		hub:      hub,
		listener: listener,
		router:   mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// WebSocket upgrades are accepted on any path
	s.router.MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool {
		return websocket.IsUpgradeRequest(r)
	}).Handler(s.listener)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/pick", s.handlePick).Methods("POST")

	s.router.HandleFunc("/", s.handleUpgradeRequired)
	s.router.HandleFunc("/ws", s.handleUpgradeRequired)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
}

// Handle mounts an extra handler on path, after the upgrade route.
func (s *Server) Handle(path string, handler http.Handler) {
	s.router.Handle(path, handler)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.hub.Stats())
}

// PickResponse is the body returned by POST /api/pick
type PickResponse struct {
	Choice json.RawMessage `json:"choice"`
}

func (s *Server) handlePick(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPickBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	choice, err := picker.Select(s.picker, body)
	switch {
	case errors.Is(err, picker.ErrDecode):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, picker.ErrEmptySelection):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, PickResponse{Choice: choice})
}

func (s *Server) handleUpgradeRequired(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusUpgradeRequired, "this endpoint speaks WebSocket; send an upgrade request")
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wricardo/teleop-relay/metrics"
	"github.com/wricardo/teleop-relay/transport/websocket"
)

// Server is the HTTP front of the relay: WebSocket endpoints plus a small
// read-only API.
type Server struct {
	hub     *websocket.Hub
	metrics *metrics.Collector
	log     *zap.Logger
	router  *mux.Router
}

// NewServer creates the HTTP server for hub. A nil collector leaves /metrics
// answering 404.
func NewServer(hub *websocket.Hub, collector *metrics.Collector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		hub:     hub,
		metrics: collector,
		log:     logger,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	// Relay endpoints
	for _, path := range websocket.Paths() {
		role, _ := websocket.RoleForPath(path)
		s.router.HandleFunc(path, s.handleWebSocket(role))
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// Router exposes the underlying router so callers can mount extra handlers.
func (s *Server) Router() *mux.Router {
	return s.router
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

// Health check used by drive clients to decide when to dial.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Healthy"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.hub.Status())
}

func (s *Server) handleWebSocket(role websocket.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.hub.ServeWS(w, r, role)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if gorillaws.IsWebSocketUpgrade(r) {
		s.log.Warn("websocket upgrade on unknown path",
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr))
	}
	respondError(w, http.StatusNotFound, "not found")
}

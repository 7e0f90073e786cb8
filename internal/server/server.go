package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ratp-sensor/internal/common/logger"
	"github.com/ratp-sensor/internal/host"
)

var requestDuration = prometheus.NewSummaryVec(prometheus.SummaryOpts{
	Name: "api_request_duration_seconds",
	Help: "Latency of state API requests",
}, []string{"route"})

func init() {
	prometheus.MustRegister(requestDuration)
}

// StateProvider is the read side of the host.
type StateProvider interface {
	States() []host.StateSnapshot
	State(entityID string) (host.StateSnapshot, bool)
	Len() int
}

type Server struct {
	states StateProvider
	logger logger.Logger
}

// New returns the router serving /api/states, /health and /metrics.
func New(states StateProvider, log logger.Logger) http.Handler {
	s := &Server{states: states, logger: log}

	r := mux.NewRouter()
	r.HandleFunc("/api/states", s.timed("states", s.handleStates)).Methods(http.MethodGet)
	r.HandleFunc("/api/states/{entity_id}", s.timed("state", s.handleState)).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) timed(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() { requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds()) }()
		next(w, r)
	}
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.states.States())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	entityID := mux.Vars(r)["entity_id"]

	snap, ok := s.states.State(entityID)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"message": "Entity not found."})
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"entities": s.states.Len(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

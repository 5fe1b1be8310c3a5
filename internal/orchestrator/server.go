package orchestrator

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/snowfort-db/snowfort/internal/protocol"
	"github.com/snowfort-db/snowfort/internal/registry"
	"github.com/snowfort-db/snowfort/internal/telemetry"
)

// Server exposes the orchestrator's HTTP surface: worker registration and
// heartbeat, the active-workers listing, and the external query endpoint.
type Server struct {
	reg  *registry.Registry
	disp *Dispatcher
	log  *logrus.Entry
}

// NewServer wires the registry and dispatcher.
func NewServer(reg *registry.Registry, disp *Dispatcher) *Server {
	return &Server{
		reg:  reg,
		disp: disp,
		log:  logrus.WithField("component", "orchestrator-server"),
	}
}

// Router builds the orchestrator's route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/workers/register", s.handleRegister)
	r.Post("/workers/heartbeat", s.handleHeartbeat)
	r.Get("/workers", s.handleListWorkers)
	r.Post("/query", s.handleQuery)
	r.Get("/health", s.handleHealth)
	return r
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req protocol.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.Ack{OK: false, Error: err.Error()})
		return
	}
	if req.WorkerID == "" || req.BaseURL == "" {
		writeJSON(w, http.StatusBadRequest, protocol.Ack{OK: false, Error: "worker_id and base_url are required"})
		return
	}

	s.reg.Upsert(req.WorkerID, strings.TrimRight(req.BaseURL, "/"), req.Load)
	s.log.WithFields(logrus.Fields{"worker_id": req.WorkerID, "base_url": req.BaseURL}).Info("worker registered")
	writeJSON(w, http.StatusOK, protocol.Ack{OK: true})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req protocol.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.Ack{OK: false, Error: err.Error()})
		return
	}

	if err := s.reg.Heartbeat(req.WorkerID, strings.TrimRight(req.BaseURL, "/"), req.Load); err != nil {
		if errors.Is(err, registry.ErrNotRegistered) {
			writeJSON(w, http.StatusNotFound, protocol.Ack{OK: false, Error: "worker not registered"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, protocol.Ack{OK: false, Error: err.Error()})
		return
	}
	telemetry.CountHeartbeat(r.Context())
	writeJSON(w, http.StatusOK, protocol.Ack{OK: true})
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.WorkersResponse{Active: s.reg.ListActive()})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req protocol.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.QueryResponse{OK: false, Error: err.Error()})
		return
	}
	if req.Path == "" || req.Query == "" {
		writeJSON(w, http.StatusBadRequest, protocol.QueryResponse{OK: false, Error: "path and query are required"})
		return
	}

	resp := s.disp.Route(r.Context(), req.Path, req.Query)
	telemetry.CountQueryRouted(r.Context(), resp.Kind)

	// Routing and execution failures ride back in the envelope; non-2xx is
	// reserved for malformed requests.
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.Ack{OK: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

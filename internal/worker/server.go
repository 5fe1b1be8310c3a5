package worker

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/snowfort-db/snowfort/internal/protocol"
)

// Server exposes the worker's HTTP surface: one endpoint executing tasks and
// a health probe.
type Server struct {
	exec *Executor
	log  *logrus.Entry
}

// NewServer wraps an executor.
func NewServer(exec *Executor) *Server {
	return &Server{
		exec: exec,
		log:  logrus.WithField("component", "worker-server"),
	}
}

// Router builds the worker's route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/tasks/execute", s.handleExecute)
	r.Get("/health", s.handleHealth)
	return r
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req protocol.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.TaskResponse{
			OK:    false,
			Error: "malformed task request: " + err.Error(),
		})
		return
	}

	// Task failures ride back inside the envelope with a 200; non-2xx is
	// reserved for transport and encoding problems.
	writeJSON(w, http.StatusOK, s.exec.Execute(r.Context(), req))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.Ack{OK: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

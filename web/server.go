// ABOUTME: Read-only HTTP JSON API over the run history store, built on chi.
// ABOUTME: Serves run listings, summaries, persisted reports, and rendered HTML reports.
package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389-research/conveyor/history"
	"github.com/2389-research/conveyor/render"
)

// Server exposes recorded pipeline runs over HTTP. It never triggers or
// mutates runs; execution belongs to the CLI and the engine.
type Server struct {
	router chi.Router
	store  *history.Store
}

// NewServer creates a Server with all routes configured.
func NewServer(store *history.Store) *Server {
	s := &Server{store: store}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/runs", s.handleListRuns)
	r.Get("/api/runs/{id}", s.handleGetRun)
	r.Get("/api/runs/{id}/stages", s.handleListStages)
	r.Get("/api/runs/{id}/report", s.handleReportText)
	r.Get("/api/runs/{id}/report.html", s.handleReportHTML)
	s.router = r

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []history.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListStages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetRun(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	stages, err := s.store.ListStageResults(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if stages == nil {
		stages = []history.StageRow{}
	}
	writeJSON(w, http.StatusOK, stages)
}

func (s *Server) handleReportText(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.GetReport(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(render.Text(report)))
}

func (s *Server) handleReportHTML(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.GetReport(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	html, err := render.HTML(report)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

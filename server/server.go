// Package server exposes the discovery engine over HTTP: search, stats,
// crawl administration, and a live progress stream.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gemscout/engine"
	"gemscout/scrape"
	"gemscout/shield"
	"gemscout/vault"
)

// Server holds the HTTP surface.
type Server struct {
	engine  *engine.Engine
	limiter *shield.RateLimiter
	log     *slog.Logger
}

// New creates the server.
func New(e *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  e,
		limiter: shield.NewRateLimiter(shield.DefaultAPIRules()),
		log:     logger,
	}
}

// StartGC starts the rate limiter's bucket garbage collection. Stops when
// done is closed.
func (s *Server) StartGC(done <-chan struct{}) {
	s.limiter.StartGC(done)
}

// Router builds the route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
	r.Use(shield.MaxJSONBody(64 * 1024))
	r.Use(s.limiter.Middleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/stats", s.handleStats)
		r.Post("/cache/clear", s.handleCacheClear)

		r.Route("/scrape", func(r chi.Router) {
			r.Post("/start", s.handleScrapeStart)
			r.Post("/cancel/{jobID}", s.handleScrapeCancel)
			r.Get("/status/{jobID}", s.handleScrapeStatus)
			r.Get("/latest", s.handleScrapeLatest)
			r.Get("/progress/{jobID}", s.handleScrapeProgress)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req engine.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.engine.Search(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.ClearCache()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (s *Server) handleScrapeStart(w http.ResponseWriter, r *http.Request) {
	jobID, err := s.engine.StartBulkCrawl(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleScrapeCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.engine.CancelCrawl(r.Context(), jobID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "cancelling"})
}

func (s *Server) handleScrapeStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.engine.JobStatus(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleScrapeLatest(w http.ResponseWriter, r *http.Request) {
	job, err := s.engine.LatestJob(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "no crawl has run yet")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// writeEngineError maps sentinel errors onto status codes; everything else
// is a 500 with the detail kept in the log, not the response.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNoModules):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, vault.ErrNoCredentials):
		writeError(w, http.StatusPreconditionFailed, "no portal credentials stored")
	case errors.Is(err, scrape.ErrCrawlActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scrape.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scrape.ErrJobTerminal):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scrape.ErrAuthFailed):
		writeError(w, http.StatusBadGateway, "portal authentication failed")
	default:
		s.log.Error("server: request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Package api exposes the code graph and the analysis job queue over HTTP.
// Read endpoints answer straight from the graph store; write endpoints queue
// jobs and leave the heavy lifting to the workers.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/CodeAtlas-hq/codeatlas/internal/config"
	"github.com/CodeAtlas-hq/codeatlas/internal/db"
	"github.com/CodeAtlas-hq/codeatlas/internal/graphstore"
	"github.com/CodeAtlas-hq/codeatlas/internal/jobs"
	atlasnats "github.com/CodeAtlas-hq/codeatlas/internal/nats"
	"github.com/CodeAtlas-hq/codeatlas/internal/query"
)

// Server represents the API server
type Server struct {
	cfg    *config.Config
	router *chi.Mux

	store  graphstore.Store
	facade *query.Facade

	db       *db.DB
	nats     *atlasnats.Client
	jobRepo  *jobs.Repository
	pipeline *jobs.Pipeline
}

// Deps carries the shared clients the server serves from. Store is required.
// DB and NATS may be nil; analysis endpoints answer 503 until a database is
// wired, and without NATS queued jobs wait for worker polling.
type Deps struct {
	Store graphstore.Store
	DB    *db.DB
	NATS  *atlasnats.Client
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("graph store is required")
	}

	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		store:  deps.Store,
		facade: query.NewFacade(deps.Store),
		db:     deps.DB,
		nats:   deps.NATS,
	}
	if deps.DB != nil {
		s.jobRepo = jobs.NewRepository(deps.DB.Pool())
		s.pipeline = jobs.NewPipeline(s.jobRepo, deps.NATS)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)

	// API v1
	s.router.Route("/api/v1", func(r chi.Router) {
		// Projects and graph queries
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.listProjects)
			r.Route("/{project}", func(r chi.Router) {
				r.Delete("/", s.deleteProject)
				r.Get("/overview", s.getOverview)
				r.Get("/health", s.getHealthReport)
				r.Get("/functions", s.searchSymbols)
				r.Get("/functions/{name}/context", s.getFunctionContext)
				r.Get("/functions/{name}/callers", s.getCallers)
				r.Get("/functions/{name}/callees", s.getCallees)
				r.Get("/graph", s.getCallGraph)
				r.Get("/classes", s.getClassHierarchy)
				r.Get("/packages", s.getPackageDependencies)
				r.Get("/cycles", s.getCycles)
				r.Get("/patterns", s.getDSLPatterns)
				r.Get("/hotspots", s.getHotspots)
				r.Get("/export", s.exportProject)
			})
		})

		// Analysis jobs
		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", s.startAnalysis)
			r.Get("/", s.listAnalyses)
			r.Get("/{jobID}", s.getAnalysis)
			r.Post("/{jobID}/cancel", s.cancelAnalysis)
			r.Post("/{jobID}/retry", s.retryAnalysis)
		})
	})
}

// Health check handlers
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			checks["database"] = err.Error()
			ready = false
		} else {
			checks["database"] = "ok"
		}
	}
	if s.nats != nil {
		if err := s.nats.HealthCheck(); err != nil {
			checks["nats"] = err.Error()
			ready = false
		} else {
			checks["nats"] = "ok"
		}
	}

	if !ready {
		checks["status"] = "degraded"
		respondJSON(w, http.StatusServiceUnavailable, checks)
		return
	}
	checks["status"] = "ready"
	respondJSON(w, http.StatusOK, checks)
}

// respondJSON writes a JSON response. A nil body writes the status only, so
// 204 responses stay empty.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	if data == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

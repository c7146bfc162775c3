package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/CodeAtlas-hq/codeatlas/internal/graphstore"
	"github.com/CodeAtlas-hq/codeatlas/internal/metrics"
	"github.com/CodeAtlas-hq/codeatlas/internal/query"
)

// listProjects lists all analyzed projects, newest first
func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.facade.Projects(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list projects")
		respondError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}
	if projects == nil {
		projects = []query.Overview{}
	}
	respondJSON(w, http.StatusOK, projects)
}

// deleteProject removes a project's graph
func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	node, err := s.store.GetNode(r.Context(), project, graphstore.LabelProject, project)
	if err != nil {
		log.Error().Err(err).Str("project", project).Msg("failed to load project")
		respondError(w, http.StatusInternalServerError, "failed to load project")
		return
	}
	if node == nil {
		respondError(w, http.StatusNotFound, "project not found")
		return
	}

	if err := s.store.DeleteProject(r.Context(), project); err != nil {
		log.Error().Err(err).Str("project", project).Msg("failed to delete project")
		respondError(w, http.StatusInternalServerError, "failed to delete project")
		return
	}

	log.Info().Str("project", project).Msg("project deleted")
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// getOverview returns a project's summary stats
func (s *Server) getOverview(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	ov, err := s.facade.Overview(r.Context(), project)
	if err != nil {
		log.Error().Err(err).Str("project", project).Msg("failed to load overview")
		respondError(w, http.StatusInternalServerError, "failed to load overview")
		return
	}
	if ov == nil {
		respondError(w, http.StatusNotFound, "project not found")
		return
	}
	respondJSON(w, http.StatusOK, ov)
}

// getHealthReport computes a fresh health report for a project
func (s *Server) getHealthReport(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	report, err := metrics.NewEngine(s.store).HealthReport(r.Context(), project)
	if err != nil {
		log.Error().Err(err).Str("project", project).Msg("failed to compute health report")
		respondError(w, http.StatusInternalServerError, "failed to compute health report")
		return
	}
	if report == nil {
		respondError(w, http.StatusNotFound, "project not found")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// searchSymbols searches functions or classes by name substring
func (s *Server) searchSymbols(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	pattern := r.URL.Query().Get("q")
	kind := r.URL.Query().Get("kind")

	results, err := s.facade.Search(r.Context(), project, pattern, kind)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if results == nil {
		results = []query.SearchResult{}
	}
	respondJSON(w, http.StatusOK, results)
}

// getFunctionContext returns a function with its callers and callees. An
// ambiguous simple name returns one entry per match.
func (s *Server) getFunctionContext(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	name := chi.URLParam(r, "name")

	contexts, err := s.facade.FunctionContext(r.Context(), project, name)
	if err != nil {
		log.Error().Err(err).Str("project", project).Str("name", name).Msg("failed to load function context")
		respondError(w, http.StatusInternalServerError, "failed to load function context")
		return
	}
	if len(contexts) == 0 {
		respondError(w, http.StatusNotFound, "function not found")
		return
	}
	respondJSON(w, http.StatusOK, contexts)
}

// getCallers returns the functions calling the named one
func (s *Server) getCallers(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	name := chi.URLParam(r, "name")

	refs, err := s.facade.Callers(r.Context(), project, name)
	if err != nil {
		log.Error().Err(err).Str("project", project).Str("name", name).Msg("failed to load callers")
		respondError(w, http.StatusInternalServerError, "failed to load callers")
		return
	}
	if refs == nil {
		refs = []query.FunctionRef{}
	}
	respondJSON(w, http.StatusOK, refs)
}

// getCallees returns the functions the named one calls
func (s *Server) getCallees(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	name := chi.URLParam(r, "name")

	refs, err := s.facade.Callees(r.Context(), project, name)
	if err != nil {
		log.Error().Err(err).Str("project", project).Str("name", name).Msg("failed to load callees")
		respondError(w, http.StatusInternalServerError, "failed to load callees")
		return
	}
	if refs == nil {
		refs = []query.FunctionRef{}
	}
	respondJSON(w, http.StatusOK, refs)
}

// getCallGraph returns a bounded call graph slice. A start query parameter
// walks outward from that function; without one the whole project is sampled.
func (s *Server) getCallGraph(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	start := r.URL.Query().Get("start")
	depth, _ := strconv.Atoi(r.URL.Query().Get("depth"))

	slice, err := s.facade.CallGraph(r.Context(), project, start, depth)
	if err != nil {
		log.Error().Err(err).Str("project", project).Msg("failed to build call graph")
		respondError(w, http.StatusInternalServerError, "failed to build call graph")
		return
	}
	if slice == nil {
		respondError(w, http.StatusNotFound, "function not found")
		return
	}
	respondJSON(w, http.StatusOK, slice)
}

// getClassHierarchy lists classes with their parents, or one class with
// parents and children when a name query parameter is given
func (s *Server) getClassHierarchy(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	name := r.URL.Query().Get("name")

	classes, err := s.facade.ClassHierarchy(r.Context(), project, name)
	if err != nil {
		log.Error().Err(err).Str("project", project).Msg("failed to load class hierarchy")
		respondError(w, http.StatusInternalServerError, "failed to load class hierarchy")
		return
	}
	if name != "" && len(classes) == 0 {
		respondError(w, http.StatusNotFound, "class not found")
		return
	}
	if classes == nil {
		classes = []query.ClassInfo{}
	}
	respondJSON(w, http.StatusOK, classes)
}

// getPackageDependencies returns all package dependency edges, or one
// package's dependencies and dependents when a package query parameter is
// given
func (s *Server) getPackageDependencies(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	pkg := r.URL.Query().Get("package")

	report, deps, err := s.facade.PackageDependencies(r.Context(), project, pkg)
	if err != nil {
		log.Error().Err(err).Str("project", project).Msg("failed to load package dependencies")
		respondError(w, http.StatusInternalServerError, "failed to load package dependencies")
		return
	}
	if report != nil {
		respondJSON(w, http.StatusOK, report)
		return
	}
	if deps == nil {
		deps = []query.PackageDep{}
	}
	respondJSON(w, http.StatusOK, deps)
}

// getCycles reports mutual call pairs and mutual package dependencies
func (s *Server) getCycles(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	report, err := s.facade.Cycles(r.Context(), project)
	if err != nil {
		log.Error().Err(err).Str("project", project).Msg("failed to detect cycles")
		respondError(w, http.StatusInternalServerError, "failed to detect cycles")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// getDSLPatterns summarizes DSL block usage across the project
func (s *Server) getDSLPatterns(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	patterns, err := s.facade.DSLPatterns(r.Context(), project)
	if err != nil {
		log.Error().Err(err).Str("project", project).Msg("failed to load DSL patterns")
		respondError(w, http.StatusInternalServerError, "failed to load DSL patterns")
		return
	}
	if patterns == nil {
		patterns = []query.DSLPattern{}
	}
	respondJSON(w, http.StatusOK, patterns)
}

// getHotspots returns the most complex files and most connected functions
func (s *Server) getHotspots(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	report, err := s.facade.Hotspots(r.Context(), project)
	if err != nil {
		log.Error().Err(err).Str("project", project).Msg("failed to load hotspots")
		respondError(w, http.StatusInternalServerError, "failed to load hotspots")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// exportProject renders the whole-project context bundle. The format query
// parameter selects json, yaml, markdown or summary; json is the default.
func (s *Server) exportProject(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	format := r.URL.Query().Get("format")

	exp, err := s.facade.Export(r.Context(), project)
	if err != nil {
		log.Error().Err(err).Str("project", project).Msg("failed to export project")
		respondError(w, http.StatusInternalServerError, "failed to export project")
		return
	}
	if exp == nil {
		respondError(w, http.StatusNotFound, "project not found")
		return
	}

	rendered, err := query.Render(exp, format)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch format {
	case query.FormatJSON, "":
		w.Header().Set("Content-Type", "application/json")
	case query.FormatYAML:
		w.Header().Set("Content-Type", "application/yaml")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rendered))
}

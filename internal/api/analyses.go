package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/CodeAtlas-hq/codeatlas/internal/jobs"
)

// StartAnalysisRequest is the request body for queueing an analysis
type StartAnalysisRequest struct {
	Project    string   `json:"project"`
	Root       string   `json:"root,omitempty"`
	RepoURL    string   `json:"repo_url,omitempty"`
	Branch     string   `json:"branch,omitempty"`
	Language   string   `json:"language,omitempty"`
	Depth      string   `json:"depth,omitempty"`
	Include    []string `json:"include,omitempty"`
	Exclude    []string `json:"exclude,omitempty"`
	Unresolved string   `json:"unresolved,omitempty"`
}

// JobResponse is the API response for a job
type JobResponse struct {
	ID           uuid.UUID       `json:"id"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Priority     int             `json:"priority"`
	Project      string          `json:"project"`
	ParentJobID  *uuid.UUID      `json:"parent_job_id,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	StartedAt    *string         `json:"started_at,omitempty"`
	CompletedAt  *string         `json:"completed_at,omitempty"`
	WorkerID     *string         `json:"worker_id,omitempty"`
}

// JobStatusResponse includes a job and its chained children
type JobStatusResponse struct {
	Job      *JobResponse   `json:"job"`
	Children []*JobResponse `json:"children,omitempty"`
}

// jobToResponse converts a job to API response format
func jobToResponse(j *jobs.Job) *JobResponse {
	if j == nil {
		return nil
	}

	resp := &JobResponse{
		ID:           j.ID,
		Type:         string(j.Type),
		Status:       string(j.Status),
		Priority:     j.Priority,
		Project:      j.Project,
		ParentJobID:  j.ParentJobID,
		Payload:      j.Payload,
		Result:       j.Result,
		ErrorMessage: j.ErrorMessage,
		RetryCount:   j.RetryCount,
		MaxRetries:   j.MaxRetries,
		CreatedAt:    j.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:    j.UpdatedAt.Format("2006-01-02T15:04:05Z"),
		WorkerID:     j.WorkerID,
	}

	if j.StartedAt != nil {
		s := j.StartedAt.Format("2006-01-02T15:04:05Z")
		resp.StartedAt = &s
	}
	if j.CompletedAt != nil {
		s := j.CompletedAt.Format("2006-01-02T15:04:05Z")
		resp.CompletedAt = &s
	}

	return resp
}

// startAnalysis queues an analysis job for a project
func (s *Server) startAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		respondError(w, http.StatusServiceUnavailable, "job system not available")
		return
	}

	var req StartAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload := jobs.AnalysisPayload{
		Project:    req.Project,
		Root:       req.Root,
		RepoURL:    req.RepoURL,
		Branch:     req.Branch,
		Language:   req.Language,
		Depth:      req.Depth,
		Include:    req.Include,
		Exclude:    req.Exclude,
		Unresolved: req.Unresolved,
	}
	if err := payload.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.pipeline.StartAnalysis(r.Context(), payload)
	if err != nil {
		if errors.Is(err, jobs.ErrAnalysisActive) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		log.Error().Err(err).Str("project", req.Project).Msg("failed to start analysis")
		respondError(w, http.StatusInternalServerError, "failed to start analysis")
		return
	}

	respondJSON(w, http.StatusCreated, jobToResponse(job))
}

// listAnalyses lists jobs with optional filters
func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.jobRepo == nil {
		respondError(w, http.StatusServiceUnavailable, "job system not available")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	status := r.URL.Query().Get("status")
	project := r.URL.Query().Get("project")

	var jobList []*jobs.Job
	var err error

	if status != "" {
		jobList, err = s.jobRepo.ListByStatus(r.Context(), jobs.JobStatus(status), limit)
	} else if project != "" {
		jobList, err = s.jobRepo.ListByProject(r.Context(), project, limit)
	} else {
		jobList, err = s.jobRepo.ListRecent(r.Context(), limit)
	}

	if err != nil {
		log.Error().Err(err).Msg("failed to list jobs")
		respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	responses := make([]*JobResponse, len(jobList))
	for i, j := range jobList {
		responses[i] = jobToResponse(j)
	}

	respondJSON(w, http.StatusOK, responses)
}

// getAnalysis gets a job by ID with its chained children
func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		respondError(w, http.StatusServiceUnavailable, "job system not available")
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	report, err := s.pipeline.GetJobStatus(r.Context(), jobID)
	if err != nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	children := make([]*JobResponse, len(report.Children))
	for i, c := range report.Children {
		children[i] = jobToResponse(c)
	}

	resp := &JobStatusResponse{
		Job:      jobToResponse(report.Job),
		Children: children,
	}

	respondJSON(w, http.StatusOK, resp)
}

// cancelAnalysis cancels a pending job
func (s *Server) cancelAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.jobRepo == nil {
		respondError(w, http.StatusServiceUnavailable, "job system not available")
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	if err := s.jobRepo.Cancel(r.Context(), jobID); err != nil {
		log.Error().Err(err).Str("job_id", jobID.String()).Msg("failed to cancel job")
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// retryAnalysis requeues a job awaiting retry without waiting for the sweep
func (s *Server) retryAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.jobRepo == nil {
		respondError(w, http.StatusServiceUnavailable, "job system not available")
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	if err := s.jobRepo.Retry(r.Context(), jobID); err != nil {
		log.Error().Err(err).Str("job_id", jobID.String()).Msg("failed to retry job")
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, _ := s.jobRepo.GetByID(r.Context(), jobID)
	respondJSON(w, http.StatusOK, jobToResponse(job))
}

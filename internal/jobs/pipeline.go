// Package jobs provides pipeline orchestration for analysis workflows
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	atlasnats "github.com/CodeAtlas-hq/codeatlas/internal/nats"
)

// ErrAnalysisActive is returned when a project already has an analysis
// queued or running.
var ErrAnalysisActive = errors.New("analysis already queued or running")

// Pipeline orchestrates the analysis workflow
type Pipeline struct {
	repo *Repository
	nats *atlasnats.Client
}

// NewPipeline creates a new pipeline manager
func NewPipeline(repo *Repository, nats *atlasnats.Client) *Pipeline {
	return &Pipeline{
		repo: repo,
		nats: nats,
	}
}

// StartAnalysis queues an analysis job for a project. At most one
// analysis per project may be queued or running at a time.
func (p *Pipeline) StartAnalysis(ctx context.Context, payload AnalysisPayload) (*Job, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	active, err := p.repo.ActiveForProject(ctx, payload.Project)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, fmt.Errorf("%w for project %s", ErrAnalysisActive, payload.Project)
	}

	job, err := NewJob(JobTypeAnalysis, payload.Project, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := p.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if err := p.publishJob(ctx, job); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to publish job")
		// Job is in DB, worker can poll for it
	}

	source := payload.Root
	if payload.RepoURL != "" {
		source = payload.RepoURL
	}
	log.Info().
		Str("job_id", job.ID.String()).
		Str("project", payload.Project).
		Str("source", source).
		Msg("queued analysis")

	return job, nil
}

// ChainJob creates a child job linked to a parent. The child inherits
// the parent's project.
func (p *Pipeline) ChainJob(ctx context.Context, parentID uuid.UUID, jobType JobType, payload interface{}) (*Job, error) {
	parent, err := p.repo.GetByID(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get parent job: %w", err)
	}
	if parent == nil {
		return nil, fmt.Errorf("parent job not found")
	}

	job, err := NewJob(jobType, parent.Project, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	job.ParentJobID = &parentID

	if err := p.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if err := p.publishJob(ctx, job); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to publish job")
	}

	log.Debug().
		Str("job_id", job.ID.String()).
		Str("parent_id", parentID.String()).
		Str("type", string(jobType)).
		Msg("created chained job")

	return job, nil
}

// ChainHealthReport queues a health report job after an analysis completes
func (p *Pipeline) ChainHealthReport(ctx context.Context, parentID uuid.UUID, project string) (*Job, error) {
	payload := HealthReportPayload{Project: project}
	return p.ChainJob(ctx, parentID, JobTypeHealthReport, payload)
}

// publishJob publishes a job notification to NATS
func (p *Pipeline) publishJob(ctx context.Context, job *Job) error {
	if p.nats == nil {
		return nil // NATS not configured, workers will poll DB
	}

	msg := &JobMessage{
		JobID:    job.ID,
		Type:     job.Type,
		Priority: job.Priority,
	}

	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	subject := atlasnats.SubjectForJobType(string(job.Type))
	if subject == "" {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	_, err = p.nats.Publish(ctx, subject, data)
	return err
}

// CompletionAnnouncement is broadcast when an analysis finishes
type CompletionAnnouncement struct {
	Project     string    `json:"project"`
	Summary     string    `json:"summary"`
	Tags        []string  `json:"tags,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// AnnounceCompletion broadcasts a one-way notification that a project
// analysis finished. Delivery is best effort; failures are logged and
// never propagated to the caller.
func (p *Pipeline) AnnounceCompletion(project, summary string, tags []string) {
	if p.nats == nil {
		return
	}

	ann := CompletionAnnouncement{
		Project:     project,
		Summary:     summary,
		Tags:        tags,
		CompletedAt: time.Now(),
	}

	data, err := json.Marshal(ann)
	if err != nil {
		log.Warn().Err(err).Str("project", project).Msg("failed to encode announcement")
		return
	}

	if err := p.nats.Notify(atlasnats.SubjectAnalysisCompleted, data); err != nil {
		log.Warn().Err(err).Str("project", project).Msg("failed to announce completion")
	}
}

// GetJobStatus returns the current status of a job and its children
func (p *Pipeline) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*JobStatusReport, error) {
	job, err := p.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job not found")
	}

	children, err := p.repo.GetChildJobs(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &JobStatusReport{
		Job:      job,
		Children: children,
	}, nil
}

// JobStatusReport contains a job and its child jobs
type JobStatusReport struct {
	Job      *Job   `json:"job"`
	Children []*Job `json:"children,omitempty"`
}

// RetryFailedJobs requeues all jobs in retrying status
func (p *Pipeline) RetryFailedJobs(ctx context.Context) (int, error) {
	jobs, err := p.repo.ListByStatus(ctx, StatusRetrying, 100)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, job := range jobs {
		if err := p.repo.Retry(ctx, job.ID); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("failed to retry job")
			continue
		}

		// Republish to NATS
		job.Status = StatusPending
		if err := p.publishJob(ctx, job); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("failed to republish job")
		}

		count++
	}

	return count, nil
}

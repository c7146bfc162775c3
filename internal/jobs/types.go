// Package jobs defines job types and payloads for async processing
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of async job
type JobType string

const (
	JobTypeAnalysis     JobType = "analysis"
	JobTypeHealthReport JobType = "health_report"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusRetrying  JobStatus = "retrying"
	StatusCancelled JobStatus = "cancelled"
)

// Job represents an async job in the system
type Job struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Type         JobType         `json:"type" db:"type"`
	Status       JobStatus       `json:"status" db:"status"`
	Priority     int             `json:"priority" db:"priority"`
	Project      string          `json:"project" db:"project"`
	ParentJobID  *uuid.UUID      `json:"parent_job_id,omitempty" db:"parent_job_id"`
	Payload      json.RawMessage `json:"payload" db:"payload"`
	Result       json.RawMessage `json:"result,omitempty" db:"result"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	RetryCount   int             `json:"retry_count" db:"retry_count"`
	MaxRetries   int             `json:"max_retries" db:"max_retries"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	LockedUntil  *time.Time      `json:"locked_until,omitempty" db:"locked_until"`
	WorkerID     *string         `json:"worker_id,omitempty" db:"worker_id"`
}

// AnalysisPayload is the payload for analysis jobs. Either Root points
// at a checkout already on disk, or RepoURL names a remote repository
// for the worker to clone first.
type AnalysisPayload struct {
	Project    string   `json:"project"`
	Root       string   `json:"root,omitempty"`
	RepoURL    string   `json:"repo_url,omitempty"`
	Branch     string   `json:"branch,omitempty"`
	Language   string   `json:"language,omitempty"` // empty or "auto" means detect
	Depth      string   `json:"depth,omitempty"`
	Include    []string `json:"include,omitempty"`
	Exclude    []string `json:"exclude,omitempty"`
	Unresolved string   `json:"unresolved,omitempty"` // "drop" or "stub"
}

// Validate checks that the payload names a project and exactly one source.
func (p *AnalysisPayload) Validate() error {
	if p.Project == "" {
		return fmt.Errorf("project is required")
	}
	if p.Root == "" && p.RepoURL == "" {
		return fmt.Errorf("either root or repo_url is required")
	}
	if p.Root != "" && p.RepoURL != "" {
		return fmt.Errorf("root and repo_url are mutually exclusive")
	}
	return nil
}

// HealthReportPayload is the payload for health report jobs
type HealthReportPayload struct {
	Project string `json:"project"`
}

// Validate checks that the payload names a project.
func (p *HealthReportPayload) Validate() error {
	if p.Project == "" {
		return fmt.Errorf("project is required")
	}
	return nil
}

// NewJob creates a new job with defaults
func NewJob(jobType JobType, project string, payload interface{}) (*Job, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		Status:     StatusPending,
		Priority:   0,
		Project:    project,
		Payload:    payloadBytes,
		RetryCount: 0,
		MaxRetries: 3,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}, nil
}

// SetPayload marshals and sets the payload
func (j *Job) SetPayload(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	j.Payload = data
	return nil
}

// GetPayload unmarshals the payload into the provided struct
func (j *Job) GetPayload(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// SetResult marshals and sets the result
func (j *Job) SetResult(result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	j.Result = data
	return nil
}

// GetResult unmarshals the result into the provided struct
func (j *Job) GetResult(v interface{}) error {
	if j.Result == nil {
		return nil
	}
	return json.Unmarshal(j.Result, v)
}

// CanRetry returns true if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// JobMessage is the message sent via NATS for job notifications
type JobMessage struct {
	JobID    uuid.UUID `json:"job_id"`
	Type     JobType   `json:"type"`
	Priority int       `json:"priority"`
}

// Encode serializes the job message to JSON
func (m *JobMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeJobMessage deserializes a job message from JSON
func DecodeJobMessage(data []byte) (*JobMessage, error) {
	var m JobMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

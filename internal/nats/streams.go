// Package nats provides stream configuration for codeatlas job processing
package nats

import (
	"context"
	"time"
)

// Stream names
const (
	StreamJobs = "CODEATLAS_JOBS"
)

// Subject patterns for job routing
const (
	// SubjectJobsAll matches all job subjects
	SubjectJobsAll = "jobs.>"

	// Job type subjects
	SubjectJobAnalysis     = "jobs.analysis"
	SubjectJobHealthReport = "jobs.health_report"

	// SubjectAnalysisCompleted carries one-way completion announcements.
	// It sits outside the jobs stream so it is delivered over core NATS
	// to whoever happens to be listening.
	SubjectAnalysisCompleted = "codeatlas.analysis.completed"
)

// Consumer names
const (
	ConsumerAnalysis     = "analysis-worker"
	ConsumerHealthReport = "health-report-worker"
)

// DefaultStreamConfig returns the default stream configuration for jobs
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:        StreamJobs,
		Subjects:    []string{SubjectJobsAll},
		MaxMsgs:     100000,
		MaxBytes:    1024 * 1024 * 500, // 500MB
		MaxAge:      7 * 24 * time.Hour,
		Replicas:    1,
		Description: "codeatlas job processing stream",
	}
}

// SetupStreams creates all required streams and consumers
func (c *Client) SetupStreams(ctx context.Context) error {
	// Create main jobs stream
	_, err := c.CreateStream(ctx, DefaultStreamConfig())
	if err != nil {
		return err
	}

	// Create consumers for each worker type
	consumers := []struct {
		name    string
		subject string
	}{
		{ConsumerAnalysis, SubjectJobAnalysis},
		{ConsumerHealthReport, SubjectJobHealthReport},
	}

	for _, cons := range consumers {
		if _, err := c.CreateConsumer(ctx, StreamJobs, cons.name, cons.subject); err != nil {
			return err
		}
	}

	return nil
}

// SubjectForJobType returns the NATS subject for a job type
func SubjectForJobType(jobType string) string {
	switch jobType {
	case "analysis":
		return SubjectJobAnalysis
	case "health_report":
		return SubjectJobHealthReport
	default:
		return ""
	}
}

// ConsumerForJobType returns the consumer name for a job type
func ConsumerForJobType(jobType string) string {
	switch jobType {
	case "analysis":
		return ConsumerAnalysis
	case "health_report":
		return ConsumerHealthReport
	default:
		return ""
	}
}

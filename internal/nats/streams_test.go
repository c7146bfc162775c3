package nats

import (
	"strings"
	"testing"
	"time"
)

func TestSubjectForJobType(t *testing.T) {
	tests := []struct {
		jobType string
		want    string
	}{
		{"analysis", SubjectJobAnalysis},
		{"health_report", SubjectJobHealthReport},
		{"unknown", ""},
	}

	for _, tt := range tests {
		t.Run(tt.jobType, func(t *testing.T) {
			got := SubjectForJobType(tt.jobType)
			if got != tt.want {
				t.Errorf("SubjectForJobType(%s) = %s, want %s", tt.jobType, got, tt.want)
			}
		})
	}
}

func TestSubjectForJobType_Strict(t *testing.T) {
	// The mapping is exact: no case folding, trimming, or prefix matching.
	for _, jobType := range []string{"", "ANALYSIS", " analysis ", "analys"} {
		if got := SubjectForJobType(jobType); got != "" {
			t.Errorf("SubjectForJobType(%q) = %s, want empty string", jobType, got)
		}
	}
}

func TestConsumerForJobType(t *testing.T) {
	tests := []struct {
		jobType string
		want    string
	}{
		{"analysis", ConsumerAnalysis},
		{"health_report", ConsumerHealthReport},
		{"unknown", ""},
	}

	for _, tt := range tests {
		t.Run(tt.jobType, func(t *testing.T) {
			got := ConsumerForJobType(tt.jobType)
			if got != tt.want {
				t.Errorf("ConsumerForJobType(%s) = %s, want %s", tt.jobType, got, tt.want)
			}
		})
	}
}

func TestDefaultStreamConfig(t *testing.T) {
	cfg := DefaultStreamConfig()

	if cfg.Name != StreamJobs {
		t.Errorf("Name = %s, want %s", cfg.Name, StreamJobs)
	}
	if len(cfg.Subjects) != 1 || cfg.Subjects[0] != SubjectJobsAll {
		t.Errorf("Subjects = %v, want [%s]", cfg.Subjects, SubjectJobsAll)
	}
	if cfg.MaxMsgs != 100000 {
		t.Errorf("MaxMsgs = %d, want 100000", cfg.MaxMsgs)
	}
	if cfg.MaxBytes != 1024*1024*500 {
		t.Errorf("MaxBytes = %d, want %d", cfg.MaxBytes, 1024*1024*500)
	}
	if cfg.MaxAge != 7*24*time.Hour {
		t.Errorf("MaxAge = %v, want 7 days", cfg.MaxAge)
	}
	if cfg.Replicas != 1 {
		t.Errorf("Replicas = %d, want 1", cfg.Replicas)
	}
	if cfg.Description == "" {
		t.Error("Description should not be empty")
	}
}

func TestConstants(t *testing.T) {
	if StreamJobs != "CODEATLAS_JOBS" {
		t.Errorf("StreamJobs = %s, want CODEATLAS_JOBS", StreamJobs)
	}
	if SubjectJobsAll != "jobs.>" {
		t.Errorf("SubjectJobsAll = %s, want jobs.>", SubjectJobsAll)
	}

	// Job subjects must fall under the work queue stream.
	for _, s := range []string{SubjectJobAnalysis, SubjectJobHealthReport} {
		if !strings.HasPrefix(s, "jobs.") {
			t.Errorf("subject %s should start with 'jobs.'", s)
		}
	}

	// The completion announcement must stay outside the work queue
	// stream so it is broadcast over core NATS instead of being
	// consumed once.
	if strings.HasPrefix(SubjectAnalysisCompleted, "jobs.") {
		t.Errorf("SubjectAnalysisCompleted = %s must not overlap the jobs stream", SubjectAnalysisCompleted)
	}
}

func TestConsumerConstants(t *testing.T) {
	consumers := []string{ConsumerAnalysis, ConsumerHealthReport}
	for _, c := range consumers {
		if !strings.HasSuffix(c, "-worker") {
			t.Errorf("consumer %s should end with '-worker'", c)
		}
	}
}

package jobs

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewPipeline(t *testing.T) {
	// NewPipeline with nil dependencies (acceptable for unit testing)
	pipeline := NewPipeline(nil, nil)
	if pipeline == nil {
		t.Fatal("NewPipeline returned nil")
	}
}

func TestStartAnalysis_InvalidPayload(t *testing.T) {
	// Validation runs before any repository access, so a nil-backed
	// pipeline is enough to exercise the rejection paths.
	pipeline := NewPipeline(nil, nil)

	tests := []struct {
		name    string
		payload AnalysisPayload
		wantMsg string
	}{
		{
			name:    "missing project",
			payload: AnalysisPayload{Root: "/srv/checkouts/atlas"},
			wantMsg: "project is required",
		},
		{
			name:    "missing source",
			payload: AnalysisPayload{Project: "atlas"},
			wantMsg: "either root or repo_url is required",
		},
		{
			name: "both sources",
			payload: AnalysisPayload{
				Project: "atlas",
				Root:    "/srv/checkouts/atlas",
				RepoURL: "https://github.com/acme/atlas",
			},
			wantMsg: "mutually exclusive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.StartAnalysis(context.Background(), tt.payload)
			if err == nil {
				t.Fatal("StartAnalysis should reject invalid payload")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestJobStatusReport_Fields(t *testing.T) {
	parentJob := &Job{
		ID:      uuid.New(),
		Type:    JobTypeAnalysis,
		Status:  StatusCompleted,
		Project: "atlas",
	}

	childJobs := []*Job{
		{ID: uuid.New(), Type: JobTypeHealthReport, Status: StatusRunning, Project: "atlas"},
	}

	report := JobStatusReport{
		Job:      parentJob,
		Children: childJobs,
	}

	if report.Job != parentJob {
		t.Error("Job should reference parent job")
	}
	if len(report.Children) != 1 {
		t.Errorf("len(Children) = %d, want 1", len(report.Children))
	}
	if report.Children[0].Type != JobTypeHealthReport {
		t.Errorf("Children[0].Type = %s, want health_report", report.Children[0].Type)
	}
}

func TestAnnounceCompletion_NoNATS(t *testing.T) {
	// With NATS unconfigured the announcement is a silent no-op.
	pipeline := NewPipeline(nil, nil)
	pipeline.AnnounceCompletion("atlas", "Analyzed project atlas", []string{"codeatlas", "analysis"})
}

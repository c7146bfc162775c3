//go:build integration
// +build integration

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/CodeAtlas-hq/codeatlas/internal/analyzer"
	"github.com/CodeAtlas-hq/codeatlas/internal/config"
	"github.com/CodeAtlas-hq/codeatlas/internal/graphstore"
	"github.com/CodeAtlas-hq/codeatlas/internal/jobs"
	"github.com/CodeAtlas-hq/codeatlas/internal/query"
	"github.com/CodeAtlas-hq/codeatlas/internal/testutil"
	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

// newIntegrationServer wires a server against the test database: the
// postgres graph store for reads and the real job repository for analyses.
func newIntegrationServer(t *testing.T) (*Server, *testutil.TestDB) {
	t.Helper()

	tdb := testutil.RequireDB(t)
	store := graphstore.NewPostgres(tdb.Pool)

	srv, err := NewServer(&config.Config{Port: 8080}, Deps{Store: store})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.jobRepo = jobs.NewRepository(tdb.Pool)
	srv.pipeline = jobs.NewPipeline(srv.jobRepo, nil)
	return srv, tdb
}

func doJSON(t *testing.T, srv *Server, method, path string, body string, wantStatus int, out interface{}) {
	t.Helper()

	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	if rr.Code != wantStatus {
		t.Fatalf("%s %s status = %d, want %d (body %s)", method, path, rr.Code, wantStatus, rr.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s decode: %v", method, path, err)
		}
	}
}

func TestIntegration_AnalysisLifecycle(t *testing.T) {
	srv, _ := newIntegrationServer(t)
	root := t.TempDir()

	// Queue an analysis.
	var created JobResponse
	doJSON(t, srv, "POST", "/api/v1/analyses",
		fmt.Sprintf(`{"project": "webshop", "root": %q, "language": "python"}`, root),
		http.StatusCreated, &created)

	if created.Type != "analysis" {
		t.Errorf("type = %s, want analysis", created.Type)
	}
	if created.Status != "pending" {
		t.Errorf("status = %s, want pending", created.Status)
	}
	if created.Project != "webshop" {
		t.Errorf("project = %s, want webshop", created.Project)
	}

	// A second analysis for the same project is refused while one is queued.
	doJSON(t, srv, "POST", "/api/v1/analyses",
		fmt.Sprintf(`{"project": "webshop", "root": %q}`, root),
		http.StatusConflict, nil)

	// The job shows up in listings and by ID.
	var listed []JobResponse
	doJSON(t, srv, "GET", "/api/v1/analyses?project=webshop", "", http.StatusOK, &listed)
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("listed = %+v, want the created job", listed)
	}

	var status JobStatusResponse
	doJSON(t, srv, "GET", "/api/v1/analyses/"+created.ID.String(), "", http.StatusOK, &status)
	if status.Job == nil || status.Job.ID != created.ID {
		t.Fatalf("status job = %+v, want %s", status.Job, created.ID)
	}

	// Cancel clears the active gate, so a new analysis can be queued.
	var cancelResp map[string]string
	doJSON(t, srv, "POST", "/api/v1/analyses/"+created.ID.String()+"/cancel", "", http.StatusOK, &cancelResp)
	if cancelResp["status"] != "cancelled" {
		t.Errorf("cancel status = %s, want cancelled", cancelResp["status"])
	}

	var second JobResponse
	doJSON(t, srv, "POST", "/api/v1/analyses",
		fmt.Sprintf(`{"project": "webshop", "root": %q, "language": "python"}`, root),
		http.StatusCreated, &second)

	// Retry only applies to jobs awaiting retry.
	doJSON(t, srv, "POST", "/api/v1/analyses/"+second.ID.String()+"/retry", "", http.StatusBadRequest, nil)
}

func TestIntegration_GetAnalysis_Unknown(t *testing.T) {
	srv, _ := newIntegrationServer(t)

	doJSON(t, srv, "GET", "/api/v1/analyses/00000000-0000-0000-0000-000000000001", "",
		http.StatusNotFound, nil)
}

func TestIntegration_ProjectReads(t *testing.T) {
	srv, tdb := newIntegrationServer(t)
	ctx := context.Background()

	// Analyze a small tree straight into the postgres store.
	root := t.TempDir()
	src := "def add(a, b):\n    return a + b\n\n\ndef total(xs):\n    s = 0\n    for x in xs:\n        s = add(s, x)\n    return s\n"
	if err := os.WriteFile(filepath.Join(root, "mathutil.py"), []byte(src), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	svc := analyzer.New(graphstore.NewPostgres(tdb.Pool), config.AnalysisConfig{})
	report, err := svc.Analyze(ctx, analyzer.Options{
		Root:     root,
		Project:  "mathlib",
		Language: model.LanguagePython,
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.Functions != 2 {
		t.Fatalf("functions = %d, want 2", report.Functions)
	}

	var projects []query.Overview
	doJSON(t, srv, "GET", "/api/v1/projects", "", http.StatusOK, &projects)
	if len(projects) != 1 || projects[0].Project != "mathlib" {
		t.Fatalf("projects = %+v, want mathlib", projects)
	}

	var ov query.Overview
	doJSON(t, srv, "GET", "/api/v1/projects/mathlib/overview", "", http.StatusOK, &ov)
	if ov.Stats.Functions != 2 {
		t.Errorf("functions = %d, want 2", ov.Stats.Functions)
	}

	var refs []query.FunctionRef
	doJSON(t, srv, "GET", "/api/v1/projects/mathlib/functions/add/callers", "", http.StatusOK, &refs)
	if len(refs) != 1 || refs[0].Name != "total" {
		t.Errorf("callers = %+v, want total", refs)
	}

	var health struct {
		Project string `json:"project"`
		Score   int    `json:"score"`
	}
	doJSON(t, srv, "GET", "/api/v1/projects/mathlib/health", "", http.StatusOK, &health)
	if health.Project != "mathlib" {
		t.Errorf("health project = %s, want mathlib", health.Project)
	}

	req := httptest.NewRequest("GET", "/api/v1/projects/mathlib/export?format=summary", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d, want %d", rr.Code, http.StatusOK)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("Project mathlib")) {
		t.Errorf("summary missing project line: %s", rr.Body.String())
	}

	// Delete through the API and confirm the project is gone.
	doJSON(t, srv, "DELETE", "/api/v1/projects/mathlib", "", http.StatusOK, nil)
	doJSON(t, srv, "GET", "/api/v1/projects/mathlib/overview", "", http.StatusNotFound, nil)
}

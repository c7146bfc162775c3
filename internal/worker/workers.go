package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CodeAtlas-hq/codeatlas/internal/analyzer"
	"github.com/CodeAtlas-hq/codeatlas/internal/config"
	"github.com/CodeAtlas-hq/codeatlas/internal/gitrepo"
	"github.com/CodeAtlas-hq/codeatlas/internal/jobs"
	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

// AnalysisWorker runs full analyses. It materializes the source tree,
// cloning when the job names a remote repository, reads the repository's
// .codeatlas.yaml, picks a language when the request leaves it open, and
// rebuilds the project graph.
type AnalysisWorker struct {
	*BaseWorker
	svc   *analyzer.Service
	repos *gitrepo.Service
}

func NewAnalysisWorker(base *BaseWorker, svc *analyzer.Service, repos *gitrepo.Service) *AnalysisWorker {
	w := &AnalysisWorker{BaseWorker: base, svc: svc, repos: repos}
	base.handler = w.handleJob
	return w
}

func (w *AnalysisWorker) Name() string { return "analysis" }

func (w *AnalysisWorker) handleJob(ctx context.Context, job *jobs.Job) error {
	var payload jobs.AnalysisPayload
	if err := job.GetPayload(&payload); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	if w.svc == nil {
		return fmt.Errorf("analyzer not configured")
	}

	log.Info().
		Str("project", payload.Project).
		Str("root", payload.Root).
		Str("repo_url", payload.RepoURL).
		Msg("starting analysis job")

	root := payload.Root
	if payload.RepoURL != "" {
		var err error
		root, err = w.materialize(ctx, payload)
		if err != nil {
			return err
		}
	}

	// Repository settings first, explicit job parameters on top.
	pc, err := config.LoadProjectConfig(root)
	if err != nil {
		return fmt.Errorf("failed to load project config: %w", err)
	}
	pc.Merge(&config.ProjectConfig{
		Language:   payload.Language,
		Depth:      payload.Depth,
		Include:    payload.Include,
		Exclude:    payload.Exclude,
		Resolution: config.ResolutionConfig{Unresolved: payload.Unresolved},
	})

	lang, err := pickLanguage(root, pc.Language)
	if err != nil {
		return err
	}

	opts := analyzer.Options{
		Root:        root,
		Project:     payload.Project,
		Language:    lang,
		Include:     pc.Include,
		Exclude:     pc.Exclude,
		Unresolved:  pc.Resolution.Unresolved,
		MaxFileSize: pc.Limits.MaxFileSize,
		FileTimeout: time.Duration(pc.Limits.FileTimeoutMS) * time.Millisecond,
		BatchSize:   pc.Limits.BatchSize,
	}
	if pc.Depth != "" {
		depth, err := model.ParseDepth(pc.Depth)
		if err != nil {
			return err
		}
		opts.Depth = depth
	}

	report, err := w.svc.Analyze(ctx, opts)
	if err != nil {
		return err
	}

	if err := w.Repository().Complete(ctx, job.ID, report); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	if w.Pipeline() != nil {
		if _, err := w.Pipeline().ChainHealthReport(ctx, job.ID, payload.Project); err != nil {
			log.Warn().Err(err).Msg("failed to chain health report job")
		}
		w.Pipeline().AnnounceCompletion(report.Project, completionSummary(report), completionTags(report))
	}

	return nil
}

// materialize brings the remote repository onto disk and returns the
// checkout path.
func (w *AnalysisWorker) materialize(ctx context.Context, payload jobs.AnalysisPayload) (string, error) {
	if w.repos == nil {
		return "", fmt.Errorf("repository checkouts not configured")
	}

	info, err := gitrepo.ParseRepoURL(payload.RepoURL)
	if err != nil {
		return "", err
	}
	if payload.Branch != "" {
		info.Branch = payload.Branch
	}

	res, err := w.repos.Sync(ctx, info)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", payload.RepoURL, err)
	}

	log.Info().
		Str("repo", info.Owner+"/"+info.Name).
		Str("branch", res.Branch).
		Str("commit", res.CommitSHA[:8]).
		Msg("checkout ready")
	return res.Path, nil
}

// pickLanguage resolves the language an analysis should run with. An empty
// or "auto" request falls back to a census of the tree.
func pickLanguage(root, requested string) (model.Language, error) {
	if requested != "" && requested != "auto" {
		return model.ParseLanguage(requested)
	}

	counts, err := gitrepo.DetectLanguages(root)
	if err != nil {
		return model.LanguageUnknown, fmt.Errorf("language detection failed: %w", err)
	}
	lang, ok := gitrepo.Primary(counts)
	if !ok {
		return model.LanguageUnknown, fmt.Errorf("no analyzable source files under %s", root)
	}

	log.Debug().Str("language", string(lang)).Str("root", root).Msg("detected primary language")
	return lang, nil
}

// completionSummary renders the one-line result that is announced over NATS.
func completionSummary(report *model.AnalysisReport) string {
	return fmt.Sprintf("Analyzed project %s: %d files, %d functions, %d classes, %d call edges",
		report.Project, report.FilesProcessed, report.Functions, report.Classes, report.CallEdges)
}

func completionTags(report *model.AnalysisReport) []string {
	return []string{"codeatlas", "analysis", report.Project, string(report.Language)}
}

// HealthReportWorker recomputes project health. It normally runs chained
// after an analysis, but handles directly queued jobs the same way.
type HealthReportWorker struct {
	*BaseWorker
	svc *analyzer.Service
}

func NewHealthReportWorker(base *BaseWorker, svc *analyzer.Service) *HealthReportWorker {
	w := &HealthReportWorker{BaseWorker: base, svc: svc}
	base.handler = w.handleJob
	return w
}

func (w *HealthReportWorker) Name() string { return "health_report" }

func (w *HealthReportWorker) handleJob(ctx context.Context, job *jobs.Job) error {
	var payload jobs.HealthReportPayload
	if err := job.GetPayload(&payload); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	if w.svc == nil {
		return fmt.Errorf("analyzer not configured")
	}

	log.Info().Str("project", payload.Project).Msg("generating health report")

	report, err := w.svc.HealthReport(ctx, payload.Project)
	if err != nil {
		return err
	}
	if report == nil {
		return fmt.Errorf("project %s not found", payload.Project)
	}

	log.Info().
		Str("project", payload.Project).
		Int("score", report.Score).
		Int("penalty", report.Penalty).
		Msg("health report ready")

	if err := w.Repository().Complete(ctx, job.ID, report); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	return nil
}

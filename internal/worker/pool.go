package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CodeAtlas-hq/codeatlas/internal/analyzer"
	"github.com/CodeAtlas-hq/codeatlas/internal/db"
	"github.com/CodeAtlas-hq/codeatlas/internal/gitrepo"
	"github.com/CodeAtlas-hq/codeatlas/internal/jobs"
	atlasnats "github.com/CodeAtlas-hq/codeatlas/internal/nats"
)

// WorkerType selects which job types a pool runs.
type WorkerType string

const (
	WorkerAnalysis     WorkerType = "analysis"
	WorkerHealthReport WorkerType = "health_report"
	WorkerAll          WorkerType = "all"
)

// Pool manages the set of workers one process runs.
type Pool struct {
	workerType WorkerType
	workers    []Worker
	nats       *atlasnats.Client
	repo       *jobs.Repository
	pipeline   *jobs.Pipeline
	analyzer   *analyzer.Service
	repos      *gitrepo.Service
}

// Worker is the interface all workers must implement.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// PoolConfig configures the worker pool.
type PoolConfig struct {
	WorkerType string
	DB         *db.DB
	NATS       *atlasnats.Client
	Analyzer   *analyzer.Service
	Repos      *gitrepo.Service
}

// NewPool creates a new worker pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	p := &Pool{
		workerType: WorkerType(cfg.WorkerType),
		workers:    make([]Worker, 0),
		nats:       cfg.NATS,
		analyzer:   cfg.Analyzer,
		repos:      cfg.Repos,
	}

	if cfg.DB != nil {
		p.repo = jobs.NewRepository(cfg.DB.Pool())
		p.pipeline = jobs.NewPipeline(p.repo, cfg.NATS)
	}

	if err := p.initWorkers(); err != nil {
		return nil, fmt.Errorf("failed to initialize workers: %w", err)
	}

	return p, nil
}

func (p *Pool) initWorkers() error {
	switch p.workerType {
	case WorkerAll:
		p.addWorker(jobs.JobTypeAnalysis)
		p.addWorker(jobs.JobTypeHealthReport)
	case WorkerAnalysis:
		p.addWorker(jobs.JobTypeAnalysis)
	case WorkerHealthReport:
		p.addWorker(jobs.JobTypeHealthReport)
	default:
		return fmt.Errorf("unknown worker type: %s", p.workerType)
	}

	return nil
}

func (p *Pool) addWorker(jobType jobs.JobType) {
	base := NewBaseWorker(BaseWorkerConfig{
		JobType:    jobType,
		Repository: p.repo,
		NATS:       p.nats,
		Pipeline:   p.pipeline,
	})

	var worker Worker
	switch jobType {
	case jobs.JobTypeAnalysis:
		worker = NewAnalysisWorker(base, p.analyzer, p.repos)
	case jobs.JobTypeHealthReport:
		worker = NewHealthReportWorker(base, p.analyzer)
	}

	if worker != nil {
		p.workers = append(p.workers, worker)
	}
}

// Run starts all workers plus the janitor and blocks until the context is
// cancelled or a worker fails.
func (p *Pool) Run(ctx context.Context) error {
	if len(p.workers) == 0 {
		return fmt.Errorf("no workers configured")
	}
	if p.repo == nil {
		return fmt.Errorf("no job repository configured")
	}

	// Set up NATS streams if connected.
	if p.nats != nil && p.nats.IsConnected() {
		if err := p.nats.SetupStreams(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to setup NATS streams, workers will poll the database")
		} else {
			log.Info().Msg("NATS streams configured")
		}
	}

	errCh := make(chan error, len(p.workers))

	for _, w := range p.workers {
		go func(worker Worker) {
			log.Info().Str("worker", worker.Name()).Msg("starting worker")
			if err := worker.Run(ctx); err != nil {
				errCh <- fmt.Errorf("worker %s failed: %w", worker.Name(), err)
			}
		}(w)
	}

	go p.janitor(ctx)

	select {
	case <-ctx.Done():
		log.Info().Msg("context cancelled, stopping workers")
		return nil
	case err := <-errCh:
		return err
	}
}

// janitor periodically requeues jobs whose worker died holding the lock and
// jobs parked in retrying.
func (p *Pool) janitor(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.repo.CleanupStale(ctx); err != nil {
				log.Warn().Err(err).Msg("stale job cleanup failed")
			} else if n > 0 {
				log.Info().Int("jobs", n).Msg("requeued stale jobs")
			}

			if p.pipeline != nil {
				if n, err := p.pipeline.RetryFailedJobs(ctx); err != nil {
					log.Warn().Err(err).Msg("retry sweep failed")
				} else if n > 0 {
					log.Info().Int("jobs", n).Msg("requeued retrying jobs")
				}
			}
		}
	}
}

// Pipeline returns the job pipeline manager.
func (p *Pool) Pipeline() *jobs.Pipeline {
	return p.pipeline
}

// Repository returns the job repository.
func (p *Pool) Repository() *jobs.Repository {
	return p.repo
}

// NATS returns the NATS client.
func (p *Pool) NATS() *atlasnats.Client {
	return p.nats
}

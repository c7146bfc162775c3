// Package worker runs queued jobs. Each worker consumes one job type,
// preferring JetStream delivery and falling back to database polling when
// NATS is absent, and holds an optimistic lock on the job it is processing.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/CodeAtlas-hq/codeatlas/internal/jobs"
	atlasnats "github.com/CodeAtlas-hq/codeatlas/internal/nats"
)

// BaseWorker provides the claim/process/ack loop shared by all workers.
type BaseWorker struct {
	workerID   string
	jobType    jobs.JobType
	repo       *jobs.Repository
	nats       *atlasnats.Client
	pipeline   *jobs.Pipeline
	consumer   jetstream.Consumer
	handler    JobHandler
	pollPeriod time.Duration
	lockTime   time.Duration
}

// JobHandler processes one claimed job. Returning an error marks the job
// failed (or retrying); a handler that succeeds is responsible for calling
// Complete with its result.
type JobHandler func(ctx context.Context, job *jobs.Job) error

// BaseWorkerConfig configures a base worker.
type BaseWorkerConfig struct {
	WorkerID   string
	JobType    jobs.JobType
	Repository *jobs.Repository
	NATS       *atlasnats.Client
	Pipeline   *jobs.Pipeline
	Handler    JobHandler
}

// NewBaseWorker creates a new base worker.
func NewBaseWorker(cfg BaseWorkerConfig) *BaseWorker {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = fmt.Sprintf("%s-%s", cfg.JobType, uuid.New().String()[:8])
	}

	return &BaseWorker{
		workerID:   workerID,
		jobType:    cfg.JobType,
		repo:       cfg.Repository,
		nats:       cfg.NATS,
		pipeline:   cfg.Pipeline,
		handler:    cfg.Handler,
		pollPeriod: 5 * time.Second,
		lockTime:   5 * time.Minute,
	}
}

// Run starts the worker processing loop and blocks until ctx is cancelled.
func (w *BaseWorker) Run(ctx context.Context) error {
	if w.repo == nil {
		return fmt.Errorf("worker %s has no job repository", w.workerID)
	}

	logger := log.With().
		Str("worker_id", w.workerID).
		Str("job_type", string(w.jobType)).
		Logger()

	// Prefer JetStream delivery when a consumer is reachable.
	if w.nats != nil && w.nats.IsConnected() {
		consumerName := atlasnats.ConsumerForJobType(string(w.jobType))
		consumer, err := w.nats.JetStream().Consumer(ctx, atlasnats.StreamJobs, consumerName)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to get consumer, falling back to polling")
		} else {
			w.consumer = consumer
			logger.Info().Msg("connected to NATS consumer")
		}
	}

	logger.Info().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopping")
			return nil
		default:
			if err := w.processNext(ctx); err != nil {
				logger.Error().Err(err).Msg("error processing job")
			}
		}
	}
}

// processNext fetches and processes the next available job.
func (w *BaseWorker) processNext(ctx context.Context) error {
	if w.consumer != nil {
		return w.processFromNATS(ctx)
	}
	return w.processFromDB(ctx)
}

// processFromNATS takes one message off the consumer. The message only tells
// us which job to run; the claim against the database stays authoritative, so
// a job another worker already grabbed is acked and skipped.
func (w *BaseWorker) processFromNATS(ctx context.Context) error {
	msgs, err := w.consumer.Fetch(1, jetstream.FetchMaxWait(w.pollPeriod))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return fmt.Errorf("failed to fetch from NATS: %w", err)
	}

	for msg := range msgs.Messages() {
		jobMsg, err := jobs.DecodeJobMessage(msg.Data())
		if err != nil {
			log.Error().Err(err).Msg("failed to decode job message")
			msg.Nak()
			continue
		}

		job, err := w.repo.Claim(ctx, jobMsg.JobID, w.workerID, w.lockTime)
		if err != nil {
			log.Error().Err(err).Str("job_id", jobMsg.JobID.String()).Msg("failed to claim job")
			msg.Nak()
			continue
		}

		if job == nil {
			// Already claimed by another worker.
			msg.Ack()
			continue
		}

		if err := w.processJob(ctx, job); err != nil {
			log.Error().Err(err).Str("job_id", job.ID.String()).Msg("job processing failed")
		}

		msg.Ack()
	}

	if msgs.Error() != nil && !errors.Is(msgs.Error(), context.DeadlineExceeded) {
		return msgs.Error()
	}

	return nil
}

// processFromDB polls the database for pending jobs.
func (w *BaseWorker) processFromDB(ctx context.Context) error {
	pendingJobs, err := w.repo.ListPendingByType(ctx, w.jobType, 1)
	if err != nil {
		return fmt.Errorf("failed to list pending jobs: %w", err)
	}

	if len(pendingJobs) == 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.pollPeriod):
			return nil
		}
	}

	for _, pending := range pendingJobs {
		job, err := w.repo.Claim(ctx, pending.ID, w.workerID, w.lockTime)
		if err != nil {
			log.Warn().Err(err).Str("job_id", pending.ID.String()).Msg("failed to claim job")
			continue
		}

		if job == nil {
			continue
		}

		if err := w.processJob(ctx, job); err != nil {
			log.Error().Err(err).Str("job_id", job.ID.String()).Msg("job processing failed")
		}
	}

	return nil
}

// processJob executes the handler under a deadline shorter than the lock, so
// a hung handler is cancelled before another worker can legally reclaim the
// job it still holds.
func (w *BaseWorker) processJob(ctx context.Context, job *jobs.Job) error {
	logger := log.With().
		Str("worker_id", w.workerID).
		Str("job_id", job.ID.String()).
		Str("job_type", string(job.Type)).
		Logger()

	logger.Info().Msg("processing job")

	jobCtx, cancel := context.WithTimeout(ctx, w.lockTime-30*time.Second)
	defer cancel()

	done := make(chan struct{})
	go w.extendLockPeriodically(ctx, job.ID, done)

	err := w.handler(jobCtx, job)

	close(done)

	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		if failErr := w.repo.Fail(ctx, job.ID, err.Error()); failErr != nil {
			logger.Error().Err(failErr).Msg("failed to mark job as failed")
		}
		return err
	}

	logger.Info().Msg("job completed")
	return nil
}

// extendLockPeriodically renews the lock while the handler runs.
func (w *BaseWorker) extendLockPeriodically(ctx context.Context, jobID uuid.UUID, done chan struct{}) {
	ticker := time.NewTicker(w.lockTime / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.repo.ExtendLock(ctx, jobID, w.workerID, w.lockTime); err != nil {
				log.Warn().Err(err).Str("job_id", jobID.String()).Msg("failed to extend lock")
			}
		}
	}
}

// WorkerID returns the worker's unique ID.
func (w *BaseWorker) WorkerID() string {
	return w.workerID
}

// JobType returns the job type this worker handles.
func (w *BaseWorker) JobType() jobs.JobType {
	return w.jobType
}

// SetPollPeriod sets the polling interval.
func (w *BaseWorker) SetPollPeriod(d time.Duration) {
	w.pollPeriod = d
}

// SetLockTime sets the job lock duration.
func (w *BaseWorker) SetLockTime(d time.Duration) {
	w.lockTime = d
}

// Repository returns the job repository.
func (w *BaseWorker) Repository() *jobs.Repository {
	return w.repo
}

// Pipeline returns the pipeline manager.
func (w *BaseWorker) Pipeline() *jobs.Pipeline {
	return w.pipeline
}

// Package worker runs the background loops: queued job processing and the
// periodic sweep of expired lead sessions.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/pkg/queue"
)

// Source is where jobs come from and go back to on failure.
type Source interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Processor handles one job. A returned error sends the job back for retry.
type Processor interface {
	Process(ctx context.Context, job *queue.Job) error
}

// Runner pulls jobs from a Source and hands them to a Processor.
type Runner struct {
	source    Source
	processor Processor
	poll      time.Duration
	backoff   time.Duration
	logger    *zap.Logger
}

// NewRunner creates a job runner with the queue's default backoff.
func NewRunner(source Source, processor Processor, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		source:    source,
		processor: processor,
		poll:      5 * time.Second,
		backoff:   queue.RetryBackoff,
		logger:    logger,
	}
}

// WithBackoff overrides the pause after a failed job or dequeue error.
func (r *Runner) WithBackoff(d time.Duration) *Runner {
	r.backoff = d
	return r
}

// WithPoll overrides how long one dequeue blocks waiting for work.
func (r *Runner) WithPoll(d time.Duration) *Runner {
	r.poll = d
	return r
}

// Run loops until ctx is cancelled: dequeue, process, retry on error.
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			return
		default:
		}

		job, err := r.source.Dequeue(ctx, r.poll)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.logger.Warn("dequeue error", zap.Error(err))
			r.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}
		r.RunOnce(ctx, job)
	}
}

// RunOnce processes a single job and requeues it if processing fails.
// It reports whether the job succeeded.
func (r *Runner) RunOnce(ctx context.Context, job *queue.Job) bool {
	r.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	err := r.processor.Process(ctx, job)
	if err == nil {
		return true
	}
	r.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
	if reErr := r.source.Retry(ctx, job); reErr != nil {
		r.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
	}
	r.sleep(ctx)
	return false
}

func (r *Runner) sleep(ctx context.Context) {
	t := time.NewTimer(r.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Sweeper deletes expired bindings.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// RunSweeper calls s.Sweep once immediately and then every interval until ctx ends.
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := s.Sweep(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("session sweep failed", zap.Error(err))
		case n > 0:
			logger.Info("expired sessions swept", zap.Int64("deleted", n))
		}
		select {
		case <-ctx.Done():
			logger.Info("session sweeper stopping")
			return
		case <-ticker.C:
		}
	}
}

package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Priya8975/trackflow/internal/engine"
)

type JobProcessor interface {
	Process(ctx context.Context, job engine.Job) error
}

type JobForwarder interface {
	Forward(ctx context.Context, job engine.Job)
}

// Pool manages a fixed number of worker goroutines that run queued jobs.
// Ingest jobs go to the processor, forward jobs to the forwarder.
type Pool struct {
	numWorkers int
	jobs       chan engine.Job
	processor  JobProcessor
	forwarder  JobForwarder
	queue      Enqueuer
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool. A nil forwarder drops forward jobs. The
// queue is used to retry failed ingest jobs.
func NewPool(numWorkers int, processor JobProcessor, forwarder JobForwarder, queue Enqueuer, logger *slog.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan engine.Job, numWorkers*2),
		processor:  processor,
		forwarder:  forwarder,
		queue:      queue,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit sends a job to the worker pool. It blocks while all workers are
// busy and the buffer is full.
func (p *Pool) Submit(job engine.Job) {
	p.jobs <- job
}

// Stop closes the jobs channel and waits for all workers to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case <-ctx.Done():
			return
		default:
			p.run(ctx, job)
		}
	}
}

func (p *Pool) run(ctx context.Context, job engine.Job) {
	switch job.Kind {
	case engine.JobIngest:
		err := p.processor.Process(ctx, job)
		if err == nil {
			return
		}
		if job.Exhausted() {
			p.logger.Error("ingest failed permanently", "job_id", job.ID, "attempts", job.Attempt, "error", err)
			return
		}
		delay := engine.Backoff(job.Attempt)
		p.logger.Warn("ingest failed, retrying", "job_id", job.ID, "attempt", job.Attempt, "retry_in", delay.String(), "error", err)
		if err := p.queue.Enqueue(ctx, job.Retry(), time.Now().Add(delay)); err != nil {
			p.logger.Error("failed to requeue ingest job", "job_id", job.ID, "error", err)
		}

	case engine.JobForward:
		if p.forwarder == nil {
			p.logger.Warn("forward job dropped, no crm webhook configured", "job_id", job.ID)
			return
		}
		p.forwarder.Forward(ctx, job)

	default:
		p.logger.Error("unknown job kind", "job_id", job.ID, "kind", job.Kind)
	}
}

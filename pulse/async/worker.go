package async

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trailhq/jobtrail/errors"
)

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers      int           `json:"workers"`       // Number of concurrent workers
	PollInterval time.Duration `json:"poll_interval"` // How often to check for new jobs
	ReapInterval time.Duration `json:"reap_interval"` // How often to sweep for abandoned jobs
	StopTimeout  time.Duration `json:"stop_timeout"`  // How long Stop waits for in-flight jobs
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      1,
		PollInterval: 5 * time.Second,
		ReapInterval: time.Minute,
		StopTimeout:  30 * time.Second,
	}
}

// WorkerPool runs workers that poll the queue and execute jobs through
// registered handlers. Workers are context-cancellable; Stop waits for
// in-flight jobs up to a timeout and then returns, leaving the TTL reaper
// to recover anything that was cut off.
type WorkerPool struct {
	queue     *Queue
	registry  *HandlerRegistry
	config    WorkerPoolConfig
	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *zap.SugaredLogger
	mu        sync.Mutex
}

// NewWorkerPool creates a worker pool. Callers must register handlers on
// the registry before calling Start.
func NewWorkerPool(ctx context.Context, db *sql.DB, cfg WorkerPoolConfig, logger *zap.SugaredLogger, registry *HandlerRegistry) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWorkerPoolConfig().PollInterval
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultWorkerPoolConfig().ReapInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultWorkerPoolConfig().StopTimeout
	}

	workerCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		queue:     NewQueue(db, logger),
		registry:  registry,
		config:    cfg,
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		logger:    logger.Named("pulse"),
	}
}

// Queue exposes the pool's queue so callers share one single-flight view.
func (wp *WorkerPool) Queue() *Queue {
	return wp.queue
}

// Start sweeps for jobs abandoned by a previous crash, then begins
// processing with the configured number of workers.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	// Recreate the context if a previous Stop cancelled it, so the pool
	// can be restarted.
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
	default:
	}
	ctx := wp.ctx
	wp.mu.Unlock()

	if requeued, err := wp.queue.ReapAbandoned(); err != nil {
		wp.logger.Warnw("Startup abandoned-job sweep failed", "error", err)
	} else if requeued > 0 {
		wp.logger.Infow("Recovered jobs abandoned by previous run", "count", requeued)
	}

	for i := 0; i < wp.config.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}

	wp.wg.Add(1)
	go wp.reaper(ctx)

	wp.logger.Infow("Worker pool started",
		"workers", wp.config.Workers,
		"poll_interval", wp.config.PollInterval)
}

// Stop cancels the workers and waits for in-flight jobs up to the
// configured timeout. Jobs still running after the timeout are left to
// the TTL reaper on the next start.
func (wp *WorkerPool) Stop() {
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Infow("Worker pool stopped cleanly")
	case <-time.After(wp.config.StopTimeout):
		wp.logger.Warnw("Worker pool stop timed out; abandoned jobs will be reaped",
			"timeout", wp.config.StopTimeout)
	}
}

// worker polls the queue until the context is cancelled.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wp.processNextJob(ctx); err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if errors.Is(err, sql.ErrConnDone) {
					return
				}
				wp.logger.Errorw("Worker error processing job",
					"worker_id", id, "error", err)
			}
		}
	}
}

// processNextJob dequeues and executes one job. An empty queue is not an
// error. Handler failures fail the job, not the worker.
func (wp *WorkerPool) processNextJob(ctx context.Context) error {
	job, err := wp.queue.Dequeue()
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	handler := wp.registry.Get(job.HandlerName)
	if handler == nil {
		return wp.queue.Fail(job, errors.Newf("no handler registered for %s", job.HandlerName))
	}

	wp.logger.Infow("Processing job", "job_id", job.ID, "handler", job.HandlerName)

	if err := handler.Execute(ctx, job); err != nil {
		return wp.queue.Fail(job, err)
	}
	return wp.queue.Complete(job)
}

// reaper periodically re-queues jobs whose workers died mid-run.
func (wp *WorkerPool) reaper(ctx context.Context) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if requeued, err := wp.queue.ReapAbandoned(); err != nil {
				wp.logger.Warnw("Abandoned-job sweep failed", "error", err)
			} else if requeued > 0 {
				wp.logger.Infow("Requeued abandoned jobs", "count", requeued)
			}
		}
	}
}

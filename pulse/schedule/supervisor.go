// Package schedule runs the supervision loop that keeps reminder
// processing alive. The supervisor does not deliver anything itself; it
// only guarantees that exactly one processing job exists in the queue at
// any time, so a crashed worker costs one tick of delay, never lost work.
package schedule

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trailhq/jobtrail/errors"
	"github.com/trailhq/jobtrail/pulse/async"
)

// SupervisorConfig contains configuration for the supervision loop.
type SupervisorConfig struct {
	Interval    time.Duration   // How often to check the queue (default: 60 seconds)
	HandlerName string          // The single-flight handler to keep fed
	JobTTL      time.Duration   // TTL for enqueued jobs
	Payload     json.RawMessage // Payload for enqueued jobs, handler-owned
}

// DefaultSupervisorConfig returns sensible defaults for the given handler.
func DefaultSupervisorConfig(handlerName string) SupervisorConfig {
	return SupervisorConfig{
		Interval:    60 * time.Second,
		HandlerName: handlerName,
		JobTTL:      async.DefaultJobTTL,
	}
}

// Supervisor ticks on a fixed interval and enqueues one job for its
// handler whenever none is queued or running. Paired with the queue's
// single-flight restriction, this holds processing at exactly one
// instance: never zero for longer than a tick, never two at once.
type Supervisor struct {
	queue  *async.Queue
	config SupervisorConfig
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger

	mu         sync.Mutex
	lastTickAt time.Time
	stats      SupervisorStats
}

// SupervisorStats counts what the loop has done since Start.
type SupervisorStats struct {
	Ticks     int64 `json:"ticks"`
	Enqueued  int64 `json:"enqueued"`
	TickFails int64 `json:"tick_fails"`
}

// NewSupervisor creates a supervisor over the given queue. The handler is
// registered as single-flight here so every enqueue path shares the
// restriction.
func NewSupervisor(ctx context.Context, queue *async.Queue, cfg SupervisorConfig, logger *zap.SugaredLogger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSupervisorConfig(cfg.HandlerName).Interval
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = async.DefaultJobTTL
	}

	queue.RestrictConcurrency(cfg.HandlerName)

	supCtx, cancel := context.WithCancel(ctx)
	return &Supervisor{
		queue:  queue,
		config: cfg,
		ctx:    supCtx,
		cancel: cancel,
		logger: logger.Named("supervisor"),
	}
}

// Start begins the supervision loop. The first check runs immediately so
// a fresh process does not wait a full interval before any delivery.
func (s *Supervisor) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Infow("Supervisor started",
		"handler", s.config.HandlerName,
		"interval", s.config.Interval)
}

// Stop gracefully stops the supervision loop.
func (s *Supervisor) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Infow("Supervisor stopped")
}

func (s *Supervisor) run() {
	defer s.wg.Done()

	if err := s.tick(time.Now()); err != nil {
		s.logger.Warnw("Supervisor tick error", "error", err)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case tickTime := <-ticker.C:
			if err := s.tick(tickTime); err != nil {
				s.logger.Warnw("Supervisor tick error", "error", err)
			}
		}
	}
}

// tick enqueues one job if the handler has nothing queued or running.
func (s *Supervisor) tick(at time.Time) error {
	s.mu.Lock()
	s.lastTickAt = at
	s.stats.Ticks++
	s.mu.Unlock()

	inFlight, err := s.queue.HasActiveOrPending(s.config.HandlerName)
	if err != nil {
		s.countTickFail()
		return errors.Wrap(err, "failed to check queue for in-flight job")
	}
	if inFlight {
		return nil
	}

	job, err := async.NewJob(s.config.HandlerName, s.config.Payload, s.config.JobTTL)
	if err != nil {
		s.countTickFail()
		return err
	}

	if err := s.queue.Enqueue(job); err != nil {
		// Lost the race against another enqueuer; the slot is filled,
		// which is all the supervisor wants.
		if errors.Is(err, errors.ErrConflict) {
			return nil
		}
		s.countTickFail()
		return err
	}

	s.mu.Lock()
	s.stats.Enqueued++
	s.mu.Unlock()

	s.logger.Debugw("Enqueued processing job", "job_id", job.ID, "handler", s.config.HandlerName)
	return nil
}

func (s *Supervisor) countTickFail() {
	s.mu.Lock()
	s.stats.TickFails++
	s.mu.Unlock()
}

// Stats returns a snapshot of loop counters plus the last tick time.
func (s *Supervisor) Stats() (SupervisorStats, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, s.lastTickAt
}

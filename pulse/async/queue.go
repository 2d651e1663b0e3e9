package async

import (
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trailhq/jobtrail/errors"
)

// SubscriberChannelBufferSize is the buffer size for subscriber channels.
const SubscriberChannelBufferSize = 100

// Queue is the durable work queue. All mutations go through the store so
// queued work survives process restarts; the mutex serializes the
// check-then-insert of single-flight handlers and the subscriber list.
type Queue struct {
	store  *Store
	logger *zap.SugaredLogger

	mu           sync.Mutex
	singleFlight map[string]bool
	subscribers  []chan *Job
}

// NewQueue creates a job queue over the given database.
func NewQueue(db *sql.DB, logger *zap.SugaredLogger) *Queue {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Queue{
		store:        NewStore(db),
		logger:       logger.Named("queue"),
		singleFlight: make(map[string]bool),
		subscribers:  make([]chan *Job, 0),
	}
}

// Subscribe returns a channel that receives every job state change:
// enqueued, started, completed, failed. Completion and failure carry the
// job's final state even though its row is already gone.
func (q *Queue) Subscribe() chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize) // Buffered to avoid blocking
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the queue.
// The channel is NOT closed by this method - callers should close it themselves
// after unsubscribing if needed. This prevents double-close panics.
func (q *Queue) Unsubscribe(ch chan *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends job updates to all subscribers.
// REQUIRES: q.mu must be held by caller.
// Uses non-blocking send to avoid stalling if a subscriber is slow.
func (q *Queue) notifySubscribers(job *Job) {
	for _, ch := range q.subscribers {
		select {
		case ch <- job:
			// Sent successfully
		default:
			// Channel full, skip (non-blocking)
		}
	}
}

// RestrictConcurrency marks a handler as single-flight: Enqueue refuses a
// second job for it while one is pending or active. The reminder
// processing handler runs this way so delivery passes never overlap.
func (q *Queue) RestrictConcurrency(handlerName string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.singleFlight[handlerName] = true
}

// Enqueue adds a new job to the queue.
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.singleFlight[job.HandlerName] {
		inFlight, err := q.store.CountActiveOrPending(job.HandlerName)
		if err != nil {
			return err
		}
		if inFlight > 0 {
			err := errors.Wrapf(errors.ErrConflict,
				"handler %s already has a job queued or running", job.HandlerName)
			err = errors.WithDetailf(err, "Job ID: %s", job.ID)
			return err
		}
	}

	if err := q.store.CreateJob(job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetailf(err, "Job ID: %s", job.ID)
		err = errors.WithDetailf(err, "Handler: %s", job.HandlerName)
		return err
	}

	q.notifySubscribers(job)
	q.logger.Debugw("Job enqueued", "job_id", job.ID, "handler", job.HandlerName)
	return nil
}

// Dequeue gets the oldest pending job and marks it active. Returns
// (nil, nil) when the queue is empty.
func (q *Queue) Dequeue() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := JobStatusPending
	jobs, err := q.store.ListJobs(&pending, 1)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pending jobs")
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	job := jobs[0]
	job.Start()

	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to mark job as active")
		err = errors.WithDetailf(err, "Job ID: %s", job.ID)
		err = errors.WithDetailf(err, "Handler: %s", job.HandlerName)
		return nil, err
	}
	q.notifySubscribers(job)
	return job, nil
}

// Complete marks the job completed and deletes its row; finished jobs
// leave no metadata behind.
func (q *Queue) Complete(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.Complete()
	if err := q.store.DeleteJob(job.ID); err != nil {
		return errors.Wrapf(err, "failed to clean up completed job %s", job.ID)
	}
	q.notifySubscribers(job)
	q.logger.Infow("Job completed", "job_id", job.ID, "handler", job.HandlerName)
	return nil
}

// Fail marks the job failed, logs the cause, and deletes its row. The
// supervisor will enqueue a fresh job on its next tick; failed runs are
// not retried in place.
func (q *Queue) Fail(job *Job, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.Fail(cause)
	if err := q.store.DeleteJob(job.ID); err != nil {
		return errors.Wrapf(err, "failed to clean up failed job %s", job.ID)
	}
	q.notifySubscribers(job)
	q.logger.Errorw("Job failed",
		"job_id", job.ID,
		"handler", job.HandlerName,
		"error", cause)
	return nil
}

// HasActiveOrPending reports whether the handler has in-flight work.
func (q *Queue) HasActiveOrPending(handlerName string) (bool, error) {
	count, err := q.store.CountActiveOrPending(handlerName)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ReapAbandoned re-queues active jobs whose TTL elapsed, which means the
// worker that started them died mid-run. Re-running possibly partially
// finished work is accepted; delivery marks each reminder sent in its own
// transaction, so a re-run skips what already went out.
func (q *Queue) ReapAbandoned() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	abandoned, err := q.store.ListAbandoned(time.Now())
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, job := range abandoned {
		job.Requeue()
		if err := q.store.UpdateJob(job); err != nil {
			q.logger.Warnw("Failed to requeue abandoned job", "job_id", job.ID, "error", err)
			continue
		}
		q.notifySubscribers(job)
		q.logger.Warnw("Requeued abandoned job",
			"job_id", job.ID,
			"handler", job.HandlerName,
			"ttl", job.TTL)
		requeued++
	}
	return requeued, nil
}

// QueueStats is a point-in-time snapshot of queue depth by status.
type QueueStats struct {
	Pending int `json:"pending"`
	Active  int `json:"active"`
}

// Stats returns current queue depth. Completed and failed rows are
// deleted on the spot, so only in-flight states ever show up.
func (q *Queue) Stats() (QueueStats, error) {
	counts, err := q.store.CountByStatus()
	if err != nil {
		return QueueStats{}, err
	}
	return QueueStats{
		Pending: counts[JobStatusPending],
		Active:  counts[JobStatusActive],
	}, nil
}

// Package async provides the durable job queue backing reminder delivery.
//
// Jobs are persisted rows, not goroutines: a crash leaves the row behind
// and the TTL reaper re-queues it, so work survives restarts at
// at-least-once semantics. Completed and failed jobs are deleted
// immediately; the table only ever holds in-flight work.
package async

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trailhq/jobtrail/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusActive, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// DefaultJobTTL bounds how long an active job may run before the reaper
// treats it as abandoned and re-queues it.
const DefaultJobTTL = 10 * time.Minute

// Job is one unit of queued work. HandlerName routes it to a registered
// handler; Payload is handler-owned JSON the infrastructure never decodes.
type Job struct {
	ID          string          `json:"id"`
	HandlerName string          `json:"handler_name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      JobStatus       `json:"status"`
	Error       string          `json:"error,omitempty"`
	TTL         time.Duration   `json:"ttl"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewJob creates a pending job for the named handler. A zero ttl gets
// DefaultJobTTL.
func NewJob(handlerName string, payload json.RawMessage, ttl time.Duration) (*Job, error) {
	if handlerName == "" {
		return nil, errors.New("handlerName cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}

	now := time.Now()
	return &Job{
		ID:          "JOB_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		HandlerName: handlerName,
		Payload:     payload,
		Status:      JobStatusPending,
		TTL:         ttl,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Start marks the job as active
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusActive
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job as completed
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as failed with an error message
func (j *Job) Fail(err error) {
	now := time.Now()
	j.Status = JobStatusFailed
	if err != nil {
		j.Error = err.Error()
	}
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Requeue resets an abandoned job to pending so a worker can pick it up
// again.
func (j *Job) Requeue() {
	j.Status = JobStatusPending
	j.StartedAt = nil
	j.Error = ""
	j.UpdatedAt = time.Now()
}

// Abandoned reports whether the job has been active past its TTL,
// meaning the worker that started it likely died.
func (j *Job) Abandoned(now time.Time) bool {
	if j.Status != JobStatusActive || j.StartedAt == nil {
		return false
	}
	return now.Sub(*j.StartedAt) > j.TTL
}

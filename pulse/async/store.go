package async

import (
	"database/sql"
	"time"

	"github.com/trailhq/jobtrail/errors"
)

// Store handles persistence of queued jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a new job into the database
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO pulse_jobs (
			id, handler_name, payload, status, error, ttl_seconds,
			created_at, started_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	payload := sql.NullString{String: string(job.Payload), Valid: len(job.Payload) > 0}
	errMsg := sql.NullString{String: job.Error, Valid: job.Error != ""}

	_, err := s.db.Exec(query,
		job.ID,
		job.HandlerName,
		payload,
		job.Status,
		errMsg,
		int64(job.TTL/time.Second),
		job.CreatedAt.UTC().Format(timeLayout),
		formatNullTime(job.StartedAt),
		formatNullTime(job.CompletedAt),
		job.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + ` FROM pulse_jobs WHERE id = ?`

	var job Job
	args := GetJobScanArgs()
	err := s.db.QueryRow(query, id).Scan(GetJobScanTargets(&job, args)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}

	if err := ProcessJobScanArgs(&job, args); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJob updates an existing job in the database
func (s *Store) UpdateJob(job *Job) error {
	query := `
		UPDATE pulse_jobs
		SET status = ?, error = ?, started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	errMsg := sql.NullString{String: job.Error, Valid: job.Error != ""}

	res, err := s.db.Exec(query,
		job.Status,
		errMsg,
		formatNullTime(job.StartedAt),
		formatNullTime(job.CompletedAt),
		job.UpdatedAt.UTC().Format(timeLayout),
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("job %s", job.ID)
	}
	return nil
}

// DeleteJob removes a job row. Deleting an already-deleted job is not an
// error; completion and failure paths race with the reaper.
func (s *Store) DeleteJob(id string) error {
	_, err := s.db.Exec(`DELETE FROM pulse_jobs WHERE id = ?`, id)
	return errors.Wrap(err, "failed to delete job")
}

// ListJobs returns jobs, optionally filtered by status, oldest first.
func (s *Store) ListJobs(status *JobStatus, limit int) ([]*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + ` FROM pulse_jobs`
	var args []interface{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var job Job
		if err := ScanJobFromRows(rows, &job); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating jobs")
	}
	return jobs, nil
}

// CountActiveOrPending returns how many jobs for a handler are still
// in-flight. The queue uses this to enforce single-flight handlers.
func (s *Store) CountActiveOrPending(handlerName string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM pulse_jobs
		 WHERE handler_name = ? AND status IN (?, ?)`,
		handlerName, JobStatusPending, JobStatusActive,
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count in-flight jobs for %s", handlerName)
	}
	return count, nil
}

// CountByStatus returns job counts keyed by status.
func (s *Store) CountByStatus() (map[JobStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM pulse_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs by status")
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[status] = count
	}
	return counts, errors.Wrap(rows.Err(), "error iterating job counts")
}

// ListAbandoned returns active jobs whose TTL has elapsed since they
// started. The TTL comparison happens in Go; the table is small.
func (s *Store) ListAbandoned(now time.Time) ([]*Job, error) {
	active := JobStatusActive
	jobs, err := s.ListJobs(&active, 0)
	if err != nil {
		return nil, err
	}

	var abandoned []*Job
	for _, job := range jobs {
		if job.Abandoned(now) {
			abandoned = append(abandoned, job)
		}
	}
	return abandoned, nil
}

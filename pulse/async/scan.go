package async

import (
	"database/sql"
	"time"

	"github.com/trailhq/jobtrail/errors"
)

// timeLayout is the storage format for job timestamp columns.
const timeLayout = time.RFC3339

// JobScanArgs holds the nullable columns of a job row.
type JobScanArgs struct {
	Payload     sql.NullString
	ErrorMsg    sql.NullString
	TTLSeconds  int64
	CreatedAt   string
	StartedAt   sql.NullString
	CompletedAt sql.NullString
	UpdatedAt   string
}

// GetJobScanArgs returns a JobScanArgs struct with all variables ready for scanning
func GetJobScanArgs() *JobScanArgs {
	return &JobScanArgs{}
}

// GetJobScanTargets returns scan destinations for the job and scan args,
// in the order expected by the standard job SELECT query
func GetJobScanTargets(job *Job, args *JobScanArgs) []interface{} {
	return []interface{}{
		&job.ID,
		&job.HandlerName,
		&args.Payload,
		&job.Status,
		&args.ErrorMsg,
		&args.TTLSeconds,
		&args.CreatedAt,
		&args.StartedAt,
		&args.CompletedAt,
		&args.UpdatedAt,
	}
}

// ProcessJobScanArgs processes the scanned arguments and populates the job struct.
func ProcessJobScanArgs(job *Job, args *JobScanArgs) error {
	if args.Payload.Valid {
		job.Payload = []byte(args.Payload.String)
	}
	if args.ErrorMsg.Valid {
		job.Error = args.ErrorMsg.String
	}
	job.TTL = time.Duration(args.TTLSeconds) * time.Second

	createdAt, err := time.Parse(timeLayout, args.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "parse created_at for job %s", job.ID)
	}
	job.CreatedAt = createdAt

	updatedAt, err := time.Parse(timeLayout, args.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "parse updated_at for job %s", job.ID)
	}
	job.UpdatedAt = updatedAt

	if args.StartedAt.Valid {
		t, err := time.Parse(timeLayout, args.StartedAt.String)
		if err != nil {
			return errors.Wrapf(err, "parse started_at for job %s", job.ID)
		}
		job.StartedAt = &t
	}
	if args.CompletedAt.Valid {
		t, err := time.Parse(timeLayout, args.CompletedAt.String)
		if err != nil {
			return errors.Wrapf(err, "parse completed_at for job %s", job.ID)
		}
		job.CompletedAt = &t
	}

	return nil
}

// ScanJobFromRows scans a single job from sql.Rows (for use in loops)
func ScanJobFromRows(rows *sql.Rows, job *Job) error {
	args := GetJobScanArgs()
	if err := rows.Scan(GetJobScanTargets(job, args)...); err != nil {
		return err
	}
	return ProcessJobScanArgs(job, args)
}

// StandardJobSelectColumns returns the standard column list for job SELECT queries
func StandardJobSelectColumns() string {
	return `id, handler_name, payload, status, error, ttl_seconds,
		created_at, started_at, completed_at, updated_at`
}

func formatNullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

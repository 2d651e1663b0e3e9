package remind

import (
	"context"
	"database/sql"
	"time"

	"github.com/trailhq/jobtrail/errors"
	"github.com/trailhq/jobtrail/moment"
	"github.com/trailhq/jobtrail/track"
)

// DueReminder is one deliverable reminder joined to its owner and
// candidate: everything a send needs in a single row.
type DueReminder struct {
	ReminderID        string
	Kind              track.ReminderKind
	Due               moment.Moment
	CandidateID       string
	CandidateEmail    string
	CandidateTimezone string
	Company           string
	RoleTitle         string
	InterviewAt       moment.NullMoment // interview categories only
}

// Store runs the delivery-side queries. It reads across the entity tables
// directly; writes are limited to stamping sent_at.
type Store struct {
	db *sql.DB
}

// NewStore creates a delivery store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// statusForKind returns the application status a reminder kind fires
// under. Joining on the current status means transitioned or archived
// applications drop out of delivery without touching their reminders.
func statusForKind(kind track.ReminderKind) track.ApplicationStatus {
	switch kind {
	case track.ReminderSavedForLater:
		return track.StatusSavedForLater
	case track.ReminderWaitingForResponse:
		return track.StatusWaitingForResponse
	case track.ReminderReceivedOffer:
		return track.StatusReceivedOffer
	default:
		return ""
	}
}

// ListDueApplicationReminders returns due, enabled, unsent reminders of
// one application kind whose application still holds the matching status,
// earliest due first, capped at limit.
func (s *Store) ListDueApplicationReminders(ctx context.Context, kind track.ReminderKind, now time.Time, limit int) ([]*DueReminder, error) {
	status := statusForKind(kind)
	if status == "" {
		return nil, errors.Newf("kind %s is not an application reminder kind", kind)
	}

	query := `
		SELECT r.id, r.kind, r.due_datetime, r.due_timezone,
		       c.id, c.email, c.timezone,
		       a.company, a.role_title
		FROM application_reminders r
		JOIN applications a ON a.id = r.application_id AND a.status = ?
		JOIN candidates c ON c.id = r.candidate_id
		WHERE r.kind = ?
		  AND r.is_enabled = 1
		  AND r.sent_at IS NULL
		  AND r.due_datetime IS NOT NULL
		  AND r.due_datetime <= ?
		ORDER BY r.due_datetime ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, status, kind, cutoff(now), limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list due %s reminders", kind)
	}
	defer rows.Close()

	return scanDueReminders(rows, false)
}

// ListDueInterviewReminders returns due, enabled, unsent pre or post
// interview reminders. Unlike the application categories these do not pin
// a single status: the post-interview reminder fires after the interview
// has passed, whatever the application moved to since. Only archiving
// silences them.
func (s *Store) ListDueInterviewReminders(ctx context.Context, kind track.ReminderKind, now time.Time, limit int) ([]*DueReminder, error) {
	if track.OwnerKindOf(kind) != track.OwnerInterview {
		return nil, errors.Newf("kind %s is not an interview reminder kind", kind)
	}

	query := `
		SELECT r.id, r.kind, r.due_datetime, r.due_timezone,
		       c.id, c.email, c.timezone,
		       a.company, a.role_title,
		       i.interview_datetime, i.interview_timezone
		FROM interview_reminders r
		JOIN interviews i ON i.id = r.interview_id
		JOIN applications a ON a.id = i.application_id AND a.status != ?
		JOIN candidates c ON c.id = r.candidate_id
		WHERE r.kind = ?
		  AND r.is_enabled = 1
		  AND r.sent_at IS NULL
		  AND r.due_datetime IS NOT NULL
		  AND r.due_datetime <= ?
		ORDER BY r.due_datetime ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, track.StatusArchived, kind, cutoff(now), limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list due %s reminders", kind)
	}
	defer rows.Close()

	return scanDueReminders(rows, true)
}

// cutoff renders now in the stored column format; due strings are UTC
// RFC3339, so the string comparison matches instant order.
func cutoff(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}

func scanDueReminders(rows *sql.Rows, withInterview bool) ([]*DueReminder, error) {
	var due []*DueReminder
	for rows.Next() {
		var d DueReminder
		var dueDT, dueTZ sql.NullString
		var ivDT, ivTZ sql.NullString

		targets := []interface{}{
			&d.ReminderID, &d.Kind, &dueDT, &dueTZ,
			&d.CandidateID, &d.CandidateEmail, &d.CandidateTimezone,
			&d.Company, &d.RoleTitle,
		}
		if withInterview {
			targets = append(targets, &ivDT, &ivTZ)
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, errors.Wrap(err, "failed to scan due reminder")
		}

		dm, err := moment.ScanMomentColumns(dueDT, dueTZ)
		if err != nil {
			return nil, errors.Wrapf(err, "reminder %s due moment", d.ReminderID)
		}
		if !dm.Valid {
			// The query excludes null due pairs; a half-null pair would
			// have errored above.
			continue
		}
		d.Due = dm.Moment

		if withInterview {
			if d.InterviewAt, err = moment.ScanMomentColumns(ivDT, ivTZ); err != nil {
				return nil, errors.Wrapf(err, "reminder %s interview moment", d.ReminderID)
			}
		}
		due = append(due, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating due reminders")
	}
	return due, nil
}

// MarkSent stamps sent_at in its own transaction, guarded so an
// already-sent reminder is left untouched. Returns false when another
// pass got there first; callers skip the send-count for those.
func (s *Store) MarkSent(ctx context.Context, kind track.ReminderKind, reminderID string, sentOn moment.Date) (bool, error) {
	table := "application_reminders"
	if track.OwnerKindOf(kind) == track.OwnerInterview {
		table = "interview_reminders"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "begin mark-sent")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE `+table+` SET sent_at = ?, updated_at = ?
		 WHERE id = ? AND sent_at IS NULL`,
		sentOn.String(), time.Now().UTC().Format(time.RFC3339), reminderID)
	if err != nil {
		err = errors.Wrap(err, "failed to mark reminder sent")
		err = errors.WithDetailf(err, "Reminder ID: %s", reminderID)
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read mark-sent result")
	}
	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "commit mark-sent")
	}
	return n > 0, nil
}

package track

import (
	"database/sql"
	"time"

	"github.com/trailhq/jobtrail/errors"
	"github.com/trailhq/jobtrail/moment"
)

// timeLayout is the storage format for plain timestamp columns.
const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", s)
	}
	return t, nil
}

// ReminderScanArgs holds the nullable columns of a reminder row.
type ReminderScanArgs struct {
	DueDatetime sql.NullString
	DueTimezone sql.NullString
	SentAt      sql.NullString
	CreatedAt   string
	UpdatedAt   string
}

// reminderSelectColumns is the standard column list for reminder SELECTs,
// identical across both owner-specialized tables apart from the owner id
// column name.
func reminderSelectColumns(ownerColumn string) string {
	return `id, ` + ownerColumn + `, candidate_id, kind,
		due_datetime, due_timezone, is_enabled, sent_at,
		created_at, updated_at`
}

func reminderScanTargets(r *Reminder, args *ReminderScanArgs) []interface{} {
	return []interface{}{
		&r.ID,
		&r.OwnerID,
		&r.CandidateID,
		&r.Kind,
		&args.DueDatetime,
		&args.DueTimezone,
		&r.IsEnabled,
		&args.SentAt,
		&args.CreatedAt,
		&args.UpdatedAt,
	}
}

func processReminderScanArgs(r *Reminder, args *ReminderScanArgs, ownerKind ReminderOwnerKind) error {
	r.OwnerKind = ownerKind

	due, err := moment.ScanMomentColumns(args.DueDatetime, args.DueTimezone)
	if err != nil {
		return errors.Wrapf(err, "reminder %s due moment", r.ID)
	}
	r.Due = due

	sentAt, err := moment.ScanDateColumn(args.SentAt)
	if err != nil {
		return errors.Wrapf(err, "reminder %s sent_at", r.ID)
	}
	r.SentAt = sentAt

	if r.CreatedAt, err = parseTime(args.CreatedAt); err != nil {
		return err
	}
	if r.UpdatedAt, err = parseTime(args.UpdatedAt); err != nil {
		return err
	}
	return nil
}

// scanReminders drains rows into reminder structs for one owner table.
func scanReminders(rows *sql.Rows, ownerKind ReminderOwnerKind) ([]*Reminder, error) {
	var reminders []*Reminder
	for rows.Next() {
		var r Reminder
		args := &ReminderScanArgs{}
		if err := rows.Scan(reminderScanTargets(&r, args)...); err != nil {
			return nil, errors.Wrap(err, "failed to scan reminder")
		}
		if err := processReminderScanArgs(&r, args, ownerKind); err != nil {
			return nil, err
		}
		reminders = append(reminders, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating reminders")
	}
	return reminders, nil
}

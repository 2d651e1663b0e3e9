package track

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/trailhq/jobtrail/audit"
	"github.com/trailhq/jobtrail/errors"
	"github.com/trailhq/jobtrail/moment"
)

// ApplicationStore persists application aggregates: the application row,
// its reminders, and its interviews with their reminders. Every mutation
// runs in one transaction with per-row audit entries; a failed audit
// append rolls the whole mutation back.
type ApplicationStore struct {
	db      *sql.DB
	auditor *audit.Auditor
	logger  *zap.SugaredLogger
}

// NewApplicationStore creates an application store. The auditor is
// composed into every persistence path at construction time.
func NewApplicationStore(db *sql.DB, auditor *audit.Auditor, logger *zap.SugaredLogger) *ApplicationStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ApplicationStore{db: db, auditor: auditor, logger: logger.Named("track")}
}

// ---- row-level persistence (single row per call, audit-intercepted) ----

func insertApplicationRow(ctx context.Context, tx *sql.Tx, row audit.Record) error {
	a, ok := row.(*Application)
	if !ok {
		return errors.AssertionFailedf("insertApplicationRow got %T", row)
	}

	query := `
		INSERT INTO applications (
			id, candidate_id, company, role_title, status,
			application_date, archived_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.ExecContext(ctx, query,
		a.ID, a.CandidateID, a.Company, a.RoleTitle, a.Status,
		a.ApplicationDate.Column(), a.ArchivedDate.Column(),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		err = errors.Wrap(err, "failed to create application")
		err = errors.WithDetailf(err, "Application ID: %s", a.ID)
		return err
	}
	return nil
}

func updateApplicationRow(ctx context.Context, tx *sql.Tx, before, after audit.Record) error {
	a, ok := after.(*Application)
	if !ok {
		return errors.AssertionFailedf("updateApplicationRow got %T", after)
	}

	query := `
		UPDATE applications
		SET company = ?, role_title = ?, status = ?,
		    application_date = ?, archived_date = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := tx.ExecContext(ctx, query,
		a.Company, a.RoleTitle, a.Status,
		a.ApplicationDate.Column(), a.ArchivedDate.Column(),
		formatTime(a.UpdatedAt), a.ID,
	)
	if err != nil {
		err = errors.Wrap(err, "failed to update application")
		err = errors.WithDetailf(err, "Application ID: %s", a.ID)
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.NewNotFoundError("application %s", a.ID)
	}
	// One audit entry attributes one row; a wider match must roll back.
	return audit.RejectBulk(int(n))
}

func insertReminderRow(ctx context.Context, tx *sql.Tx, row audit.Record) error {
	r, ok := row.(*Reminder)
	if !ok {
		return errors.AssertionFailedf("insertReminderRow got %T", row)
	}

	ownerColumn := "application_id"
	if r.OwnerKind == OwnerInterview {
		ownerColumn = "interview_id"
	}
	query := `
		INSERT INTO ` + r.table() + ` (
			id, ` + ownerColumn + `, candidate_id, kind,
			due_datetime, due_timezone, is_enabled, sent_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	dueDT, dueTZ := r.Due.Columns()
	_, err := tx.ExecContext(ctx, query,
		r.ID, r.OwnerID, r.CandidateID, r.Kind,
		dueDT, dueTZ, r.IsEnabled, r.SentAt.Column(),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		err = errors.Wrap(err, "failed to create reminder")
		err = errors.WithDetailf(err, "Reminder ID: %s", r.ID)
		err = errors.WithDetailf(err, "Kind: %s", r.Kind)
		return err
	}
	return nil
}

func updateReminderRow(ctx context.Context, tx *sql.Tx, before, after audit.Record) error {
	r, ok := after.(*Reminder)
	if !ok {
		return errors.AssertionFailedf("updateReminderRow got %T", after)
	}

	query := `
		UPDATE ` + r.table() + `
		SET due_datetime = ?, due_timezone = ?, is_enabled = ?,
		    sent_at = ?, updated_at = ?
		WHERE id = ?
	`
	dueDT, dueTZ := r.Due.Columns()
	res, err := tx.ExecContext(ctx, query,
		dueDT, dueTZ, r.IsEnabled, r.SentAt.Column(),
		formatTime(r.UpdatedAt), r.ID,
	)
	if err != nil {
		err = errors.Wrap(err, "failed to update reminder")
		err = errors.WithDetailf(err, "Reminder ID: %s", r.ID)
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.NewNotFoundError("reminder %s", r.ID)
	}
	return audit.RejectBulk(int(n))
}

func deleteReminderRow(ctx context.Context, tx *sql.Tx, row audit.Record) error {
	r, ok := row.(*Reminder)
	if !ok {
		return errors.AssertionFailedf("deleteReminderRow got %T", row)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM `+r.table()+` WHERE id = ?`, r.ID)
	if err != nil {
		err = errors.Wrap(err, "failed to delete reminder")
		err = errors.WithDetailf(err, "Reminder ID: %s", r.ID)
		return err
	}
	n, _ := res.RowsAffected()
	return audit.RejectBulk(int(n))
}

func insertInterviewRow(ctx context.Context, tx *sql.Tx, row audit.Record) error {
	iv, ok := row.(*Interview)
	if !ok {
		return errors.AssertionFailedf("insertInterviewRow got %T", row)
	}

	query := `
		INSERT INTO interviews (
			id, application_id, candidate_id,
			interview_datetime, interview_timezone, type,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	dt, tz := iv.Moment.Columns()
	_, err := tx.ExecContext(ctx, query,
		iv.ID, iv.ApplicationID, iv.CandidateID,
		dt, tz, iv.Type,
		formatTime(iv.CreatedAt), formatTime(iv.UpdatedAt),
	)
	if err != nil {
		err = errors.Wrap(err, "failed to create interview")
		err = errors.WithDetailf(err, "Interview ID: %s", iv.ID)
		return err
	}
	return nil
}

func updateInterviewRow(ctx context.Context, tx *sql.Tx, before, after audit.Record) error {
	iv, ok := after.(*Interview)
	if !ok {
		return errors.AssertionFailedf("updateInterviewRow got %T", after)
	}

	query := `
		UPDATE interviews
		SET interview_datetime = ?, interview_timezone = ?, type = ?, updated_at = ?
		WHERE id = ?
	`
	dt, tz := iv.Moment.Columns()
	res, err := tx.ExecContext(ctx, query, dt, tz, iv.Type, formatTime(iv.UpdatedAt), iv.ID)
	if err != nil {
		err = errors.Wrap(err, "failed to update interview")
		err = errors.WithDetailf(err, "Interview ID: %s", iv.ID)
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.NewNotFoundError("interview %s", iv.ID)
	}
	return audit.RejectBulk(int(n))
}

func deleteApplicationRow(ctx context.Context, tx *sql.Tx, row audit.Record) error {
	a, ok := row.(*Application)
	if !ok {
		return errors.AssertionFailedf("deleteApplicationRow got %T", row)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM applications WHERE id = ?`, a.ID)
	if err != nil {
		err = errors.Wrap(err, "failed to delete application")
		err = errors.WithDetailf(err, "Application ID: %s", a.ID)
		return err
	}
	n, _ := res.RowsAffected()
	return audit.RejectBulk(int(n))
}

func deleteInterviewRow(ctx context.Context, tx *sql.Tx, row audit.Record) error {
	iv, ok := row.(*Interview)
	if !ok {
		return errors.AssertionFailedf("deleteInterviewRow got %T", row)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM interviews WHERE id = ?`, iv.ID)
	if err != nil {
		err = errors.Wrap(err, "failed to delete interview")
		err = errors.WithDetailf(err, "Interview ID: %s", iv.ID)
		return err
	}
	n, _ := res.RowsAffected()
	return audit.RejectBulk(int(n))
}

// ---- aggregate operations ----

// Create validates and persists a new aggregate: application row, its
// reminders, its interviews and their reminders, plus one audit entry per
// row, all in one transaction.
func (s *ApplicationStore) Create(ctx context.Context, a *Application, src audit.Source) error {
	if err := a.Validate(time.Now()); err != nil {
		return err
	}

	createApp := s.auditor.InterceptCreate(insertApplicationRow, src)
	createReminder := s.auditor.InterceptCreate(insertReminderRow, src)
	createInterview := s.auditor.InterceptCreate(insertInterviewRow, src)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin application create")
	}
	defer tx.Rollback()

	if err := createApp(ctx, tx, a); err != nil {
		return err
	}
	for _, r := range a.Reminders {
		if err := createReminder(ctx, tx, r); err != nil {
			return err
		}
	}
	for _, iv := range a.Interviews {
		if err := createInterview(ctx, tx, iv); err != nil {
			return err
		}
		for _, r := range iv.Reminders {
			if err := createReminder(ctx, tx, r); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit application create")
	}
	s.logger.Debugw("Application created", "application_id", a.ID, "status", a.Status)
	return nil
}

// Save validates and persists a mutated aggregate from a transition's
// ChangeSet. Existing rows are updated with before/after audit snapshots,
// new rows inserted, superseded reminders deleted. All in one transaction.
func (s *ApplicationStore) Save(ctx context.Context, cs *ChangeSet, src audit.Source) error {
	a := cs.Application
	if err := a.Validate(time.Now()); err != nil {
		return err
	}

	updateApp := s.auditor.InterceptUpdate(updateApplicationRow, src)
	createReminder := s.auditor.InterceptCreate(insertReminderRow, src)
	updateReminder := s.auditor.InterceptUpdate(updateReminderRow, src)
	deleteReminder := s.auditor.InterceptDelete(deleteReminderRow, src)
	createInterview := s.auditor.InterceptCreate(insertInterviewRow, src)
	updateInterview := s.auditor.InterceptUpdate(updateInterviewRow, src)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin application save")
	}
	defer tx.Rollback()

	// Load current state for before snapshots and insert/update decisions
	before, err := s.getTx(ctx, tx, a.ID)
	if err != nil {
		return errors.Wrapf(err, "load application %s for save", a.ID)
	}

	if err := updateApp(ctx, tx, before, a); err != nil {
		return err
	}

	beforeReminders := map[string]*Reminder{}
	for _, r := range before.Reminders {
		beforeReminders[r.ID] = r
	}
	beforeInterviews := map[string]*Interview{}
	for _, iv := range before.Interviews {
		beforeInterviews[iv.ID] = iv
		for _, r := range iv.Reminders {
			beforeReminders[r.ID] = r
		}
	}

	saveReminder := func(r *Reminder) error {
		if prev, ok := beforeReminders[r.ID]; ok {
			return updateReminder(ctx, tx, prev, r)
		}
		return createReminder(ctx, tx, r)
	}

	for _, r := range a.Reminders {
		if err := saveReminder(r); err != nil {
			return err
		}
	}
	for _, iv := range a.Interviews {
		if prev, ok := beforeInterviews[iv.ID]; ok {
			if err := updateInterview(ctx, tx, prev, iv); err != nil {
				return err
			}
		} else {
			if err := createInterview(ctx, tx, iv); err != nil {
				return err
			}
		}
		for _, r := range iv.Reminders {
			if err := saveReminder(r); err != nil {
				return err
			}
		}
	}

	for _, r := range cs.RemovedReminders {
		if err := deleteReminder(ctx, tx, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit application save")
	}
	s.logger.Debugw("Application saved", "application_id", a.ID, "status", a.Status)
	return nil
}

// Delete removes the aggregate, auditing each child row individually
// before the application row itself. Foreign keys cascade the child rows;
// the explicit per-row deletes keep the audit trail complete.
func (s *ApplicationStore) Delete(ctx context.Context, id string, src audit.Source) error {
	deleteReminder := s.auditor.InterceptDelete(deleteReminderRow, src)
	deleteInterview := s.auditor.InterceptDelete(deleteInterviewRow, src)
	deleteApp := s.auditor.InterceptDelete(deleteApplicationRow, src)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin application delete")
	}
	defer tx.Rollback()

	a, err := s.getTx(ctx, tx, id)
	if err != nil {
		return errors.Wrapf(err, "load application %s for delete", id)
	}

	for _, iv := range a.Interviews {
		for _, r := range iv.Reminders {
			if err := deleteReminder(ctx, tx, r); err != nil {
				return err
			}
		}
		if err := deleteInterview(ctx, tx, iv); err != nil {
			return err
		}
	}
	for _, r := range a.Reminders {
		if err := deleteReminder(ctx, tx, r); err != nil {
			return err
		}
	}
	if err := deleteApp(ctx, tx, a); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit application delete")
	}
	s.logger.Debugw("Application deleted", "application_id", id)
	return nil
}

// ---- reads ----

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const applicationSelectColumns = `id, candidate_id, company, role_title, status,
	application_date, archived_date, created_at, updated_at`

func scanApplicationRow(row *sql.Row) (*Application, error) {
	var a Application
	var appDate, archDate sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&a.ID, &a.CandidateID, &a.Company, &a.RoleTitle, &a.Status,
		&appDate, &archDate, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan application")
	}

	if a.ApplicationDate, err = moment.ScanDateColumn(appDate); err != nil {
		return nil, err
	}
	if a.ArchivedDate, err = moment.ScanDateColumn(archDate); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Get loads the full aggregate by application ID.
func (s *ApplicationStore) Get(ctx context.Context, id string) (*Application, error) {
	return s.getTx(ctx, s.db, id)
}

func (s *ApplicationStore) getTx(ctx context.Context, q rowQuerier, id string) (*Application, error) {
	query := `SELECT ` + applicationSelectColumns + ` FROM applications WHERE id = ?`
	a, err := scanApplicationRow(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, errors.Wrapf(err, "application %s", id)
	}

	// Application-owned reminders
	rows, err := q.QueryContext(ctx,
		`SELECT `+reminderSelectColumns("application_id")+`
		 FROM application_reminders WHERE application_id = ? ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list application reminders")
	}
	a.Reminders, err = func() ([]*Reminder, error) {
		defer rows.Close()
		return scanReminders(rows, OwnerApplication)
	}()
	if err != nil {
		return nil, err
	}

	// Interviews and their reminders
	ivRows, err := q.QueryContext(ctx,
		`SELECT id, application_id, candidate_id, interview_datetime, interview_timezone,
		        type, created_at, updated_at
		 FROM interviews WHERE application_id = ? ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list interviews")
	}
	a.Interviews, err = func() ([]*Interview, error) {
		defer ivRows.Close()
		return scanInterviews(ivRows)
	}()
	if err != nil {
		return nil, err
	}

	for _, iv := range a.Interviews {
		rRows, err := q.QueryContext(ctx,
			`SELECT `+reminderSelectColumns("interview_id")+`
			 FROM interview_reminders WHERE interview_id = ? ORDER BY created_at ASC`, iv.ID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to list interview reminders")
		}
		iv.Reminders, err = func() ([]*Reminder, error) {
			defer rRows.Close()
			return scanReminders(rRows, OwnerInterview)
		}()
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

func scanInterviews(rows *sql.Rows) ([]*Interview, error) {
	var interviews []*Interview
	for rows.Next() {
		var iv Interview
		var dt, tz sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&iv.ID, &iv.ApplicationID, &iv.CandidateID,
			&dt, &tz, &iv.Type, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan interview")
		}

		m, err := moment.ScanMomentColumns(dt, tz)
		if err != nil {
			return nil, errors.Wrapf(err, "interview %s moment", iv.ID)
		}
		iv.Moment = m
		if iv.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if iv.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		interviews = append(interviews, &iv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating interviews")
	}
	return interviews, nil
}

// ListIDsByCandidate returns the candidate's application IDs, oldest first.
func (s *ApplicationStore) ListIDsByCandidate(ctx context.Context, candidateID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM applications WHERE candidate_id = ? ORDER BY created_at ASC`, candidateID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list applications")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan application id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "error iterating application ids")
}

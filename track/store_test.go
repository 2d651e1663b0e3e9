package track

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trailhq/jobtrail/audit"
	"github.com/trailhq/jobtrail/db"
	jterrors "github.com/trailhq/jobtrail/errors"
	jttesting "github.com/trailhq/jobtrail/internal/testing"
	"github.com/trailhq/jobtrail/moment"
)

type storeFixture struct {
	db         *sql.DB
	audits     *audit.Store
	candidates *CandidateStore
	apps       *ApplicationStore
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	conn := jttesting.CreateTestDB(t)
	audits := audit.NewStore(conn)
	auditor := audit.NewAuditor(audits)
	return &storeFixture{
		db:         conn,
		audits:     audits,
		candidates: NewCandidateStore(conn, auditor),
		apps:       NewApplicationStore(conn, auditor, zap.NewNop().Sugar()),
	}
}

func (f *storeFixture) createCandidate(t *testing.T) *Candidate {
	t.Helper()
	c := testCandidate()
	require.NoError(t, f.candidates.Create(context.Background(), c, audit.System()))
	return c
}

func TestCandidateStoreRoundTrip(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	c := f.createCandidate(t)

	got, err := f.candidates.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Email, got.Email)
	assert.Equal(t, c.Timezone, got.Timezone)

	// Email lookup is case-insensitive.
	got, err = f.candidates.GetByEmail(ctx, "DEV@Example.COM")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = f.candidates.Get(ctx, NewCandidateID())
	assert.True(t, jterrors.IsNotFoundError(err))
}

func TestCandidateStoreRejectsDuplicateEmail(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	f.createCandidate(t)

	dup := NewCandidate("Dev@Example.com", "UTC")
	err := f.candidates.Create(ctx, dup, audit.System())
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err))
}

func TestApplicationStoreCreateGet(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	c := f.createCandidate(t)

	app := testApplication(t, c)
	require.NoError(t, f.apps.Create(ctx, app, audit.Candidate(c.ID)))

	got, err := f.apps.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, app.Company, got.Company)
	assert.Equal(t, StatusSavedForLater, got.Status)
	require.Len(t, got.Reminders, 1)

	want := app.Reminders[0]
	r := got.Reminders[0]
	assert.Equal(t, want.ID, r.ID)
	assert.Equal(t, ReminderSavedForLater, r.Kind)
	assert.Equal(t, OwnerApplication, r.OwnerKind)
	require.True(t, r.Due.Valid)
	assert.Equal(t, want.Due.Moment.Timezone(), r.Due.Moment.Timezone())
	assert.True(t, want.Due.Moment.Instant().Truncate(time.Second).Equal(r.Due.Moment.Instant()))

	// Every row got its create audit entry.
	entries, err := f.audits.ListForRow(ctx, "applications", app.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionCreate, entries[0].Action)
	assert.Equal(t, audit.SourceCandidate, entries[0].Source.Type)
	assert.Equal(t, c.ID, entries[0].Source.CandidateID)

	entries, err = f.audits.ListForRow(ctx, "application_reminders", r.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestApplicationStoreSaveTransition(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	c := f.createCandidate(t)

	app := testApplication(t, c)
	require.NoError(t, f.apps.Create(ctx, app, audit.Candidate(c.ID)))

	now := time.Now()
	cs, err := app.MarkApplied(c, TransitionForm{}, now)
	require.NoError(t, err)
	require.NoError(t, f.apps.Save(ctx, cs, audit.Candidate(c.ID)))

	got, err := f.apps.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaitingForResponse, got.Status)
	assert.True(t, got.ApplicationDate.Valid)
	assert.NotNil(t, got.ReminderFor(ReminderSavedForLater))
	assert.NotNil(t, got.ReminderFor(ReminderWaitingForResponse))

	// The update carries before/after snapshots.
	entries, err := f.audits.ListForRow(ctx, "applications", app.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionUpdate, entries[1].Action)
	assert.NotEmpty(t, entries[1].Before)
	assert.NotEmpty(t, entries[1].After)
}

func TestApplicationStoreSavePersistsInterviews(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	c := f.createCandidate(t)

	app := testApplication(t, c)
	require.NoError(t, f.apps.Create(ctx, app, audit.Candidate(c.ID)))

	now := time.Now()
	when := moment.MustCompose(now.Add(5*24*time.Hour), "America/New_York")
	cs, iv, err := app.ScheduleInterview(c, when, now)
	require.NoError(t, err)
	require.NoError(t, f.apps.Save(ctx, cs, audit.Candidate(c.ID)))

	got, err := f.apps.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUpcomingInterview, got.Status)
	require.Len(t, got.Interviews, 1)

	gotIv := got.Interviews[0]
	assert.Equal(t, iv.ID, gotIv.ID)
	assert.Equal(t, InterviewUpcoming, gotIv.Type)
	require.True(t, gotIv.Moment.Valid)
	assert.Equal(t, "America/New_York", gotIv.Moment.Moment.Timezone())
	require.Len(t, gotIv.Reminders, 2)
	assert.NotNil(t, gotIv.ReminderFor(ReminderPreInterview))
	assert.NotNil(t, gotIv.ReminderFor(ReminderPostInterview))
}

func TestApplicationStoreDeleteAuditsChildren(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	c := f.createCandidate(t)

	app := testApplication(t, c)
	require.NoError(t, f.apps.Create(ctx, app, audit.Candidate(c.ID)))
	reminderID := app.Reminders[0].ID

	require.NoError(t, f.apps.Delete(ctx, app.ID, audit.Candidate(c.ID)))

	_, err := f.apps.Get(ctx, app.ID)
	assert.True(t, jterrors.IsNotFoundError(err))

	entries, err := f.audits.ListForRow(ctx, "applications", app.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionDelete, entries[1].Action)
	assert.NotEmpty(t, entries[1].Before)

	entries, err = f.audits.ListForRow(ctx, "application_reminders", reminderID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionDelete, entries[1].Action)
}

func TestApplicationStoreSaveRejectsInvalidAggregate(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	c := f.createCandidate(t)

	app := testApplication(t, c)
	require.NoError(t, f.apps.Create(ctx, app, audit.Candidate(c.ID)))

	// Hand-built invalid state: waiting without an application date.
	app.Status = StatusWaitingForResponse
	app.ensureReminder(ReminderWaitingForResponse,
		moment.MustCompose(time.Now().Add(time.Hour), c.Timezone), true)

	err := f.apps.Save(ctx, &ChangeSet{Application: app}, audit.Candidate(c.ID))
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	// Nothing was persisted.
	got, err := f.apps.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSavedForLater, got.Status)
}

func TestCompositeForeignKeyRejectsCandidateMismatch(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	c := f.createCandidate(t)
	other := NewCandidate("other@example.com", "UTC")
	require.NoError(t, f.candidates.Create(ctx, other, audit.System()))

	app := testApplication(t, c)
	require.NoError(t, f.apps.Create(ctx, app, audit.Candidate(c.ID)))

	// A reminder claiming a different candidate than its application must
	// fail the composite foreign key even when inserted directly.
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO application_reminders (
			id, application_id, candidate_id, kind,
			due_datetime, due_timezone, is_enabled, sent_at, created_at, updated_at
		) VALUES (?, ?, ?, 'waiting_for_response', NULL, NULL, 1, NULL, ?, ?)`,
		NewReminderID(), app.ID, other.ID,
		formatTime(time.Now()), formatTime(time.Now()))
	require.Error(t, err)
	assert.True(t, db.IsForeignKeyViolation(err))
}

func TestSentAtAppendOnlyTrigger(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	c := f.createCandidate(t)

	app := testApplication(t, c)
	require.NoError(t, f.apps.Create(ctx, app, audit.Candidate(c.ID)))
	reminderID := app.Reminders[0].ID

	_, err := f.db.ExecContext(ctx,
		`UPDATE application_reminders SET sent_at = '2026-01-25' WHERE id = ?`, reminderID)
	require.NoError(t, err, "first sent_at write is allowed")

	_, err = f.db.ExecContext(ctx,
		`UPDATE application_reminders SET sent_at = '2026-02-01' WHERE id = ?`, reminderID)
	require.Error(t, err, "sent_at must not move once set")
	assert.True(t, db.IsTriggerAbort(err))

	_, err = f.db.ExecContext(ctx,
		`UPDATE application_reminders SET sent_at = NULL WHERE id = ?`, reminderID)
	require.Error(t, err, "sent_at must not revert to null")
	assert.True(t, db.IsTriggerAbort(err))
}

func TestMultiRowUpdateRollsBack(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	ctx := context.Background()
	mock.ExpectBegin()
	// A WHERE clause gone wide: three rows behind one audit entry.
	mock.ExpectExec("UPDATE applications").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectRollback()

	tx, err := mockDB.BeginTx(ctx, nil)
	require.NoError(t, err)

	c := testCandidate()
	app := testApplication(t, c)
	err = updateApplicationRow(ctx, tx, app, app)
	require.Error(t, err)
	assert.ErrorIs(t, err, jterrors.ErrBulkOperationUnsupported)
	require.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

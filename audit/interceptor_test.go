package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhq/jobtrail/db"
	"github.com/trailhq/jobtrail/errors"
	jttesting "github.com/trailhq/jobtrail/internal/testing"
)

// fakeRecord stands in for an entity row; it writes to the candidates
// table so the integration tests run against the real schema.
type fakeRecord struct {
	id    string
	email string
	tz    string
}

func (f *fakeRecord) AuditTable() string { return "candidates" }
func (f *fakeRecord) AuditRowID() string { return f.id }
func (f *fakeRecord) AuditSnapshot() (json.RawMessage, error) {
	return json.Marshal(map[string]string{"id": f.id, "email": f.email, "timezone": f.tz})
}

func insertFakeRecord(ctx context.Context, tx *sql.Tx, row Record) error {
	f := row.(*fakeRecord)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO candidates (id, email, timezone, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		f.id, f.email, f.tz,
		time.Now().UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339))
	return err
}

func updateFakeRecord(ctx context.Context, tx *sql.Tx, before, after Record) error {
	f := after.(*fakeRecord)
	_, err := tx.ExecContext(ctx,
		`UPDATE candidates SET email = ?, timezone = ? WHERE id = ?`,
		f.email, f.tz, f.id)
	return err
}

func deleteFakeRecord(ctx context.Context, tx *sql.Tx, row Record) error {
	f := row.(*fakeRecord)
	_, err := tx.ExecContext(ctx, `DELETE FROM candidates WHERE id = ?`, f.id)
	return err
}

func TestInterceptorFullLifecycle(t *testing.T) {
	conn := jttesting.CreateTestDB(t)
	ctx := context.Background()
	store := NewStore(conn)
	auditor := NewAuditor(store)

	rec := &fakeRecord{id: "CND_audittest", email: "a@example.com", tz: "UTC"}

	runTx := func(t *testing.T, fn func(tx *sql.Tx) error) {
		t.Helper()
		tx, err := conn.BeginTx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, fn(tx))
		require.NoError(t, tx.Commit())
	}

	runTx(t, func(tx *sql.Tx) error {
		return auditor.InterceptCreate(insertFakeRecord, Candidate("CND_actor"))(ctx, tx, rec)
	})

	before := *rec
	rec.email = "b@example.com"
	runTx(t, func(tx *sql.Tx) error {
		return auditor.InterceptUpdate(updateFakeRecord, Candidate("CND_actor"))(ctx, tx, &before, rec)
	})

	runTx(t, func(tx *sql.Tx) error {
		return auditor.InterceptDelete(deleteFakeRecord, System())(ctx, tx, rec)
	})

	entries, err := store.ListForRow(ctx, "candidates", rec.id)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, ActionCreate, entries[0].Action)
	assert.Equal(t, SourceCandidate, entries[0].Source.Type)
	assert.Equal(t, "CND_actor", entries[0].Source.CandidateID)
	assert.Empty(t, entries[0].Before)
	assert.JSONEq(t, `{"id":"CND_audittest","email":"a@example.com","timezone":"UTC"}`,
		string(entries[0].After))

	assert.Equal(t, ActionUpdate, entries[1].Action)
	assert.JSONEq(t, `{"id":"CND_audittest","email":"a@example.com","timezone":"UTC"}`,
		string(entries[1].Before))
	assert.JSONEq(t, `{"id":"CND_audittest","email":"b@example.com","timezone":"UTC"}`,
		string(entries[1].After))

	assert.Equal(t, ActionDelete, entries[2].Action)
	assert.Equal(t, SourceSystem, entries[2].Source.Type)
	assert.NotEmpty(t, entries[2].Before)
	assert.Empty(t, entries[2].After)
}

func TestFailedAuditAppendRollsBackEntityWrite(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	store := NewStore(mockDB)
	auditor := NewAuditor(store)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO candidates").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	tx, err := mockDB.BeginTx(ctx, nil)
	require.NoError(t, err)

	rec := &fakeRecord{id: "CND_rollback", email: "x@example.com", tz: "UTC"}
	err = auditor.InterceptCreate(insertFakeRecord, System())(ctx, tx, rec)
	require.Error(t, err)
	require.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLogsAreImmutable(t *testing.T) {
	conn := jttesting.CreateTestDB(t)
	ctx := context.Background()
	store := NewStore(conn)
	auditor := NewAuditor(store)

	rec := &fakeRecord{id: "CND_frozen", email: "f@example.com", tz: "UTC"}
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, auditor.InterceptCreate(insertFakeRecord, System())(ctx, tx, rec))
	require.NoError(t, tx.Commit())

	entries, err := store.ListForRow(ctx, "candidates", rec.id)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = conn.ExecContext(ctx,
		`UPDATE audit_logs SET action = 'update' WHERE id = ?`, entries[0].ID)
	require.Error(t, err)
	assert.True(t, db.IsTriggerAbort(err))

	_, err = conn.ExecContext(ctx, `DELETE FROM audit_logs WHERE id = ?`, entries[0].ID)
	require.Error(t, err)
	assert.True(t, db.IsTriggerAbort(err))
}

func TestRejectBulk(t *testing.T) {
	assert.NoError(t, RejectBulk(0))
	assert.NoError(t, RejectBulk(1))

	err := RejectBulk(5)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBulkOperationUnsupported)
}

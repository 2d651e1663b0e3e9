package track

import (
	"context"
	"database/sql"

	"github.com/trailhq/jobtrail/audit"
	"github.com/trailhq/jobtrail/errors"
)

// CandidateStore handles candidate persistence. Creates go through the
// audit interceptor; lookups are plain reads.
type CandidateStore struct {
	db      *sql.DB
	auditor *audit.Auditor
}

// NewCandidateStore creates a candidate store writing audit entries
// through the given auditor.
func NewCandidateStore(db *sql.DB, auditor *audit.Auditor) *CandidateStore {
	return &CandidateStore{db: db, auditor: auditor}
}

func insertCandidateRow(ctx context.Context, tx *sql.Tx, row audit.Record) error {
	c, ok := row.(*Candidate)
	if !ok {
		return errors.AssertionFailedf("insertCandidateRow got %T", row)
	}

	query := `
		INSERT INTO candidates (
			id, email, timezone, auth_provider, auth_subject,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	authProvider := sql.NullString{String: c.AuthProvider, Valid: c.AuthProvider != ""}
	authSubject := sql.NullString{String: c.AuthSubject, Valid: c.AuthSubject != ""}

	_, err := tx.ExecContext(ctx, query,
		c.ID, c.Email, c.Timezone, authProvider, authSubject,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		err = errors.Wrap(err, "failed to create candidate")
		err = errors.WithDetailf(err, "Candidate ID: %s", c.ID)
		return err
	}
	return nil
}

// Create persists a candidate and its audit entry in one transaction.
func (s *CandidateStore) Create(ctx context.Context, c *Candidate, src audit.Source) error {
	save := s.auditor.InterceptCreate(insertCandidateRow, src)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin candidate create")
	}
	defer tx.Rollback()

	if err := save(ctx, tx, c); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit candidate create")
}

const candidateSelectColumns = `id, email, timezone, auth_provider, auth_subject, created_at, updated_at`

func scanCandidate(row *sql.Row) (*Candidate, error) {
	var c Candidate
	var authProvider, authSubject sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.Email, &c.Timezone, &authProvider, &authSubject, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan candidate")
	}

	c.AuthProvider = authProvider.String
	c.AuthSubject = authSubject.String
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Get retrieves a candidate by ID.
func (s *CandidateStore) Get(ctx context.Context, id string) (*Candidate, error) {
	query := `SELECT ` + candidateSelectColumns + ` FROM candidates WHERE id = ?`
	c, err := scanCandidate(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, errors.Wrapf(err, "candidate %s", id)
	}
	return c, nil
}

// GetByEmail retrieves a candidate by email, case-insensitively.
func (s *CandidateStore) GetByEmail(ctx context.Context, email string) (*Candidate, error) {
	// email column is COLLATE NOCASE; equality ignores case at the schema level
	query := `SELECT ` + candidateSelectColumns + ` FROM candidates WHERE email = ?`
	c, err := scanCandidate(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, errors.Wrapf(err, "candidate by email %s", email)
	}
	return c, nil
}

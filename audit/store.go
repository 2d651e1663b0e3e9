package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/trailhq/jobtrail/errors"
)

// Store reads and appends audit log entries.
type Store struct {
	db *sql.DB
}

// NewStore creates a new audit log store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an entry within the supplied transaction. Callers own the
// transaction; a failed append must roll back the enclosing work.
func (s *Store) Append(ctx context.Context, tx *sql.Tx, entry *Entry) error {
	query := `
		INSERT INTO audit_logs (
			source_type, source_id, table_name, row_id, action,
			before_state, after_state, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	sourceID := sql.NullString{String: entry.Source.CandidateID, Valid: entry.Source.CandidateID != ""}
	before := sql.NullString{String: string(entry.Before), Valid: len(entry.Before) > 0}
	after := sql.NullString{String: string(entry.After), Valid: len(entry.After) > 0}

	res, err := tx.ExecContext(ctx, query,
		entry.Source.Type,
		sourceID,
		entry.Table,
		entry.RowID,
		entry.Action,
		before,
		after,
		entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		err = errors.Wrap(err, "failed to append audit entry")
		err = errors.WithDetailf(err, "Table: %s", entry.Table)
		err = errors.WithDetailf(err, "Row ID: %s", entry.RowID)
		err = errors.WithDetailf(err, "Action: %s", entry.Action)
		return err
	}

	entry.ID, err = res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read audit entry id")
	}
	return nil
}

// ListForRow returns all entries for a table/row pair, oldest first.
func (s *Store) ListForRow(ctx context.Context, table, rowID string) ([]*Entry, error) {
	query := `
		SELECT id, source_type, source_id, table_name, row_id, action,
		       before_state, after_state, created_at
		FROM audit_logs
		WHERE table_name = ? AND row_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, table, rowID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audit entries")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating audit entries")
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var entry Entry
	var sourceID, before, after sql.NullString
	var createdAt string

	if err := rows.Scan(
		&entry.ID,
		&entry.Source.Type,
		&sourceID,
		&entry.Table,
		&entry.RowID,
		&entry.Action,
		&before,
		&after,
		&createdAt,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan audit entry")
	}

	if sourceID.Valid {
		entry.Source.CandidateID = sourceID.String
	}
	if before.Valid {
		entry.Before = json.RawMessage(before.String)
	}
	if after.Valid {
		entry.After = json.RawMessage(after.String)
	}

	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "parse audit entry timestamp %q", createdAt)
	}
	entry.CreatedAt = ts

	return &entry, nil
}

package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/trailhq/jobtrail/errors"
)

// SaveFunc persists exactly one row within the supplied transaction.
type SaveFunc func(ctx context.Context, tx *sql.Tx, row Record) error

// UpdateFunc persists an update of exactly one row. Callers supply the row
// state before the change so the trail captures full previous/current
// field snapshots.
type UpdateFunc func(ctx context.Context, tx *sql.Tx, before, after Record) error

// Auditor produces intercepted save functions bound to an attribution
// source. Stores compose their persistence paths through an Auditor at
// construction time; there is no ambient global registration.
type Auditor struct {
	store *Store
}

// NewAuditor creates an Auditor writing through the given store.
func NewAuditor(store *Store) *Auditor {
	return &Auditor{store: store}
}

// InterceptCreate wraps save so a successful insert appends a create entry
// (after snapshot) in the same transaction.
func (a *Auditor) InterceptCreate(save SaveFunc, src Source) SaveFunc {
	return func(ctx context.Context, tx *sql.Tx, row Record) error {
		if err := save(ctx, tx, row); err != nil {
			return err
		}

		after, err := row.AuditSnapshot()
		if err != nil {
			return errors.Wrapf(err, "snapshot %s row for audit", row.AuditTable())
		}

		return a.store.Append(ctx, tx, &Entry{
			Source:    src,
			Table:     row.AuditTable(),
			RowID:     row.AuditRowID(),
			Action:    ActionCreate,
			After:     after,
			CreatedAt: time.Now(),
		})
	}
}

// InterceptUpdate wraps update so a successful write appends an update
// entry carrying both the previous and current field snapshots.
func (a *Auditor) InterceptUpdate(update UpdateFunc, src Source) UpdateFunc {
	return func(ctx context.Context, tx *sql.Tx, before, after Record) error {
		if err := update(ctx, tx, before, after); err != nil {
			return err
		}

		beforeSnap, err := before.AuditSnapshot()
		if err != nil {
			return errors.Wrapf(err, "snapshot previous %s row for audit", before.AuditTable())
		}
		afterSnap, err := after.AuditSnapshot()
		if err != nil {
			return errors.Wrapf(err, "snapshot current %s row for audit", after.AuditTable())
		}

		return a.store.Append(ctx, tx, &Entry{
			Source:    src,
			Table:     after.AuditTable(),
			RowID:     after.AuditRowID(),
			Action:    ActionUpdate,
			Before:    beforeSnap,
			After:     afterSnap,
			CreatedAt: time.Now(),
		})
	}
}

// InterceptDelete wraps del so a successful delete appends a delete entry
// carrying the row's final state.
func (a *Auditor) InterceptDelete(del SaveFunc, src Source) SaveFunc {
	return func(ctx context.Context, tx *sql.Tx, row Record) error {
		before, err := row.AuditSnapshot()
		if err != nil {
			return errors.Wrapf(err, "snapshot %s row for audit", row.AuditTable())
		}

		if err := del(ctx, tx, row); err != nil {
			return err
		}

		return a.store.Append(ctx, tx, &Entry{
			Source:    src,
			Table:     row.AuditTable(),
			RowID:     row.AuditRowID(),
			Action:    ActionDelete,
			Before:    before,
			CreatedAt: time.Now(),
		})
	}
}

// RejectBulk guards the intercepted API against multi-row statements.
// Per-row audit attribution cannot be derived from a bulk statement, so
// callers must iterate and persist rows individually. Store row funcs
// call it with each mutating statement's affected-row count; a wider
// match fails the function and rolls back the transaction.
func RejectBulk(rowCount int) error {
	if rowCount > 1 {
		return errors.Wrapf(errors.ErrBulkOperationUnsupported,
			"%d rows in one statement", rowCount)
	}
	return nil
}

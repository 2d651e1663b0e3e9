package db

import (
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/trailhq/jobtrail/errors"
)

// IsForeignKeyViolation reports whether err is a SQLite foreign key
// constraint failure. Mismatched candidate ids across related rows surface
// here; callers treat it as a fatal integrity error and roll back.
func IsForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// IsUniqueViolation reports whether err is a SQLite unique constraint
// failure (duplicate email, duplicate reminder slot).
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// IsTriggerAbort reports whether err was raised by one of the schema's
// integrity triggers (audit immutability, sent_at append-only).
func IsTriggerAbort(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(strings.Contains(sqliteErr.Error(), "append-only") ||
				strings.Contains(sqliteErr.Error(), "immutable"))
	}
	return false
}

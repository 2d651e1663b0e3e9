// Package audit provides the immutable audit trail and the interceptor
// that wraps entity persistence.
//
// Every entity row written through an intercepted save function gets a
// matching audit_logs row appended in the same transaction. If the audit
// insert fails the enclosing transaction rolls back entirely; the
// interceptor never retries on its own.
package audit

import (
	"encoding/json"
	"time"
)

// SourceType distinguishes system-initiated changes from candidate-initiated ones.
type SourceType string

const (
	SourceSystem    SourceType = "system"
	SourceCandidate SourceType = "candidate"
)

// Action identifies what happened to the row.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Source attributes a change. CandidateID is set only for candidate sources.
type Source struct {
	Type        SourceType
	CandidateID string
}

// System attributes a change to the system itself (scheduler, migrations).
func System() Source {
	return Source{Type: SourceSystem}
}

// Candidate attributes a change to a specific candidate.
func Candidate(candidateID string) Source {
	return Source{Type: SourceCandidate, CandidateID: candidateID}
}

// Record is the minimal identity an audit entry needs from a persisted row.
// Entities implement this alongside their store types.
type Record interface {
	// AuditTable returns the table the row lives in.
	AuditTable() string
	// AuditRowID returns the row's primary key.
	AuditRowID() string
	// AuditSnapshot returns the row's full field state as JSON.
	AuditSnapshot() (json.RawMessage, error)
}

// Entry is one immutable audit log row. Entries are never updated or
// deleted; the schema enforces this with triggers.
type Entry struct {
	ID        int64
	Source    Source
	Table     string
	RowID     string
	Action    Action
	Before    json.RawMessage // previous field snapshot (update, delete)
	After     json.RawMessage // current field snapshot (create, update)
	CreatedAt time.Time
}

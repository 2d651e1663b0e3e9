package track

import (
	"encoding/json"
	"strings"
	"time"
)

// Candidate owns all other entities. Email is unique case-insensitively;
// Timezone is the candidate's IANA home zone, used to anchor reminder
// wall-clock times and sent dates.
type Candidate struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Timezone     string    `json:"timezone"`
	AuthProvider string    `json:"auth_provider,omitempty"`
	AuthSubject  string    `json:"auth_subject,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewCandidate constructs a candidate with a fresh ID. Email is normalized
// to lower case; comparisons in the store are NOCASE regardless.
func NewCandidate(email, timezone string) *Candidate {
	now := time.Now()
	return &Candidate{
		ID:        NewCandidateID(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Timezone:  timezone,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AuditTable implements audit.Record.
func (c *Candidate) AuditTable() string { return "candidates" }

// AuditRowID implements audit.Record.
func (c *Candidate) AuditRowID() string { return c.ID }

// AuditSnapshot implements audit.Record.
func (c *Candidate) AuditSnapshot() (json.RawMessage, error) {
	return json.Marshal(c)
}

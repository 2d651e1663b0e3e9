package track

import (
	"strings"

	"github.com/google/uuid"
)

// ID prefixes keep row identifiers self-describing in logs and audit rows.
const (
	candidateIDPrefix   = "CND"
	applicationIDPrefix = "APP"
	interviewIDPrefix   = "ITV"
	reminderIDPrefix    = "RMD"
)

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewCandidateID returns a fresh candidate identifier.
func NewCandidateID() string { return newID(candidateIDPrefix) }

// NewApplicationID returns a fresh application identifier.
func NewApplicationID() string { return newID(applicationIDPrefix) }

// NewInterviewID returns a fresh interview identifier.
func NewInterviewID() string { return newID(interviewIDPrefix) }

// NewReminderID returns a fresh reminder identifier.
func NewReminderID() string { return newID(reminderIDPrefix) }

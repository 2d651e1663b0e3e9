package track

import (
	"encoding/json"
	"time"

	"github.com/trailhq/jobtrail/moment"
)

// ReminderOwnerKind is the tagged-union discriminant: a reminder belongs
// either to an application or to an interview.
type ReminderOwnerKind string

const (
	OwnerApplication ReminderOwnerKind = "application"
	OwnerInterview   ReminderOwnerKind = "interview"
)

// ReminderKind discriminates which slot a reminder fills on its owner.
type ReminderKind string

const (
	ReminderSavedForLater      ReminderKind = "saved_for_later"
	ReminderWaitingForResponse ReminderKind = "waiting_for_response"
	ReminderReceivedOffer      ReminderKind = "received_offer"
	ReminderPreInterview       ReminderKind = "pre_interview"
	ReminderPostInterview      ReminderKind = "post_interview"
)

// OwnerKindOf returns which owner table a reminder kind belongs to.
func OwnerKindOf(kind ReminderKind) ReminderOwnerKind {
	switch kind {
	case ReminderPreInterview, ReminderPostInterview:
		return OwnerInterview
	default:
		return OwnerApplication
	}
}

// Reminder is the shared reminder shape. SentAt is append-only: once
// non-null it never reverts (the schema enforces this with a trigger).
// A disabled reminder is never delivered regardless of its due moment.
type Reminder struct {
	ID          string            `json:"id"`
	OwnerKind   ReminderOwnerKind `json:"owner_kind"`
	OwnerID     string            `json:"owner_id"`
	CandidateID string            `json:"candidate_id"`
	Kind        ReminderKind      `json:"kind"`
	Due         moment.NullMoment `json:"-"`
	IsEnabled   bool              `json:"is_enabled"`
	SentAt      moment.NullDate   `json:"-"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// BuildReminder constructs a reminder for an owner entity. The owner kind
// is derived from the reminder kind; the caller persists the result
// atomically with its owner.
func BuildReminder(ownerID, candidateID string, kind ReminderKind, due moment.Moment, enabled bool) *Reminder {
	now := time.Now()
	return &Reminder{
		ID:          NewReminderID(),
		OwnerKind:   OwnerKindOf(kind),
		OwnerID:     ownerID,
		CandidateID: candidateID,
		Kind:        kind,
		Due:         moment.SomeMoment(due),
		IsEnabled:   enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkSent records delivery. It is a no-op if the reminder was already
// sent; SentAt never reverts.
func (r *Reminder) MarkSent(on moment.Date) {
	if r.SentAt.Valid {
		return
	}
	r.SentAt = moment.SomeDate(on)
	r.UpdatedAt = time.Now()
}

// table returns the concrete owner-specialized table for this reminder.
func (r *Reminder) table() string {
	if r.OwnerKind == OwnerInterview {
		return "interview_reminders"
	}
	return "application_reminders"
}

// AuditTable implements audit.Record.
func (r *Reminder) AuditTable() string { return r.table() }

// AuditRowID implements audit.Record.
func (r *Reminder) AuditRowID() string { return r.ID }

// AuditSnapshot implements audit.Record.
func (r *Reminder) AuditSnapshot() (json.RawMessage, error) {
	type snapshot struct {
		*Reminder
		DueDatetime interface{} `json:"due_datetime"`
		DueTimezone interface{} `json:"due_timezone"`
		SentAt      interface{} `json:"sent_at"`
	}
	dueDT, dueTZ := r.Due.Columns()
	return json.Marshal(snapshot{
		Reminder:    r,
		DueDatetime: dueDT,
		DueTimezone: dueTZ,
		SentAt:      r.SentAt.Column(),
	})
}

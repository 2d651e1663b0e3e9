package track

import (
	"encoding/json"
	"time"

	"github.com/trailhq/jobtrail/moment"
)

// InterviewType is derived from the interview moment, never set directly.
type InterviewType string

const (
	InterviewUpcoming InterviewType = "upcoming_interview"
	InterviewPast     InterviewType = "past_interview"
)

// DeriveInterviewType computes the type for a given moment: upcoming while
// the instant is strictly in the future, past otherwise.
func DeriveInterviewType(m moment.Moment, now time.Time) InterviewType {
	if m.Instant().After(now) {
		return InterviewUpcoming
	}
	return InterviewPast
}

// Interview carries the scheduled moment and exactly one pre-interview and
// one post-interview reminder.
type Interview struct {
	ID            string            `json:"id"`
	ApplicationID string            `json:"application_id"`
	CandidateID   string            `json:"candidate_id"`
	Moment        moment.NullMoment `json:"-"`
	Type          InterviewType     `json:"type"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`

	Reminders []*Reminder `json:"-"`
}

// NewInterview constructs an interview at the given moment with its pre
// and post reminders. The type is derived from the moment.
func NewInterview(applicationID, candidateID string, when, preDue, postDue moment.Moment, now time.Time) *Interview {
	iv := &Interview{
		ID:            NewInterviewID(),
		ApplicationID: applicationID,
		CandidateID:   candidateID,
		Moment:        moment.SomeMoment(when),
		Type:          DeriveInterviewType(when, now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	iv.Reminders = append(iv.Reminders,
		BuildReminder(iv.ID, candidateID, ReminderPreInterview, preDue, true),
		BuildReminder(iv.ID, candidateID, ReminderPostInterview, postDue, true),
	)
	return iv
}

// SetMoment replaces the interview moment and recomputes the derived type.
// This is the only way the type changes; it is never assigned directly.
func (iv *Interview) SetMoment(when moment.Moment, now time.Time) {
	iv.Moment = moment.SomeMoment(when)
	iv.Type = DeriveInterviewType(when, now)
	iv.UpdatedAt = now
}

// ReminderFor returns the interview-owned reminder filling the given slot,
// or nil.
func (iv *Interview) ReminderFor(kind ReminderKind) *Reminder {
	for _, r := range iv.Reminders {
		if r.Kind == kind {
			return r
		}
	}
	return nil
}

// AuditTable implements audit.Record.
func (iv *Interview) AuditTable() string { return "interviews" }

// AuditRowID implements audit.Record.
func (iv *Interview) AuditRowID() string { return iv.ID }

// AuditSnapshot implements audit.Record.
func (iv *Interview) AuditSnapshot() (json.RawMessage, error) {
	type snapshot struct {
		*Interview
		InterviewDatetime interface{} `json:"interview_datetime"`
		InterviewTimezone interface{} `json:"interview_timezone"`
	}
	dt, tz := iv.Moment.Columns()
	return json.Marshal(snapshot{
		Interview:         iv,
		InterviewDatetime: dt,
		InterviewTimezone: tz,
	})
}

package track

import (
	"encoding/json"
	"time"

	"github.com/trailhq/jobtrail/moment"
)

// ApplicationStatus is the application lifecycle state.
type ApplicationStatus string

const (
	StatusSavedForLater      ApplicationStatus = "saved_for_later"
	StatusWaitingForResponse ApplicationStatus = "waiting_for_response"
	StatusUpcomingInterview  ApplicationStatus = "upcoming_interview"
	StatusReceivedOffer      ApplicationStatus = "received_offer"
	StatusArchived           ApplicationStatus = "archived"
)

// ReminderKindForStatus returns the reminder kind a status requires, or ""
// when the status needs none directly (upcoming_interview delegates to its
// interviews, archived requires none).
func ReminderKindForStatus(status ApplicationStatus) ReminderKind {
	switch status {
	case StatusSavedForLater:
		return ReminderSavedForLater
	case StatusWaitingForResponse:
		return ReminderWaitingForResponse
	case StatusReceivedOffer:
		return ReminderReceivedOffer
	default:
		return ""
	}
}

// Application is the aggregate root for one job application: the row
// itself plus its owned reminders and interviews, loaded together so the
// status/reminder invariants can be validated as a unit.
type Application struct {
	ID              string            `json:"id"`
	CandidateID     string            `json:"candidate_id"`
	Company         string            `json:"company"`
	RoleTitle       string            `json:"role_title"`
	Status          ApplicationStatus `json:"status"`
	ApplicationDate moment.NullDate   `json:"-"`
	ArchivedDate    moment.NullDate   `json:"-"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`

	Reminders  []*Reminder  `json:"-"`
	Interviews []*Interview `json:"-"`
}

// NewApplication constructs a saved_for_later application with its
// required reminder.
func NewApplication(candidateID, company, roleTitle string, reminderDue moment.Moment) *Application {
	now := time.Now()
	app := &Application{
		ID:          NewApplicationID(),
		CandidateID: candidateID,
		Company:     company,
		RoleTitle:   roleTitle,
		Status:      StatusSavedForLater,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	app.Reminders = append(app.Reminders,
		BuildReminder(app.ID, candidateID, ReminderSavedForLater, reminderDue, true))
	return app
}

// ReminderFor returns the application-owned reminder filling the given
// slot, or nil.
func (a *Application) ReminderFor(kind ReminderKind) *Reminder {
	for _, r := range a.Reminders {
		if r.Kind == kind {
			return r
		}
	}
	return nil
}

// HasUpcomingInterview reports whether at least one owned interview is
// typed upcoming.
func (a *Application) HasUpcomingInterview() bool {
	for _, iv := range a.Interviews {
		if iv.Type == InterviewUpcoming {
			return true
		}
	}
	return false
}

// touch bumps the aggregate's update timestamp.
func (a *Application) touch() {
	a.UpdatedAt = time.Now()
}

// AuditTable implements audit.Record.
func (a *Application) AuditTable() string { return "applications" }

// AuditRowID implements audit.Record.
func (a *Application) AuditRowID() string { return a.ID }

// AuditSnapshot implements audit.Record.
func (a *Application) AuditSnapshot() (json.RawMessage, error) {
	type snapshot struct {
		*Application
		ApplicationDate interface{} `json:"application_date"`
		ArchivedDate    interface{} `json:"archived_date"`
	}
	return json.Marshal(snapshot{
		Application:     a,
		ApplicationDate: a.ApplicationDate.Column(),
		ArchivedDate:    a.ArchivedDate.Column(),
	})
}

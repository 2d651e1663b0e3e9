package track

import (
	"time"

	"github.com/trailhq/jobtrail/errors"
	"github.com/trailhq/jobtrail/moment"
)

// Default reminder offsets, anchored in the candidate's timezone, used
// when the web layer does not supply an explicit due moment.
const (
	defaultSavedForLaterOffset = 7 * 24 * time.Hour
	defaultWaitingOffset       = 14 * 24 * time.Hour
	defaultOfferOffset         = 3 * 24 * time.Hour
	defaultPreInterviewLead    = 24 * time.Hour
	defaultPostInterviewLag    = 3 * time.Hour
)

// TransitionForm carries the optional inputs a transition may need. Unset
// fields fall back to sensible defaults in the candidate's timezone.
type TransitionForm struct {
	AppliedOn   moment.NullDate
	ArchivedOn  moment.NullDate
	ReminderDue moment.NullMoment // due for the new status's required reminder
}

// ChangeSet is what a transition hands back for atomic persistence: the
// mutated aggregate plus any reminder rows that were superseded and must
// be deleted (a reminder is replaced or updated, never orphaned).
type ChangeSet struct {
	Application      *Application
	RemovedReminders []*Reminder
}

// candidateClock returns a moment at the given offset from now in the
// candidate's home timezone. An unloadable candidate timezone falls back
// to UTC; the candidate row was validated at creation.
func candidateClock(c *Candidate, now time.Time, offset time.Duration) moment.Moment {
	m, err := moment.Compose(now.Add(offset), c.Timezone)
	if err != nil {
		m, _ = moment.Compose(now.Add(offset), "UTC")
	}
	return m
}

// ensureReminder guarantees the application carries the reminder its new
// status requires: creates it if absent, re-enables and retimes it if the
// form supplies a due moment, and otherwise leaves an existing one alone.
func (a *Application) ensureReminder(kind ReminderKind, due moment.Moment, explicit bool) {
	existing := a.ReminderFor(kind)
	if existing == nil {
		a.Reminders = append(a.Reminders,
			BuildReminder(a.ID, a.CandidateID, kind, due, true))
		return
	}
	if explicit || !existing.Due.Valid {
		existing.Due = moment.SomeMoment(due)
		existing.IsEnabled = true
		existing.UpdatedAt = time.Now()
	}
}

// reminderDue resolves the due moment for a status reminder from the form
// or the default offset.
func reminderDue(c *Candidate, form TransitionForm, now time.Time, fallback time.Duration) (moment.Moment, bool) {
	if form.ReminderDue.Valid {
		return form.ReminderDue.Moment, true
	}
	return candidateClock(c, now, fallback), false
}

// MarkApplied records that the candidate applied: status becomes
// waiting_for_response, the application date is set, and the
// waiting_for_response reminder is ensured. Unrelated reminders are left
// untouched.
func (a *Application) MarkApplied(c *Candidate, form TransitionForm, now time.Time) (*ChangeSet, error) {
	if form.AppliedOn.Valid {
		a.ApplicationDate = form.AppliedOn
	} else if !a.ApplicationDate.Valid {
		a.ApplicationDate = moment.SomeDate(todayFor(c, now))
	}
	a.Status = StatusWaitingForResponse

	due, explicit := reminderDue(c, form, now, defaultWaitingOffset)
	a.ensureReminder(ReminderWaitingForResponse, due, explicit)
	a.touch()

	return a.changeSet(now)
}

// ScheduleInterview attaches a new interview at the given moment and moves
// the application to upcoming_interview. Pre/post reminders default to 24h
// before and 3h after the interview in the interview's own timezone.
func (a *Application) ScheduleInterview(c *Candidate, when moment.Moment, now time.Time) (*ChangeSet, *Interview, error) {
	preDue, err := moment.Compose(when.Instant().Add(-defaultPreInterviewLead), when.Timezone())
	if err != nil {
		return nil, nil, errors.Wrap(err, "compose pre-interview reminder moment")
	}
	postDue, err := moment.Compose(when.Instant().Add(defaultPostInterviewLag), when.Timezone())
	if err != nil {
		return nil, nil, errors.Wrap(err, "compose post-interview reminder moment")
	}

	iv := NewInterview(a.ID, a.CandidateID, when, preDue, postDue, now)
	a.Interviews = append(a.Interviews, iv)
	a.Status = StatusUpcomingInterview
	if !a.ApplicationDate.Valid {
		// Scheduling an interview implies the candidate has applied
		a.ApplicationDate = moment.SomeDate(todayFor(c, now))
	}
	a.touch()

	cs, err := a.changeSet(now)
	return cs, iv, err
}

// MarkOfferReceived moves the application to received_offer and ensures
// its respond-to-offer reminder.
func (a *Application) MarkOfferReceived(c *Candidate, form TransitionForm, now time.Time) (*ChangeSet, error) {
	a.Status = StatusReceivedOffer

	due, explicit := reminderDue(c, form, now, defaultOfferOffset)
	a.ensureReminder(ReminderReceivedOffer, due, explicit)
	a.touch()

	return a.changeSet(now)
}

// RemoveOffer retracts a received offer. The application falls back to
// upcoming_interview when an upcoming interview exists, otherwise to
// waiting_for_response with its reminder ensured.
func (a *Application) RemoveOffer(c *Candidate, form TransitionForm, now time.Time) (*ChangeSet, error) {
	if a.HasUpcomingInterview() {
		a.Status = StatusUpcomingInterview
	} else {
		a.Status = StatusWaitingForResponse
		due, explicit := reminderDue(c, form, now, defaultWaitingOffset)
		a.ensureReminder(ReminderWaitingForResponse, due, explicit)
	}
	a.touch()

	return a.changeSet(now)
}

// Archive moves the application to archived. No reminder is required;
// existing reminders stay in place but drop out of delivery queries
// because those join on the current status. An application archived
// straight from saved_for_later gets its application date stamped, since
// archived rows always carry one.
func (a *Application) Archive(c *Candidate, form TransitionForm, now time.Time) (*ChangeSet, error) {
	if form.ArchivedOn.Valid {
		a.ArchivedDate = form.ArchivedOn
	} else {
		a.ArchivedDate = moment.SomeDate(todayFor(c, now))
	}
	if !a.ApplicationDate.Valid {
		a.ApplicationDate = moment.SomeDate(todayFor(c, now))
	}
	a.Status = StatusArchived
	a.touch()

	return a.changeSet(now)
}

// Restore brings an archived application back into the active lifecycle:
// upcoming_interview when an upcoming interview exists, otherwise
// waiting_for_response with its reminder ensured.
func (a *Application) Restore(c *Candidate, form TransitionForm, now time.Time) (*ChangeSet, error) {
	a.ArchivedDate = moment.NullDate{}
	if a.HasUpcomingInterview() {
		a.Status = StatusUpcomingInterview
	} else {
		a.Status = StatusWaitingForResponse
		due, explicit := reminderDue(c, form, now, defaultWaitingOffset)
		a.ensureReminder(ReminderWaitingForResponse, due, explicit)
	}
	a.touch()

	return a.changeSet(now)
}

// TransitionStatus is the web layer's entry point: it dispatches to the
// named operation for the requested status, validates, and returns the
// entity set to persist atomically.
func (a *Application) TransitionStatus(c *Candidate, newStatus ApplicationStatus, form TransitionForm, now time.Time) (*ChangeSet, error) {
	switch newStatus {
	case StatusWaitingForResponse:
		if a.Status == StatusArchived {
			return a.Restore(c, form, now)
		}
		if a.Status == StatusReceivedOffer {
			return a.RemoveOffer(c, form, now)
		}
		return a.MarkApplied(c, form, now)
	case StatusReceivedOffer:
		return a.MarkOfferReceived(c, form, now)
	case StatusArchived:
		return a.Archive(c, form, now)
	case StatusUpcomingInterview:
		return nil, errors.New("upcoming_interview is entered by scheduling an interview, not by direct transition")
	case StatusSavedForLater:
		return nil, errors.New("saved_for_later is the initial status and cannot be re-entered")
	default:
		return nil, errors.Newf("unknown status %q", newStatus)
	}
}

// changeSet validates the aggregate and wraps it for persistence.
func (a *Application) changeSet(now time.Time) (*ChangeSet, error) {
	if err := a.Validate(now); err != nil {
		return nil, err
	}
	return &ChangeSet{Application: a}, nil
}

func todayFor(c *Candidate, now time.Time) moment.Date {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return moment.DateOf(now.In(loc))
}

package track

import (
	"fmt"
	"strings"
	"time"
)

// Violation is one failed invariant, attributed to the entity and named
// check that broke it.
type Violation struct {
	Entity  string // "application", "interview", "reminder"
	ID      string
	Check   string
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s: %s: %s", v.Entity, v.ID, v.Check, v.Message)
}

// ValidationError collects every violated invariant for one save attempt,
// so the caller can report all problems together rather than one at a
// time. It is recovered locally and surfaced to the web layer; it never
// crashes the process.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) add(entity, id, check, message string) {
	e.Violations = append(e.Violations, Violation{Entity: entity, ID: id, Check: check, Message: message})
}

// orNil returns the error only if violations were collected.
func (e *ValidationError) orNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

// Validate checks every invariant of the aggregate (application row,
// owned reminders, owned interviews) against the status table:
//
//	status               application date  archived date  required reminder
//	saved_for_later      absent            absent         saved_for_later
//	waiting_for_response present           absent         waiting_for_response
//	upcoming_interview   present           absent         none (delegated)
//	received_offer       present           absent         received_offer
//	archived             present           present        none
func (a *Application) Validate(now time.Time) error {
	verr := &ValidationError{}

	switch a.Status {
	case StatusSavedForLater, StatusWaitingForResponse, StatusUpcomingInterview,
		StatusReceivedOffer, StatusArchived:
	default:
		verr.add("application", a.ID, "status", fmt.Sprintf("unknown status %q", a.Status))
		return verr
	}

	// Date presence rules
	wantApplicationDate := a.Status != StatusSavedForLater
	if wantApplicationDate && !a.ApplicationDate.Valid {
		verr.add("application", a.ID, "applicationDatePresent",
			fmt.Sprintf("status %s requires an application date", a.Status))
	}
	if !wantApplicationDate && a.ApplicationDate.Valid {
		verr.add("application", a.ID, "applicationDateAbsent",
			"saved_for_later applications must not carry an application date")
	}
	if a.Status == StatusArchived && !a.ArchivedDate.Valid {
		verr.add("application", a.ID, "archivedDatePresent",
			"archived applications require an archived date")
	}
	if a.Status != StatusArchived && a.ArchivedDate.Valid {
		verr.add("application", a.ID, "archivedDateAbsent",
			fmt.Sprintf("status %s must not carry an archived date", a.Status))
	}

	// Required reminder per status
	if kind := ReminderKindForStatus(a.Status); kind != "" {
		r := a.ReminderFor(kind)
		if r == nil || r.ID == "" {
			verr.add("application", a.ID, "requiredReminderPresent",
				fmt.Sprintf("status %s requires a %s reminder", a.Status, kind))
		}
	}

	// Owned reminders must belong to this aggregate
	seen := map[ReminderKind]bool{}
	for _, r := range a.Reminders {
		if r.OwnerKind != OwnerApplication || r.OwnerID != a.ID {
			verr.add("reminder", r.ID, "ownerMatches", "reminder is not owned by this application")
		}
		if r.CandidateID != a.CandidateID {
			verr.add("reminder", r.ID, "candidateMatches",
				"reminder candidate does not match application candidate")
		}
		if seen[r.Kind] {
			verr.add("application", a.ID, "reminderSlotUnique",
				fmt.Sprintf("duplicate %s reminder", r.Kind))
		}
		seen[r.Kind] = true
	}

	// Cross-entity: status is upcoming_interview iff at least one owned
	// interview is typed upcoming. Failures attribute to the interview's
	// applicationStatusMatchesType check.
	hasUpcoming := a.HasUpcomingInterview()
	if a.Status == StatusUpcomingInterview && !hasUpcoming {
		verr.add("interview", a.ID, "applicationStatusMatchesType",
			"status upcoming_interview requires at least one upcoming interview")
	}
	if a.Status != StatusUpcomingInterview && a.Status != StatusArchived && hasUpcoming {
		verr.add("interview", a.ID, "applicationStatusMatchesType",
			fmt.Sprintf("application has an upcoming interview but status is %s", a.Status))
	}

	// Owned interviews
	for _, iv := range a.Interviews {
		if iv.ApplicationID != a.ID {
			verr.add("interview", iv.ID, "ownerMatches", "interview is not owned by this application")
		}
		if iv.CandidateID != a.CandidateID {
			verr.add("interview", iv.ID, "candidateMatches",
				"interview candidate does not match application candidate")
		}
		iv.validateInto(verr, now)
	}

	return verr.orNil()
}

// Validate checks the interview's own invariants.
func (iv *Interview) Validate(now time.Time) error {
	verr := &ValidationError{}
	iv.validateInto(verr, now)
	return verr.orNil()
}

func (iv *Interview) validateInto(verr *ValidationError, now time.Time) {
	// Type must always equal the derivation from the moment
	if iv.Moment.Valid {
		if derived := DeriveInterviewType(iv.Moment.Moment, now); iv.Type != derived {
			verr.add("interview", iv.ID, "typeDerivedFromMoment",
				fmt.Sprintf("type %s does not match derived %s", iv.Type, derived))
		}
	}

	pre := iv.ReminderFor(ReminderPreInterview)
	post := iv.ReminderFor(ReminderPostInterview)
	if pre == nil || pre.ID == "" {
		verr.add("interview", iv.ID, "preInterviewReminderPresent",
			"interview requires a pre_interview reminder")
	}
	if post == nil || post.ID == "" {
		verr.add("interview", iv.ID, "postInterviewReminderPresent",
			"interview requires a post_interview reminder")
	}

	// Reminder moments bracket the interview moment, checked only while enabled
	if iv.Moment.Valid {
		when := iv.Moment.Moment
		if pre != nil && pre.IsEnabled && pre.Due.Valid && pre.Due.Moment.After(when) {
			verr.add("reminder", pre.ID, "preReminderNotAfterInterview",
				"pre-interview reminder is due after the interview")
		}
		if post != nil && post.IsEnabled && post.Due.Valid && post.Due.Moment.Before(when) {
			verr.add("reminder", post.ID, "postReminderNotBeforeInterview",
				"post-interview reminder is due before the interview")
		}
	}

	for _, r := range iv.Reminders {
		if r.OwnerKind != OwnerInterview || r.OwnerID != iv.ID {
			verr.add("reminder", r.ID, "ownerMatches", "reminder is not owned by this interview")
		}
		if r.CandidateID != iv.CandidateID {
			verr.add("reminder", r.ID, "candidateMatches",
				"reminder candidate does not match interview candidate")
		}
	}
}

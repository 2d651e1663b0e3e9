package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhq/jobtrail/moment"
)

func violationChecks(t *testing.T, err error) []string {
	t.Helper()
	verr, ok := err.(*ValidationError)
	require.True(t, ok, "expected *ValidationError, got %T: %v", err, err)
	checks := make([]string, len(verr.Violations))
	for i, v := range verr.Violations {
		checks[i] = v.Check
	}
	return checks
}

func TestValidateDateRules(t *testing.T) {
	now := time.Now()
	c := testCandidate()

	t.Run("saved_for_later rejects application date", func(t *testing.T) {
		app := testApplication(t, c)
		app.ApplicationDate = moment.SomeDate(moment.DateOf(now))
		assert.Contains(t, violationChecks(t, app.Validate(now)), "applicationDateAbsent")
	})

	t.Run("waiting_for_response requires application date", func(t *testing.T) {
		app := testApplication(t, c)
		app.Status = StatusWaitingForResponse
		app.ensureReminder(ReminderWaitingForResponse,
			moment.MustCompose(now.Add(time.Hour), c.Timezone), true)
		assert.Contains(t, violationChecks(t, app.Validate(now)), "applicationDatePresent")
	})

	t.Run("archived requires both dates", func(t *testing.T) {
		app := testApplication(t, c)
		app.Status = StatusArchived
		checks := violationChecks(t, app.Validate(now))
		assert.Contains(t, checks, "applicationDatePresent")
		assert.Contains(t, checks, "archivedDatePresent")
	})

	t.Run("active status rejects archived date", func(t *testing.T) {
		app := testApplication(t, c)
		app.ArchivedDate = moment.SomeDate(moment.DateOf(now))
		assert.Contains(t, violationChecks(t, app.Validate(now)), "archivedDateAbsent")
	})
}

func TestValidateReminderRules(t *testing.T) {
	now := time.Now()
	c := testCandidate()

	t.Run("missing required reminder", func(t *testing.T) {
		app := testApplication(t, c)
		app.Reminders = nil
		assert.Contains(t, violationChecks(t, app.Validate(now)), "requiredReminderPresent")
	})

	t.Run("duplicate slot", func(t *testing.T) {
		app := testApplication(t, c)
		due := moment.MustCompose(now.Add(time.Hour), c.Timezone)
		app.Reminders = append(app.Reminders,
			BuildReminder(app.ID, c.ID, ReminderSavedForLater, due, true))
		assert.Contains(t, violationChecks(t, app.Validate(now)), "reminderSlotUnique")
	})

	t.Run("candidate mismatch", func(t *testing.T) {
		app := testApplication(t, c)
		app.Reminders[0].CandidateID = NewCandidateID()
		assert.Contains(t, violationChecks(t, app.Validate(now)), "candidateMatches")
	})

	t.Run("foreign owner", func(t *testing.T) {
		app := testApplication(t, c)
		app.Reminders[0].OwnerID = NewApplicationID()
		assert.Contains(t, violationChecks(t, app.Validate(now)), "ownerMatches")
	})
}

func TestValidateInterviewRules(t *testing.T) {
	now := time.Now()
	c := testCandidate()

	scheduled := func(t *testing.T) (*Application, *Interview) {
		t.Helper()
		app := testApplication(t, c)
		when := moment.MustCompose(now.Add(48*time.Hour), c.Timezone)
		_, iv, err := app.ScheduleInterview(c, when, now)
		require.NoError(t, err)
		return app, iv
	}

	t.Run("type must match derivation", func(t *testing.T) {
		app, iv := scheduled(t)
		iv.Type = InterviewPast
		checks := violationChecks(t, app.Validate(now))
		assert.Contains(t, checks, "typeDerivedFromMoment")
	})

	t.Run("status tracks upcoming interviews", func(t *testing.T) {
		app, _ := scheduled(t)
		app.Status = StatusWaitingForResponse
		assert.Contains(t, violationChecks(t, app.Validate(now)), "applicationStatusMatchesType")
	})

	t.Run("upcoming status needs an upcoming interview", func(t *testing.T) {
		app, iv := scheduled(t)
		past := moment.MustCompose(now.Add(-time.Hour), c.Timezone)
		iv.SetMoment(past, now)
		// Interview reminders no longer bracket the new moment, so disable
		// them; bracketing is only checked while enabled.
		for _, r := range iv.Reminders {
			r.IsEnabled = false
		}
		assert.Contains(t, violationChecks(t, app.Validate(now)), "applicationStatusMatchesType")
	})

	t.Run("pre reminder must not trail the interview", func(t *testing.T) {
		app, iv := scheduled(t)
		pre := iv.ReminderFor(ReminderPreInterview)
		pre.Due = moment.SomeMoment(moment.MustCompose(now.Add(72*time.Hour), c.Timezone))
		assert.Contains(t, violationChecks(t, app.Validate(now)), "preReminderNotAfterInterview")
	})

	t.Run("post reminder must not precede the interview", func(t *testing.T) {
		app, iv := scheduled(t)
		post := iv.ReminderFor(ReminderPostInterview)
		post.Due = moment.SomeMoment(moment.MustCompose(now.Add(time.Hour), c.Timezone))
		assert.Contains(t, violationChecks(t, app.Validate(now)), "postReminderNotBeforeInterview")
	})

	t.Run("disabled reminders skip bracketing", func(t *testing.T) {
		app, iv := scheduled(t)
		pre := iv.ReminderFor(ReminderPreInterview)
		pre.Due = moment.SomeMoment(moment.MustCompose(now.Add(72*time.Hour), c.Timezone))
		pre.IsEnabled = false
		require.NoError(t, app.Validate(now))
	})

	t.Run("missing pre and post reminders", func(t *testing.T) {
		app, iv := scheduled(t)
		iv.Reminders = nil
		checks := violationChecks(t, app.Validate(now))
		assert.Contains(t, checks, "preInterviewReminderPresent")
		assert.Contains(t, checks, "postInterviewReminderPresent")
	})
}

func TestMarkSentIsAppendOnly(t *testing.T) {
	c := testCandidate()
	due := moment.MustCompose(time.Now(), c.Timezone)
	r := BuildReminder(NewApplicationID(), c.ID, ReminderSavedForLater, due, true)

	first := moment.Date{Year: 2026, Month: time.January, Day: 25}
	r.MarkSent(first)
	require.True(t, r.SentAt.Valid)

	r.MarkSent(moment.Date{Year: 2026, Month: time.February, Day: 1})
	assert.Equal(t, first, r.SentAt.Date, "sent date never reverts or moves")
}

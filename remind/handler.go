// Package remind is the delivery engine: it runs one processing pass per
// queued job, finds every due reminder, and sends them through a Sender.
//
// A pass is safe to repeat. Each successful send stamps sent_at in its
// own transaction before the pass moves on, so a crash mid-pass re-sends
// at most the one reminder whose stamp had not landed yet.
package remind

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trailhq/jobtrail/errors"
	"github.com/trailhq/jobtrail/moment"
	"github.com/trailhq/jobtrail/pulse/async"
	"github.com/trailhq/jobtrail/track"
)

// HandlerName routes processing jobs to this handler. The queue restricts
// it to a single in-flight job so passes never overlap.
const HandlerName = "remind.process"

// DefaultBatchSize caps how many reminders one pass handles per category.
// Anything beyond the cap stays due and is picked up next cycle.
const DefaultBatchSize = 100

// category is one independently processed slice of the due set.
type category struct {
	kind      track.ReminderKind
	template  Template
	interview bool
}

var categories = []category{
	{kind: track.ReminderSavedForLater, template: TemplateSavedForLater},
	{kind: track.ReminderWaitingForResponse, template: TemplateWaitingForResponse},
	{kind: track.ReminderReceivedOffer, template: TemplateReceivedOffer},
	{kind: track.ReminderPreInterview, template: TemplatePreInterview, interview: true},
	{kind: track.ReminderPostInterview, template: TemplatePostInterview, interview: true},
}

// Handler executes one processing pass per job. Implements async.JobHandler.
type Handler struct {
	store     *Store
	sender    Sender
	reporter  Reporter
	batchSize int
	logger    *zap.SugaredLogger
	clock     func() time.Time
}

// NewHandler creates the processing handler. reporter may be nil; a zero
// batchSize gets DefaultBatchSize.
func NewHandler(db *sql.DB, sender Sender, reporter Reporter, batchSize int, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Handler{
		store:     NewStore(db),
		sender:    sender,
		reporter:  reporter,
		batchSize: batchSize,
		logger:    logger.Named("remind"),
		clock:     time.Now,
	}
}

// Name implements async.JobHandler.
func (h *Handler) Name() string { return HandlerName }

// categoryResult is what one category goroutine hands back.
type categoryResult struct {
	kind    track.ReminderKind
	sent    int
	skipped int
	failed  int
	err     error // infrastructure failure, fails the whole job
}

// Execute runs one pass: all categories in parallel, each category's
// reminders sequentially in due order. Per-reminder send failures are
// logged and reported but never fail the pass; the reminder stays unsent
// and the next cycle retries it. Only infrastructure errors (the store
// becoming unreachable) fail the job.
func (h *Handler) Execute(ctx context.Context, job *async.Job) error {
	now := h.clock()

	results := make([]categoryResult, len(categories))
	var wg sync.WaitGroup
	for i, cat := range categories {
		wg.Add(1)
		go func(i int, cat category) {
			defer wg.Done()
			results[i] = h.processCategory(ctx, cat, now)
		}(i, cat)
	}
	wg.Wait()

	var sent, skipped, failed int
	var infraErr error
	for _, res := range results {
		sent += res.sent
		skipped += res.skipped
		failed += res.failed
		if res.err != nil {
			h.logger.Errorw("Category pass failed",
				"kind", res.kind, "error", res.err)
			infraErr = errors.CombineErrors(infraErr, res.err)
		}
	}

	h.logger.Infow("Processing pass complete",
		"job_id", job.ID,
		"sent", sent,
		"skipped", skipped,
		"failed", failed)

	if infraErr != nil {
		return errors.Wrap(infraErr, "processing pass hit infrastructure errors")
	}
	return nil
}

func (h *Handler) processCategory(ctx context.Context, cat category, now time.Time) categoryResult {
	res := categoryResult{kind: cat.kind}

	var due []*DueReminder
	var err error
	if cat.interview {
		due, err = h.store.ListDueInterviewReminders(ctx, cat.kind, now, h.batchSize)
	} else {
		due, err = h.store.ListDueApplicationReminders(ctx, cat.kind, now, h.batchSize)
	}
	if err != nil {
		res.err = err
		return res
	}

	for _, d := range due {
		if err := ctx.Err(); err != nil {
			res.err = err
			return res
		}

		if err := h.sender.Send(ctx, cat.template, d.CandidateEmail, templateData(d)); err != nil {
			res.failed++
			h.logger.Warnw("Reminder delivery failed",
				"reminder_id", d.ReminderID,
				"kind", d.Kind,
				"recipient", d.CandidateEmail,
				"error", err)
			if h.reporter != nil {
				h.reporter.DeliveryFailed(d.ReminderID, cat.template, d.CandidateEmail, err)
			}
			continue
		}

		marked, err := h.store.MarkSent(ctx, d.Kind, d.ReminderID, sentDate(d, now))
		if err != nil {
			// The send went out but the stamp failed; aborting here means
			// the reminder may be re-sent next cycle, which at-least-once
			// accepts.
			res.err = err
			return res
		}
		if !marked {
			res.skipped++
			continue
		}
		res.sent++
	}
	return res
}

// sentDate is today on the candidate's calendar, not the server's.
func sentDate(d *DueReminder, now time.Time) moment.Date {
	loc, err := time.LoadLocation(d.CandidateTimezone)
	if err != nil {
		loc = time.UTC
	}
	return moment.DateOf(now.In(loc))
}

func templateData(d *DueReminder) map[string]interface{} {
	// Moment instants are already localized to their zone.
	data := map[string]interface{}{
		"company":     d.Company,
		"role_title":  d.RoleTitle,
		"due_local":   d.Due.Instant().Format("Mon, 2 Jan 2006 15:04"),
		"due_zone":    d.Due.Timezone(),
		"reminder_id": d.ReminderID,
	}
	if d.InterviewAt.Valid {
		iv := d.InterviewAt.Moment
		data["interview_local"] = iv.Instant().Format("Mon, 2 Jan 2006 15:04")
		data["interview_zone"] = iv.Timezone()
	}
	return data
}

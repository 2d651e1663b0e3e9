// Package notify provides remind.Sender implementations: a zap-backed
// development sender, a recording test double, and a rate-limited
// decorator for wrapping real transports.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/trailhq/jobtrail/errors"
	"github.com/trailhq/jobtrail/remind"
)

// LogSender writes every reminder to the log instead of delivering it.
// The default sender for development and the CLI until a real transport
// is configured.
type LogSender struct {
	logger *zap.SugaredLogger
}

// NewLogSender creates a log-backed sender.
func NewLogSender(logger *zap.SugaredLogger) *LogSender {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogSender{logger: logger.Named("notify")}
}

// Send implements remind.Sender.
func (s *LogSender) Send(_ context.Context, template remind.Template, recipient string, data map[string]interface{}) error {
	s.logger.Infow("Reminder notification",
		"template", template,
		"recipient", recipient,
		"data", data)
	return nil
}

// LogReporter surfaces per-reminder delivery failures on the error log.
// The daemon's default remind.Reporter; an external error channel
// (paging, ticketing) replaces it the same way a real transport replaces
// LogSender.
type LogReporter struct {
	logger *zap.SugaredLogger
}

// NewLogReporter creates a log-backed failure reporter.
func NewLogReporter(logger *zap.SugaredLogger) *LogReporter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogReporter{logger: logger.Named("notify")}
}

// DeliveryFailed implements remind.Reporter.
func (r *LogReporter) DeliveryFailed(reminderID string, template remind.Template, recipient string, err error) {
	r.logger.Errorw("Reminder delivery failed",
		"reminder_id", reminderID,
		"template", template,
		"recipient", recipient,
		"error", err)
}

// Delivery is one captured send.
type Delivery struct {
	Template  remind.Template
	Recipient string
	Data      map[string]interface{}
}

// RecordingSender captures sends for assertions. Thread-safe; a pass
// sends from several category goroutines at once.
type RecordingSender struct {
	mu         sync.Mutex
	deliveries []Delivery
	Err        error // returned from every Send when set
}

// NewRecordingSender creates an empty recording sender.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

// Send implements remind.Sender.
func (s *RecordingSender) Send(_ context.Context, template remind.Template, recipient string, data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.deliveries = append(s.deliveries, Delivery{Template: template, Recipient: recipient, Data: data})
	return nil
}

// Deliveries returns a copy of everything sent so far.
func (s *RecordingSender) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.deliveries...)
}

// RateLimitedSender wraps another sender with a token-bucket limit so a
// large due backlog cannot flood the underlying transport.
type RateLimitedSender struct {
	inner   remind.Sender
	limiter *rate.Limiter
}

// NewRateLimitedSender wraps inner at the given sends-per-second with the
// given burst.
func NewRateLimitedSender(inner remind.Sender, perSecond float64, burst int) *RateLimitedSender {
	return &RateLimitedSender{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Send implements remind.Sender. Blocks until the limiter admits the send
// or the context is cancelled.
func (s *RateLimitedSender) Send(ctx context.Context, template remind.Template, recipient string, data map[string]interface{}) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit wait cancelled")
	}
	return s.inner.Send(ctx, template, recipient, data)
}

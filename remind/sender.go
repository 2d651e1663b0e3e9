package remind

import "context"

// Template names the notification rendered for each reminder kind.
type Template string

const (
	TemplateSavedForLater      Template = "saved-for-later"
	TemplateWaitingForResponse Template = "waiting-for-response"
	TemplateReceivedOffer      Template = "received-offer"
	TemplatePreInterview       Template = "pre-interview"
	TemplatePostInterview      Template = "post-interview"
)

// Sender delivers one rendered reminder to one recipient. Implementations
// live in the notify package; the delivery engine only depends on this
// interface.
type Sender interface {
	Send(ctx context.Context, template Template, recipient string, data map[string]interface{}) error
}

// Reporter receives per-reminder delivery failures. Failures never abort
// a pass; reporting exists so operators see them somewhere besides logs.
type Reporter interface {
	DeliveryFailed(reminderID string, template Template, recipient string, err error)
}

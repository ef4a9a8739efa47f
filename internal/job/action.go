package job

// ActionType is the declared type of a notification action.
type ActionType string

const (
	// ActionTypeWebhook sends an HTTP request to a named webhook
	ActionTypeWebhook ActionType = "webHook"

	// ActionTypeMail sends an email through a named SMTP server
	ActionTypeMail ActionType = "mailHook"
)

// Action is a notification fired for an updated image.
// Implementations are WebhookAction, MailAction and UnknownAction.
type Action interface {
	Type() ActionType
}

// WebhookAction calls a configured HTTP endpoint.
type WebhookAction struct {
	// Instance is the name of the webhook in the configuration
	Instance string

	Method  string
	URL     string
	Headers map[string]string

	// BodyTemplate is a text/template rendered with the update details
	BodyTemplate string
}

// Type implements Action
func (WebhookAction) Type() ActionType {
	return ActionTypeWebhook
}

// MailAction sends an email to Recipient through the SMTP server named Instance.
type MailAction struct {
	Instance  string
	Recipient string
}

// Type implements Action
func (MailAction) Type() ActionType {
	return ActionTypeMail
}

// UnknownAction is any declared action type without a handler.
type UnknownAction struct {
	Kind     string
	Instance string
}

// Type implements Action
func (a UnknownAction) Type() ActionType {
	return ActionType(a.Kind)
}

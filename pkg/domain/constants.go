package domain

// Reserved page identifiers. They can be used as a page target anywhere a page id is accepted.
const (
	// PageStart is the implicit start page of a flow.
	PageStart = "START_PAGE"
	// PageEndFlow exits the active flow and resumes the caller recorded on the return stack.
	PageEndFlow = "END_FLOW"
	// PageEndSession closes the session.
	PageEndSession = "END_SESSION"
	// PageCurrent re-enters the active page.
	PageCurrent = "CURRENT_PAGE"
)

// Built-in event names.
const (
	EventNoMatchDefault   = "sys.no-match-default"
	EventNoInputDefault   = "sys.no-input-default"
	EventInvalidParameter = "sys.invalid-parameter"
	EventWebhookError     = "sys.webhook-error"
	EventWebhookTimeout   = "sys.webhook-timeout"

	// EventNoMatchPrefix and EventNoInputPrefix build numbered reprompt handler names (sys.no-match-1 ...).
	EventNoMatchPrefix = "sys.no-match-"
	EventNoInputPrefix = "sys.no-input-"
)

// MaxNumberedReprompts caps the numbered reprompt handlers considered per parameter.
const MaxNumberedReprompts = 6

// FormStatusFinal is exposed as $page.params.status once every required parameter is filled.
const FormStatusFinal = "FINAL"

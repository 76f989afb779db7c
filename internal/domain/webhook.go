package domain

import "encoding/json"

// WebhookKind is a provider-neutral billing event type.
type WebhookKind string

const (
	WebhookOrderCreated          WebhookKind = "order_created"
	WebhookSubscriptionCreated   WebhookKind = "subscription_created"
	WebhookSubscriptionUpdated   WebhookKind = "subscription_updated"
	WebhookSubscriptionCancelled WebhookKind = "subscription_cancelled"
	WebhookSubscriptionRenewed   WebhookKind = "subscription_renewed"
	WebhookUnrecognized          WebhookKind = "unrecognized"
)

// WebhookEvent is a verified, parsed billing event normalized across
// payment providers.
type WebhookEvent struct {
	Provider string
	EventID  string
	Kind     WebhookKind

	// Name is the provider's own event name, kept for logging.
	Name string

	Email          string
	SubscriptionID string
	CustomerID     string
	ProductName    string

	// PlanHint is set when the provider identified the plan directly
	// (configured price or variant id); otherwise the plan is derived
	// from ProductName.
	PlanHint Plan

	// Status is the provider-reported subscription status, unmapped.
	Status string

	Raw json.RawMessage
}

// Plan returns the plan the event grants.
func (e *WebhookEvent) Plan() Plan {
	if e.PlanHint.Valid() {
		return e.PlanHint
	}
	return PlanFromProductName(e.ProductName)
}

// WebhookOutcome is what the reconciler did with an event.
type WebhookOutcome string

const (
	OutcomeApplied      WebhookOutcome = "applied"
	OutcomeDuplicate    WebhookOutcome = "duplicate"
	OutcomeIgnored      WebhookOutcome = "ignored"
	OutcomeUserNotFound WebhookOutcome = "user_not_found"
)

// Package billing verifies payment provider webhooks and creates hosted
// checkouts for Lemon Squeezy, Stripe and Paddle.
//
// Every provider turns its own event format into a domain.WebhookEvent;
// the service layer never sees provider payloads.
package billing

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/google/uuid"

	"github.com/DukeRupert/tradeflow/internal/domain"
)

var (
	// ErrInvalidSignature is returned when a webhook signature is missing,
	// malformed or does not match the body.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedPayload is returned when a verified body cannot be parsed.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrNotConfigured is returned by checkout when the provider has no
	// credentials or no price for the plan.
	ErrNotConfigured = errors.New("billing provider not configured")
)

// WebhookProvider verifies and normalizes one provider's webhooks.
// body must be the raw request body; signatures are computed over it.
type WebhookProvider interface {
	Name() string
	ParseWebhook(ctx context.Context, body []byte, header http.Header) (*domain.WebhookEvent, error)
}

// CheckoutRequest is a request for a hosted checkout page.
type CheckoutRequest struct {
	Plan       domain.Plan
	UserID     uuid.UUID
	Email      string
	SuccessURL string
	CancelURL  string
}

// CheckoutProvider creates hosted checkout pages and returns their URL.
type CheckoutProvider interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
}

// PlanCatalog maps a provider's price or variant ids to plans.
type PlanCatalog struct {
	Pro     string
	Premium string
}

// PlanFor returns the plan for a provider id, or "" when the id is unknown.
func (c PlanCatalog) PlanFor(id string) domain.Plan {
	switch {
	case id == "":
		return ""
	case id == c.Pro:
		return domain.PlanPro
	case id == c.Premium:
		return domain.PlanPremium
	}
	return ""
}

// IDFor returns the provider id configured for a paid plan.
func (c PlanCatalog) IDFor(p domain.Plan) (string, bool) {
	var id string
	switch p {
	case domain.PlanPro:
		id = c.Pro
	case domain.PlanPremium:
		id = c.Premium
	}
	return id, id != ""
}

// Registry holds the providers enabled at startup, keyed by name.
type Registry struct {
	webhooks  map[string]WebhookProvider
	checkouts map[string]CheckoutProvider
	fallback  string
}

func NewRegistry() *Registry {
	return &Registry{
		webhooks:  make(map[string]WebhookProvider),
		checkouts: make(map[string]CheckoutProvider),
	}
}

// RegisterWebhook enables POST /webhook/{name} for p.
func (r *Registry) RegisterWebhook(p WebhookProvider) {
	r.webhooks[p.Name()] = p
}

// RegisterCheckout enables checkout through p. The first registered
// checkout provider is the default.
func (r *Registry) RegisterCheckout(p CheckoutProvider) {
	if r.fallback == "" {
		r.fallback = p.Name()
	}
	r.checkouts[p.Name()] = p
}

func (r *Registry) Webhook(name string) (WebhookProvider, bool) {
	p, ok := r.webhooks[name]
	return p, ok
}

// Checkout returns the named provider, or the default one when name is empty.
func (r *Registry) Checkout(name string) (CheckoutProvider, bool) {
	if name == "" {
		name = r.fallback
	}
	p, ok := r.checkouts[name]
	return p, ok
}

// WebhookNames lists the enabled webhook providers, sorted.
func (r *Registry) WebhookNames() []string {
	names := make([]string, 0, len(r.webhooks))
	for name := range r.webhooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/DukeRupert/tradeflow/internal/domain"
)

const ProviderStripe = "stripe"

// StripeConfig holds Stripe credentials and the plan price ids.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Prices        PlanCatalog
}

// Stripe implements WebhookProvider and CheckoutProvider.
type Stripe struct {
	config StripeConfig
	api    *client.API
	logger *slog.Logger
}

// NewStripe creates the provider. A dedicated client.API is used instead
// of the package-level stripe.Key.
func NewStripe(config StripeConfig, logger *slog.Logger) *Stripe {
	s := &Stripe{config: config, logger: logger}
	if config.SecretKey != "" {
		s.api = client.New(config.SecretKey, nil)
	}
	return s
}

func (s *Stripe) Name() string { return ProviderStripe }

// ParseWebhook verifies Stripe-Signature and normalizes the event.
func (s *Stripe) ParseWebhook(ctx context.Context, body []byte, header http.Header) (*domain.WebhookEvent, error) {
	if s.config.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(body, header.Get("Stripe-Signature"), s.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		// ConstructEvent verifies before it decodes, so a decode failure
		// here still means the body was signed.
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrInvalidHeader) || errors.Is(err, webhook.ErrTooOld) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event has no data", ErrMalformedPayload)
	}

	ev := &domain.WebhookEvent{
		Provider: ProviderStripe,
		EventID:  event.ID,
		Name:     string(event.Type),
		Kind:     domain.WebhookUnrecognized,
		Raw:      json.RawMessage(body),
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		// Subscription checkouts are applied from customer.subscription.created.
		if sess.Mode == stripe.CheckoutSessionModePayment {
			ev.Kind = domain.WebhookOrderCreated
			ev.Email = sess.CustomerEmail
			if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
				ev.Email = sess.CustomerDetails.Email
			}
			if sess.Customer != nil {
				ev.CustomerID = sess.Customer.ID
			}
			ev.PlanHint = metadataPlan(sess.Metadata)
			ev.ProductName = sess.Metadata["product_name"]
		}

	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		s.fillSubscription(ev, &sub)
		switch event.Type {
		case stripe.EventTypeCustomerSubscriptionCreated:
			ev.Kind = domain.WebhookSubscriptionCreated
		case stripe.EventTypeCustomerSubscriptionUpdated:
			ev.Kind = domain.WebhookSubscriptionUpdated
			if sub.CancelAtPeriodEnd && sub.Status == stripe.SubscriptionStatusActive {
				ev.Status = string(domain.SubscriptionStatusCancelled)
			}
		default:
			ev.Kind = domain.WebhookSubscriptionCancelled
		}

	case stripe.EventTypeInvoicePaymentSucceeded:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if inv.BillingReason == stripe.InvoiceBillingReasonSubscriptionCycle && inv.Subscription != nil {
			ev.Kind = domain.WebhookSubscriptionRenewed
			ev.SubscriptionID = inv.Subscription.ID
			ev.Email = inv.CustomerEmail
			if inv.Customer != nil {
				ev.CustomerID = inv.Customer.ID
			}
		}
	}

	return ev, nil
}

func (s *Stripe) fillSubscription(ev *domain.WebhookEvent, sub *stripe.Subscription) {
	ev.SubscriptionID = sub.ID
	ev.Status = string(sub.Status)
	ev.Email = sub.Metadata["email"]
	if sub.Customer != nil {
		ev.CustomerID = sub.Customer.ID
		if ev.Email == "" {
			ev.Email = sub.Customer.Email
		}
	}
	ev.PlanHint = metadataPlan(sub.Metadata)
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		if p := s.config.Prices.PlanFor(price.ID); p != "" {
			ev.PlanHint = p
		}
		if price.Product != nil {
			ev.ProductName = price.Product.Name
		}
	}
}

func metadataPlan(md map[string]string) domain.Plan {
	p, err := domain.ParsePlan(md["plan"])
	if err != nil {
		return ""
	}
	return p
}

// CreateCheckout creates a subscription Checkout Session. The plan and
// email are copied into the subscription metadata so lifecycle events can
// be matched to the user.
func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	if s.api == nil {
		return "", ErrNotConfigured
	}
	priceID, ok := s.config.Prices.IDFor(req.Plan)
	if !ok {
		return "", fmt.Errorf("%w: no price for plan %s", ErrNotConfigured, req.Plan)
	}

	metadata := map[string]string{
		"plan":    string(req.Plan),
		"user_id": req.UserID.String(),
		"email":   req.Email,
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		CustomerEmail:     stripe.String(req.Email),
		ClientReferenceID: stripe.String(req.UserID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

var (
	_ WebhookProvider  = (*Stripe)(nil)
	_ CheckoutProvider = (*Stripe)(nil)
)

package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DukeRupert/tradeflow/internal/domain"
)

const (
	// ProviderLemonSqueezy is the provider name used in routes and the
	// webhook_events table.
	ProviderLemonSqueezy = "lemon-squeezy"

	lemonSqueezyAPIURL = "https://api.lemonsqueezy.com/v1"
)

// LemonSqueezyConfig holds Lemon Squeezy credentials.
type LemonSqueezyConfig struct {
	APIKey        string
	StoreID       string
	WebhookSecret string

	// AllowUnsigned accepts webhooks without verification when
	// WebhookSecret is empty. Without it, unsigned webhooks are rejected.
	AllowUnsigned bool

	Variants PlanCatalog

	// APIURL overrides the API base, used by tests.
	APIURL string
}

// LemonSqueezy implements WebhookProvider and CheckoutProvider.
type LemonSqueezy struct {
	config LemonSqueezyConfig
	client *http.Client
	logger *slog.Logger
}

func NewLemonSqueezy(config LemonSqueezyConfig, logger *slog.Logger) *LemonSqueezy {
	if config.APIURL == "" {
		config.APIURL = lemonSqueezyAPIURL
	}
	return &LemonSqueezy{
		config: config,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

func (l *LemonSqueezy) Name() string { return ProviderLemonSqueezy }

// SignatureRequired reports whether webhooks must carry a valid X-Signature.
func (l *LemonSqueezy) SignatureRequired() bool {
	return l.config.WebhookSecret != "" || !l.config.AllowUnsigned
}

// ParseWebhook verifies X-Signature (hex HMAC-SHA256 of the body) and
// normalizes the event.
func (l *LemonSqueezy) ParseWebhook(ctx context.Context, body []byte, header http.Header) (*domain.WebhookEvent, error) {
	if err := l.verify(body, header.Get("X-Signature")); err != nil {
		return nil, err
	}

	var payload lsWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload.Meta.EventName == "" {
		return nil, fmt.Errorf("%w: missing meta.event_name", ErrMalformedPayload)
	}

	attrs := payload.Data.Attributes
	ev := &domain.WebhookEvent{
		Provider:   ProviderLemonSqueezy,
		EventID:    payload.Meta.WebhookID,
		Name:       payload.Meta.EventName,
		Email:      attrs.UserEmail,
		CustomerID: attrs.CustomerID.String(),
		Status:     attrs.Status,
		Raw:        json.RawMessage(body),
	}
	if ev.EventID == "" {
		sum := sha256.Sum256(body)
		ev.EventID = hex.EncodeToString(sum[:])
	}

	switch payload.Meta.EventName {
	case "order_created":
		ev.Kind = domain.WebhookOrderCreated
		ev.ProductName = attrs.FirstOrderItem.ProductName
		ev.PlanHint = l.config.Variants.PlanFor(attrs.FirstOrderItem.VariantID.String())

	case "subscription_created":
		ev.Kind = domain.WebhookSubscriptionCreated
		ev.SubscriptionID = payload.Data.ID.String()
		ev.ProductName = attrs.ProductName
		ev.PlanHint = l.config.Variants.PlanFor(attrs.VariantID.String())

	case "subscription_updated", "subscription_resumed", "subscription_unpaused":
		ev.Kind = domain.WebhookSubscriptionUpdated
		ev.SubscriptionID = payload.Data.ID.String()

	case "subscription_expired":
		ev.Kind = domain.WebhookSubscriptionUpdated
		ev.SubscriptionID = payload.Data.ID.String()
		ev.Status = string(domain.SubscriptionStatusExpired)

	case "subscription_cancelled":
		ev.Kind = domain.WebhookSubscriptionCancelled
		ev.SubscriptionID = payload.Data.ID.String()

	case "subscription_payment_success":
		// The first invoice is covered by subscription_created.
		ev.SubscriptionID = attrs.SubscriptionID.String()
		if attrs.BillingReason == "initial" {
			ev.Kind = domain.WebhookUnrecognized
		} else {
			ev.Kind = domain.WebhookSubscriptionRenewed
		}

	default:
		ev.Kind = domain.WebhookUnrecognized
	}

	return ev, nil
}

func (l *LemonSqueezy) verify(body []byte, signature string) error {
	if l.config.WebhookSecret == "" {
		if l.config.AllowUnsigned {
			return nil
		}
		return fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	if signature == "" {
		return fmt.Errorf("%w: missing X-Signature", ErrInvalidSignature)
	}

	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(l.config.WebhookSecret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// CreateCheckout creates a checkout through the JSON:API checkouts
// endpoint. The user's email is prefilled and their id travels in custom
// data.
func (l *LemonSqueezy) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	if l.config.APIKey == "" || l.config.StoreID == "" {
		return "", ErrNotConfigured
	}
	variantID, ok := l.config.Variants.IDFor(req.Plan)
	if !ok {
		return "", fmt.Errorf("%w: no variant for plan %s", ErrNotConfigured, req.Plan)
	}

	var body lsCheckoutRequest
	body.Data.Type = "checkouts"
	body.Data.Attributes.CheckoutData.Email = req.Email
	body.Data.Attributes.CheckoutData.Custom = map[string]string{"user_id": req.UserID.String()}
	body.Data.Attributes.ProductOptions.RedirectURL = req.SuccessURL
	body.Data.Relationships.Store.Data = lsResource{Type: "stores", ID: l.config.StoreID}
	body.Data.Relationships.Variant.Data = lsResource{Type: "variants", ID: variantID}

	buf, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal checkout: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.config.APIURL+"/checkouts", bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/vnd.api+json")
	httpReq.Header.Set("Content-Type", "application/vnd.api+json")
	httpReq.Header.Set("Authorization", "Bearer "+l.config.APIKey)

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("lemon squeezy create checkout: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read checkout response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		l.logger.Error("lemon squeezy checkout rejected",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return "", fmt.Errorf("lemon squeezy create checkout: status %d", resp.StatusCode)
	}

	var created lsCheckoutResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", fmt.Errorf("decode checkout response: %w", err)
	}
	if created.Data.Attributes.URL == "" {
		return "", fmt.Errorf("lemon squeezy create checkout: no url returned")
	}
	return created.Data.Attributes.URL, nil
}

var (
	_ WebhookProvider  = (*LemonSqueezy)(nil)
	_ CheckoutProvider = (*LemonSqueezy)(nil)
)

// lsID accepts ids sent either as JSON numbers or strings.
type lsID string

func (id *lsID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = lsID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id %s is not an integer", n)
	}
	*id = lsID(n.String())
	return nil
}

func (id lsID) String() string { return string(id) }

type lsWebhook struct {
	Meta struct {
		EventName  string         `json:"event_name"`
		WebhookID  string         `json:"webhook_id"`
		CustomData map[string]any `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         lsID   `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			UserEmail      string `json:"user_email"`
			CustomerID     lsID   `json:"customer_id"`
			ProductName    string `json:"product_name"`
			VariantID      lsID   `json:"variant_id"`
			Status         string `json:"status"`
			SubscriptionID lsID   `json:"subscription_id"`
			BillingReason  string `json:"billing_reason"`
			FirstOrderItem struct {
				ProductName string `json:"product_name"`
				VariantID   lsID   `json:"variant_id"`
			} `json:"first_order_item"`
		} `json:"attributes"`
	} `json:"data"`
}

type lsResource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type lsCheckoutRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			CheckoutData struct {
				Email  string            `json:"email,omitempty"`
				Custom map[string]string `json:"custom,omitempty"`
			} `json:"checkout_data"`
			ProductOptions struct {
				RedirectURL string `json:"redirect_url,omitempty"`
			} `json:"product_options"`
		} `json:"attributes"`
		Relationships struct {
			Store struct {
				Data lsResource `json:"data"`
			} `json:"store"`
			Variant struct {
				Data lsResource `json:"data"`
			} `json:"variant"`
		} `json:"relationships"`
	} `json:"data"`
}

type lsCheckoutResponse struct {
	Data struct {
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
}

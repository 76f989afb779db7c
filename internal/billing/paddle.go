package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/DukeRupert/tradeflow/internal/domain"
)

const ProviderPaddle = "paddle"

// PaddleConfig holds Paddle Billing credentials.
type PaddleConfig struct {
	APIKey        string
	WebhookSecret string
	Environment   string // "production" or "sandbox"
	Prices        PlanCatalog

	// BaseURL overrides the API base, used by tests.
	BaseURL string
}

// Paddle implements WebhookProvider and CheckoutProvider.
type Paddle struct {
	config   PaddleConfig
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	logger   *slog.Logger
}

// NewPaddle creates the provider. The API client is only built when an
// API key is configured; webhooks need just the secret.
func NewPaddle(config PaddleConfig, logger *slog.Logger) (*Paddle, error) {
	p := &Paddle{
		config:   config,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		logger:   logger,
	}

	if config.APIKey == "" {
		return p, nil
	}

	var opts []paddle.Option
	if config.BaseURL != "" {
		opts = append(opts, paddle.WithBaseURL(config.BaseURL))
	}

	var err error
	switch strings.ToLower(config.Environment) {
	case "sandbox":
		p.client, err = paddle.NewSandbox(config.APIKey, opts...)
	case "production", "":
		p.client, err = paddle.New(config.APIKey, opts...)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}
	return p, nil
}

func (p *Paddle) Name() string { return ProviderPaddle }

// ParseWebhook verifies Paddle-Signature with the SDK verifier and
// normalizes the event.
func (p *Paddle) ParseWebhook(ctx context.Context, body []byte, header http.Header) (*domain.WebhookEvent, error) {
	if p.config.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}

	// The SDK verifies an *http.Request, so rebuild one around the raw body.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook/paddle", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build verification request: %w", err)
	}
	req.Header.Set("Paddle-Signature", header.Get("Paddle-Signature"))

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	var payload paddleWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload.EventID == "" || payload.EventType == "" {
		return nil, fmt.Errorf("%w: missing event_id or event_type", ErrMalformedPayload)
	}

	data := payload.Data
	ev := &domain.WebhookEvent{
		Provider:   ProviderPaddle,
		EventID:    payload.EventID,
		Name:       payload.EventType,
		Kind:       domain.WebhookUnrecognized,
		CustomerID: data.CustomerID,
		Status:     data.Status,
		Email:      data.custom("email"),
		PlanHint:   p.config.Prices.PlanFor(data.priceID()),
		Raw:        json.RawMessage(body),
	}
	if ev.PlanHint == "" {
		if plan, err := domain.ParsePlan(data.custom("plan")); err == nil {
			ev.PlanHint = plan
		}
	}

	switch payload.EventType {
	case "transaction.completed":
		switch {
		case data.SubscriptionID == "":
			ev.Kind = domain.WebhookOrderCreated
		case data.Origin == "subscription_recurring":
			ev.Kind = domain.WebhookSubscriptionRenewed
			ev.SubscriptionID = data.SubscriptionID
		}
		// Initial subscription transactions are applied from subscription.created.

	case "subscription.created":
		ev.Kind = domain.WebhookSubscriptionCreated
		ev.SubscriptionID = data.ID

	case "subscription.updated", "subscription.resumed":
		ev.Kind = domain.WebhookSubscriptionUpdated
		ev.SubscriptionID = data.ID
		if data.ScheduledChange != nil && data.ScheduledChange.Action == "cancel" {
			ev.Status = string(domain.SubscriptionStatusCancelled)
		}

	case "subscription.canceled":
		ev.Kind = domain.WebhookSubscriptionCancelled
		ev.SubscriptionID = data.ID
	}

	return ev, nil
}

// CreateCheckout creates a transaction for the plan's price and returns
// its hosted checkout URL.
func (p *Paddle) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	if p.client == nil {
		return "", ErrNotConfigured
	}
	priceID, ok := p.config.Prices.IDFor(req.Plan)
	if !ok {
		return "", fmt.Errorf("%w: no price for plan %s", ErrNotConfigured, req.Plan)
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  priceID,
		Quantity: 1,
	})

	txReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"user_id": req.UserID.String(),
			"email":   req.Email,
			"plan":    string(req.Plan),
		},
	}
	if req.SuccessURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	tx, err := p.client.TransactionsClient.CreateTransaction(ctx, txReq)
	if err != nil {
		return "", fmt.Errorf("failed to create paddle transaction: %w", err)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil {
		return "", errors.New("no checkout URL returned from paddle")
	}
	return *tx.Checkout.URL, nil
}

var (
	_ WebhookProvider  = (*Paddle)(nil)
	_ CheckoutProvider = (*Paddle)(nil)
)

type paddleWebhook struct {
	EventID   string     `json:"event_id"`
	EventType string     `json:"event_type"`
	Data      paddleData `json:"data"`
}

type paddleData struct {
	ID              string         `json:"id"`
	Status          string         `json:"status"`
	CustomerID      string         `json:"customer_id"`
	SubscriptionID  string         `json:"subscription_id"`
	Origin          string         `json:"origin"`
	CustomData      map[string]any `json:"custom_data"`
	ScheduledChange *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
	Items []struct {
		PriceID string `json:"price_id"`
		Price   *struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
}

func (d paddleData) priceID() string {
	if len(d.Items) == 0 {
		return ""
	}
	if d.Items[0].Price != nil && d.Items[0].Price.ID != "" {
		return d.Items[0].Price.ID
	}
	return d.Items[0].PriceID
}

func (d paddleData) custom(key string) string {
	s, _ := d.CustomData[key].(string)
	return s
}

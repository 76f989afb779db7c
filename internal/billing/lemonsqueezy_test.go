package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/tradeflow/internal/domain"
)

const lsSecret = "ls-test-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func lsSign(body []byte) http.Header {
	mac := hmac.New(sha256.New, []byte(lsSecret))
	mac.Write(body)
	h := http.Header{}
	h.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	return h
}

func newTestLemonSqueezy(cfg LemonSqueezyConfig) *LemonSqueezy {
	return NewLemonSqueezy(cfg, testLogger())
}

func TestLemonSqueezy_ParseWebhook(t *testing.T) {
	ls := newTestLemonSqueezy(LemonSqueezyConfig{
		WebhookSecret: lsSecret,
		Variants:      PlanCatalog{Pro: "1297946", Premium: "1297978"},
	})

	tests := []struct {
		name     string
		body     string
		wantKind domain.WebhookKind
		check    func(t *testing.T, ev *domain.WebhookEvent)
	}{
		{
			name:     "order created",
			body:     `{"meta":{"event_name":"order_created"},"data":{"id":"1","attributes":{"user_email":"Buyer@Example.com","customer_id":42,"first_order_item":{"product_name":"Premium Plan","variant_id":555}}}}`,
			wantKind: domain.WebhookOrderCreated,
			check: func(t *testing.T, ev *domain.WebhookEvent) {
				assert.Equal(t, "Buyer@Example.com", ev.Email)
				assert.Equal(t, "42", ev.CustomerID)
				assert.Equal(t, domain.PlanPremium, ev.Plan())
			},
		},
		{
			name:     "subscription created uses variant id",
			body:     `{"meta":{"event_name":"subscription_created","webhook_id":"wh_1"},"data":{"id":"sub_9","attributes":{"user_email":"a@b.co","product_name":"TradeFlow","variant_id":1297946,"status":"active"}}}`,
			wantKind: domain.WebhookSubscriptionCreated,
			check: func(t *testing.T, ev *domain.WebhookEvent) {
				assert.Equal(t, "wh_1", ev.EventID)
				assert.Equal(t, "sub_9", ev.SubscriptionID)
				assert.Equal(t, domain.PlanPro, ev.Plan())
			},
		},
		{
			name:     "subscription updated",
			body:     `{"meta":{"event_name":"subscription_updated"},"data":{"id":"7","attributes":{"status":"past_due"}}}`,
			wantKind: domain.WebhookSubscriptionUpdated,
			check: func(t *testing.T, ev *domain.WebhookEvent) {
				assert.Equal(t, "7", ev.SubscriptionID)
				assert.Equal(t, "past_due", ev.Status)
			},
		},
		{
			name:     "subscription expired",
			body:     `{"meta":{"event_name":"subscription_expired"},"data":{"id":"7","attributes":{"status":"expired"}}}`,
			wantKind: domain.WebhookSubscriptionUpdated,
			check: func(t *testing.T, ev *domain.WebhookEvent) {
				assert.Equal(t, "expired", ev.Status)
			},
		},
		{
			name:     "subscription cancelled",
			body:     `{"meta":{"event_name":"subscription_cancelled"},"data":{"id":"7","attributes":{"status":"cancelled"}}}`,
			wantKind: domain.WebhookSubscriptionCancelled,
		},
		{
			name:     "renewal payment",
			body:     `{"meta":{"event_name":"subscription_payment_success"},"data":{"id":"inv_1","attributes":{"subscription_id":7,"billing_reason":"renewal"}}}`,
			wantKind: domain.WebhookSubscriptionRenewed,
			check: func(t *testing.T, ev *domain.WebhookEvent) {
				assert.Equal(t, "7", ev.SubscriptionID)
			},
		},
		{
			name:     "initial payment is ignored",
			body:     `{"meta":{"event_name":"subscription_payment_success"},"data":{"id":"inv_1","attributes":{"subscription_id":7,"billing_reason":"initial"}}}`,
			wantKind: domain.WebhookUnrecognized,
		},
		{
			name:     "unknown event",
			body:     `{"meta":{"event_name":"license_key_created"},"data":{"id":"1","attributes":{}}}`,
			wantKind: domain.WebhookUnrecognized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := []byte(tt.body)
			ev, err := ls.ParseWebhook(context.Background(), body, lsSign(body))
			require.NoError(t, err)
			assert.Equal(t, ProviderLemonSqueezy, ev.Provider)
			assert.Equal(t, tt.wantKind, ev.Kind)
			assert.NotEmpty(t, ev.EventID)
			if tt.check != nil {
				tt.check(t, ev)
			}
		})
	}
}

func TestLemonSqueezy_EventIDFallsBackToBodyHash(t *testing.T) {
	ls := newTestLemonSqueezy(LemonSqueezyConfig{WebhookSecret: lsSecret})
	body := []byte(`{"meta":{"event_name":"order_created"},"data":{"id":"1","attributes":{}}}`)

	a, err := ls.ParseWebhook(context.Background(), body, lsSign(body))
	require.NoError(t, err)
	b, err := ls.ParseWebhook(context.Background(), body, lsSign(body))
	require.NoError(t, err)

	sum := sha256.Sum256(body)
	assert.Equal(t, hex.EncodeToString(sum[:]), a.EventID)
	assert.Equal(t, a.EventID, b.EventID)
}

func TestLemonSqueezy_RejectsBadSignatures(t *testing.T) {
	ls := newTestLemonSqueezy(LemonSqueezyConfig{WebhookSecret: lsSecret})
	body := []byte(`{"meta":{"event_name":"order_created"},"data":{"attributes":{"user_email":"a@b.co"}}}`)

	tampered := []byte(`{"meta":{"event_name":"order_created"},"data":{"attributes":{"user_email":"evil@b.co"}}}`)
	_, err := ls.ParseWebhook(context.Background(), tampered, lsSign(body))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = ls.ParseWebhook(context.Background(), body, http.Header{})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	h := http.Header{}
	h.Set("X-Signature", "not-hex")
	_, err = ls.ParseWebhook(context.Background(), body, h)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestLemonSqueezy_UnsignedPolicy(t *testing.T) {
	body := []byte(`{"meta":{"event_name":"order_created"},"data":{"attributes":{}}}`)

	closed := newTestLemonSqueezy(LemonSqueezyConfig{})
	assert.True(t, closed.SignatureRequired())
	_, err := closed.ParseWebhook(context.Background(), body, http.Header{})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	open := newTestLemonSqueezy(LemonSqueezyConfig{AllowUnsigned: true})
	assert.False(t, open.SignatureRequired())
	ev, err := open.ParseWebhook(context.Background(), body, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOrderCreated, ev.Kind)
}

func TestLemonSqueezy_MalformedPayload(t *testing.T) {
	ls := newTestLemonSqueezy(LemonSqueezyConfig{WebhookSecret: lsSecret})

	for _, raw := range []string{`not json`, `{"meta":{}}`} {
		body := []byte(raw)
		_, err := ls.ParseWebhook(context.Background(), body, lsSign(body))
		assert.ErrorIs(t, err, ErrMalformedPayload, raw)
	}
}

func TestLemonSqueezy_CreateCheckout(t *testing.T) {
	userID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkouts", r.URL.Path)
		assert.Equal(t, "Bearer ls-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.api+json", r.Header.Get("Content-Type"))

		var req lsCheckoutRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "checkouts", req.Data.Type)
		assert.Equal(t, "user@example.com", req.Data.Attributes.CheckoutData.Email)
		assert.Equal(t, userID.String(), req.Data.Attributes.CheckoutData.Custom["user_id"])
		assert.Equal(t, "store-1", req.Data.Relationships.Store.Data.ID)
		assert.Equal(t, "var-premium", req.Data.Relationships.Variant.Data.ID)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"attributes":{"url":"https://pay.example.com/c/1"}}}`))
	}))
	defer srv.Close()

	ls := newTestLemonSqueezy(LemonSqueezyConfig{
		APIKey:   "ls-key",
		StoreID:  "store-1",
		Variants: PlanCatalog{Pro: "var-pro", Premium: "var-premium"},
		APIURL:   srv.URL,
	})

	url, err := ls.CreateCheckout(context.Background(), CheckoutRequest{
		Plan:   domain.PlanPremium,
		UserID: userID,
		Email:  "user@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/c/1", url)
}

func TestLemonSqueezy_CreateCheckoutNotConfigured(t *testing.T) {
	ls := newTestLemonSqueezy(LemonSqueezyConfig{APIKey: "k", StoreID: "s"})
	_, err := ls.CreateCheckout(context.Background(), CheckoutRequest{Plan: domain.PlanPro})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPlanCatalog(t *testing.T) {
	c := PlanCatalog{Pro: "p1", Premium: "p2"}
	assert.Equal(t, domain.PlanPro, c.PlanFor("p1"))
	assert.Equal(t, domain.PlanPremium, c.PlanFor("p2"))
	assert.Equal(t, domain.Plan(""), c.PlanFor("other"))
	assert.Equal(t, domain.Plan(""), PlanCatalog{}.PlanFor(""))

	id, ok := c.IDFor(domain.PlanPremium)
	assert.True(t, ok)
	assert.Equal(t, "p2", id)
	_, ok = c.IDFor(domain.PlanFree)
	assert.False(t, ok)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	ls := newTestLemonSqueezy(LemonSqueezyConfig{})
	st := NewStripe(StripeConfig{}, testLogger())
	r.RegisterWebhook(ls)
	r.RegisterWebhook(st)
	r.RegisterCheckout(ls)
	r.RegisterCheckout(st)

	assert.Equal(t, []string{ProviderLemonSqueezy, ProviderStripe}, r.WebhookNames())

	p, ok := r.Checkout("")
	require.True(t, ok)
	assert.Equal(t, ProviderLemonSqueezy, p.Name())

	_, ok = r.Webhook("unknown")
	assert.False(t, ok)
}

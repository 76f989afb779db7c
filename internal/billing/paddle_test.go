package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/tradeflow/internal/domain"
)

const paddleSecret = "pdl_ntfset_test"

func paddleSign(body []byte) http.Header {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(paddleSecret))
	mac.Write([]byte(ts + ":"))
	mac.Write(body)
	h := http.Header{}
	h.Set("Paddle-Signature", fmt.Sprintf("ts=%s;h1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return h
}

func newTestPaddle(t *testing.T) *Paddle {
	t.Helper()
	p, err := NewPaddle(PaddleConfig{
		WebhookSecret: paddleSecret,
		Prices:        PlanCatalog{Pro: "pri_pro", Premium: "pri_premium"},
	}, testLogger())
	require.NoError(t, err)
	return p
}

func TestPaddle_ParseWebhook(t *testing.T) {
	p := newTestPaddle(t)

	tests := []struct {
		name     string
		body     string
		wantKind domain.WebhookKind
		check    func(t *testing.T, ev *domain.WebhookEvent)
	}{
		{
			name:     "one-time transaction",
			body:     `{"event_id":"evt_1","event_type":"transaction.completed","data":{"id":"txn_1","customer_id":"ctm_1","status":"completed","custom_data":{"email":"a@b.co"},"items":[{"price":{"id":"pri_premium"}}]}}`,
			wantKind: domain.WebhookOrderCreated,
			check: func(t *testing.T, ev *domain.WebhookEvent) {
				assert.Equal(t, "evt_1", ev.EventID)
				assert.Equal(t, "a@b.co", ev.Email)
				assert.Equal(t, "ctm_1", ev.CustomerID)
				assert.Equal(t, domain.PlanPremium, ev.Plan())
			},
		},
		{
			name:     "recurring transaction renews",
			body:     `{"event_id":"evt_2","event_type":"transaction.completed","data":{"id":"txn_2","subscription_id":"sub_1","origin":"subscription_recurring"}}`,
			wantKind: domain.WebhookSubscriptionRenewed,
			check: func(t *testing.T, ev *domain.WebhookEvent) {
				assert.Equal(t, "sub_1", ev.SubscriptionID)
			},
		},
		{
			name:     "initial subscription transaction is ignored",
			body:     `{"event_id":"evt_3","event_type":"transaction.completed","data":{"id":"txn_3","subscription_id":"sub_1","origin":"web"}}`,
			wantKind: domain.WebhookUnrecognized,
		},
		{
			name:     "subscription created",
			body:     `{"event_id":"evt_4","event_type":"subscription.created","data":{"id":"sub_1","status":"active","customer_id":"ctm_1","custom_data":{"email":"a@b.co","plan":"pro"},"items":[{"price":{"id":"pri_unknown"}}]}}`,
			wantKind: domain.WebhookSubscriptionCreated,
			check: func(t *testing.T, ev *domain.WebhookEvent) {
				assert.Equal(t, "sub_1", ev.SubscriptionID)
				assert.Equal(t, domain.PlanPro, ev.Plan())
			},
		},
		{
			name:     "scheduled cancellation",
			body:     `{"event_id":"evt_5","event_type":"subscription.updated","data":{"id":"sub_1","status":"active","scheduled_change":{"action":"cancel"}}}`,
			wantKind: domain.WebhookSubscriptionUpdated,
			check: func(t *testing.T, ev *domain.WebhookEvent) {
				assert.Equal(t, "cancelled", ev.Status)
			},
		},
		{
			name:     "subscription canceled",
			body:     `{"event_id":"evt_6","event_type":"subscription.canceled","data":{"id":"sub_1","status":"canceled"}}`,
			wantKind: domain.WebhookSubscriptionCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := []byte(tt.body)
			ev, err := p.ParseWebhook(context.Background(), body, paddleSign(body))
			require.NoError(t, err)
			assert.Equal(t, ProviderPaddle, ev.Provider)
			assert.Equal(t, tt.wantKind, ev.Kind)
			if tt.check != nil {
				tt.check(t, ev)
			}
		})
	}
}

func TestPaddle_RejectsBadSignature(t *testing.T) {
	p := newTestPaddle(t)
	body := []byte(`{"event_id":"evt_1","event_type":"subscription.canceled","data":{"id":"sub_1"}}`)
	header := paddleSign(body)

	_, err := p.ParseWebhook(context.Background(), []byte(`{"event_id":"evt_1","event_type":"subscription.canceled","data":{"id":"sub_2"}}`), header)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = p.ParseWebhook(context.Background(), body, http.Header{})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestPaddle_MalformedPayload(t *testing.T) {
	p := newTestPaddle(t)
	body := []byte(`{"data":{}}`)
	_, err := p.ParseWebhook(context.Background(), body, paddleSign(body))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestPaddle_CreateCheckout(t *testing.T) {
	userID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.Equal(t, "Bearer pdl-key", r.Header.Get("Authorization"))

		var req struct {
			Items []struct {
				PriceID  string `json:"price_id"`
				Quantity int    `json:"quantity"`
			} `json:"items"`
			CustomData map[string]string `json:"custom_data"`
			Checkout   struct {
				URL string `json:"url"`
			} `json:"checkout"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Items, 1)
		assert.Equal(t, "pri_pro", req.Items[0].PriceID)
		assert.Equal(t, 1, req.Items[0].Quantity)
		assert.Equal(t, userID.String(), req.CustomData["user_id"])
		assert.Equal(t, "user@example.com", req.CustomData["email"])
		assert.Equal(t, "pro", req.CustomData["plan"])
		assert.Equal(t, "https://app.example.com/dashboard?payment=success", req.Checkout.URL)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"txn_01","status":"ready","checkout":{"url":"https://pay.example.com/?_ptxn=txn_01"}},"meta":{"request_id":"req_1"}}`))
	}))
	defer srv.Close()

	p, err := NewPaddle(PaddleConfig{
		APIKey:  "pdl-key",
		Prices:  PlanCatalog{Pro: "pri_pro", Premium: "pri_premium"},
		BaseURL: srv.URL,
	}, testLogger())
	require.NoError(t, err)

	url, err := p.CreateCheckout(context.Background(), CheckoutRequest{
		Plan:       domain.PlanPro,
		UserID:     userID,
		Email:      "user@example.com",
		SuccessURL: "https://app.example.com/dashboard?payment=success",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/?_ptxn=txn_01", url)
}

func TestPaddle_CreateCheckoutWithoutAPIKey(t *testing.T) {
	p := newTestPaddle(t)
	_, err := p.CreateCheckout(context.Background(), CheckoutRequest{Plan: domain.PlanPro})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

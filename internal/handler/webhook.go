// Package handler contains the JSON HTTP handlers for the TradeFlow API.
//
// This file implements the billing webhook receiver.
//
// Route:
//   - POST /webhook/{provider} -> HandleWebhook
//
// This route is PUBLIC (no auth middleware). Providers authenticate with
// their webhook signatures.
package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/tradeflow/internal/billing"
	"github.com/DukeRupert/tradeflow/internal/domain"
	"github.com/DukeRupert/tradeflow/internal/service"
)

// maxWebhookBody bounds provider payloads.
const maxWebhookBody = 64 << 10

// WebhookHandler verifies provider webhooks and hands them to the reconciler.
type WebhookHandler struct {
	providers  *billing.Registry
	reconciler *service.Reconciler
	logger     *slog.Logger
}

func NewWebhookHandler(providers *billing.Registry, reconciler *service.Reconciler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		providers:  providers,
		reconciler: reconciler,
		logger:     logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// The legacy /webhook/lemon-squeezy path is covered by the pattern.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook/{provider}", h.HandleWebhook)
}

// HandleWebhook verifies and applies one event.
//
// 401 for a bad signature, 400 for an unparseable payload, 404 for an
// unknown provider. Any 200 tells the provider to stop retrying, so
// reconciliation failures answer 500.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	provider, ok := h.providers.Webhook(name)
	if !ok {
		NotFoundResponse(w, r, h.logger)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		h.logger.Error("failed to read webhook body", "provider", name, "error", err)
		writeJSONError(w, http.StatusBadRequest, domain.EINVALID, "Could not read request body", nil)
		return
	}
	if len(body) > maxWebhookBody {
		writeJSONError(w, http.StatusRequestEntityTooLarge, domain.ETOOLARGE, "Webhook payload too large", nil)
		return
	}

	ev, err := provider.ParseWebhook(r.Context(), body, r.Header)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidSignature):
			h.logger.Warn("webhook signature rejected",
				"provider", name,
				"ip", r.RemoteAddr,
				"error", err,
			)
			writeJSONError(w, http.StatusUnauthorized, domain.EUNAUTHORIZED, "Invalid signature", nil)
		case errors.Is(err, billing.ErrMalformedPayload):
			h.logger.Warn("malformed webhook payload", "provider", name, "error", err)
			writeJSONError(w, http.StatusBadRequest, domain.EINVALID, "Malformed payload", nil)
		default:
			h.logger.Error("failed to parse webhook", "provider", name, "error", err)
			writeJSONError(w, http.StatusInternalServerError, domain.EINTERNAL, "Webhook processing failed", nil)
		}
		return
	}

	outcome, err := h.reconciler.Reconcile(r.Context(), ev)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

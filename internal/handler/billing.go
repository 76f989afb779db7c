package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/tradeflow/internal/auth"
	"github.com/DukeRupert/tradeflow/internal/billing"
	"github.com/DukeRupert/tradeflow/internal/domain"
)

// BillingHandler creates hosted checkouts for paid plans.
type BillingHandler struct {
	providers *billing.Registry
	baseURL   string
	logger    *slog.Logger
}

func NewBillingHandler(providers *billing.Registry, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		providers: providers,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger,
	}
}

func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, guards Guards) {
	mux.Handle("POST /api/payment/create-checkout", guards.RequireUser(http.HandlerFunc(h.CreateCheckout)))
}

// CreateCheckoutRequest selects a paid plan and, optionally, a provider.
type CreateCheckoutRequest struct {
	Plan     string `json:"plan"`
	Provider string `json:"provider,omitempty"`
}

// CreateCheckout returns a hosted checkout URL. The plan is applied later,
// when the provider's webhook arrives.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "handler.create_checkout"

	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req CreateCheckoutRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	plan, err := domain.ParsePlan(req.Plan)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if plan == domain.PlanFree {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "plan", "Choose a paid plan"))
		return
	}

	provider, ok := h.providers.Checkout(req.Provider)
	if !ok {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "provider", "Unknown payment provider"))
		return
	}

	url, err := provider.CreateCheckout(r.Context(), billing.CheckoutRequest{
		Plan:       plan,
		UserID:     user.ID,
		Email:      user.Email,
		SuccessURL: h.baseURL + "/dashboard?payment=success",
		CancelURL:  h.baseURL + "/dashboard?payment=cancelled",
	})
	if err != nil {
		if errors.Is(err, billing.ErrNotConfigured) {
			ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, op, "Checkout is not available for this plan"))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Wrap(err, domain.EINTERNAL, op, "Failed to create checkout"))
		return
	}

	h.logger.Info("checkout created",
		"user_id", user.ID,
		"plan", plan,
		"provider", provider.Name(),
	)
	writeJSON(w, http.StatusOK, map[string]string{
		"checkout_url": url,
		"plan":         string(plan),
		"provider":     provider.Name(),
	})
}

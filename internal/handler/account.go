package handler

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DukeRupert/tradeflow/internal/auth"
	"github.com/DukeRupert/tradeflow/internal/domain"
	"github.com/DukeRupert/tradeflow/internal/service"
)

// dashboardRecent is the number of analyses shown on the dashboard.
const dashboardRecent = 5

// UserView is the public projection of an account and its entitlement.
type UserView struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	Plan               string     `json:"plan"`
	AnalysesUsed       int        `json:"analyses_used"`
	AnalysesLimit      int        `json:"analyses_limit"`
	SubscriptionStatus string     `json:"subscription_status"`
	PlanStartedAt      *time.Time `json:"plan_started_at,omitempty"`
	PlanEndsAt         *time.Time `json:"plan_ends_at,omitempty"`
}

func newUserView(u *domain.User) UserView {
	return UserView{
		ID:                 u.ID.String(),
		Email:              u.Email,
		Name:               u.Name,
		Plan:               string(u.Plan),
		AnalysesUsed:       u.AnalysesUsed,
		AnalysesLimit:      u.AnalysesLimit,
		SubscriptionStatus: string(u.SubscriptionStatus),
		PlanStartedAt:      u.PlanStartedAt,
		PlanEndsAt:         u.PlanEndsAt,
	}
}

// withEntitlement overlays a fresh ledger read on the view.
func (v UserView) withEntitlement(e domain.Entitlement) UserView {
	v.Plan = string(e.Plan)
	v.AnalysesUsed = e.Used
	v.AnalysesLimit = e.Limit
	v.SubscriptionStatus = string(e.Status)
	v.PlanStartedAt = e.PeriodStart
	v.PlanEndsAt = e.PeriodEnd
	return v
}

// AccountHandler serves the account projections and the debug plan switch.
type AccountHandler struct {
	userService service.UserService
	ledger      *service.Ledger
	recorder    *service.AnalysisRecorder
	logger      *slog.Logger
}

func NewAccountHandler(userService service.UserService, ledger *service.Ledger, recorder *service.AnalysisRecorder, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		userService: userService,
		ledger:      ledger,
		recorder:    recorder,
		logger:      logger,
	}
}

// RegisterRoutes registers the account routes. The debug route is only
// registered when debugEnabled is set.
func (h *AccountHandler) RegisterRoutes(mux *http.ServeMux, guards Guards, debugEnabled bool) {
	mux.Handle("GET /me", guards.RequireUser(http.HandlerFunc(h.Me)))
	mux.Handle("PATCH /me", guards.RequireUser(http.HandlerFunc(h.UpdateMe)))
	mux.Handle("GET /dashboard", guards.RequireUser(http.HandlerFunc(h.Dashboard)))
	if debugEnabled {
		mux.Handle("POST /debug/upgrade-plan", guards.RequireUser(http.HandlerFunc(h.UpgradePlan)))
	}
}

// Me returns the account with its current entitlement.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	ent, err := h.ledger.GetEntitlement(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user).withEntitlement(ent))
}

// UpdateMe changes the display name. Email and plan cannot be changed here.
func (h *AccountHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	const op = "handler.update_me"

	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	updated, err := h.userService.UpdateProfile(r.Context(), user.ID, req.Name)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(updated))
}

// DashboardResponse is the dashboard projection.
type DashboardResponse struct {
	User              UserView      `json:"user"`
	PlanName          string        `json:"plan_name"`
	AnalysesRemaining int           `json:"analyses_remaining"`
	Unlimited         bool          `json:"unlimited"`
	TotalAnalyses     int64         `json:"total_analyses"`
	RecentAnalyses    []HistoryItem `json:"recent_analyses"`
}

// Dashboard returns the account, the remaining allowance and the most
// recent analyses.
func (h *AccountHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	ent, err := h.ledger.GetEntitlement(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	total, err := h.recorder.Count(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	recent, err := h.recorder.ListRecent(r.Context(), user.ID, dashboardRecent)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, DashboardResponse{
		User:              newUserView(user).withEntitlement(ent),
		PlanName:          planName(ent.Plan),
		AnalysesRemaining: ent.Remaining(),
		Unlimited:         ent.Plan.IsUnlimited(),
		TotalAnalyses:     total,
		RecentAnalyses:    historyItems(recent),
	})
}

// UpgradePlan switches the caller's plan directly, bypassing billing.
// Query: plan=free|pro|premium. Unknown plans are rejected, never coerced.
func (h *AccountHandler) UpgradePlan(w http.ResponseWriter, r *http.Request) {
	const op = "handler.debug_upgrade_plan"

	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	plan, err := domain.ParsePlan(r.URL.Query().Get("plan"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	ent, err := h.ledger.ApplyPlanChange(r.Context(), user.ID, plan, domain.SourceDebug)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Warn("plan changed through debug endpoint", "user_id", user.ID, "plan", plan, "op", op)

	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Plan updated",
		"plan":           ent.Plan,
		"analyses_used":  ent.Used,
		"analyses_limit": ent.Limit,
		"plan_ends_at":   ent.PeriodEnd,
	})
}

// planName returns the display name of a plan. A Caser is stateful, so
// each call gets its own.
func planName(p domain.Plan) string {
	return cases.Title(language.English).String(string(p))
}

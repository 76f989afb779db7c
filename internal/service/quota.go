// Package service contains the business logic layer.
//
// This file implements the usage metering gate that enforces the plan's
// analysis allowance.
package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/DukeRupert/tradeflow/internal/domain"
	"github.com/DukeRupert/tradeflow/internal/metrics"
	"github.com/DukeRupert/tradeflow/internal/repository"
)

// Grant is a successful consumption of one analysis unit.
type Grant struct {
	Used  int
	Limit int
}

// UsageGate checks and consumes analysis units against the ledger.
//
// The check and the increment run under the user's row lock in one
// transaction, so concurrent requests can never push used past limit.
// The gate never resets usage; only plan changes and renewals do.
type UsageGate struct {
	ledger *Ledger
	store  repository.Store
	logger *slog.Logger
}

func NewUsageGate(ledger *Ledger, logger *slog.Logger) *UsageGate {
	return &UsageGate{
		ledger: ledger,
		store:  ledger.store,
		logger: logger,
	}
}

// Check is a read-only pre-flight. It returns LimitReached when the user
// has no units left, so callers can refuse before doing expensive work.
// A nil error does not reserve anything; TryConsume is still required.
func (g *UsageGate) Check(ctx context.Context, userID uuid.UUID) (domain.Entitlement, error) {
	const op = "quota.check_analysis"

	ent, err := g.ledger.GetEntitlement(ctx, userID)
	if err != nil {
		return domain.Entitlement{}, err
	}
	if !ent.CanConsume() {
		g.deny(userID, ent.Plan, ent.Used, ent.Limit)
		return ent, domain.LimitReached(op, ent.Used, ent.Limit)
	}
	return ent, nil
}

// TryConsume atomically checks used < limit and increments used.
// On denial nothing is written.
func (g *UsageGate) TryConsume(ctx context.Context, userID uuid.UUID) (Grant, error) {
	const op = "quota.try_consume"

	var grant Grant
	err := g.store.ExecTx(ctx, func(q repository.Querier) error {
		u, err := g.ledger.lockUser(ctx, q, op, userID)
		if err != nil {
			return err
		}
		if !u.Entitlement().CanConsume() {
			g.deny(userID, u.Plan, u.AnalysesUsed, u.AnalysesLimit)
			return domain.LimitReached(op, u.AnalysesUsed, u.AnalysesLimit)
		}

		used, err := q.IncrementAnalysesUsed(ctx, userID)
		if err != nil {
			if repository.IsNotFound(err) {
				g.deny(userID, u.Plan, u.AnalysesUsed, u.AnalysesLimit)
				return domain.LimitReached(op, u.AnalysesUsed, u.AnalysesLimit)
			}
			return domain.Internal(err, op, "Failed to record usage")
		}

		grant = Grant{Used: int(used), Limit: u.AnalysesLimit}
		return nil
	})
	if err != nil {
		return Grant{}, err
	}

	g.logger.Debug("analysis unit consumed", "user_id", userID, "used", grant.Used, "limit", grant.Limit)
	return grant, nil
}

func (g *UsageGate) deny(userID uuid.UUID, plan domain.Plan, used, limit int) {
	metrics.QuotaDenialsTotal.Inc()
	g.logger.Info("Analysis quota exceeded",
		"user_id", userID,
		"plan", plan,
		"used", used,
		"limit", limit,
	)
}

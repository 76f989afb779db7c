package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/tradeflow/internal/domain"
	"github.com/DukeRupert/tradeflow/internal/metrics"
	"github.com/DukeRupert/tradeflow/internal/repository"
)

// Ledger is the entitlement ledger: plan, limit, usage and subscription
// metadata per user. Every mutation runs in a transaction that holds the
// user's row lock, so plan changes and usage consumption for the same user
// never interleave.
//
// Cancelled or expired paid plans are downgraded lazily: the first locked
// access after plan_ends_at moves the user to free.
type Ledger struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewLedger(store repository.Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// GetEntitlement returns the user's current entitlement.
func (l *Ledger) GetEntitlement(ctx context.Context, userID uuid.UUID) (domain.Entitlement, error) {
	const op = "ledger.get_entitlement"

	row, err := l.store.GetUserByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.Entitlement{}, domain.NotFound(op, "user", userID.String())
		}
		return domain.Entitlement{}, domain.Internal(err, op, "Failed to load entitlement")
	}

	user := repoUserToDomain(row)
	if !user.DowngradeDue(l.now()) {
		return user.Entitlement(), nil
	}

	// Period is over on a cancelled plan; take the lock and downgrade.
	var ent domain.Entitlement
	err = l.store.ExecTx(ctx, func(q repository.Querier) error {
		u, err := l.lockUser(ctx, q, op, userID)
		if err != nil {
			return err
		}
		ent = u.Entitlement()
		return nil
	})
	if err != nil {
		return domain.Entitlement{}, err
	}
	return ent, nil
}

// ApplyPlanChange moves the user onto plan and starts a fresh 30-day period
// with zero usage and an active status.
func (l *Ledger) ApplyPlanChange(ctx context.Context, userID uuid.UUID, plan domain.Plan, source domain.PlanChangeSource) (domain.Entitlement, error) {
	const op = "ledger.apply_plan_change"

	if !plan.Valid() {
		return domain.Entitlement{}, domain.Invalid(op, "Unknown plan "+string(plan))
	}

	var ent domain.Entitlement
	err := l.store.ExecTx(ctx, func(q repository.Querier) error {
		u, err := l.lockUser(ctx, q, op, userID)
		if err != nil {
			return err
		}
		if err := l.applyPlan(ctx, q, op, u, plan, source); err != nil {
			return err
		}
		ent = u.Entitlement()
		return nil
	})
	if err != nil {
		return domain.Entitlement{}, err
	}
	return ent, nil
}

// Renew starts a new period on the user's current plan.
func (l *Ledger) Renew(ctx context.Context, userID uuid.UUID, source domain.PlanChangeSource) (domain.Entitlement, error) {
	const op = "ledger.renew"

	var ent domain.Entitlement
	err := l.store.ExecTx(ctx, func(q repository.Querier) error {
		u, err := l.lockUser(ctx, q, op, userID)
		if err != nil {
			return err
		}
		if err := l.renew(ctx, q, op, u, source); err != nil {
			return err
		}
		ent = u.Entitlement()
		return nil
	})
	if err != nil {
		return domain.Entitlement{}, err
	}
	return ent, nil
}

// lockUser loads the user row FOR UPDATE and applies any due downgrade.
// It must be called inside ExecTx.
func (l *Ledger) lockUser(ctx context.Context, q repository.Querier, op string, userID uuid.UUID) (*domain.User, error) {
	row, err := q.GetUserByIDForUpdate(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Internal(err, op, "Failed to lock user")
	}
	u := repoUserToDomain(row)
	if err := l.expireIfDue(ctx, q, op, u); err != nil {
		return nil, err
	}
	return u, nil
}

// expireIfDue downgrades a locked user whose cancelled plan has ended.
func (l *Ledger) expireIfDue(ctx context.Context, q repository.Querier, op string, u *domain.User) error {
	if !u.DowngradeDue(l.now()) {
		return nil
	}
	from := u.Plan
	u.Downgrade()
	if err := l.save(ctx, q, op, u); err != nil {
		return err
	}
	metrics.PlanChangesTotal.WithLabelValues(string(domain.PlanFree), string(domain.SourceExpiry)).Inc()
	l.logger.Info("plan expired, downgraded to free",
		"user_id", u.ID,
		"from_plan", from,
	)
	return nil
}

func (l *Ledger) applyPlan(ctx context.Context, q repository.Querier, op string, u *domain.User, plan domain.Plan, source domain.PlanChangeSource) error {
	from := u.Plan
	u.ApplyPlan(plan, l.now())
	if err := l.save(ctx, q, op, u); err != nil {
		return err
	}
	metrics.PlanChangesTotal.WithLabelValues(string(plan), string(source)).Inc()
	l.logger.Info("plan changed",
		"user_id", u.ID,
		"from_plan", from,
		"to_plan", plan,
		"limit", u.AnalysesLimit,
		"source", source,
	)
	return nil
}

func (l *Ledger) renew(ctx context.Context, q repository.Querier, op string, u *domain.User, source domain.PlanChangeSource) error {
	u.Renew(l.now())
	if err := l.save(ctx, q, op, u); err != nil {
		return err
	}
	metrics.PlanChangesTotal.WithLabelValues(string(u.Plan), string(source)).Inc()
	l.logger.Info("plan renewed", "user_id", u.ID, "plan", u.Plan, "source", source)
	return nil
}

func (l *Ledger) save(ctx context.Context, q repository.Querier, op string, u *domain.User) error {
	row, err := q.UpdateUserEntitlement(ctx, entitlementParams(u))
	if err != nil {
		return domain.Internal(err, op, "Failed to update entitlement")
	}
	u.UpdatedAt = row.UpdatedAt
	return nil
}

func entitlementParams(u *domain.User) repository.UpdateUserEntitlementParams {
	return repository.UpdateUserEntitlementParams{
		ID:                 u.ID,
		Plan:               string(u.Plan),
		AnalysesLimit:      int32(u.AnalysesLimit),
		AnalysesUsed:       int32(u.AnalysesUsed),
		SubscriptionStatus: string(u.SubscriptionStatus),
		SubscriptionID:     nullString(u.SubscriptionID),
		CustomerID:         nullString(u.CustomerID),
		PlanStartedAt:      nullTime(u.PlanStartedAt),
		PlanEndsAt:         nullTime(u.PlanEndsAt),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

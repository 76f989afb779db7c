package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sqlc-dev/pqtype"

	"github.com/DukeRupert/tradeflow/internal/domain"
	"github.com/DukeRupert/tradeflow/internal/metrics"
	"github.com/DukeRupert/tradeflow/internal/repository"
)

// Reconciler applies verified billing events to the entitlement ledger.
//
// Each event is handled in one transaction: the (provider, event id) pair
// is inserted into webhook_events first, and a conflict means the event
// was already handled, so nothing else happens. Redelivered events are
// therefore no-ops, including events for users that did not exist the
// first time round.
type Reconciler struct {
	ledger *Ledger
	store  repository.Store
	logger *slog.Logger
}

func NewReconciler(ledger *Ledger, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		ledger: ledger,
		store:  ledger.store,
		logger: logger,
	}
}

// Reconcile records and applies ev. The returned outcome is meaningful
// only when err is nil; on error the transaction was rolled back and the
// provider may safely retry.
func (r *Reconciler) Reconcile(ctx context.Context, ev *domain.WebhookEvent) (domain.WebhookOutcome, error) {
	const op = "reconciler.reconcile"

	if ev.EventID == "" {
		return "", domain.Invalid(op, "Webhook event has no id")
	}

	var (
		outcome domain.WebhookOutcome
		userID  string
	)
	err := r.store.ExecTx(ctx, func(q repository.Querier) error {
		inserted, err := q.InsertWebhookEvent(ctx, repository.InsertWebhookEventParams{
			Provider: ev.Provider,
			EventID:  ev.EventID,
			Kind:     string(ev.Kind),
			Payload:  pqtype.NullRawMessage{RawMessage: ev.Raw, Valid: len(ev.Raw) > 0},
		})
		if err != nil {
			return domain.Internal(err, op, "Failed to record webhook event")
		}
		if inserted == 0 {
			outcome = domain.OutcomeDuplicate
			return nil
		}

		outcome, userID, err = r.apply(ctx, q, op, ev)
		if err != nil {
			return err
		}

		err = q.SetWebhookEventOutcome(ctx, repository.SetWebhookEventOutcomeParams{
			Provider: ev.Provider,
			EventID:  ev.EventID,
			Outcome:  string(outcome),
		})
		if err != nil {
			return domain.Internal(err, op, "Failed to record webhook outcome")
		}
		return nil
	})
	if err != nil {
		r.logger.Error("webhook reconciliation failed",
			"provider", ev.Provider,
			"event_id", ev.EventID,
			"event", ev.Name,
			"error", err,
		)
		return "", err
	}

	metrics.WebhookEventsTotal.WithLabelValues(ev.Provider, string(ev.Kind), string(outcome)).Inc()
	r.logOutcome(ev, outcome, userID)
	return outcome, nil
}

// apply dispatches ev to the ledger inside the reconcile transaction.
func (r *Reconciler) apply(ctx context.Context, q repository.Querier, op string, ev *domain.WebhookEvent) (domain.WebhookOutcome, string, error) {
	if ev.Kind == domain.WebhookUnrecognized {
		return domain.OutcomeIgnored, "", nil
	}

	u, err := r.resolveUser(ctx, q, op, ev)
	if err != nil {
		return "", "", err
	}
	if u == nil {
		return domain.OutcomeUserNotFound, "", nil
	}

	source := domain.WebhookSource(ev.Provider)
	if ev.CustomerID != "" {
		u.CustomerID = ev.CustomerID
	}

	switch ev.Kind {
	case domain.WebhookOrderCreated:
		err = r.ledger.applyPlan(ctx, q, op, u, ev.Plan(), source)

	case domain.WebhookSubscriptionCreated:
		if ev.SubscriptionID != "" && ev.SubscriptionID != u.SubscriptionID {
			owner, err := q.GetUserBySubscriptionIDForUpdate(ctx, ev.SubscriptionID)
			switch {
			case err == nil && owner.ID != u.ID:
				r.logger.Warn("subscription already linked to another user",
					"provider", ev.Provider,
					"subscription_id", ev.SubscriptionID,
					"user_id", u.ID,
					"owner_id", owner.ID,
				)
				return domain.OutcomeIgnored, u.ID.String(), nil
			case err != nil && !repository.IsNotFound(err):
				return "", "", domain.Internal(err, op, "Failed to resolve subscription owner")
			}
			u.SubscriptionID = ev.SubscriptionID
		}
		err = r.ledger.applyPlan(ctx, q, op, u, ev.Plan(), source)

	case domain.WebhookSubscriptionUpdated:
		status, ok := domain.ParseSubscriptionStatus(strings.ToLower(ev.Status))
		if !ok {
			r.logger.Info("unmapped subscription status, keeping current",
				"provider", ev.Provider,
				"user_id", u.ID,
				"provider_status", ev.Status,
				"status", u.SubscriptionStatus,
			)
			return domain.OutcomeIgnored, u.ID.String(), nil
		}
		err = r.updateStatus(ctx, q, op, u, status, source)

	case domain.WebhookSubscriptionCancelled:
		// Plan and limit stay until plan_ends_at; the ledger downgrades lazily.
		err = r.updateStatus(ctx, q, op, u, domain.SubscriptionStatusCancelled, source)

	case domain.WebhookSubscriptionRenewed:
		err = r.ledger.renew(ctx, q, op, u, source)

	default:
		return domain.OutcomeIgnored, u.ID.String(), nil
	}
	if err != nil {
		return "", "", err
	}
	return domain.OutcomeApplied, u.ID.String(), nil
}

// updateStatus changes the subscription status only. An expired status
// ends the paid plan immediately.
func (r *Reconciler) updateStatus(ctx context.Context, q repository.Querier, op string, u *domain.User, status domain.SubscriptionStatus, source domain.PlanChangeSource) error {
	if status == domain.SubscriptionStatusExpired && u.Plan != domain.PlanFree {
		from := u.Plan
		u.Downgrade()
		if err := r.ledger.save(ctx, q, op, u); err != nil {
			return err
		}
		metrics.PlanChangesTotal.WithLabelValues(string(domain.PlanFree), string(source)).Inc()
		r.logger.Info("subscription expired, downgraded to free", "user_id", u.ID, "from_plan", from)
		return nil
	}

	u.SubscriptionStatus = status
	return r.ledger.save(ctx, q, op, u)
}

// resolveUser finds and locks the event's user. Purchases are matched by
// email first; lifecycle events by subscription id, then customer id,
// then email. A nil user with a nil error means no match.
func (r *Reconciler) resolveUser(ctx context.Context, q repository.Querier, op string, ev *domain.WebhookEvent) (*domain.User, error) {
	byEmail := func() (repository.User, error) {
		return q.GetUserByEmailForUpdate(ctx, normalizeEmail(ev.Email))
	}
	bySubscription := func() (repository.User, error) {
		return q.GetUserBySubscriptionIDForUpdate(ctx, ev.SubscriptionID)
	}
	byCustomer := func() (repository.User, error) {
		return q.GetUserByCustomerIDForUpdate(ctx, ev.CustomerID)
	}

	type lookup struct {
		key  string
		find func() (repository.User, error)
	}
	var order []lookup
	switch ev.Kind {
	case domain.WebhookOrderCreated, domain.WebhookSubscriptionCreated:
		order = []lookup{{ev.Email, byEmail}, {ev.SubscriptionID, bySubscription}, {ev.CustomerID, byCustomer}}
	default:
		order = []lookup{{ev.SubscriptionID, bySubscription}, {ev.CustomerID, byCustomer}, {ev.Email, byEmail}}
	}

	for _, l := range order {
		if strings.TrimSpace(l.key) == "" {
			continue
		}
		row, err := l.find()
		if err != nil {
			if repository.IsNotFound(err) {
				continue
			}
			return nil, domain.Internal(err, op, "Failed to resolve webhook user")
		}
		return r.ledger.lockUser(ctx, q, op, row.ID)
	}
	return nil, nil
}

func (r *Reconciler) logOutcome(ev *domain.WebhookEvent, outcome domain.WebhookOutcome, userID string) {
	attrs := []any{
		"provider", ev.Provider,
		"event_id", ev.EventID,
		"event", ev.Name,
		"kind", ev.Kind,
		"outcome", outcome,
	}
	switch outcome {
	case domain.OutcomeApplied:
		r.logger.Info("webhook applied", append(attrs, "user_id", userID)...)
	case domain.OutcomeDuplicate:
		r.logger.Info("webhook already processed", attrs...)
	case domain.OutcomeUserNotFound:
		r.logger.Warn("webhook user not found",
			append(attrs, "email", ev.Email, "subscription_id", ev.SubscriptionID, "customer_id", ev.CustomerID)...)
	default:
		r.logger.Debug("webhook ignored", attrs...)
	}
}

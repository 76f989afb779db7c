// Package domain contains core business types and interfaces.
//
// This file defines the User domain type together with its entitlement
// fields. These types are separate from the repository models so the ledger
// rules can live next to the data they guard.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the possible states of a user's subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusInactive  SubscriptionStatus = "inactive"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// ParseSubscriptionStatus maps a provider-reported status onto ours.
// ok is false when the provider status has no equivalent (past_due, unpaid,
// paused); callers keep the current status in that case.
func ParseSubscriptionStatus(s string) (status SubscriptionStatus, ok bool) {
	switch s {
	case "active", "on_trial", "trialing":
		return SubscriptionStatusActive, true
	case "cancelled", "canceled":
		return SubscriptionStatusCancelled, true
	case "expired":
		return SubscriptionStatusExpired, true
	case "inactive":
		return SubscriptionStatusInactive, true
	}
	return "", false
}

// User represents a registered account and its entitlement.
//
// PasswordHash is never serialized into API responses; handlers project
// users through their own response types.
type User struct {
	ID                 uuid.UUID
	Email              string
	PasswordHash       string
	Name               string
	Plan               Plan
	AnalysesLimit      int
	AnalysesUsed       int
	SubscriptionStatus SubscriptionStatus
	SubscriptionID     string
	CustomerID         string
	PlanStartedAt      *time.Time
	PlanEndsAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DisplayName returns the user's name or email if name is empty.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Entitlement returns the ledger projection of the user.
func (u *User) Entitlement() Entitlement {
	return Entitlement{
		Plan:           u.Plan,
		Limit:          u.AnalysesLimit,
		Used:           u.AnalysesUsed,
		Status:         u.SubscriptionStatus,
		PeriodStart:    u.PlanStartedAt,
		PeriodEnd:      u.PlanEndsAt,
		SubscriptionID: u.SubscriptionID,
		CustomerID:     u.CustomerID,
	}
}

// Entitlement is what a user may consume in the current period.
type Entitlement struct {
	Plan           Plan
	Limit          int
	Used           int
	Status         SubscriptionStatus
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	SubscriptionID string
	CustomerID     string
}

// Remaining returns the number of analyses left, never negative.
func (e Entitlement) Remaining() int {
	if e.Used >= e.Limit {
		return 0
	}
	return e.Limit - e.Used
}

// CanConsume reports whether one more analysis fits in the allowance.
func (e Entitlement) CanConsume() bool {
	return e.Used < e.Limit
}

// ApplyPlan resets the entitlement to a fresh period on plan p starting at now.
func (u *User) ApplyPlan(p Plan, now time.Time) {
	start := now.UTC()
	end := start.Add(BillingPeriod)
	u.Plan = p
	u.AnalysesLimit = p.Limit()
	u.AnalysesUsed = 0
	u.SubscriptionStatus = SubscriptionStatusActive
	u.PlanStartedAt = &start
	u.PlanEndsAt = &end
}

// Renew starts a new period on the current plan.
func (u *User) Renew(now time.Time) {
	start := now.UTC()
	end := start.Add(BillingPeriod)
	u.AnalysesLimit = u.Plan.Limit()
	u.AnalysesUsed = 0
	u.SubscriptionStatus = SubscriptionStatusActive
	u.PlanStartedAt = &start
	u.PlanEndsAt = &end
}

// DowngradeDue reports whether a cancelled or expired paid plan has run
// past the end of its period and must fall back to free.
func (u *User) DowngradeDue(now time.Time) bool {
	if u.Plan == PlanFree {
		return false
	}
	if u.SubscriptionStatus != SubscriptionStatusCancelled && u.SubscriptionStatus != SubscriptionStatusExpired {
		return false
	}
	return u.PlanEndsAt != nil && !now.Before(*u.PlanEndsAt)
}

// Downgrade moves the user to the free plan with no active period.
func (u *User) Downgrade() {
	u.Plan = PlanFree
	u.AnalysesLimit = PlanFree.Limit()
	u.AnalysesUsed = 0
	u.SubscriptionStatus = SubscriptionStatusExpired
	u.PlanStartedAt = nil
	u.PlanEndsAt = nil
}

// NewUserParams contains the fields needed to register a user.
type NewUserParams struct {
	Email    string
	Password string
	Name     string
}

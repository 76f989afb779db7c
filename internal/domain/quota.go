// Package domain contains core business types and interfaces.
//
// This file defines plans and the plan to analysis-limit table. Every call
// site that needs a limit (usage gate, debug endpoint, webhook reconciler)
// consults PlanLimit; nothing else hardcodes a number.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Plan is the subscription tier a user is on.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanPremium Plan = "premium"
)

// UnlimitedAnalyses is the limit stored for plans without a practical cap.
const UnlimitedAnalyses = 999999

// BillingPeriod is the length of the canonical plan window.
const BillingPeriod = 30 * 24 * time.Hour

var planLimits = map[Plan]int{
	PlanFree:    3,
	PlanPro:     50,
	PlanPremium: UnlimitedAnalyses,
}

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	_, ok := planLimits[p]
	return ok
}

// Limit returns the per-period analysis allowance, or 0 for unknown plans.
func (p Plan) Limit() int {
	return planLimits[p]
}

// IsUnlimited reports whether the plan carries the unbounded sentinel.
func (p Plan) IsUnlimited() bool {
	return p.Limit() >= UnlimitedAnalyses
}

func (p Plan) String() string {
	return string(p)
}

// ParsePlan validates a plan name. It never coerces to a default plan.
func ParsePlan(s string) (Plan, error) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", Invalid("plan.parse", fmt.Sprintf("Unknown plan %q. Expected one of: free, pro, premium", s))
	}
	return p, nil
}

// PlanFromProductName derives the paid plan from a product name as sold by
// a payment provider. Anything mentioning premium is premium; every other
// paid product is pro.
func PlanFromProductName(name string) Plan {
	if strings.Contains(strings.ToLower(name), "premium") {
		return PlanPremium
	}
	return PlanPro
}

// PlanChangeSource records what triggered a ledger mutation.
type PlanChangeSource string

const (
	SourceDebug   PlanChangeSource = "debug"
	SourceRenewal PlanChangeSource = "renewal"
	SourceExpiry  PlanChangeSource = "expiry"
)

// WebhookSource returns the change source for a payment provider.
func WebhookSource(provider string) PlanChangeSource {
	return PlanChangeSource("webhook:" + provider)
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanLimit(t *testing.T) {
	tests := []struct {
		plan Plan
		want int
	}{
		{PlanFree, 3},
		{PlanPro, 50},
		{PlanPremium, UnlimitedAnalyses},
		{Plan("enterprise"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.plan.Limit())
		})
	}
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		input   string
		want    Plan
		wantErr bool
	}{
		{"free", PlanFree, false},
		{"pro", PlanPro, false},
		{" Premium ", PlanPremium, false},
		{"", "", true},
		{"gold", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePlan(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, EINVALID, ErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanFromProductName(t *testing.T) {
	tests := []struct {
		name string
		want Plan
	}{
		{"Premium Plan", PlanPremium},
		{"TradeFlow premium (yearly)", PlanPremium},
		{"Pro Plan", PlanPro},
		{"Anything else", PlanPro},
		{"", PlanPro},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlanFromProductName(tt.name))
		})
	}
}

func TestUserApplyPlan(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := &User{Plan: PlanFree, AnalysesLimit: 3, AnalysesUsed: 3, SubscriptionStatus: SubscriptionStatusInactive}

	u.ApplyPlan(PlanPro, now)

	assert.Equal(t, PlanPro, u.Plan)
	assert.Equal(t, 50, u.AnalysesLimit)
	assert.Equal(t, 0, u.AnalysesUsed)
	assert.Equal(t, SubscriptionStatusActive, u.SubscriptionStatus)
	require.NotNil(t, u.PlanStartedAt)
	require.NotNil(t, u.PlanEndsAt)
	assert.Equal(t, now, *u.PlanStartedAt)
	assert.Equal(t, 30*24*time.Hour, u.PlanEndsAt.Sub(*u.PlanStartedAt))
}

func TestUserDowngradeDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		user User
		want bool
	}{
		{"active paid plan", User{Plan: PlanPro, SubscriptionStatus: SubscriptionStatusActive, PlanEndsAt: &past}, false},
		{"cancelled within period", User{Plan: PlanPro, SubscriptionStatus: SubscriptionStatusCancelled, PlanEndsAt: &future}, false},
		{"cancelled after period", User{Plan: PlanPro, SubscriptionStatus: SubscriptionStatusCancelled, PlanEndsAt: &past}, true},
		{"expired after period", User{Plan: PlanPremium, SubscriptionStatus: SubscriptionStatusExpired, PlanEndsAt: &past}, true},
		{"free plan never downgrades", User{Plan: PlanFree, SubscriptionStatus: SubscriptionStatusExpired, PlanEndsAt: &past}, false},
		{"no period end", User{Plan: PlanPro, SubscriptionStatus: SubscriptionStatusCancelled}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.DowngradeDue(now))
		})
	}
}

func TestUserDowngrade(t *testing.T) {
	now := time.Now()
	u := &User{}
	u.ApplyPlan(PlanPremium, now)
	u.AnalysesUsed = 12

	u.Downgrade()

	assert.Equal(t, PlanFree, u.Plan)
	assert.Equal(t, 3, u.AnalysesLimit)
	assert.Equal(t, 0, u.AnalysesUsed)
	assert.Equal(t, SubscriptionStatusExpired, u.SubscriptionStatus)
	assert.Nil(t, u.PlanStartedAt)
	assert.Nil(t, u.PlanEndsAt)
}

func TestEntitlementRemaining(t *testing.T) {
	assert.Equal(t, 2, Entitlement{Limit: 3, Used: 1}.Remaining())
	assert.Equal(t, 0, Entitlement{Limit: 3, Used: 3}.Remaining())
	assert.Equal(t, 0, Entitlement{Limit: 3, Used: 5}.Remaining())
	assert.True(t, Entitlement{Limit: 3, Used: 2}.CanConsume())
	assert.False(t, Entitlement{Limit: 3, Used: 3}.CanConsume())
}

func TestAnalysisPreview(t *testing.T) {
	short := &Analysis{Text: "UPTREND\nhigh"}
	assert.Equal(t, "UPTREND\nhigh", short.Preview())

	long := make([]rune, 250)
	for i := range long {
		long[i] = 'é'
	}
	a := &Analysis{Text: string(long)}
	got := []rune(a.Preview())
	assert.Len(t, got, HistoryPreviewLength)
}

func TestParseSubscriptionStatus(t *testing.T) {
	tests := []struct {
		input  string
		want   SubscriptionStatus
		wantOK bool
	}{
		{"active", SubscriptionStatusActive, true},
		{"on_trial", SubscriptionStatusActive, true},
		{"cancelled", SubscriptionStatusCancelled, true},
		{"canceled", SubscriptionStatusCancelled, true},
		{"expired", SubscriptionStatusExpired, true},
		{"past_due", "", false},
		{"unpaid", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseSubscriptionStatus(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

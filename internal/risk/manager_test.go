package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yohannesjx/sentinel/internal/events"
)

func healthyInputs(now time.Time) (events.Opportunity, events.TokenRecord, events.HoldersSnapshot, PortfolioView) {
	opp := events.Opportunity{
		TokenId:        "T1",
		Scores:         events.Scores{Security: 90, Market: 90, Composite: 70},
		Confidence:     0.8,
		Recommendation: events.Buy,
	}
	rec := events.TokenRecord{
		TokenId:     "T1",
		FirstSeenTs: now.Add(-2000 * time.Second).UnixMilli(),
		Liquidity:   50_000,
	}
	holders := events.HoldersSnapshot{
		HolderCount:      100,
		Top10HoldingsPct: 10,
		BundlerPct:       5,
		DevHoldingsPct:   1,
	}
	pv := PortfolioView{NAV: 1000, CashReserve: 1000, OpenPositions: 0}
	return opp, rec, holders, pv
}

func TestEvaluateApprovesHealthyOpportunity(t *testing.T) {
	m := New(DefaultLimits(), NewBreakers())
	now := time.Now()
	opp, rec, holders, pv := healthyInputs(now)

	d := m.Evaluate(opp, rec, holders, pv, now)
	require.NotNil(t, d.Intent)
	require.Nil(t, d.Reject)
	require.Equal(t, 10.0, d.Intent.NotionalQuote, "NAV 1000 * NewTokenPct 1%% = 10")
	require.Equal(t, 500, d.Intent.MaxSlippageBps)
}

func TestEvaluateRejectsLowLiquidity(t *testing.T) {
	m := New(DefaultLimits(), NewBreakers())
	now := time.Now()
	opp, rec, holders, pv := healthyInputs(now)
	rec.Liquidity = 100

	d := m.Evaluate(opp, rec, holders, pv, now)
	require.Nil(t, d.Intent)
	require.NotNil(t, d.Reject)
	require.Contains(t, d.Reject.Reasons, "low_liquidity")
}

func TestEvaluateRejectsHardSecurityFlagRegardlessOfScore(t *testing.T) {
	m := New(DefaultLimits(), NewBreakers())
	now := time.Now()
	opp, rec, holders, pv := healthyInputs(now)
	rec.Security.Honeypot = true

	d := m.Evaluate(opp, rec, holders, pv, now)
	require.NotNil(t, d.Reject)
	require.Contains(t, d.Reject.Reasons, "hard_security_flag")
}

func TestEvaluateRejectsWhileCircuitBreakerActive(t *testing.T) {
	breakers := NewBreakers()
	now := time.Now()
	breakers.RecordClose(-2, 100, now) // trips hourly_loss_breaker

	m := New(DefaultLimits(), breakers)
	opp, rec, holders, pv := healthyInputs(now)

	d := m.Evaluate(opp, rec, holders, pv, now)
	require.NotNil(t, d.Reject)
	require.Contains(t, d.Reject.Reasons, "hourly_loss_breaker")
}

func TestEvaluateTieBreakIgnoresLowerOrEqualComposite(t *testing.T) {
	m := New(DefaultLimits(), NewBreakers())
	now := time.Now()
	opp, rec, holders, pv := healthyInputs(now)

	first := m.Evaluate(opp, rec, holders, pv, now)
	require.False(t, first.Ignored)

	second := m.Evaluate(opp, rec, holders, pv, now.Add(100*time.Millisecond))
	require.True(t, second.Ignored, "same-or-lower composite within TieBreakWindow must be ignored")
}

func TestEvaluateTieBreakAdmitsHigherComposite(t *testing.T) {
	m := New(DefaultLimits(), NewBreakers())
	now := time.Now()
	opp, rec, holders, pv := healthyInputs(now)

	first := m.Evaluate(opp, rec, holders, pv, now)
	require.False(t, first.Ignored)

	opp.Scores.Composite = 90
	second := m.Evaluate(opp, rec, holders, pv, now.Add(100*time.Millisecond))
	require.False(t, second.Ignored)
}

func TestEvaluateRiskyRejectedByDefault(t *testing.T) {
	m := New(DefaultLimits(), NewBreakers())
	now := time.Now()
	opp, rec, holders, pv := healthyInputs(now)
	opp.Recommendation = events.Risky

	d := m.Evaluate(opp, rec, holders, pv, now)
	require.NotNil(t, d.Reject)
	require.Contains(t, d.Reject.Reasons, "recommendation_risky")
}

func TestEvaluateOpenFailureCooldownBlocksRetry(t *testing.T) {
	m := New(DefaultLimits(), NewBreakers())
	now := time.Now()
	opp, rec, holders, pv := healthyInputs(now)

	m.NotifyOpenFailed(opp.TokenId, now)
	d := m.Evaluate(opp, rec, holders, pv, now.Add(time.Second))
	require.NotNil(t, d.Reject)
	require.Contains(t, d.Reject.Reasons, "open_failure_cooldown")
}

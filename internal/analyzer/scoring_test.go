package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yohannesjx/sentinel/internal/events"
)

func TestRecommendStrongBuyRequiresCompositeAndConfidence(t *testing.T) {
	require.Equal(t, events.StrongBuy, recommend(80, 0.75, events.RiskLow, false))
	require.Equal(t, events.Buy, recommend(80, 0.74, events.RiskLow, false), "confidence just under threshold downgrades to Buy")
}

func TestRecommendBuyRequiresLowOrMediumRisk(t *testing.T) {
	require.Equal(t, events.Buy, recommend(65, 0.5, events.RiskMedium, false))
	require.Equal(t, events.Watch, recommend(65, 0.5, events.RiskHigh, false), "high risk blocks Buy even at composite 65")
}

func TestRecommendHardSecurityFlagForcesAvoid(t *testing.T) {
	require.Equal(t, events.Avoid, recommend(95, 0.9, events.RiskLow, true))
}

func TestRecommendBoundaryJustBelowWatchIsRisky(t *testing.T) {
	require.Equal(t, events.Risky, recommend(49.999, 0.9, events.RiskLow, false))
	require.Equal(t, events.Watch, recommend(50, 0.9, events.RiskLow, false))
}

func TestCompositeRenormalizesOverPresentSubScores(t *testing.T) {
	s := events.Scores{Technical: 100, Fundamental: 100, Security: 100, Market: 100}
	got := composite(s, DefaultWeights())
	require.InDelta(t, 100, got, 0.001, "all-100 sub-scores must renormalize to 100 regardless of missing optionals")
}

func TestCompositeIncludesOptionalScoresWhenPresent(t *testing.T) {
	social := 0.0
	s := events.Scores{Technical: 100, Fundamental: 100, Security: 100, Market: 100, Social: &social}
	got := composite(s, DefaultWeights())
	require.Less(t, got, 100.0, "a present zero-valued optional score must pull the composite down")
}

func TestSecurityScorePenalizesHardFlags(t *testing.T) {
	rec := events.TokenRecord{Security: events.SecuritySnapshot{
		RugPullSuspected: true,
		Honeypot:         true,
		FetchedAt:        time.Now(),
	}}
	score, reason := securityScore(rec)
	require.Empty(t, reason)
	require.Equal(t, 0.0, score)
}

func TestTechnicalScoreNeutralOnInsufficientHistory(t *testing.T) {
	score, reason := technicalScore([]float64{1, 2, 3})
	require.Equal(t, 50.0, score)
	require.Equal(t, "insufficient_history", reason)
}

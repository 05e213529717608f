// Package risk implements the Risk Manager and Circuit Breakers (spec
// §4.4): gating Opportunity -> TradeIntent against portfolio-level and
// token-level limits, position sizing, and the four circuit breakers.
package risk

import "time"

// PortfolioLimits are spec §4.4's portfolio-level defaults, all overridable.
type PortfolioLimits struct {
	MaxDailyLossPct         float64
	MaxWeeklyLossPct        float64
	MaxDrawdownPct          float64
	MinCashReservePct       float64
	MaxSinglePositionPct    float64
	MaxCorrelatedExposurePct float64
	MaxOpenPositions        int
}

// TokenLimits are spec §4.4's token-level defaults, all overridable.
type TokenLimits struct {
	MinLiquidityQuote float64
	MaxDevHoldingsPct float64
	MaxTop10HoldingsPct float64
	MaxBundlerPct     float64
	MinHolderCount    int
	MinAgeSec         int64
	MaxPriceImpactPct float64
}

// SizingTiers are the dynamic position-sizing bands (spec §4.4).
type SizingTiers struct {
	NewTokenPct        float64 // age < 1h
	EstablishedPct     float64 // age > 1d
	HighConfidencePct  float64 // composite>=80 && confidence>=0.85
	HighConfComposite  float64
	HighConfConfidence float64
}

// SlippagePreset names a maxSlippageBps bucket (spec §4.4 "small/medium/large").
type SlippagePreset string

const (
	SlippageSmall  SlippagePreset = "small"
	SlippageMedium SlippagePreset = "medium"
	SlippageLarge  SlippagePreset = "large"
)

// Limits bundles every configurable threshold the Risk Manager gates on.
type Limits struct {
	Portfolio PortfolioLimits
	Token     TokenLimits
	Sizing    SizingTiers
	Slippage  map[SlippagePreset]int

	// OpenFailureCooldown is how long RiskManager refuses to retry a token
	// after the Paper Executor reports a position-open failure for it
	// (spec §4.4 "does not retry within cooldown").
	OpenFailureCooldown time.Duration

	// TieBreakWindow is the spec §4.4 "within 1s" window for the
	// same-token double-opportunity tie-break rule.
	TieBreakWindow time.Duration

	// AssessmentTTL is how long an assessment is stashed per TokenId
	// (spec §4.4 step 5).
	AssessmentTTL time.Duration

	// CompositeRiskCeiling is the spec §4.4 step 4 threshold (> rejects).
	CompositeRiskCeiling float64

	// AllowRiskyEmission reserves the spec §9 open-question parameter:
	// when false (the spec's default posture), a Risky recommendation is
	// treated as Reject rather than emitted with reduced size.
	AllowRiskyEmission bool
}

// DefaultLimits returns the spec §4.4 defaults.
func DefaultLimits() Limits {
	return Limits{
		Portfolio: PortfolioLimits{
			MaxDailyLossPct:          5,
			MaxWeeklyLossPct:         15,
			MaxDrawdownPct:           20,
			MinCashReservePct:        20,
			MaxSinglePositionPct:     10,
			MaxCorrelatedExposurePct: 25,
			MaxOpenPositions:         10,
		},
		Token: TokenLimits{
			MinLiquidityQuote:   10_000,
			MaxDevHoldingsPct:   5,
			MaxTop10HoldingsPct: 70,
			MaxBundlerPct:       30,
			MinHolderCount:      20,
			MinAgeSec:           1800,
			MaxPriceImpactPct:   5,
		},
		Sizing: SizingTiers{
			NewTokenPct:        1,
			EstablishedPct:     3,
			HighConfidencePct:  5,
			HighConfComposite:  80,
			HighConfConfidence: 0.85,
		},
		Slippage: map[SlippagePreset]int{
			SlippageSmall:  500,
			SlippageMedium: 500,
			SlippageLarge:  2000,
		},
		OpenFailureCooldown:  5 * time.Minute,
		TieBreakWindow:       time.Second,
		AssessmentTTL:        5 * time.Minute,
		CompositeRiskCeiling: 7.0,
		AllowRiskyEmission:   false,
	}
}

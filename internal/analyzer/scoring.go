package analyzer

import (
	"github.com/yohannesjx/sentinel/internal/events"
)

// Weights configures the composite score (spec §4.3). An all-zero set is
// replaced by DefaultWeights; otherwise the fields are used as given (a zero
// field carries no weight) and the set is renormalized to sum to 1.0.
type Weights struct {
	Technical   float64
	Fundamental float64
	Security    float64
	Market      float64
	Neural      float64
	Social      float64
	Whale       float64
}

// DefaultWeights is the single default weight set (§9 open-question
// decision: one configurable default rather than per-feed variants).
func DefaultWeights() Weights {
	return Weights{
		Technical:   0.14,
		Fundamental: 0.14,
		Security:    0.18,
		Market:      0.10,
		Neural:      0.14,
		Social:      0.20, // spec §4.3: "other optional scores collectively 0.20"
		Whale:       0.10,
	}
}

func (w Weights) normalized() Weights {
	sum := w.Technical + w.Fundamental + w.Security + w.Market + w.Neural + w.Social + w.Whale
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Technical:   w.Technical / sum,
		Fundamental: w.Fundamental / sum,
		Security:    w.Security / sum,
		Market:      w.Market / sum,
		Neural:      w.Neural / sum,
		Social:      w.Social / sum,
		Whale:       w.Whale / sum,
	}
}

// calculateEMA mirrors yohannesjx-sniperterminal/trend_analyzer.go's
// calculateEMA: SMA-seeded, then iterated with the standard smoothing
// constant 2/(period+1).
func calculateEMA(prices []float64, period int) (float64, bool) {
	if len(prices) < period {
		return 0, false
	}
	k := 2.0 / float64(period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	for i := period; i < len(prices); i++ {
		ema = (prices[i] * k) + (ema * (1 - k))
	}
	return ema, true
}

// calculateRSI mirrors yohannesjx-sniperterminal/trend_analyzer.go's
// calculateRSI, but over the locally-tracked price window instead of
// fetched klines.
func calculateRSI(prices []float64, period int) (float64, bool) {
	if len(prices) < period+1 {
		return 0, false
	}
	start := len(prices) - (period + 1)
	var gains, losses float64
	for i := start + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// technicalScore derives a 0-100 score from EMA9/EMA21 alignment plus RSI14
// (spec §4.3A), falling back to neutral 50 with a reason when insufficient
// history has accumulated.
func technicalScore(prices []float64) (score float64, reason string) {
	ema9, ok9 := calculateEMA(prices, 9)
	ema21, ok21 := calculateEMA(prices, 21)
	rsi, okRSI := calculateRSI(prices, 14)
	if !ok9 || !ok21 {
		return 50, "insufficient_history"
	}

	score = 50
	if ema9 > ema21 {
		score += 20
	} else if ema9 < ema21 {
		score -= 20
	}
	if okRSI {
		switch {
		case rsi >= 70:
			score -= 10 // overbought
		case rsi <= 30:
			score += 10 // oversold, room to run
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, ""
}

// fundamentalScore rewards liquidity and market-cap depth (spec §4.3).
func fundamentalScore(rec events.TokenRecord) (score float64, reason string) {
	if rec.Liquidity <= 0 && rec.MarketCap <= 0 {
		return 50, "no_fundamental_data"
	}
	score = 50
	switch {
	case rec.Liquidity >= 100_000:
		score += 25
	case rec.Liquidity >= 25_000:
		score += 15
	case rec.Liquidity >= 5_000:
		score += 5
	default:
		score -= 15
	}
	switch {
	case rec.MarketCap >= 1_000_000:
		score += 15
	case rec.MarketCap >= 250_000:
		score += 5
	default:
		score -= 5
	}
	return clamp100(score), ""
}

// securityScore penalizes each red flag in the latest SecuritySnapshot.
func securityScore(rec events.TokenRecord) (score float64, reason string) {
	if rec.Security.FetchedAt.IsZero() {
		return 50, "no_security_data"
	}
	score = 100
	if rec.Security.MintAuthorityPresent {
		score -= 20
	}
	if rec.Security.FreezeAuthorityPresent {
		score -= 40
	}
	if rec.Security.RugPullSuspected {
		score -= 50
	}
	if rec.Security.Honeypot {
		score -= 50
	}
	if rec.Security.TopHolderConcentrationPercent > 50 {
		score -= 15
	}
	if rec.Security.LPBurnedPercent >= 90 {
		score += 5
	}
	if rec.Security.Verified {
		score += 5
	}
	return clamp100(score), ""
}

// marketScore rewards volume and recent price support (spec §4.3).
func marketScore(rec events.TokenRecord) (score float64, reason string) {
	if rec.Market.FetchedAt.IsZero() {
		return 50, "no_market_data"
	}
	score = 50
	switch {
	case rec.Market.Volume24h >= 500_000:
		score += 25
	case rec.Market.Volume24h >= 100_000:
		score += 10
	default:
		score -= 10
	}
	if rec.Market.Price > 0 && rec.LastPrice > 0 && rec.Market.Price >= rec.LastPrice {
		score += 10
	}
	return clamp100(score), ""
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// composite combines sub-scores with w, renormalized to sum to 1.0 (spec
// §4.3). Optional sub-scores (Neural/Social/Whale) that are nil drop their
// weight share and the remaining weights are renormalized over what's
// present.
func composite(s events.Scores, w Weights) float64 {
	w = w.normalized()

	type term struct {
		weight float64
		value  float64
	}
	terms := []term{
		{w.Technical, s.Technical},
		{w.Fundamental, s.Fundamental},
		{w.Security, s.Security},
		{w.Market, s.Market},
	}
	if s.Neural != nil {
		terms = append(terms, term{w.Neural, *s.Neural})
	}
	if s.Social != nil {
		terms = append(terms, term{w.Social, *s.Social})
	}
	if s.Whale != nil {
		terms = append(terms, term{w.Whale, *s.Whale})
	}

	var weightSum, acc float64
	for _, t := range terms {
		weightSum += t.weight
		acc += t.weight * t.value
	}
	if weightSum == 0 {
		return 0
	}
	return acc / weightSum
}

// confidence is base 0.5 plus bonuses for corroborating signal, clamped to
// [0.1, 0.95] (spec §4.3): +0.15 if the security snapshot is present and
// fresh, +0.10 if a neural score is present, +0.10 if a market snapshot is
// present, +0.10 if at least 4 sub-scores are present, +0.10 if the present
// sub-scores' variance is under 400. reasons is the missing-signal tag list
// score() produced for this job (e.g. "missing_technical").
func confidence(s events.Scores, reasons []string, hasSecurity, hasMarket bool) float64 {
	missing := func(tag string) bool {
		for _, r := range reasons {
			if r == tag {
				return true
			}
		}
		return false
	}

	c := 0.5
	if hasSecurity {
		c += 0.15
	}
	if s.Neural != nil {
		c += 0.10
	}
	if hasMarket {
		c += 0.10
	}

	var present []float64
	if !missing("missing_technical") {
		present = append(present, s.Technical)
	}
	if !missing("missing_fundamental") {
		present = append(present, s.Fundamental)
	}
	if !missing("missing_security") {
		present = append(present, s.Security)
	}
	if !missing("missing_market") {
		present = append(present, s.Market)
	}
	if s.Neural != nil {
		present = append(present, *s.Neural)
	}
	if s.Social != nil {
		present = append(present, *s.Social)
	}
	if s.Whale != nil {
		present = append(present, *s.Whale)
	}

	if len(present) >= 4 {
		c += 0.10
	}
	if signalVariance(present) < 400 {
		c += 0.10
	}

	if c < 0.1 {
		c = 0.1
	}
	if c > 0.95 {
		c = 0.95
	}
	return c
}

// signalVariance is the population variance of values, 0 for fewer than two
// samples (no disagreement to measure).
func signalVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var acc float64
	for _, v := range values {
		d := v - mean
		acc += d * d
	}
	return acc / float64(len(values))
}

// riskLevelFromSecurity buckets a RiskLevel off the securityScore, used by
// recommend's "risk <= Medium" gate for Buy (spec §4.3).
func riskLevelFromSecurity(secScore float64) events.RiskLevel {
	switch {
	case secScore >= 70:
		return events.RiskLow
	case secScore >= 45:
		return events.RiskMedium
	case secScore >= 20:
		return events.RiskHigh
	default:
		return events.RiskCritical
	}
}

// recommend applies spec §4.3's strict thresholds, with a hard override for
// security red flags regardless of composite score:
//
//	composite >= 80 and no hard flag and confidence >= 0.75 -> StrongBuy
//	composite >= 65 and risk <= Medium                      -> Buy
//	composite >= 50                                         -> Watch
//	composite >= 30                                         -> Risky
//	else                                                     -> Avoid
func recommend(composite float64, confidence float64, risk events.RiskLevel, hardSecurityFlag bool) events.Recommendation {
	if hardSecurityFlag {
		return events.Avoid
	}
	switch {
	case composite >= 80 && confidence >= 0.75:
		return events.StrongBuy
	case composite >= 65 && (risk == events.RiskLow || risk == events.RiskMedium):
		return events.Buy
	case composite >= 50:
		return events.Watch
	case composite >= 30:
		return events.Risky
	default:
		return events.Avoid
	}
}

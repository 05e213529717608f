package risk

import (
	"sync"
	"time"

	"github.com/yohannesjx/sentinel/internal/events"
)

// PortfolioView is a read-only snapshot the Paper Executor hands to the Risk
// Manager (spec §4.4 Inputs, §9 "shared RiskContext snapshot passed by
// value"). The Risk Manager never mutates portfolio state; the Executor
// owns it exclusively.
type PortfolioView struct {
	NAV           float64
	CashReserve   float64
	OpenPositions int
	DailyPnLPct   float64
	WeeklyPnLPct  float64
	DrawdownPct   float64
	// CorrelatedExposurePct is the fraction of NAV already committed to
	// positions the caller considers correlated with the candidate token
	// (e.g. same narrative cluster); 0 if unknown.
	CorrelatedExposurePct float64
}

// Decision is the outcome of one Evaluate call. Exactly one of Intent or
// Reject is set, unless Ignored is true (spec §4.4 tie-break rule), in
// which case neither is emitted.
type Decision struct {
	Intent  *events.TradeIntent
	Reject  *events.RejectedTrade
	Ignored bool
}

type lastOpp struct {
	at        time.Time
	composite float64
}

type assessment struct {
	at        time.Time
	composite float64
	decision  Decision
}

// Manager is the Risk Manager (spec §4.4).
type Manager struct {
	limits   Limits
	breakers *Breakers

	mu           sync.Mutex
	lastByToken  map[events.TokenId]lastOpp
	openFailedAt map[events.TokenId]time.Time
	assessments  map[events.TokenId]assessment
}

// New constructs a Manager.
func New(limits Limits, breakers *Breakers) *Manager {
	return &Manager{
		limits:       limits,
		breakers:     breakers,
		lastByToken:  make(map[events.TokenId]lastOpp),
		openFailedAt: make(map[events.TokenId]time.Time),
		assessments:  make(map[events.TokenId]assessment),
	}
}

// NotifyOpenFailed records that the Paper Executor failed to open a position
// for id; Evaluate refuses to approve id again until OpenFailureCooldown
// elapses (spec §4.4 "does not retry within cooldown").
func (m *Manager) NotifyOpenFailed(id events.TokenId, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openFailedAt[id] = now
}

// RecordClose forwards a realized close to the circuit breakers.
func (m *Manager) RecordClose(realizedPnLQuote, nav float64, now time.Time) {
	m.breakers.RecordClose(realizedPnLQuote, nav, now)
}

// Evaluate gates opp against portfolio/token limits and circuit breakers,
// implementing the spec §4.4 algorithm in order.
func (m *Manager) Evaluate(opp events.Opportunity, rec events.TokenRecord, holders events.HoldersSnapshot, pv PortfolioView, now time.Time) Decision {
	m.mu.Lock()
	if last, ok := m.lastByToken[opp.TokenId]; ok && now.Sub(last.at) < m.limits.TieBreakWindow {
		if opp.Scores.Composite <= last.composite {
			m.mu.Unlock()
			return Decision{Ignored: true}
		}
	}
	m.lastByToken[opp.TokenId] = lastOpp{at: now, composite: opp.Scores.Composite}

	if a, ok := m.assessments[opp.TokenId]; ok && now.Sub(a.at) < m.limits.AssessmentTTL && a.composite == opp.Scores.Composite {
		m.mu.Unlock()
		return a.decision
	}

	if until, ok := m.openFailedAt[opp.TokenId]; ok && now.Sub(until) < m.limits.OpenFailureCooldown {
		m.mu.Unlock()
		return m.reject(opp, now, []string{"open_failure_cooldown"})
	}
	m.mu.Unlock()

	var reasons []string

	if active := m.breakers.Active(now); len(active) > 0 {
		reasons = append(reasons, active...)
	}
	if rec.Security.HasHardFlag() {
		reasons = append(reasons, "hard_security_flag")
	}
	if rec.Liquidity < m.limits.Token.MinLiquidityQuote {
		reasons = append(reasons, "low_liquidity")
	}
	switch opp.Recommendation {
	case events.Avoid:
		reasons = append(reasons, "recommendation_avoid")
	case events.Hold:
		reasons = append(reasons, "recommendation_hold")
	case events.Risky:
		if !m.limits.AllowRiskyEmission {
			reasons = append(reasons, "recommendation_risky")
		}
	}
	if holders.HolderCount > 0 && holders.HolderCount < m.limits.Token.MinHolderCount {
		reasons = append(reasons, "low_holder_count")
	}
	if holders.Top10HoldingsPct > m.limits.Token.MaxTop10HoldingsPct {
		reasons = append(reasons, "top10_concentration")
	}
	if holders.BundlerPct > m.limits.Token.MaxBundlerPct {
		reasons = append(reasons, "bundler_concentration")
	}
	if holders.DevHoldingsPct > m.limits.Token.MaxDevHoldingsPct {
		reasons = append(reasons, "dev_holdings")
	}
	ageSec := ageSeconds(rec, now)
	if ageSec < m.limits.Token.MinAgeSec {
		reasons = append(reasons, "token_too_new")
	}
	if pv.OpenPositions >= m.limits.Portfolio.MaxOpenPositions {
		reasons = append(reasons, "max_positions")
	}
	if pv.DrawdownPct >= m.limits.Portfolio.MaxDrawdownPct {
		reasons = append(reasons, "max_drawdown")
	}
	if pv.DailyPnLPct <= -m.limits.Portfolio.MaxDailyLossPct {
		reasons = append(reasons, "max_daily_loss")
	}
	if pv.WeeklyPnLPct <= -m.limits.Portfolio.MaxWeeklyLossPct {
		reasons = append(reasons, "max_weekly_loss")
	}
	if pv.NAV > 0 && (pv.CashReserve/pv.NAV*100) < m.limits.Portfolio.MinCashReservePct {
		reasons = append(reasons, "min_cash_reserve")
	}
	if pv.CorrelatedExposurePct > m.limits.Portfolio.MaxCorrelatedExposurePct {
		reasons = append(reasons, "max_correlated_exposure")
	}

	if len(reasons) > 0 {
		return m.finalize(opp, now, Decision{Reject: &events.RejectedTrade{
			TokenId:        opp.TokenId,
			OpportunityRef: refOf(opp),
			Reasons:        reasons,
			CreatedAt:      now,
		}})
	}

	tierPct, preset := m.sizingTier(opp, ageSec)
	notional := pv.NAV * tierPct / 100
	if positionCap := pv.NAV * m.limits.Portfolio.MaxSinglePositionPct / 100; notional > positionCap {
		notional = positionCap
	}
	if notional > pv.CashReserve {
		notional = pv.CashReserve
	}
	if notional <= 0 {
		return m.finalize(opp, now, Decision{Reject: &events.RejectedTrade{
			TokenId:        opp.TokenId,
			OpportunityRef: refOf(opp),
			Reasons:        []string{"insufficient_cash"},
			CreatedAt:      now,
		}})
	}

	riskScore := m.compositeRiskScore(opp, rec, holders, pv)
	if riskScore > m.limits.CompositeRiskCeiling {
		return m.finalize(opp, now, Decision{Reject: &events.RejectedTrade{
			TokenId:        opp.TokenId,
			OpportunityRef: refOf(opp),
			Reasons:        []string{"composite_risk_too_high"},
			CreatedAt:      now,
		}})
	}

	intent := &events.TradeIntent{
		TokenId:        opp.TokenId,
		Side:           events.SideBuy,
		NotionalQuote:  notional,
		MaxSlippageBps: m.limits.Slippage[preset],
		ReasonTag:      string(opp.Recommendation),
		OpportunityRef: refOf(opp),
		CreatedAt:      now,
	}
	return m.finalize(opp, now, Decision{Intent: intent})
}

func (m *Manager) reject(opp events.Opportunity, now time.Time, reasons []string) Decision {
	return Decision{Reject: &events.RejectedTrade{
		TokenId:        opp.TokenId,
		OpportunityRef: refOf(opp),
		Reasons:        reasons,
		CreatedAt:      now,
	}}
}

func (m *Manager) finalize(opp events.Opportunity, now time.Time, d Decision) Decision {
	m.mu.Lock()
	m.assessments[opp.TokenId] = assessment{at: now, composite: opp.Scores.Composite, decision: d}
	m.mu.Unlock()
	return d
}

func refOf(opp events.Opportunity) events.OpportunityRef {
	return events.OpportunityRef{
		Composite:      opp.Scores.Composite,
		Confidence:     opp.Confidence,
		Recommendation: opp.Recommendation,
	}
}

func ageSeconds(rec events.TokenRecord, now time.Time) int64 {
	if rec.FirstSeenTs <= 0 {
		return 0
	}
	return now.UnixMilli()/1000 - rec.FirstSeenTs/1000
}

// sizingTier picks the position-sizing band and matching slippage preset
// (spec §4.4 Position sizing / Slippage). Tokens between 1h and 1d old
// (neither "new" nor "established") fall back to the average of the two
// bands — the spec leaves this gap open; see DESIGN.md.
func (m *Manager) sizingTier(opp events.Opportunity, ageSec int64) (pct float64, preset SlippagePreset) {
	s := m.limits.Sizing
	if opp.Scores.Composite >= s.HighConfComposite && opp.Confidence >= s.HighConfConfidence {
		return s.HighConfidencePct, SlippageLarge
	}
	switch {
	case ageSec < 3600:
		return s.NewTokenPct, SlippageSmall
	case ageSec >= 86400:
		return s.EstablishedPct, SlippageMedium
	default:
		return (s.NewTokenPct + s.EstablishedPct) / 2, SlippageMedium
	}
}

// compositeRiskScore implements spec §4.4 step 4: 0.30*portfolioRisk +
// 0.35*tokenRisk + 0.20*positionRisk + 0.15*marketRisk, each in [0,10].
func (m *Manager) compositeRiskScore(opp events.Opportunity, rec events.TokenRecord, holders events.HoldersSnapshot, pv PortfolioView) float64 {
	portfolioRisk := 10 * ratio(float64(pv.OpenPositions), float64(m.limits.Portfolio.MaxOpenPositions))
	portfolioRisk = avg(portfolioRisk, 10*ratio(pv.DrawdownPct, m.limits.Portfolio.MaxDrawdownPct))

	tokenRisk := 10 * (1 - opp.Scores.Security/100)
	if m.limits.Token.MinLiquidityQuote > 0 {
		tokenRisk = avg(tokenRisk, 10*(1-ratio(rec.Liquidity, m.limits.Token.MinLiquidityQuote*5)))
	}
	if holders.HolderCount > 0 && m.limits.Token.MinHolderCount > 0 {
		tokenRisk = avg(tokenRisk, 10*(1-ratio(float64(holders.HolderCount), float64(m.limits.Token.MinHolderCount*5))))
	}

	positionRisk := 10 * ratio(pv.CorrelatedExposurePct, m.limits.Portfolio.MaxCorrelatedExposurePct)

	marketRisk := 10 * (1 - opp.Scores.Market/100)

	return 0.30*portfolioRisk + 0.35*tokenRisk + 0.20*positionRisk + 0.15*marketRisk
}

func ratio(value, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	r := value / limit
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

func avg(a, b float64) float64 { return (a + b) / 2 }

package analyzer

import (
	"context"
	"time"

	"github.com/yohannesjx/sentinel/internal/events"
)

// process runs one analysis job to completion: it updates the token record
// from ev, fetches stale external snapshots (bounded by the job's soft
// deadline and per-provider rate limits), scores the token, and — subject to
// cooldown — emits an Opportunity.
func (p *Pipeline) process(ctx context.Context, ev events.Event) {
	id := ev.TokenId
	nowMs := p.clock.WallMs()

	p.applyEvent(id, ev, nowMs)

	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	var reasons []string
	p.fetchStale(jobCtx, id, nowMs, &reasons)

	rec, _ := p.cache.Get(id)
	timedOut := jobCtx.Err() != nil

	scores, scoreReasons := p.score(id, rec)
	reasons = append(reasons, scoreReasons...)

	hasSecurity := !rec.Security.FetchedAt.IsZero() && time.Since(rec.Security.FetchedAt) < p.cfg.SecurityTTL
	hasMarket := !rec.Market.FetchedAt.IsZero()
	conf := confidence(scores, scoreReasons, hasSecurity, hasMarket)
	risk := riskLevelFromSecurity(scores.Security)
	comp := scores.Composite
	verdict := recommend(comp, conf, risk, rec.Security.HasHardFlag())

	if timedOut {
		p.timeouts.Add(1)
		verdict = events.Hold
		if conf > 0.25 {
			conf = 0.25
		}
		reasons = append(reasons, "analysis_timeout")
	}
	if len(scoreReasons) > 0 {
		reasons = append(reasons, "degraded_inputs")
		p.degraded.Add(1)
	}
	if rec.Security.HasHardFlag() {
		if rec.Security.FreezeAuthorityPresent {
			reasons = append(reasons, "freeze_authority")
		}
		if rec.Security.RugPullSuspected {
			reasons = append(reasons, "rug_pull_suspected")
		}
		if rec.Security.Honeypot {
			reasons = append(reasons, "honeypot")
		}
	}

	opp := events.Opportunity{
		TokenId:        id,
		Symbol:         rec.Symbol,
		Scores:         scores,
		Confidence:     conf,
		Recommendation: verdict,
		Reasons:        reasons,
		AnalysisMs:     p.clock.WallMs() - nowMs,
		ProducedAt:     time.Now(),
		MarketPrice:    rec.Market.Price,
	}

	if !p.admitCooldown(id, comp, opp.ProducedAt) {
		return
	}
	p.emitted.Add(1)
	select {
	case p.out <- opp:
	default:
		p.dropped.Add(1)
	}
}

// applyEvent folds ev's payload into the cached TokenRecord. The price
// history and whale-flow windows are fed by RecordPriceTick/RecordWhaleTrade,
// not here.
func (p *Pipeline) applyEvent(id events.TokenId, ev events.Event, nowMs int64) {
	switch payload := ev.Payload.(type) {
	case events.NewPairPayload:
		p.cache.Update(id, nowMs, func(r *events.TokenRecord) {
			if payload.Symbol != "" {
				r.Symbol = payload.Symbol
			}
			if payload.Liquidity > 0 {
				r.Liquidity = payload.Liquidity
			}
			if payload.MarketCap > 0 {
				r.MarketCap = payload.MarketCap
			}
		})
	case events.WhaleTradePayload:
		// Volume itself is recorded by the caller for every inbound trade,
		// not just ones that reach a job (spec §4.3A: the rolling buy/sell
		// window must reflect trades coalesced away under load, not only the
		// last-write-wins survivor). Only the cache update happens here.
		p.cache.Update(id, nowMs, func(r *events.TokenRecord) {
			if payload.Symbol != "" && r.Symbol == "" {
				r.Symbol = payload.Symbol
			}
		})
	}
}

// fetchStale runs the security/market/holders fetches in parallel, only for
// snapshots older than their configured TTL, respecting each provider's rate
// limiter (spec §4.3 Fetching policy). It appends "degraded_inputs" when a
// fetch is rate-limited, fails, or is still running at the job deadline.
func (p *Pipeline) fetchStale(ctx context.Context, id events.TokenId, nowMs int64, reasons *[]string) {
	rec, _ := p.cache.Get(id)
	done := make(chan bool, 3)
	n := 0

	if p.providers.Security != nil && time.Since(rec.Security.FetchedAt) > p.cfg.SecurityTTL {
		n++
		go func() {
			ok := false
			defer func() { done <- ok }()
			fctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
			defer cancel()
			if !acquire(fctx, p.cfg.Limiters.Security) {
				return
			}
			snap, err := p.providers.Security.FetchSecurity(fctx, id)
			if err != nil {
				return
			}
			snap.FetchedAt = time.Now()
			p.cache.Update(id, nowMs, func(r *events.TokenRecord) { r.Security = snap })
			ok = true
		}()
	}
	if p.providers.Market != nil && time.Since(rec.Market.FetchedAt) > p.cfg.MarketTTL {
		n++
		go func() {
			ok := false
			defer func() { done <- ok }()
			fctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
			defer cancel()
			if !acquire(fctx, p.cfg.Limiters.Market) {
				return
			}
			snap, err := p.providers.Market.FetchMarket(fctx, id)
			if err != nil {
				return
			}
			snap.FetchedAt = time.Now()
			p.cache.Update(id, nowMs, func(r *events.TokenRecord) { r.Market = snap })
			ok = true
		}()
	}
	if p.providers.Holders != nil && time.Since(rec.Holders.FetchedAt) > p.cfg.HoldersTTL {
		n++
		go func() {
			ok := false
			defer func() { done <- ok }()
			fctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
			defer cancel()
			if !acquire(fctx, p.cfg.Limiters.Holders) {
				return
			}
			snap, err := p.providers.Holders.FetchHolders(fctx, id)
			if err != nil {
				return
			}
			snap.FetchedAt = time.Now()
			p.cache.Update(id, nowMs, func(r *events.TokenRecord) { r.Holders = snap })
			ok = true
		}()
	}
	degraded := false
	for i := 0; i < n; i++ {
		select {
		case ok := <-done:
			if !ok {
				degraded = true
			}
		case <-ctx.Done():
			*reasons = append(*reasons, "degraded_inputs")
			return
		}
	}
	if degraded {
		*reasons = append(*reasons, "degraded_inputs")
	}
}

// score computes every sub-score for id's current record, including the
// optional Neural/Social capabilities when wired.
func (p *Pipeline) score(id events.TokenId, rec events.TokenRecord) (events.Scores, []string) {
	var reasons []string

	tech, reason := technicalScore(p.history.snapshot(id))
	if reason != "" {
		reasons = append(reasons, "missing_technical")
	}
	fund, reason := fundamentalScore(rec)
	if reason != "" {
		reasons = append(reasons, "missing_fundamental")
	}
	sec, reason := securityScore(rec)
	if reason != "" {
		reasons = append(reasons, "missing_security")
	}
	mkt, reason := marketScore(rec)
	if reason != "" {
		reasons = append(reasons, "missing_market")
	}

	s := events.Scores{Technical: tech, Fundamental: fund, Security: sec, Market: mkt}

	if whaleScore, ok := p.whale.score(id, time.Now()); ok {
		s.Whale = &whaleScore
	} else {
		reasons = append(reasons, "missing_whale")
	}

	if p.providers.Neural != nil {
		if v, err := p.providers.Neural.FetchNeuralScore(context.Background(), id); err == nil {
			s.Neural = &v
		} else {
			reasons = append(reasons, "missing_neural")
		}
	} else {
		reasons = append(reasons, "missing_neural")
	}

	if p.providers.Social != nil {
		if v, err := p.providers.Social.FetchSocialScore(context.Background(), id); err == nil {
			s.Social = &v
		} else {
			reasons = append(reasons, "missing_social")
		}
	} else {
		reasons = append(reasons, "missing_social")
	}

	s.Composite = composite(s, p.cfg.Weights)
	return s, reasons
}

// admitCooldown applies the per-token cooldown window (spec §4.3, §8): at
// most one Opportunity per Cooldown duration unless the new composite beats
// the last emitted one by at least CooldownBump points.
func (p *Pipeline) admitCooldown(id events.TokenId, comp float64, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.emits[id]
	if ok && now.Sub(last.at) < p.cfg.Cooldown {
		if comp < last.composite+p.cfg.CooldownBump {
			return false
		}
		p.preempted.Add(1)
	}
	p.emits[id] = emitRecord{at: now, composite: comp}
	return true
}

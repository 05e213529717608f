package executor

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yohannesjx/sentinel/internal/clockid"
	"github.com/yohannesjx/sentinel/internal/events"
)

// RiskNotifier is the narrow slice of the Risk Manager the Executor talks
// back to: a position-open failure and a realized close both need to reach
// it (spec §4.4 tie-in). Kept as an interface so executor never imports
// risk and the two packages stay acyclic (spec §9).
type RiskNotifier interface {
	NotifyOpenFailed(id events.TokenId, now time.Time)
	RecordClose(realizedPnLQuote, nav float64, now time.Time)
}

type noopNotifier struct{}

func (noopNotifier) NotifyOpenFailed(events.TokenId, time.Time)    {}
func (noopNotifier) RecordClose(float64, float64, time.Time) {}

// PositionCache is the narrow slice of the Token Cache the Executor marks an
// open position on, so the cache's LRU evictor can honor "no open position"
// as an eviction precondition (spec §4.6). May be left unset; marking is
// then a no-op.
type PositionCache interface {
	MarkOpenPosition(id events.TokenId, positionId string, nowMs int64)
	ClearOpenPosition(id events.TokenId, nowMs int64)
}

type noopPositionCache struct{}

func (noopPositionCache) MarkOpenPosition(events.TokenId, string, int64) {}
func (noopPositionCache) ClearOpenPosition(events.TokenId, int64)        {}

type tickInfo struct {
	price  float64
	wallTs int64
	at     time.Time
}

type pendingOpen struct {
	intent   events.TradeIntent
	marketPx float64
	deadline time.Time
}

// Executor is the Paper Executor & Position Tracker (spec §4.5).
type Executor struct {
	cfg      Config
	clock    *clockid.Clock
	risk     RiskNotifier
	posCache PositionCache

	mu          sync.Mutex
	cash        decimal.Decimal
	positions   map[events.TokenId]*events.Position
	byID        map[string]events.TokenId
	lastTick    map[events.TokenId]tickInfo
	pending     map[events.TokenId]pendingOpen
	lastComposite map[events.TokenId]float64

	priceSpikes uint64

	dayKey       string
	dailyPnL     decimal.Decimal
	weekKey      string
	weeklyPnL    decimal.Decimal
	realizedPnL  decimal.Decimal
	peakNAV      decimal.Decimal

	out chan events.ClosedTrade
}

// New constructs an Executor. risk may be nil (a no-op notifier is used).
func New(clock *clockid.Clock, risk RiskNotifier, cfg Config) *Executor {
	cfg = cfg.withDefaults()
	if risk == nil {
		risk = noopNotifier{}
	}
	cash := decimal.NewFromFloat(cfg.InitialCapital)
	return &Executor{
		cfg:           cfg,
		clock:         clock,
		risk:          risk,
		posCache:      noopPositionCache{},
		cash:          cash,
		positions:     make(map[events.TokenId]*events.Position),
		byID:          make(map[string]events.TokenId),
		lastTick:      make(map[events.TokenId]tickInfo),
		pending:       make(map[events.TokenId]pendingOpen),
		lastComposite: make(map[events.TokenId]float64),
		peakNAV:       cash,
		out:           make(chan events.ClosedTrade, 1024),
	}
}

// ClosedTrades returns the channel ClosedTrade events are published on.
func (e *Executor) ClosedTrades() <-chan events.ClosedTrade { return e.out }

// SetPositionCache wires the Token Cache the Executor marks open positions
// on (spec §4.6). Optional; unset leaves marking a no-op.
func (e *Executor) SetPositionCache(c PositionCache) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c == nil {
		c = noopPositionCache{}
	}
	e.posCache = c
}

// OnOpportunity feeds the Analyzer's recomputed composite score for id into
// the Deterioration exit check (spec §4.5: "The executor subscribes to
// Opportunity stream filtered by TokenId").
func (e *Executor) OnOpportunity(opp events.Opportunity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastComposite[opp.TokenId] = opp.Scores.Composite
}

// Open handles an approved TradeIntent (spec §4.5 Open policy). If a
// position is already open for the token it is ignored (no averaging in
// v1). If no fresh price is available it defers up to DeferOpenWindow
// waiting for a PriceTick, after which it reports the failed open to the
// Risk Manager through NotifyOpenFailed; no "no_price" reason string is
// passed, and the expiry is only checked when a later PriceTick arrives.
func (e *Executor) Open(intent events.TradeIntent, opp events.Opportunity, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.positions[intent.TokenId]; exists {
		return
	}
	if _, waiting := e.pending[intent.TokenId]; waiting {
		return
	}

	if tick, ok := e.lastTick[intent.TokenId]; ok && now.Sub(tick.at) <= e.cfg.TickMaxAge {
		e.openAt(intent, tick.price, now)
		return
	}
	if opp.MarketPrice > 0 {
		e.openAt(intent, opp.MarketPrice, now)
		return
	}
	e.pending[intent.TokenId] = pendingOpen{intent: intent, marketPx: opp.MarketPrice, deadline: now.Add(e.cfg.DeferOpenWindow)}
}

// openAt performs the actual open; caller must hold e.mu.
func (e *Executor) openAt(intent events.TradeIntent, entry float64, now time.Time) {
	notional := decimal.NewFromFloat(intent.NotionalQuote)
	if notional.GreaterThan(e.cash) {
		notional = e.cash
	}
	if notional.LessThanOrEqual(decimal.Zero) || entry <= 0 {
		e.risk.NotifyOpenFailed(intent.TokenId, now)
		return
	}
	e.cash = e.cash.Sub(notional)

	pos := &events.Position{
		Id:              clockid.NewId(),
		TokenId:         intent.TokenId,
		EntryPrice:      entry,
		EntryQuote:      notionalFloat(notional),
		OpenedAt:        now,
		Status:          events.PositionOpen,
		CurrentPrice:    entry,
		StopPrice:       entry * (1 - e.cfg.StopLossPct),
		TakeProfitPrice: entry * (1 + e.cfg.TakeProfitPct),
		MaxHoldDeadline: now.Add(e.cfg.MaxHoldMs),
	}
	e.positions[intent.TokenId] = pos
	e.byID[pos.Id] = intent.TokenId
	e.posCache.MarkOpenPosition(intent.TokenId, pos.Id, e.clock.WallMs())
}

func notionalFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// sweepPending expires any deferred open past its deadline (spec §4.5
// "reject with no_price"). Intended to be called periodically by the
// owning loop (e.g. each PriceTick or a 1s ticker).
func (e *Executor) sweepPending(now time.Time) {
	for tok, p := range e.pending {
		if now.After(p.deadline) {
			delete(e.pending, tok)
			e.risk.NotifyOpenFailed(tok, now)
		}
	}
}

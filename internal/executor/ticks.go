package executor

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yohannesjx/sentinel/internal/events"
)

// OnPriceTick marks any open Position for tick.TokenId to market and
// evaluates exits in the spec §4.5 fixed order: TakeProfit, StopLoss,
// TimeLimit, Deterioration, ManualClose (ManualClose/RiskForced are driven
// by ForceClose, not by ticks). A stale tick (older wallTs than the latest
// seen for this token) is ignored outright (spec §4.5, §8 idempotence).
func (e *Executor) OnPriceTick(tick events.PriceTickPayload, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sweepPending(now)

	prev, seen := e.lastTick[tick.TokenId]
	if seen && tick.WallTs < prev.wallTs {
		return // stale, spec §4.5 "ignored"
	}

	if seen && now.Sub(prev.at) <= time.Second && prev.price > 0 {
		if math.Abs(tick.Price-prev.price)/prev.price > e.cfg.PriceSpikePct {
			e.priceSpikes++ // reason="price_spike" (spec §4.5); exits still evaluate normally
		}
	}

	e.lastTick[tick.TokenId] = tickInfo{price: tick.Price, wallTs: tick.WallTs, at: now}

	if p, waiting := e.pending[tick.TokenId]; waiting {
		delete(e.pending, tick.TokenId)
		e.openAt(p.intent, tick.Price, now)
	}

	pos, open := e.positions[tick.TokenId]
	if !open || pos.Status != events.PositionOpen {
		return
	}

	pos.CurrentPrice = tick.Price
	pos.ReturnPct = tick.Price/pos.EntryPrice - 1
	pos.UnrealizedPnLQuote = pos.EntryQuote * pos.ReturnPct

	if reason, exitPrice, ok := e.evaluateExit(pos, now); ok {
		e.closeLocked(pos, exitPrice, reason, now)
	}
}

// evaluateExit applies the fixed exit-check order (spec §4.5). ManualClose
// is intentionally absent here: it only ever happens via ForceClose.
func (e *Executor) evaluateExit(pos *events.Position, now time.Time) (events.ExitReason, float64, bool) {
	switch {
	case pos.CurrentPrice >= pos.TakeProfitPrice:
		return events.ExitTakeProfit, pos.CurrentPrice, true
	case pos.CurrentPrice <= pos.StopPrice:
		return events.ExitStopLoss, pos.CurrentPrice, true
	case !now.Before(pos.MaxHoldDeadline):
		return events.ExitTimeLimit, pos.CurrentPrice, true
	case e.isDeteriorated(pos, now):
		return events.ExitDeterioration, pos.CurrentPrice, true
	default:
		return "", 0, false
	}
}

func (e *Executor) isDeteriorated(pos *events.Position, now time.Time) bool {
	if now.Sub(pos.OpenedAt) <= e.cfg.DeteriorationMinAge {
		return false
	}
	composite, ok := e.lastComposite[pos.TokenId]
	return ok && composite < e.cfg.DeteriorationThreshold
}

// closeLocked finalizes pos to Closed, updates cash/PnL accounting, and
// publishes a ClosedTrade. Caller must hold e.mu.
func (e *Executor) closeLocked(pos *events.Position, exitPrice float64, reason events.ExitReason, now time.Time) {
	returnPct := exitPrice/pos.EntryPrice - 1
	entryQuote := decimal.NewFromFloat(pos.EntryQuote)
	grossReturn := decimal.NewFromFloat(returnPct)

	proceeds := entryQuote.Mul(decimal.NewFromInt(1).Add(grossReturn))
	if e.cfg.FeeBpsPerSide > 0 {
		fee := proceeds.Mul(decimal.NewFromInt(int64(e.cfg.FeeBpsPerSide))).Div(decimal.NewFromInt(10_000))
		proceeds = proceeds.Sub(fee)
	}
	realized := proceeds.Sub(entryQuote)

	e.cash = e.cash.Add(proceeds)
	e.realizedPnL = e.realizedPnL.Add(realized)
	e.rollDayWeek(now)
	e.dailyPnL = e.dailyPnL.Add(realized)
	e.weeklyPnL = e.weeklyPnL.Add(realized)

	pos.Status = events.PositionClosed
	pos.CurrentPrice = exitPrice
	pos.ReturnPct = returnPct
	pos.UnrealizedPnLQuote = 0

	closed := events.ClosedTrade{
		PositionId:       pos.Id,
		TokenId:          pos.TokenId,
		EntryPrice:       pos.EntryPrice,
		ExitPrice:        exitPrice,
		OpenedAt:         pos.OpenedAt,
		ClosedAt:         now,
		DurationMs:       now.Sub(pos.OpenedAt).Milliseconds(),
		RealizedPnLQuote: notionalFloat(realized),
		ReturnPct:        returnPct,
		ExitReason:       reason,
	}

	delete(e.positions, pos.TokenId)
	delete(e.byID, pos.Id)
	e.posCache.ClearOpenPosition(pos.TokenId, e.clock.WallMs())

	navDec := e.cash
	for _, open := range e.positions {
		if open.Status == events.PositionOpen {
			navDec = navDec.Add(decimal.NewFromFloat(open.EntryQuote + open.UnrealizedPnLQuote))
		}
	}
	nav := notionalFloat(navDec)
	if nav > notionalFloat(e.peakNAV) {
		e.peakNAV = navDec
	}
	e.risk.RecordClose(closed.RealizedPnLQuote, nav, now)

	select {
	case e.out <- closed:
	default:
	}
}

func (e *Executor) rollDayWeek(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if day != e.dayKey {
		e.dayKey = day
		e.dailyPnL = decimal.Zero
	}
	year, week := now.UTC().ISOWeek()
	weekKey := fmt.Sprintf("%d-W%02d", year, week)
	if weekKey != e.weekKey {
		e.weekKey = weekKey
		e.weeklyPnL = decimal.Zero
	}
}

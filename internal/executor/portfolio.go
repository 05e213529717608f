package executor

import (
	"time"

	"github.com/yohannesjx/sentinel/internal/events"
)

// Portfolio is the read-only metrics snapshot the Risk Manager consumes as
// part of its RiskContext (spec §4.4, §4.5 "Portfolio metrics exposed").
type Portfolio struct {
	NAV           float64
	CashReserve   float64
	OpenPositions int
	RealizedPnL   float64
	UnrealizedPnL float64
	DailyPnL      float64
	DailyPnLPct   float64
	WeeklyPnL     float64
	WeeklyPnLPct  float64
	DrawdownPct   float64
	PriceSpikes   uint64
}

// Snapshot returns a copy of the current portfolio metrics (spec §5
// "reads via snapshot copies").
func (e *Executor) Snapshot(now time.Time) Portfolio {
	e.mu.Lock()
	defer e.mu.Unlock()

	var unrealized, invested float64
	for _, pos := range e.positions {
		if pos.Status == events.PositionOpen {
			unrealized += pos.UnrealizedPnLQuote
			invested += pos.EntryQuote
		}
	}
	cash := notionalFloat(e.cash)
	nav := cash + invested + unrealized
	peak := notionalFloat(e.peakNAV)
	drawdown := 0.0
	if peak > 0 && nav < peak {
		drawdown = (peak - nav) / peak * 100
	}

	navForPct := nav
	if navForPct <= 0 {
		navForPct = 1
	}

	return Portfolio{
		NAV:           nav,
		CashReserve:   cash,
		OpenPositions: len(e.positions),
		RealizedPnL:   notionalFloat(e.realizedPnL),
		UnrealizedPnL: unrealized,
		DailyPnL:      notionalFloat(e.dailyPnL),
		DailyPnLPct:   notionalFloat(e.dailyPnL) / navForPct * 100,
		WeeklyPnL:     notionalFloat(e.weeklyPnL),
		WeeklyPnLPct:  notionalFloat(e.weeklyPnL) / navForPct * 100,
		DrawdownPct:   drawdown,
		PriceSpikes:   e.priceSpikes,
	}
}

// ForceClose transitions a Position to Closing and immediately finalizes it
// to Closed at its current mark (or entry price if no tick was ever seen),
// with the given terminal reason — RiskForced or ManualClose (spec §4.5).
func (e *Executor) ForceClose(id string, reason events.ExitReason, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	tok, ok := e.byID[id]
	if !ok {
		return false
	}
	pos, ok := e.positions[tok]
	if !ok || pos.Status != events.PositionOpen {
		return false
	}
	pos.Status = events.PositionClosing

	exitPrice := pos.CurrentPrice
	if exitPrice <= 0 {
		exitPrice = pos.EntryPrice
	}
	e.closeLocked(pos, exitPrice, reason, now)
	return true
}

// SweepTimeLimits expires any open Position past its MaxHoldDeadline even
// when no PriceTick arrives to drive the check (spec §4.5 TimeLimit exit).
func (e *Executor) SweepTimeLimits(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, pos := range e.positions {
		if pos.Status == events.PositionOpen && !now.Before(pos.MaxHoldDeadline) {
			e.closeLocked(pos, pos.CurrentPrice, events.ExitTimeLimit, now)
		}
	}
}

// Position returns a copy of the open position for id, if any.
func (e *Executor) Position(id events.TokenId) (events.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.positions[id]
	if !ok {
		return events.Position{}, false
	}
	return *pos, true
}

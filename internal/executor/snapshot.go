package executor

import (
	"time"

	"github.com/shopspring/decimal"
)

// PerformanceSnapshot is the durable subset of portfolio state written atomically
// on graceful shutdown and restored on startup (spec §6 "performance snapshot
// (portfolio metrics)"). Open Positions are intentionally excluded: the spec
// only names portfolio metrics and the outcome ledger as persisted state, and
// a paper position tied to a since-restarted price stream has no fresh mark
// to resume from safely.
type PerformanceSnapshot struct {
	SchemaVersion int     `json:"schemaVersion"`
	Cash          string  `json:"cash"`
	RealizedPnL   string  `json:"realizedPnL"`
	PeakNAV       string  `json:"peakNAV"`
	DayKey        string  `json:"dayKey"`
	DailyPnL      string  `json:"dailyPnL"`
	WeekKey       string  `json:"weekKey"`
	WeeklyPnL     string  `json:"weeklyPnL"`
	PriceSpikes   uint64  `json:"priceSpikes"`
	SavedAtMs     int64   `json:"savedAtMs"`
}

// PerformanceSchemaVersion is bumped whenever PerformanceSnapshot's shape
// changes incompatibly.
const PerformanceSchemaVersion = 1

// ExportPerformance captures the current portfolio accounting state for
// atomic persistence (spec §6).
func (e *Executor) ExportPerformance(now time.Time) PerformanceSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return PerformanceSnapshot{
		SchemaVersion: PerformanceSchemaVersion,
		Cash:          e.cash.String(),
		RealizedPnL:   e.realizedPnL.String(),
		PeakNAV:       e.peakNAV.String(),
		DayKey:        e.dayKey,
		DailyPnL:      e.dailyPnL.String(),
		WeekKey:       e.weekKey,
		WeeklyPnL:     e.weeklyPnL.String(),
		PriceSpikes:   e.priceSpikes,
		SavedAtMs:     now.UnixMilli(),
	}
}

// RestorePerformance re-hydrates portfolio accounting state from a previously
// exported snapshot. An empty or unparseable decimal field keeps its current
// value rather than failing the whole restore (spec §7 "Cache miss with
// required field: fail the specific step, never the pipeline").
func (e *Executor) RestorePerformance(s PerformanceSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cash = parseDecimalOrZero(s.Cash, e.cash)
	e.realizedPnL = parseDecimalOrZero(s.RealizedPnL, e.realizedPnL)
	e.peakNAV = parseDecimalOrZero(s.PeakNAV, e.peakNAV)
	e.dayKey = s.DayKey
	e.dailyPnL = parseDecimalOrZero(s.DailyPnL, e.dailyPnL)
	e.weekKey = s.WeekKey
	e.weeklyPnL = parseDecimalOrZero(s.WeeklyPnL, e.weeklyPnL)
	e.priceSpikes = s.PriceSpikes
}

func parseDecimalOrZero(raw string, fallback decimal.Decimal) decimal.Decimal {
	if raw == "" {
		return fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fallback
	}
	return d
}

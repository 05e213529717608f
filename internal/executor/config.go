// Package executor implements the Paper Executor & Position Tracker (spec
// §4.5): opens simulated Positions from approved TradeIntents, marks them to
// market on PriceTicks, evaluates exits in a fixed order, and emits
// ClosedTrade events to the Outcome Ledger.
package executor

import "time"

// Config tunes position sizing and exit defaults (spec §4.5), all
// overridable.
type Config struct {
	InitialCapital float64

	StopLossPct   float64       // default 0.15
	TakeProfitPct float64       // default 0.50
	MaxHoldMs     time.Duration // default 8h
	HardHoldCap   time.Duration // default 24h

	TickMaxAge      time.Duration // entry tick freshness, default 5s
	DeferOpenWindow time.Duration // wait for a tick before rejecting, default 3s

	DeteriorationThreshold float64       // composite floor, default 25
	DeteriorationMinAge    time.Duration // default 4h

	FeeBpsPerSide int // flat bps applied per side, default 0

	PriceSpikePct float64 // jump ratio that marks "price_spike", default 0.5
}

// DefaultConfig returns the spec §4.5 defaults.
func DefaultConfig() Config {
	return Config{
		InitialCapital:         100,
		StopLossPct:            0.15,
		TakeProfitPct:          0.50,
		MaxHoldMs:              8 * time.Hour,
		HardHoldCap:            24 * time.Hour,
		TickMaxAge:             5 * time.Second,
		DeferOpenWindow:        3 * time.Second,
		DeteriorationThreshold: 25,
		DeteriorationMinAge:    4 * time.Hour,
		FeeBpsPerSide:          0,
		PriceSpikePct:          0.5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StopLossPct <= 0 {
		c.StopLossPct = d.StopLossPct
	}
	if c.TakeProfitPct <= 0 {
		c.TakeProfitPct = d.TakeProfitPct
	}
	if c.MaxHoldMs <= 0 {
		c.MaxHoldMs = d.MaxHoldMs
	}
	if c.HardHoldCap <= 0 {
		c.HardHoldCap = d.HardHoldCap
	}
	if c.MaxHoldMs > c.HardHoldCap {
		c.MaxHoldMs = c.HardHoldCap
	}
	if c.TickMaxAge <= 0 {
		c.TickMaxAge = d.TickMaxAge
	}
	if c.DeferOpenWindow <= 0 {
		c.DeferOpenWindow = d.DeferOpenWindow
	}
	if c.DeteriorationThreshold <= 0 {
		c.DeteriorationThreshold = d.DeteriorationThreshold
	}
	if c.DeteriorationMinAge <= 0 {
		c.DeteriorationMinAge = d.DeteriorationMinAge
	}
	if c.PriceSpikePct <= 0 {
		c.PriceSpikePct = d.PriceSpikePct
	}
	return c
}

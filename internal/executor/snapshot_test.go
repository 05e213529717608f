package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yohannesjx/sentinel/internal/events"
)

func TestExportRestorePerformanceRoundTrips(t *testing.T) {
	e := newTestExecutor()
	now := time.Now()
	e.OnPriceTick(events.PriceTickPayload{TokenId: "T1", Price: 1.0, WallTs: now.UnixMilli()}, now)
	e.Open(events.TradeIntent{TokenId: "T1", NotionalQuote: 100}, events.Opportunity{TokenId: "T1"}, now)
	later := now.Add(time.Minute)
	e.OnPriceTick(events.PriceTickPayload{TokenId: "T1", Price: 1.51, WallTs: later.UnixMilli()}, later)
	<-e.ClosedTrades()

	snap := e.ExportPerformance(later)
	require.Equal(t, PerformanceSchemaVersion, snap.SchemaVersion)

	fresh := newTestExecutor()
	fresh.RestorePerformance(snap)

	want := e.Snapshot(later)
	got := fresh.Snapshot(later)
	require.Equal(t, want.CashReserve, got.CashReserve)
	require.Equal(t, want.RealizedPnL, got.RealizedPnL)
	require.Equal(t, want.DailyPnL, got.DailyPnL)
	require.Equal(t, want.WeeklyPnL, got.WeeklyPnL)
}

func TestRestorePerformanceIgnoresUnparseableFields(t *testing.T) {
	e := newTestExecutor()
	before := e.Snapshot(time.Now())

	e.RestorePerformance(PerformanceSnapshot{Cash: "not-a-number"})

	after := e.Snapshot(time.Now())
	require.Equal(t, before.CashReserve, after.CashReserve, "malformed decimal field must not clobber state")
}

package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yohannesjx/sentinel/internal/clockid"
	"github.com/yohannesjx/sentinel/internal/events"
)

func newTestExecutor() *Executor {
	return New(clockid.New(), nil, Config{InitialCapital: 1000})
}

func TestOpenUsesFreshTickThenEntersPosition(t *testing.T) {
	e := newTestExecutor()
	now := time.Now()
	e.OnPriceTick(events.PriceTickPayload{TokenId: "T1", Price: 1.0, WallTs: now.UnixMilli()}, now)

	intent := events.TradeIntent{TokenId: "T1", NotionalQuote: 100}
	e.Open(intent, events.Opportunity{TokenId: "T1"}, now)

	pos, ok := e.Position("T1")
	require.True(t, ok)
	require.Equal(t, events.PositionOpen, pos.Status)
	require.Equal(t, 1.0, pos.EntryPrice)
	require.Equal(t, 100.0, pos.EntryQuote)
}

func TestOpenDefersWithoutFreshTick(t *testing.T) {
	e := newTestExecutor()
	now := time.Now()
	intent := events.TradeIntent{TokenId: "T1", NotionalQuote: 100}
	e.Open(intent, events.Opportunity{TokenId: "T1"}, now)

	_, ok := e.Position("T1")
	require.False(t, ok, "no position until a tick or opp.MarketPrice resolves the open")

	e.OnPriceTick(events.PriceTickPayload{TokenId: "T1", Price: 2.0, WallTs: now.UnixMilli()}, now)
	pos, ok := e.Position("T1")
	require.True(t, ok)
	require.Equal(t, 2.0, pos.EntryPrice)
}

func TestTakeProfitExitClosesAndPublishes(t *testing.T) {
	e := newTestExecutor()
	now := time.Now()
	e.OnPriceTick(events.PriceTickPayload{TokenId: "T1", Price: 1.0, WallTs: now.UnixMilli()}, now)
	e.Open(events.TradeIntent{TokenId: "T1", NotionalQuote: 100}, events.Opportunity{TokenId: "T1"}, now)

	later := now.Add(time.Minute)
	e.OnPriceTick(events.PriceTickPayload{TokenId: "T1", Price: 1.51, WallTs: later.UnixMilli()}, later)

	_, ok := e.Position("T1")
	require.False(t, ok, "position should be closed after take-profit")

	select {
	case closed := <-e.ClosedTrades():
		require.Equal(t, events.ExitTakeProfit, closed.ExitReason)
		require.InDelta(t, 51.0, closed.RealizedPnLQuote, 0.01)
	default:
		t.Fatal("expected a ClosedTrade")
	}
}

func TestStaleTickIsIgnored(t *testing.T) {
	e := newTestExecutor()
	now := time.Now()
	e.OnPriceTick(events.PriceTickPayload{TokenId: "T1", Price: 1.0, WallTs: now.UnixMilli()}, now)
	e.Open(events.TradeIntent{TokenId: "T1", NotionalQuote: 100}, events.Opportunity{TokenId: "T1"}, now)

	stale := now.Add(-time.Second)
	e.OnPriceTick(events.PriceTickPayload{TokenId: "T1", Price: 10.0, WallTs: stale.UnixMilli()}, now)

	pos, ok := e.Position("T1")
	require.True(t, ok)
	require.Equal(t, 1.0, pos.CurrentPrice, "stale tick must not move the mark")
}

func TestForceCloseFinalizesAtCurrentMark(t *testing.T) {
	e := newTestExecutor()
	now := time.Now()
	e.OnPriceTick(events.PriceTickPayload{TokenId: "T1", Price: 1.0, WallTs: now.UnixMilli()}, now)
	e.Open(events.TradeIntent{TokenId: "T1", NotionalQuote: 100}, events.Opportunity{TokenId: "T1"}, now)

	pos, _ := e.Position("T1")
	ok := e.ForceClose(pos.Id, events.ExitRiskForced, now.Add(time.Second))
	require.True(t, ok)

	_, stillOpen := e.Position("T1")
	require.False(t, stillOpen)

	closed := <-e.ClosedTrades()
	require.Equal(t, events.ExitRiskForced, closed.ExitReason)
}

func TestSnapshotReflectsOpenPositionUnrealized(t *testing.T) {
	e := newTestExecutor()
	now := time.Now()
	e.OnPriceTick(events.PriceTickPayload{TokenId: "T1", Price: 1.0, WallTs: now.UnixMilli()}, now)
	e.Open(events.TradeIntent{TokenId: "T1", NotionalQuote: 100}, events.Opportunity{TokenId: "T1"}, now)

	later := now.Add(time.Minute)
	e.OnPriceTick(events.PriceTickPayload{TokenId: "T1", Price: 1.1, WallTs: later.UnixMilli()}, later)

	snap := e.Snapshot(later)
	require.Equal(t, 1, snap.OpenPositions)
	require.InDelta(t, 10.0, snap.UnrealizedPnL, 0.01)
	require.InDelta(t, 900.0, snap.CashReserve, 0.01)
}

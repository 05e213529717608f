package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yohannesjx/sentinel/internal/events"
)

func trade(pnl float64, closedAt time.Time) events.ClosedTrade {
	return events.ClosedTrade{
		TokenId:          "T1",
		RealizedPnLQuote: pnl,
		ClosedAt:         closedAt,
		DurationMs:       1000,
	}
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	l := New()
	base := time.Unix(0, 0)
	l.Append(trade(1, base))
	l.Append(trade(2, base.Add(time.Second)))
	l.Append(trade(3, base.Add(2*time.Second)))

	got := l.Recent(2)
	require.Len(t, got, 2)
	require.Equal(t, 3.0, got[0].RealizedPnLQuote)
	require.Equal(t, 2.0, got[1].RealizedPnLQuote)
}

func TestAppendWrapsAtCapacity(t *testing.T) {
	l := New()
	base := time.Unix(0, 0)
	for i := 0; i < Capacity+5; i++ {
		l.Append(trade(float64(i), base.Add(time.Duration(i)*time.Millisecond)))
	}
	require.Equal(t, Capacity, l.Len())

	got := l.Recent(1)
	require.Len(t, got, 1)
	require.Equal(t, float64(Capacity+4), got[0].RealizedPnLQuote)
}

func TestExportRestoreRoundTrips(t *testing.T) {
	l := New()
	base := time.Unix(0, 0)
	l.Append(trade(1, base))
	l.Append(trade(2, base.Add(time.Second)))
	l.Append(trade(3, base.Add(2*time.Second)))

	snap := l.Export()
	require.Equal(t, LedgerSchemaVersion, snap.SchemaVersion)
	require.Len(t, snap.Trades, 3)
	require.Equal(t, 1.0, snap.Trades[0].RealizedPnLQuote, "exported order is oldest first")

	restored := New()
	restored.Restore(snap)
	require.Equal(t, l.Recent(3), restored.Recent(3))
}

func TestSummaryWindowsAndAggregates(t *testing.T) {
	l := New()
	now := time.Unix(10_000, 0)
	l.Append(trade(10, now.Add(-30*time.Minute)))
	l.Append(trade(-4, now.Add(-10*time.Minute)))
	l.Append(trade(6, now.Add(-25*time.Hour))) // outside 1h window

	s := l.Summary(now, time.Hour)
	require.Equal(t, 2, s.TradeCount)
	require.Equal(t, 1, s.WinCount)
	require.Equal(t, 50.0, s.WinRatePct)
	require.Equal(t, 6.0, s.RealizedPnL)
	require.Equal(t, 10.0, s.BestTrade)
	require.Equal(t, -4.0, s.WorstTrade)
}

package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yohannesjx/sentinel/internal/events"
)

func TestGetOrCreateMintsMinimalRecord(t *testing.T) {
	c := New()
	rec := c.GetOrCreate("T1", 1000)
	require.Equal(t, events.TokenId("T1"), rec.TokenId)
	require.Equal(t, int64(1000), rec.FirstSeenTs)

	again, ok := c.Get("T1")
	require.True(t, ok)
	require.Equal(t, rec, again)
}

func TestUpdateIsReadModifyWrite(t *testing.T) {
	c := New()
	c.Update("T1", 100, func(r *events.TokenRecord) {
		r.LastPrice = 1.5
		r.LastPriceTs = 200
	})
	c.Update("T1", 100, func(r *events.TokenRecord) {
		r.Liquidity = 9000
	})

	rec, ok := c.Get("T1")
	require.True(t, ok)
	require.Equal(t, 1.5, rec.LastPrice)
	require.Equal(t, 9000.0, rec.Liquidity)
}

func TestEvictionKeepsCacheWithinMaxEntries(t *testing.T) {
	c := New(WithMaxEntries(32)) // 1 per shard after division
	// Force everything into shard 0 is hard without knowing hashing, so
	// instead validate the invariant end-to-end: with a tiny cap, putting
	// many distinct tokens never exceeds the configured bound.
	for i := 0; i < 200; i++ {
		id := events.TokenId(fmt.Sprintf("T%d", i))
		c.Update(id, int64(i), func(r *events.TokenRecord) {
			r.LastPriceTs = int64(i)
		})
	}
	require.LessOrEqual(t, c.Len(), 32)
}

func TestSweepTTLEvictsStaleNoPositionRecords(t *testing.T) {
	c := New()
	c.Update("stale", 0, func(r *events.TokenRecord) { r.LastPriceTs = 1000 })
	c.Update("fresh", 0, func(r *events.TokenRecord) { r.LastPriceTs = 100_000 })
	c.Update("open", 0, func(r *events.TokenRecord) {
		r.LastPriceTs = 1000
		r.OpenPositionId = "pos-1"
	})

	evicted := c.SweepTTL(100_000, 1000)
	require.Equal(t, 1, evicted)

	_, ok := c.Get("stale")
	require.False(t, ok)
	_, ok = c.Get("fresh")
	require.True(t, ok)
	_, ok = c.Get("open")
	require.True(t, ok, "records with an open position must never be TTL-evicted")
}

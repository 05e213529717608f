package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yohannesjx/sentinel/internal/cache"
	"github.com/yohannesjx/sentinel/internal/clockid"
	"github.com/yohannesjx/sentinel/internal/events"
)

func TestPipelineEmitsOpportunityForNewPair(t *testing.T) {
	c := cache.New()
	clock := clockid.New()
	p := New(c, clock, Providers{}, Config{JobTimeout: time.Second, Cooldown: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Submit(events.Event{
		Seq:     1,
		WallTs:  clock.WallMs(),
		TokenId: "T1",
		Kind:    events.KindNewPair,
		Payload: events.NewPairPayload{TokenId: "T1", Liquidity: 50_000, MarketCap: 1_000_000},
	})

	select {
	case opp := <-p.Opportunities():
		require.Equal(t, events.TokenId("T1"), opp.TokenId)
	case <-time.After(2 * time.Second):
		t.Fatal("expected an Opportunity within 2s")
	}
}

func TestPipelineCooldownSuppressesRepeatEmission(t *testing.T) {
	c := cache.New()
	clock := clockid.New()
	p := New(c, clock, Providers{}, Config{JobTimeout: time.Second, Cooldown: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	ev := events.Event{
		WallTs:  clock.WallMs(),
		TokenId: "T1",
		Kind:    events.KindNewPair,
		Payload: events.NewPairPayload{TokenId: "T1", Liquidity: 50_000},
	}
	p.Submit(ev)
	<-p.Opportunities()

	p.Submit(ev)
	select {
	case <-p.Opportunities():
		t.Fatal("cooldown should have suppressed the second emission")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestRecordWhaleTradeFeedsWhaleScoreBeforeAnyJobRuns(t *testing.T) {
	c := cache.New()
	clock := clockid.New()
	p := New(c, clock, Providers{}, Config{JobTimeout: time.Second, Cooldown: time.Minute})

	now := time.Now()
	p.RecordWhaleTrade("T1", 100, events.SideBuy, now)
	p.RecordWhaleTrade("T1", 10, events.SideSell, now)

	score, ok := p.whale.score("T1", now)
	require.True(t, ok, "whale flow recorded via RecordWhaleTrade must be visible without a job ever running")
	require.Greater(t, score, 50.0, "dominant buy flow should push whaleScore above neutral")
}

func TestRecordPriceTickFeedsTechnicalHistory(t *testing.T) {
	c := cache.New()
	clock := clockid.New()
	p := New(c, clock, Providers{}, Config{JobTimeout: time.Second, Cooldown: time.Minute})

	for i := 0; i < 5; i++ {
		p.RecordPriceTick("T1", float64(i+1))
	}

	require.Len(t, p.history.snapshot("T1"), 5)
}

func TestPauseStopsEmission(t *testing.T) {
	c := cache.New()
	clock := clockid.New()
	p := New(c, clock, Providers{}, Config{JobTimeout: time.Second, Cooldown: time.Minute})
	p.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Submit(events.Event{
		WallTs:  clock.WallMs(),
		TokenId: "T1",
		Kind:    events.KindNewPair,
		Payload: events.NewPairPayload{TokenId: "T1", Liquidity: 50_000},
	})

	select {
	case <-p.Opportunities():
		t.Fatal("paused pipeline must not emit")
	case <-time.After(300 * time.Millisecond):
	}

	require.True(t, p.Stats().Paused)
}

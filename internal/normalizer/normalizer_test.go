package normalizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yohannesjx/sentinel/internal/clockid"
	"github.com/yohannesjx/sentinel/internal/events"
	"github.com/yohannesjx/sentinel/internal/scf"
)

func newTestNormalizer() *Normalizer {
	return New(clockid.New())
}

func TestNormalizeNewPairRequiresLiquidityOrMarketCap(t *testing.T) {
	n := newTestNormalizer()
	msg := &scf.Message{
		Feed: events.FeedNewPair,
		Data: map[string]any{"tokenId": "T1", "symbol": "FOO"},
	}
	res := n.Normalize(msg)
	require.Nil(t, res.Event)
	require.NotNil(t, res.Reject)
	require.Equal(t, "missing_liquidity_and_marketcap", res.Reject.Reason)
}

func TestNormalizeNewPairAccepted(t *testing.T) {
	n := newTestNormalizer()
	msg := &scf.Message{
		Feed:   events.FeedNewPair,
		WallTs: 1000,
		Data:   map[string]any{"tokenId": "T1", "symbol": "FOO", "liquidity": 5000.0},
	}
	res := n.Normalize(msg)
	require.Nil(t, res.Reject)
	require.NotNil(t, res.Event)
	require.Equal(t, events.KindNewPair, res.Event.Kind)
	payload, ok := res.Event.Payload.(events.NewPairPayload)
	require.True(t, ok)
	require.Equal(t, events.TokenId("T1"), payload.TokenId)
	require.Equal(t, 5000.0, payload.Liquidity)
}

func TestNormalizeWhaleValidTuple(t *testing.T) {
	n := newTestNormalizer()
	tuple := make([]any, 20)
	tuple[whaleIdxWallTs] = float64(12345)
	tuple[whaleIdxWhaleAddress] = "0xWHALE"
	tuple[whaleIdxSignature] = "sig123"
	tuple[whaleIdxFromToken] = "SOL"
	tuple[whaleIdxToToken] = "MINT123"
	tuple[whaleIdxTransactionAmount] = 42.5
	tuple[whaleIdxSide] = "buy"
	tuple[whaleIdxTokenName] = "Some Token"
	tuple[whaleIdxSymbol] = "SOME"

	msg := &scf.Message{Feed: events.FeedWhale, Data: map[string]any{"tuple": tuple}}
	res := n.Normalize(msg)
	require.Nil(t, res.Reject)
	require.NotNil(t, res.Event)
	payload, ok := res.Event.Payload.(events.WhaleTradePayload)
	require.True(t, ok)
	require.Equal(t, events.TokenId("MINT123"), payload.TokenId)
	require.Equal(t, events.SideBuy, payload.Side)
	require.Equal(t, "SOME", payload.Symbol)
}

func TestNormalizeWhaleRejectsShortTuple(t *testing.T) {
	n := newTestNormalizer()
	tuple := make([]any, 5) // far shorter than required index 19
	msg := &scf.Message{Feed: events.FeedWhale, Data: map[string]any{"tuple": tuple}}
	res := n.Normalize(msg)
	require.Nil(t, res.Event)
	require.NotNil(t, res.Reject)
	require.Equal(t, "whale_shape", res.Reject.Reason)
}

func TestNormalizeWhaleRejectsMissingTuple(t *testing.T) {
	n := newTestNormalizer()
	msg := &scf.Message{Feed: events.FeedWhale, Data: map[string]any{"not_a_tuple": true}}
	res := n.Normalize(msg)
	require.NotNil(t, res.Reject)
	require.Equal(t, "whale_shape", res.Reject.Reason)
}

func TestNormalizeWhaleRejectsBadSide(t *testing.T) {
	n := newTestNormalizer()
	tuple := make([]any, 20)
	tuple[whaleIdxWallTs] = float64(1)
	tuple[whaleIdxWhaleAddress] = "0xWHALE"
	tuple[whaleIdxSignature] = "sig"
	tuple[whaleIdxFromToken] = "SOL"
	tuple[whaleIdxToToken] = "MINT1"
	tuple[whaleIdxTransactionAmount] = 1.0
	tuple[whaleIdxSide] = "sideways" // invalid
	tuple[whaleIdxTokenName] = "X"
	tuple[whaleIdxSymbol] = "X"

	msg := &scf.Message{Feed: events.FeedWhale, Data: map[string]any{"tuple": tuple}}
	res := n.Normalize(msg)
	require.NotNil(t, res.Reject)
	require.Equal(t, "whale_shape", res.Reject.Reason)
}

func TestNormalizeClusterRoutesSideChannelTopicsToReject(t *testing.T) {
	n := newTestNormalizer()
	msg := &scf.Message{Feed: events.FeedCluster, Topic: "sol-priority-fee", Data: map[string]any{}}
	res := n.Normalize(msg)
	require.NotNil(t, res.Reject)
	require.Equal(t, "side_channel_only", res.Reject.Reason)
}

func TestNormalizeClusterPriceTickEntersMainPipeline(t *testing.T) {
	n := newTestNormalizer()
	msg := &scf.Message{
		Feed:  events.FeedCluster,
		Topic: "price_tick",
		Data:  map[string]any{"tokenId": "T9", "price": 1.23},
	}
	res := n.Normalize(msg)
	require.Nil(t, res.Reject)
	require.NotNil(t, res.Event)
	require.Equal(t, events.KindPriceTick, res.Event.Kind)
}

func TestNormalizePriceTrackerRejectsNegativePrice(t *testing.T) {
	n := newTestNormalizer()
	msg := &scf.Message{
		Feed: events.FeedPriceTracker,
		Data: map[string]any{"tokenId": "T1", "price": -1.0},
	}
	res := n.Normalize(msg)
	require.NotNil(t, res.Reject)
	require.Equal(t, "invalid_price", res.Reject.Reason)
}

func TestNormalizeSameMessageTwiceYieldsSamePayload(t *testing.T) {
	n := newTestNormalizer()
	msg := &scf.Message{
		Feed: events.FeedPriceTracker,
		Data: map[string]any{"tokenId": "T1", "price": 2.5, "wallTs": 777.0},
	}
	res := n.Normalize(msg)
	require.NotNil(t, res.Event)
	first := res.Event.Payload.(events.PriceTickPayload)

	res2 := n.Normalize(msg)
	second := res2.Event.Payload.(events.PriceTickPayload)

	require.Equal(t, first.TokenId, second.TokenId)
	require.Equal(t, first.Price, second.Price)
	require.Equal(t, first.WallTs, second.WallTs)
}

func TestClampPercentClampsOutOfRange(t *testing.T) {
	n := newTestNormalizer()
	v, clamped := n.ClampPercent(150)
	require.True(t, clamped)
	require.Equal(t, 100.0, v)

	v, clamped = n.ClampPercent(-10)
	require.True(t, clamped)
	require.Equal(t, 0.0, v)

	v, clamped = n.ClampPercent(42)
	require.False(t, clamped)
	require.Equal(t, 42.0, v)
}

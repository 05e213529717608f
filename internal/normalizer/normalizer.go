// Package normalizer implements the Normalizer (spec §4.2): it maps each
// feed's raw decoded payload (an scf.Message) into the typed domain events
// defined in internal/events, or rejects it with a structured reason.
package normalizer

import (
	"math"

	"github.com/yohannesjx/sentinel/internal/clockid"
	"github.com/yohannesjx/sentinel/internal/events"
	"github.com/yohannesjx/sentinel/internal/scf"
)

// Normalizer turns scf.Message values into events.Event values.
type Normalizer struct {
	clock *clockid.Clock

	// counters, surfaced to the Control Plane per spec §7 ("the dashboard
	// sees structured stats"); incremented here, only read by callers, never reset.
	rejectCounts map[string]uint64
	percentWarn  uint64
}

// New constructs a Normalizer.
func New(clock *clockid.Clock) *Normalizer {
	return &Normalizer{clock: clock, rejectCounts: make(map[string]uint64)}
}

// Result is what Normalize returns: exactly one of Event or Reject is set
// (spec §4.2 contract: normalize(feed, raw) -> Result<Event, RejectReason>).
type Result struct {
	Event  *events.Event
	Reject *events.RejectReason
}

// Normalize dispatches msg to the feed-specific mapping.
func (n *Normalizer) Normalize(msg *scf.Message) Result {
	switch msg.Feed {
	case events.FeedNewPair:
		return n.normalizeNewPair(msg)
	case events.FeedWhale:
		return n.normalizeWhale(msg)
	case events.FeedCluster:
		return n.normalizeCluster(msg)
	case events.FeedPriceTracker:
		return n.normalizePriceTracker(msg)
	default:
		return n.reject(msg.Feed, "unknown_feed")
	}
}

func (n *Normalizer) reject(feed events.FeedKind, reason string) Result {
	n.rejectCounts[reason]++
	return Result{Reject: &events.RejectReason{Feed: feed, Reason: reason}}
}

func (n *Normalizer) wrap(feed events.FeedKind, kind events.EventKind, tokenId events.TokenId, payload any, wallTs int64) Result {
	return Result{Event: &events.Event{
		Seq:     n.clock.NextSeq(),
		WallTs:  wallTs,
		MonoTs:  n.clock.MonoMs(),
		Feed:    feed,
		Kind:    kind,
		TokenId: tokenId,
		Payload: payload,
	}}
}

// normalizeNewPair requires tokenId and at least one of {liquidity,
// marketCap} (spec §4.2).
func (n *Normalizer) normalizeNewPair(msg *scf.Message) Result {
	tokenId, ok := stringField(msg.Data, "tokenId")
	if !ok || tokenId == "" {
		return n.reject(msg.Feed, "missing_token_id")
	}

	liquidity, hasLiq := numberField(msg.Data, "liquidity")
	marketCap, hasMc := numberField(msg.Data, "marketCap")
	if !hasLiq && !hasMc {
		return n.reject(msg.Feed, "missing_liquidity_and_marketcap")
	}

	if hasLiq && !validNonNegative(liquidity) {
		return n.reject(msg.Feed, "invalid_liquidity")
	}
	if hasMc && !validNonNegative(marketCap) {
		return n.reject(msg.Feed, "invalid_marketcap")
	}

	symbol, _ := stringField(msg.Data, "symbol")

	payload := events.NewPairPayload{
		TokenId:   events.TokenId(tokenId),
		Symbol:    symbol,
		Liquidity: liquidity,
		MarketCap: marketCap,
	}
	return n.wrap(msg.Feed, events.KindNewPair, payload.TokenId, payload, msg.WallTs)
}

// whaleIndex is the canonical positional mapping for the Whale feed's
// positional-tuple payload (spec §4.2). Fields outside [0,27] are ignored;
// any deviation from this shape is rejected with reason "whale_shape".
const (
	whaleIdxWallTs            = 0
	whaleIdxWhaleAddress      = 1
	whaleIdxSignature         = 2
	whaleIdxFromToken         = 4
	whaleIdxToToken           = 5
	whaleIdxTransactionAmount = 9
	whaleIdxSide              = 13
	whaleIdxTokenName         = 18
	whaleIdxSymbol            = 19
	whaleMaxIndex             = 27
)

// normalizeWhale maps the positional tuple described in spec §4.2. Isolated
// in one function (per the §9 open-question decision) so an upstream schema
// change only touches this mapping.
func (n *Normalizer) normalizeWhale(msg *scf.Message) Result {
	tuple, ok := msg.Data["tuple"].([]any)
	if !ok {
		return n.reject(msg.Feed, "whale_shape")
	}
	if len(tuple) <= whaleIdxSymbol {
		return n.reject(msg.Feed, "whale_shape")
	}

	wallTs, ok := asInt64(tuple[whaleIdxWallTs])
	if !ok {
		return n.reject(msg.Feed, "whale_shape")
	}
	whaleAddress, ok := tuple[whaleIdxWhaleAddress].(string)
	if !ok {
		return n.reject(msg.Feed, "whale_shape")
	}
	signature, ok := tuple[whaleIdxSignature].(string)
	if !ok {
		return n.reject(msg.Feed, "whale_shape")
	}
	fromToken, _ := tuple[whaleIdxFromToken].(string)
	toToken, ok := tuple[whaleIdxToToken].(string)
	if !ok || toToken == "" {
		return n.reject(msg.Feed, "whale_shape")
	}
	amount, ok := asFloat64(tuple[whaleIdxTransactionAmount])
	if !ok || !validNonNegative(amount) {
		return n.reject(msg.Feed, "whale_shape")
	}
	sideRaw, ok := tuple[whaleIdxSide].(string)
	if !ok {
		return n.reject(msg.Feed, "whale_shape")
	}
	var side events.Side
	switch sideRaw {
	case "buy":
		side = events.SideBuy
	case "sell":
		side = events.SideSell
	default:
		return n.reject(msg.Feed, "whale_shape")
	}
	tokenName, _ := tuple[whaleIdxTokenName].(string)
	symbol, _ := tuple[whaleIdxSymbol].(string)

	payload := events.WhaleTradePayload{
		TokenId:           events.TokenId(toToken),
		WhaleAddress:      whaleAddress,
		Signature:         signature,
		FromToken:         fromToken,
		ToToken:           toToken,
		TransactionAmount: amount,
		Side:              side,
		TokenName:         tokenName,
		Symbol:            symbol,
	}
	return n.wrap(msg.Feed, events.KindWhaleTrade, payload.TokenId, payload, wallTs)
}

// normalizeCluster routes by the already-extracted room/topic. Only
// PriceTick enters the main pipeline; the rest are left for the caller to
// forward to a side channel (spec §4.2).
func (n *Normalizer) normalizeCluster(msg *scf.Message) Result {
	switch msg.Topic {
	case "sol-priority-fee", "jito-bribe-fee", "block_hash", "twitter_feed_v2", "connection_monitor", "trending-search-crypto":
		return n.reject(msg.Feed, "side_channel_only")
	default:
		return n.normalizePriceTracker(msg)
	}
}

func (n *Normalizer) normalizePriceTracker(msg *scf.Message) Result {
	tokenId, ok := stringField(msg.Data, "tokenId")
	if !ok || tokenId == "" {
		return n.reject(msg.Feed, "missing_token_id")
	}
	price, ok := numberField(msg.Data, "price")
	if !ok || !validNonNegative(price) {
		return n.reject(msg.Feed, "invalid_price")
	}
	wallTs, _ := numberField(msg.Data, "wallTs")
	if wallTs == 0 {
		wallTs = float64(msg.WallTs)
	}

	payload := events.PriceTickPayload{
		TokenId: events.TokenId(tokenId),
		Price:   price,
		WallTs:  int64(wallTs),
	}
	return n.wrap(events.FeedPriceTracker, events.KindPriceTick, payload.TokenId, payload, int64(wallTs))
}

func validNonNegative(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= 0
}

// ClampPercent clamps a percent-type field to [0,100] (spec §4.2), returning
// the clamped value and whether clamping was necessary (a warning counter
// bump at the call site).
func (n *Normalizer) ClampPercent(v float64) (float64, bool) {
	if v < 0 {
		n.percentWarn++
		return 0, true
	}
	if v > 100 {
		n.percentWarn++
		return 100, true
	}
	return v, false
}

func stringField(data map[string]any, key string) (string, bool) {
	v, ok := data[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func numberField(data map[string]any, key string) (float64, bool) {
	v, ok := data[key]
	if !ok {
		return 0, false
	}
	f, ok := asFloat64(v)
	return f, ok
}

func asFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	f, ok := asFloat64(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// RejectSummary renders current reject counters for stats snapshots.
func (n *Normalizer) RejectSummary() map[string]uint64 {
	out := make(map[string]uint64, len(n.rejectCounts))
	for k, v := range n.rejectCounts {
		out[k] = v
	}
	return out
}

// Package events defines the wire-level domain types shared by every stage
// of the pipeline: Feeds -> SCF -> Normalizer -> Analyzer -> Risk Manager ->
// Paper Executor -> Outcome Ledger.
package events

import "time"

// FeedKind identifies one of the four logical upstream subscriptions.
type FeedKind string

const (
	FeedNewPair      FeedKind = "new_pair"
	FeedWhale        FeedKind = "whale"
	FeedCluster      FeedKind = "cluster"
	FeedPriceTracker FeedKind = "price_tracker"
)

// EventKind identifies the typed domain event carried by an Event envelope.
type EventKind string

const (
	KindNewPair         EventKind = "NewPair"
	KindWhaleTrade      EventKind = "WhaleTrade"
	KindPriceTick       EventKind = "PriceTick"
	KindHeartbeat       EventKind = "Heartbeat"
	KindConnectionState EventKind = "ConnectionState"
)

// Recommendation is the Analyzer's verdict for an Opportunity.
type Recommendation string

const (
	StrongBuy Recommendation = "StrongBuy"
	Buy       Recommendation = "Buy"
	Watch     Recommendation = "Watch"
	Risky     Recommendation = "Risky"
	Avoid     Recommendation = "Avoid"
	Hold      Recommendation = "Hold"
)

// RiskLevel is a coarse portfolio/token risk bucket.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// ExitReason identifies why a Position was closed.
type ExitReason string

const (
	ExitTakeProfit   ExitReason = "TakeProfit"
	ExitStopLoss     ExitReason = "StopLoss"
	ExitTimeLimit    ExitReason = "TimeLimit"
	ExitDeterioration ExitReason = "Deterioration"
	ExitManualClose  ExitReason = "ManualClose"
	ExitRiskForced   ExitReason = "RiskForced"
)

// PositionStatus tracks a Position's lifecycle stage.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "Open"
	PositionClosing PositionStatus = "Closing"
	PositionClosed  PositionStatus = "Closed"
)

// Side is always "buy" in v1 (spec §3 TradeIntent.side=Buy) but carried as a
// string so WhaleTrade.Side and TradeIntent.Side share one representation.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TokenId is the opaque, case-sensitive, never-empty stable token identifier.
type TokenId string

// SecuritySnapshot is the narrow subset of a third-party security provider's
// fields the core consumes (spec §1 Non-goals: provider semantics beyond this
// subset are out of scope).
type SecuritySnapshot struct {
	MintAuthorityPresent        bool
	FreezeAuthorityPresent      bool
	LPBurnedPercent             float64
	TopHolderConcentrationPercent float64
	RugPullSuspected             bool
	Honeypot                     bool
	Verified                     bool
	FetchedAt                    time.Time
}

// HasHardFlag reports whether any hard security flag is set (spec §4.3:
// "If any hard security flag ... -> Avoid regardless of score").
func (s SecuritySnapshot) HasHardFlag() bool {
	return s.FreezeAuthorityPresent || s.RugPullSuspected || s.Honeypot
}

// MarketSnapshot is the narrow market-data subset the Analyzer consumes.
type MarketSnapshot struct {
	Price     float64
	Liquidity float64
	MarketCap float64
	Volume24h float64
	FetchedAt time.Time
}

// HoldersSnapshot is the narrow holder-distribution subset the Analyzer
// and Risk Manager consume.
type HoldersSnapshot struct {
	HolderCount          int
	DevHoldingsPct        float64
	Top10HoldingsPct      float64
	BundlerPct            float64
	FetchedAt             time.Time
}

// TokenRecord is the Token Cache's compact per-token record (spec §3).
// Invariants: LastPriceTs is monotonic non-decreasing; percent fields are
// clamped to [0,100] by whoever writes them.
type TokenRecord struct {
	TokenId     TokenId
	Symbol      string
	FirstSeenTs int64

	LastPriceTs int64
	LastPrice   float64

	Liquidity float64
	MarketCap float64

	Security SecuritySnapshot
	Market   MarketSnapshot
	Holders  HoldersSnapshot

	RugPull  bool
	Honeypot bool
	Verified bool

	// OpenPositionId is non-empty while a simulated position is open for
	// this token. The Token Cache's TTL sweep never evicts such a record, and
	// its LRU eviction only does so when every record in the shard has an
	// open position (spec §4.6).
	OpenPositionId string
}

// Event is the typed envelope every Normalizer output is carried in.
// Invariant: Seq strictly increases per Normalizer instance; (Feed, TokenId,
// Kind, WallTs) is unique modulo the SCF dedup window.
type Event struct {
	Seq     uint64
	WallTs  int64 // wall-clock milliseconds
	MonoTs  int64 // monotonic milliseconds since process start
	Feed    FeedKind
	Kind    EventKind
	TokenId TokenId
	Payload any
}

// NewPairPayload is the Event.Payload for KindNewPair.
type NewPairPayload struct {
	TokenId   TokenId
	Symbol    string
	Liquidity float64
	MarketCap float64
}

// WhaleTradePayload is the Event.Payload for KindWhaleTrade, populated per
// the positional-tuple mapping in spec §4.2.
type WhaleTradePayload struct {
	TokenId           TokenId
	WhaleAddress      string
	Signature         string
	FromToken         string
	ToToken           string
	TransactionAmount float64
	Side              Side
	TokenName         string
	Symbol            string
}

// PriceTickPayload is the Event.Payload for KindPriceTick.
type PriceTickPayload struct {
	TokenId TokenId
	Price   float64
	WallTs  int64
}

// HeartbeatPayload is the Event.Payload for KindHeartbeat.
type HeartbeatPayload struct {
	Feed FeedKind
}

// ConnectionPhase is the SCF per-connection state machine position.
type ConnectionPhase string

const (
	PhaseIdle       ConnectionPhase = "Idle"
	PhaseConnecting ConnectionPhase = "Connecting"
	PhaseOpen       ConnectionPhase = "Open"
	PhaseDegraded   ConnectionPhase = "Degraded"
	PhaseClosing    ConnectionPhase = "Closing"
	PhaseClosed     ConnectionPhase = "Closed"
)

// ConnectionStateKind distinguishes terminal/fatal transitions from routine
// ones on a ConnectionState event.
type ConnectionStateKind string

const (
	ConnKindTransition ConnectionStateKind = "Transition"
	ConnKindFatal       ConnectionStateKind = "Fatal"
	ConnKindAuthStalled ConnectionStateKind = "AuthStalled"
)

// ConnectionStatePayload is the Event.Payload for KindConnectionState.
type ConnectionStatePayload struct {
	URL   string
	Phase ConnectionPhase
	Kind  ConnectionStateKind
	Err   string
}

// Scores holds every sub-score plus the composite (spec §4.3).
type Scores struct {
	Technical   float64
	Fundamental float64
	Security    float64
	Market      float64
	Neural      *float64
	Social      *float64
	Whale       *float64
	Composite   float64
}

// Opportunity is the Analyzer's scored candidate (spec §3). Invariants:
// Composite in [0,100], Confidence in [0,1], Recommendation consistent with
// Composite per the §4.3 thresholds.
type Opportunity struct {
	TokenId        TokenId
	Symbol         string
	Scores         Scores
	Confidence     float64
	Recommendation Recommendation
	Reasons        []string
	AnalysisMs     int64
	ProducedAt     time.Time
	MarketPrice    float64 // Opportunity.marketSnapshot.price, used by executor entry fallback
}

// TradeIntent is emitted by the Risk Manager for an approved Opportunity
// (spec §3, §6). Invariant: NotionalQuote > 0 and <= configured per-trade cap.
type TradeIntent struct {
	TokenId        TokenId
	Side           Side
	NotionalQuote  float64
	MaxSlippageBps int
	ReasonTag      string
	OpportunityRef OpportunityRef
	CreatedAt      time.Time
}

// OpportunityRef is the trimmed Opportunity reference embedded in a
// TradeIntent and in a RejectedTrade.
type OpportunityRef struct {
	Composite      float64
	Confidence     float64
	Recommendation Recommendation
}

// RejectedTrade is emitted by the Risk Manager when an Opportunity fails
// gating (spec §4.4).
type RejectedTrade struct {
	TokenId        TokenId
	OpportunityRef OpportunityRef
	Reasons        []string
	CreatedAt      time.Time
}

// Position is owned exclusively by the Paper Executor (spec §3). Invariants:
// while Open, StopPrice < EntryPrice < TakeProfitPrice; exactly one terminal
// transition to Closed.
type Position struct {
	Id                 string
	TokenId            TokenId
	Symbol             string
	EntryPrice         float64
	EntryQuote         float64
	OpenedAt           time.Time
	Status             PositionStatus
	CurrentPrice       float64
	UnrealizedPnLQuote float64
	ReturnPct          float64
	StopPrice          float64
	TakeProfitPrice    float64
	MaxHoldDeadline    time.Time
}

// ClosedTrade is owned by the Outcome Ledger (spec §3).
type ClosedTrade struct {
	PositionId       string
	TokenId          TokenId
	EntryPrice       float64
	ExitPrice        float64
	OpenedAt         time.Time
	ClosedAt         time.Time
	DurationMs       int64
	RealizedPnLQuote float64
	ReturnPct        float64
	ExitReason       ExitReason
}

// DropNotice describes a message dropped by back-pressure (spec §4.1, §5).
// The SCF does not emit it: drops are only counted per transport
// (Handle.DropCount).
type DropNotice struct {
	Feed   FeedKind
	Reason string
}

// RejectReason is the structured reason a Normalizer attaches to a malformed
// payload it discards (spec §4.2).
type RejectReason struct {
	Feed   FeedKind
	Reason string
}

package analyzer

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/yohannesjx/sentinel/internal/events"
)

// SecurityProvider fetches a fresh SecuritySnapshot for a token. Adapters for
// concrete third-party security scanners implement this; it is a capability,
// not a hard dependency (spec §9: "missing providers degrade the score
// rather than crash").
type SecurityProvider interface {
	FetchSecurity(ctx context.Context, id events.TokenId) (events.SecuritySnapshot, error)
}

// MarketProvider fetches a fresh MarketSnapshot for a token.
type MarketProvider interface {
	FetchMarket(ctx context.Context, id events.TokenId) (events.MarketSnapshot, error)
}

// HoldersProvider fetches a fresh HoldersSnapshot for a token.
type HoldersProvider interface {
	FetchHolders(ctx context.Context, id events.TokenId) (events.HoldersSnapshot, error)
}

// NeuralProvider fetches an optional model-derived sub-score in [0,100].
// The spec treats model training as out of scope; the Analyzer only
// consumes a stable score through this interface (spec §1).
type NeuralProvider interface {
	FetchNeuralScore(ctx context.Context, id events.TokenId) (float64, error)
}

// SocialProvider fetches an optional social/momentum sub-score in [0,100],
// fed by the Cluster feed's TwitterFeed side channel (spec §4.3A) when a
// concrete adapter is wired; otherwise omitted.
type SocialProvider interface {
	FetchSocialScore(ctx context.Context, id events.TokenId) (float64, error)
}

// Providers is the capability set the Analyzer draws on for external
// snapshots (spec §9 "capability set with a uniform fetch interface and
// per-provider adapters"). Any field may be nil; a nil provider always
// degrades its sub-score to the neutral-50/missing reason path rather than
// failing the job.
type Providers struct {
	Security SecurityProvider
	Market   MarketProvider
	Holders  HoldersProvider
	Neural   NeuralProvider
	Social   SocialProvider
}

// Limiters holds the process-wide per-provider token buckets the Fetching
// policy acquires from with a timeout (spec §4.3, §5 "Rate limiter is a
// process-wide token bucket per provider"). A nil limiter means unlimited.
type Limiters struct {
	Security *rate.Limiter
	Market   *rate.Limiter
	Holders  *rate.Limiter
}

// DefaultLimiters returns permissive per-provider limiters: 5 req/s with a
// burst of 5, generously above anything a single analyzer worker pool of 4
// would need in steady state.
func DefaultLimiters() Limiters {
	return Limiters{
		Security: rate.NewLimiter(rate.Limit(5), 5),
		Market:   rate.NewLimiter(rate.Limit(5), 5),
		Holders:  rate.NewLimiter(rate.Limit(5), 5),
	}
}

// acquire tries to reserve one token from lim without blocking past the
// fetch deadline already present on ctx. A nil limiter is unlimited and
// always returns true. When the limiter cannot grant a token before ctx's
// deadline, it returns false and fetchStale treats the fetch as rate-limited
// (cached values are kept and reason=degraded_inputs is set).
func acquire(ctx context.Context, lim *rate.Limiter) bool {
	if lim == nil {
		return true
	}
	return lim.Wait(ctx) == nil
}

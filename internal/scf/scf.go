// Package scf implements the Shared Connection Fabric (spec §4.1): one
// multiplexed, reference-counted transport per (remote URL, feed), shared
// across logical subscribers, with reconnect-with-backoff, heartbeats, ordering,
// deduplication, and back-pressure.
package scf

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/yohannesjx/sentinel/internal/clockid"
	"github.com/yohannesjx/sentinel/internal/events"
)

// Credentials is what an AuthProvider hands back: headers/cookies to attach
// to the next dial, plus an expiry hint.
type Credentials struct {
	Header    http.Header
	ExpiresAt time.Time
}

// AuthProvider supplies rotating credentials for a feed (spec §4.1, §6).
type AuthProvider interface {
	CurrentAccess() (Credentials, error)
	Refresh() (Credentials, error)
}

// noAuth is used when a feed requires no credentials.
type noAuth struct{}

func (noAuth) CurrentAccess() (Credentials, error) { return Credentials{}, nil }
func (noAuth) Refresh() (Credentials, error)        { return Credentials{}, nil }

// Options configures a Subscribe call (spec §4.1).
type Options struct {
	HeartbeatInterval time.Duration
	MaxQueued         int
	DedupWindow       time.Duration
	DedupMaxEntries   int
	// StableFields extracts the fields used to build the dedup content key
	// for a decoded message on the given topic. If nil, the entire decoded
	// payload (deterministically re-marshaled) is used.
	StableFields func(topic string, payload map[string]any) []string
}

// DefaultOptions returns the spec's §4.1 defaults.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 30 * time.Second,
		MaxQueued:         1024,
		DedupWindow:       30 * time.Second,
		DedupMaxEntries:   10_000,
	}
}

// Message is a decoded, fanned-out payload delivered to subscribers. SCF
// does not interpret payloads beyond JSON parsing and the fields needed for
// dedup (spec §4.1); the Normalizer is responsible for everything else.
type Message struct {
	Feed   events.FeedKind
	Topic  string
	WallTs int64
	Seq    uint64
	Data   map[string]any
}

// transportKey identifies one shared connection. Subscriptions with the
// same (URL, FeedKind) multiplex the same transport; a URL subscribed under
// two different FeedKinds (e.g. a provider that exposes both a room-based
// feed and a raw tuple feed at the same endpoint) gets one transport per
// feed instead of silently inheriting whichever feed subscribed first
// (spec §4.1, §6: "four logical feeds identified by URL" are tagged by
// feed, not merely by URL).
type transportKey struct {
	url  string
	feed events.FeedKind
}

// SCF is the Shared Connection Fabric.
type SCF struct {
	mu         sync.Mutex
	transports map[transportKey]*transport
	dialer     Dialer
	clock      *clockid.Clock
}

// New constructs an SCF using dialer for outbound connections.
func New(dialer Dialer, clock *clockid.Clock) *SCF {
	return &SCF{
		transports: make(map[transportKey]*transport),
		dialer:     dialer,
		clock:      clock,
	}
}

// Handle is a subscriber's view onto a shared transport.
type Handle struct {
	id      string
	feed    events.FeedKind
	topics  map[string]bool
	queue   *boundedQueue
	t       *transport
	seq     uint64
	seqMu   sync.Mutex
}

func (h *Handle) nextSeq() uint64 {
	h.seqMu.Lock()
	defer h.seqMu.Unlock()
	h.seq++
	return h.seq
}

// Subscribe opens (or joins an existing) transport for url and returns a
// Handle scoped to topics. Subscriptions with identical (url, feed) share
// one underlying connection; topics only filter the local fan-out, and the
// same URL subscribed under two feeds gets two connections.
func (s *SCF) Subscribe(url string, feed events.FeedKind, topics []string, auth AuthProvider, opts Options) (*Handle, error) {
	if auth == nil {
		auth = noAuth{}
	}
	if opts.HeartbeatInterval == 0 {
		d := DefaultOptions()
		opts.HeartbeatInterval = d.HeartbeatInterval
	}
	if opts.MaxQueued == 0 {
		opts.MaxQueued = DefaultOptions().MaxQueued
	}
	if opts.DedupWindow == 0 {
		opts.DedupWindow = DefaultOptions().DedupWindow
	}
	if opts.DedupMaxEntries == 0 {
		opts.DedupMaxEntries = DefaultOptions().DedupMaxEntries
	}

	key := transportKey{url: url, feed: feed}
	s.mu.Lock()
	t, ok := s.transports[key]
	if !ok {
		t = newTransport(url, feed, s.dialer, auth, opts, s.clock)
		s.transports[key] = t
		go t.run()
	}
	s.mu.Unlock()

	topicSet := make(map[string]bool, len(topics))
	for _, tp := range topics {
		topicSet[tp] = true
	}

	h := &Handle{
		id:     clockid.NewId(),
		feed:   feed,
		topics: topicSet,
		queue: newBoundedQueue(opts.MaxQueued, func() {
			t.recordDrop()
		}),
		t: t,
	}

	t.addSubscriber(h)
	return h, nil
}

// Next blocks for the next delivery on this handle: either a *Message or an
// *events.ConnectionStatePayload, until ctx is done or the handle is closed.
func (h *Handle) Next(ctx context.Context) (any, bool) {
	return h.queue.Next(ctx)
}

// Close releases this subscriber; the underlying transport is torn down
// once its refcount reaches zero (spec §4.1).
func (h *Handle) Close() {
	h.t.removeSubscriber(h)
	h.queue.Close()
}

// DropCount returns how many times this transport has invoked the
// back-pressure drop-oldest path since it started.
func (h *Handle) DropCount() uint64 {
	return h.t.drops.Load()
}

// dedupKeyFor builds the content-addressed key for a decoded message
// (spec §4.1: "(feed, topic, stableFields)").
func dedupKeyFor(feed events.FeedKind, topic string, payload map[string]any, stableFn func(string, map[string]any) []string) string {
	var fields []string
	if stableFn != nil {
		fields = stableFn(topic, payload)
	} else {
		b, _ := json.Marshal(sortedPayload(payload))
		fields = []string{string(b)}
	}
	return clockid.DigestKey(string(feed), topic, fields...)
}

// sortedPayload returns payload re-keyed through a deterministic encoding
// path; encoding/json already sorts map keys on marshal, so this is a
// passthrough kept as a named step for readability at the call site.
func sortedPayload(payload map[string]any) map[string]any { return payload }

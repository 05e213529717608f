package scf

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yohannesjx/sentinel/internal/clockid"
	"github.com/yohannesjx/sentinel/internal/events"
)

const maxDialAttemptsBeforeFatal = 0 // 0 = unbounded: dial failures never end in Fatal.

// transport owns one underlying connection to url, fanned out to every
// subscribed Handle. It implements the per-connection state machine:
// Idle -> Connecting -> Open -> (Degraded | Open) -> Closing -> Closed
// (spec §4.1).
type transport struct {
	url   string
	feed  events.FeedKind
	dialer Dialer
	auth   AuthProvider
	opts   Options
	clock  *clockid.Clock

	policy *ReconnectPolicy
	dedup  *dedupCache

	mu          sync.Mutex
	subscribers map[string]*Handle
	phase       events.ConnectionPhase
	authFails   []time.Time
	authStalled bool

	cancel context.CancelFunc
	ctx    context.Context

	lastTraffic atomic.Int64 // unix millis
	openedAt    atomic.Int64 // unix millis

	drops atomic.Uint64
}

func newTransport(url string, feed events.FeedKind, dialer Dialer, auth AuthProvider, opts Options, clock *clockid.Clock) *transport {
	ctx, cancel := context.WithCancel(context.Background())
	return &transport{
		url:         url,
		feed:        feed,
		dialer:      dialer,
		auth:        auth,
		opts:        opts,
		clock:       clock,
		policy:      NewReconnectPolicy(),
		dedup:       newDedupCache(opts.DedupWindow, opts.DedupMaxEntries),
		subscribers: make(map[string]*Handle),
		phase:       events.PhaseIdle,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (t *transport) addSubscriber(h *Handle) {
	t.mu.Lock()
	t.subscribers[h.id] = h
	t.mu.Unlock()
}

// removeSubscriber drops h; when the last subscriber leaves, the underlying
// connection is torn down (spec §4.1 "close(handle) releases a subscriber;
// underlying transport is torn down when refcount hits zero").
func (t *transport) removeSubscriber(h *Handle) {
	t.mu.Lock()
	delete(t.subscribers, h.id)
	empty := len(t.subscribers) == 0
	t.mu.Unlock()
	if empty {
		t.cancel()
	}
}

func (t *transport) recordDrop() { t.drops.Add(1) }

// broadcastState fans a ConnectionState delivery out to every subscriber,
// whatever its topic set (state applies transport-wide). ConnectionState
// is always critical: it bypasses back-pressure entirely (spec §4.1, §5).
func (t *transport) broadcastState(kind events.ConnectionStateKind, errMsg string) {
	t.mu.Lock()
	t.phase = phaseFor(kind, t.phase)
	payload := &events.ConnectionStatePayload{
		URL:   t.url,
		Phase: t.phase,
		Kind:  kind,
		Err:   errMsg,
	}
	subs := make([]*Handle, 0, len(t.subscribers))
	for _, h := range t.subscribers {
		subs = append(subs, h)
	}
	t.mu.Unlock()

	for _, h := range subs {
		h.queue.Push(payload, true)
	}
}

func phaseFor(kind events.ConnectionStateKind, current events.ConnectionPhase) events.ConnectionPhase {
	switch kind {
	case events.ConnKindFatal:
		return events.PhaseClosed
	case events.ConnKindAuthStalled:
		return events.PhaseClosed
	default:
		return current
	}
}

func (t *transport) setPhase(p events.ConnectionPhase) {
	t.mu.Lock()
	t.phase = p
	t.mu.Unlock()
}

// run is the dial-reconnect-heartbeat loop for this transport's lifetime.
// Structurally this generalizes each per-exchange websocket loop in
// yohannesjx-sniperterminal/main.go (e.g. BinanceFutures' dial-with-retry
// goroutine) into one feed-agnostic loop shared across subscribers.
func (t *transport) run() {
	defer t.setPhase(events.PhaseClosed)

	dialAttempts := 0
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		if t.isAuthStalled() {
			<-t.ctx.Done()
			return
		}

		t.setPhase(events.PhaseConnecting)
		t.broadcastState(events.ConnKindTransition, "")

		creds, err := t.auth.CurrentAccess()
		if err != nil {
			log.Printf("⚠️ SCF: auth CurrentAccess failed for %s: %v", t.url, err)
		}

		conn, err := t.dialer.Dial(t.url, creds.Header)
		if err != nil {
			dialAttempts++
			log.Printf("⚠️ SCF: dial failed for %s (attempt %d): %v", t.url, dialAttempts, err)
			if maxDialAttemptsBeforeFatal > 0 && dialAttempts >= maxDialAttemptsBeforeFatal {
				t.broadcastState(events.ConnKindFatal, "max dial attempts exceeded")
				return
			}
			t.sleepBackoff()
			continue
		}

		dialAttempts = 0
		t.openedAt.Store(time.Now().UnixMilli())
		t.lastTraffic.Store(time.Now().UnixMilli())
		t.setPhase(events.PhaseOpen)
		t.broadcastState(events.ConnKindTransition, "")

		conn.SetReadLimit(1 << 20)
		_ = conn.SetReadDeadline(time.Now().Add(2 * t.opts.HeartbeatInterval))
		conn.SetPongHandler(func(string) error {
			t.lastTraffic.Store(time.Now().UnixMilli())
			return conn.SetReadDeadline(time.Now().Add(2 * t.opts.HeartbeatInterval))
		})

		sessionCtx, sessionCancel := context.WithCancel(t.ctx)
		go t.heartbeatLoop(sessionCtx, conn)
		go t.watchdogLoop(sessionCtx, conn)

		authExpired := t.readLoop(conn)
		sessionCancel()
		_ = conn.Close()

		uptime := time.Duration(time.Now().UnixMilli()-t.openedAt.Load()) * time.Millisecond
		t.policy.NoteHealthyUptime(uptime)

		if authExpired {
			if t.noteAuthFailure() {
				t.setPhase(events.PhaseClosed)
				t.broadcastState(events.ConnKindAuthStalled, "auth failed more than 3 times within 60s")
				return
			}
			if _, err := t.auth.Refresh(); err != nil {
				log.Printf("⚠️ SCF: auth refresh failed for %s: %v", t.url, err)
			}
		}

		select {
		case <-t.ctx.Done():
			return
		default:
		}
		t.sleepBackoff()
	}
}

func (t *transport) sleepBackoff() {
	d := t.policy.Next()
	select {
	case <-time.After(d):
	case <-t.ctx.Done():
	}
}

// heartbeatLoop sends an application-level ping at the configured interval
// (spec §4.1 default 30s).
func (t *transport) heartbeatLoop(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(t.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

// watchdogLoop declares the connection Degraded once traffic is late by
// >=1 interval, and dead (closing it to force a reconnect) once late by
// >=2 intervals (spec §4.1).
func (t *transport) watchdogLoop(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(t.opts.HeartbeatInterval / 2)
	defer ticker.Stop()
	degraded := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := time.UnixMilli(t.lastTraffic.Load())
			elapsed := time.Since(last)
			switch {
			case elapsed >= 2*t.opts.HeartbeatInterval:
				_ = conn.Close()
				return
			case elapsed >= t.opts.HeartbeatInterval:
				if !degraded {
					degraded = true
					t.setPhase(events.PhaseDegraded)
					t.broadcastState(events.ConnKindTransition, "")
				}
			default:
				if degraded {
					degraded = false
					t.setPhase(events.PhaseOpen)
					t.broadcastState(events.ConnKindTransition, "")
				}
			}
		}
	}
}

// readLoop reads and fans out messages until the connection errors or is
// closed. Returns true if the error looks auth-related.
func (t *transport) readLoop(conn Conn) (authExpired bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err == ErrAuthExpired
		}
		t.lastTraffic.Store(time.Now().UnixMilli())
		_ = conn.SetReadDeadline(time.Now().Add(2 * t.opts.HeartbeatInterval))

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			continue // malformed JSON: not SCF's concern beyond dropping (Normalizer reasons are for typed payloads)
		}

		topic := topicOf(t.feed, decoded)
		now := time.Now()
		key := dedupKeyFor(t.feed, topic, decoded, t.opts.StableFields)
		if t.dedup.SeenBefore(key, now) {
			continue
		}

		msg := &Message{
			Feed:   t.feed,
			Topic:  topic,
			WallTs: now.UnixMilli(),
			Data:   decoded,
		}
		t.fanout(topic, msg)
	}
}

// topicOf extracts the logical topic for a decoded message: the cluster
// feed's "room" field (spec §4.2, §6), or the feed name itself for feeds
// with a single implicit topic.
func topicOf(feed events.FeedKind, decoded map[string]any) string {
	if feed == events.FeedCluster {
		if room, ok := decoded["room"].(string); ok {
			return room
		}
	}
	return string(feed)
}

func (t *transport) fanout(topic string, msg *Message) {
	t.mu.Lock()
	var subs []*Handle
	for _, h := range t.subscribers {
		if len(h.topics) == 0 || h.topics[topic] {
			subs = append(subs, h)
		}
	}
	t.mu.Unlock()

	for _, h := range subs {
		m := *msg
		m.Seq = h.nextSeq()
		h.queue.Push(&m, false)
	}
}

func (t *transport) noteAuthFailure() (stalled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-60 * time.Second)
	fresh := t.authFails[:0]
	for _, f := range t.authFails {
		if f.After(cutoff) {
			fresh = append(fresh, f)
		}
	}
	fresh = append(fresh, now)
	t.authFails = fresh
	if len(t.authFails) > 3 {
		t.authStalled = true
	}
	return t.authStalled
}

func (t *transport) isAuthStalled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.authStalled
}

// ClearAuthStalled lets an operator recover a transport stuck in
// AuthStalled (spec §4.1 "further failures mark the handle as AuthStalled
// until an operator clears it"), restarting its dial loop in place so
// existing subscribers keep their Handle. url and feed together identify
// the transport, since one URL may carry more than one FeedKind (§4.1).
func (s *SCF) ClearAuthStalled(url string, feed events.FeedKind) {
	s.mu.Lock()
	t, ok := s.transports[transportKey{url: url, feed: feed}]
	s.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	t.authStalled = false
	t.authFails = nil
	ctx, cancel := context.WithCancel(context.Background())
	t.ctx = ctx
	t.cancel = cancel
	t.mu.Unlock()
	t.policy.Reset()

	go t.run()
}

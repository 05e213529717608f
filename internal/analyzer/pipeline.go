// Package analyzer implements the Analyzer Pipeline (spec §4.3): a bounded
// worker pool that turns NewPair/WhaleTrade events into scored Opportunity
// events, with per-token serialization, cooldown, and degraded-input
// handling.
package analyzer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yohannesjx/sentinel/internal/cache"
	"github.com/yohannesjx/sentinel/internal/clockid"
	"github.com/yohannesjx/sentinel/internal/events"
)

// Config tunes the pipeline; zero values are replaced by DefaultConfig.
type Config struct {
	Workers      int           // bounded pool size P, default 4
	QueueDepth   int           // global FIFO bound, default 4096
	JobTimeout   time.Duration // soft per-job deadline, default 15s
	MaxEventAge  time.Duration // fast-path discard age, default 60s
	Cooldown     time.Duration // per-token emission cooldown, default 5m
	CooldownBump float64       // composite delta that preempts cooldown, default 5
	SecurityTTL  time.Duration // default 1h
	MarketTTL    time.Duration // default 1m
	HoldersTTL   time.Duration // default 5m
	FetchTimeout time.Duration // per-fetch hard deadline, default 5s

	Weights  Weights
	Limiters Limiters
}

// DefaultConfig returns the spec §4.3/§5 defaults.
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		QueueDepth:   4096,
		JobTimeout:   15 * time.Second,
		MaxEventAge:  60 * time.Second,
		Cooldown:     5 * time.Minute,
		CooldownBump: 5,
		SecurityTTL:  time.Hour,
		MarketTTL:    time.Minute,
		HoldersTTL:   5 * time.Minute,
		FetchTimeout: 5 * time.Second,
		Weights:      DefaultWeights(),
		Limiters:     DefaultLimiters(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = d.QueueDepth
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	if c.MaxEventAge <= 0 {
		c.MaxEventAge = d.MaxEventAge
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.CooldownBump <= 0 {
		c.CooldownBump = d.CooldownBump
	}
	if c.SecurityTTL <= 0 {
		c.SecurityTTL = d.SecurityTTL
	}
	if c.MarketTTL <= 0 {
		c.MarketTTL = d.MarketTTL
	}
	if c.HoldersTTL <= 0 {
		c.HoldersTTL = d.HoldersTTL
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	return c
}

// tokenState tracks per-token scheduling: whether a job is currently
// in-flight and the single coalesced pending job waiting behind it
// (spec §4.3 "at most one in-flight per TokenId ... queued with a maximum
// of 1 pending per token ... drop-older").
type tokenState struct {
	running bool
	pending *events.Event
}

// emitRecord is the last Opportunity emitted for a token, used to gate the
// cooldown window (spec §4.3, §8).
type emitRecord struct {
	at        time.Time
	composite float64
}

// Pipeline is the bounded Analyzer worker pool.
type Pipeline struct {
	cfg       Config
	cache     *cache.Cache
	clock     *clockid.Clock
	providers Providers

	history *priceHistory
	whale   *whaleFlow

	queue *schedQueue
	out   chan events.Opportunity

	mu     sync.Mutex
	states map[events.TokenId]*tokenState
	emits  map[events.TokenId]emitRecord

	paused atomic.Bool

	timeouts   atomic.Uint64
	degraded   atomic.Uint64
	dropped    atomic.Uint64
	emitted    atomic.Uint64
	preempted  atomic.Uint64
	coalesced  atomic.Uint64
}

// New constructs a Pipeline. providers may have any field nil; missing
// providers degrade their sub-score (spec §9).
func New(c *cache.Cache, clock *clockid.Clock, providers Providers, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		cfg:       cfg,
		cache:     c,
		clock:     clock,
		providers: providers,
		history:   newPriceHistory(),
		whale:     newWhaleFlow(),
		queue:     newSchedQueue(cfg.QueueDepth),
		out:       make(chan events.Opportunity, cfg.QueueDepth),
		states:    make(map[events.TokenId]*tokenState),
		emits:     make(map[events.TokenId]emitRecord),
	}
}

// Opportunities returns the channel Opportunity events are published on.
func (p *Pipeline) Opportunities() <-chan events.Opportunity { return p.out }

// Pause stops new jobs from being scheduled (spec §4.7 PauseAnalyzer);
// jobs already in flight run to completion.
func (p *Pipeline) Pause() { p.paused.Store(true) }

// Resume re-enables scheduling (spec §4.7 ResumeAnalyzer).
func (p *Pipeline) Resume() { p.paused.Store(false) }

// RecordPriceTick feeds a PriceTick into the per-token history used by
// technicalScore; the whale-flow window is not touched. Callers wire this
// from the Normalizer's PriceTick stream.
func (p *Pipeline) RecordPriceTick(id events.TokenId, price float64) {
	p.history.record(id, price)
}

// RecordWhaleTrade feeds a WhaleTrade into the rolling buy/sell volume
// window used by whaleScore.
func (p *Pipeline) RecordWhaleTrade(id events.TokenId, amount float64, side events.Side, now time.Time) {
	p.whale.record(id, amount, side, now)
}

// Stats is a read-only snapshot surfaced to the Control Plane (spec §7).
type Stats struct {
	Timeouts  uint64
	Degraded  uint64
	Dropped   uint64
	Emitted   uint64
	Preempted uint64
	Coalesced uint64
	Paused    bool
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Timeouts:  p.timeouts.Load(),
		Degraded:  p.degraded.Load(),
		Dropped:   p.dropped.Load(),
		Emitted:   p.emitted.Load(),
		Preempted: p.preempted.Load(),
		Coalesced: p.coalesced.Load(),
		Paused:    p.paused.Load(),
	}
}

// Submit enqueues ev for analysis (spec §4.3 contract: eligible NewPair or
// WhaleTrade events enter the pipeline). Events older than MaxEventAge are
// fast-path discarded. Per-token coalescing is applied before the event
// ever reaches the global FIFO.
func (p *Pipeline) Submit(ev events.Event) {
	if p.paused.Load() {
		return
	}
	if ev.Kind != events.KindNewPair && ev.Kind != events.KindWhaleTrade {
		return
	}
	if age := time.Duration(p.clock.WallMs()-ev.WallTs) * time.Millisecond; age > p.cfg.MaxEventAge {
		p.dropped.Add(1)
		return
	}

	p.mu.Lock()
	st, ok := p.states[ev.TokenId]
	if !ok {
		st = &tokenState{}
		p.states[ev.TokenId] = st
	}
	if st.running {
		if st.pending != nil {
			p.coalesced.Add(1)
		}
		st.pending = &ev // last-write-wins, drop-older (spec §4.3)
		p.mu.Unlock()
		return
	}
	st.running = true
	p.mu.Unlock()

	if dropped := p.queue.Push(ev); dropped {
		p.dropped.Add(1)
	}
}

// advance is called by a worker after finishing ev's token: if a pending job
// coalesced in behind it, that job is dispatched next; otherwise the token
// goes idle.
func (p *Pipeline) advance(id events.TokenId) {
	p.mu.Lock()
	st := p.states[id]
	if st == nil {
		p.mu.Unlock()
		return
	}
	if st.pending != nil {
		next := *st.pending
		st.pending = nil
		p.mu.Unlock()
		if dropped := p.queue.Push(next); dropped {
			p.dropped.Add(1)
		}
		return
	}
	st.running = false
	p.mu.Unlock()
}

// Run starts the bounded worker pool and blocks until ctx is cancelled, per
// spec §5 shutdown semantics ("analyzer drains pending work up to 2s, then
// forcibly cancels").
func (p *Pipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(ctx)
		}()
	}
	<-ctx.Done()
	p.queue.Close()
	drain, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-drain.Done():
	}
}

func (p *Pipeline) workerLoop(ctx context.Context) {
	for {
		ev, ok := p.queue.Next(ctx)
		if !ok {
			return
		}
		p.process(ctx, ev)
		p.advance(ev.TokenId)
	}
}

// Package cache implements the Token Cache (spec §4.6): a bounded,
// TTL-and-LRU-evicted concurrent map from TokenId to TokenRecord, shared by
// the Analyzer, Risk Manager, and Paper Executor.
//
// The sharding-by-hash-with-per-shard-mutex technique generalizes the
// reference fleet's Analyzer.mapMutex (a single global mutex guarding
// priceMap/activeIcebergs/depthMap in yohannesjx-sniperterminal/main.go),
// and the periodic sweep generalizes its cleanup() 10-second ticker.
package cache

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"

	"github.com/yohannesjx/sentinel/internal/events"
)

const defaultShardCount = 32

// Cache is a sharded, TTL-and-LRU-bounded map of TokenId -> TokenRecord.
type Cache struct {
	shards    []*shard
	maxPerShard int
	mask        uint32
}

type entry struct {
	record   events.TokenRecord
	element  *list.Element // position within shard.lru
}

type shard struct {
	mu      sync.RWMutex
	records map[events.TokenId]*entry
	lru     *list.List // front = most recently used
	max     int
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithMaxEntries sets the total maximum number of records the cache holds
// across all shards (spec default: 10,000). It is distributed evenly across
// shards.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n < defaultShardCount {
			n = defaultShardCount
		}
		c.maxPerShard = n / defaultShardCount
	}
}

// New constructs a Cache with defaultShardCount shards and a default
// maxEntries of 10,000 (spec §4.6), overridable via WithMaxEntries.
func New(opts ...Option) *Cache {
	c := &Cache{
		shards:      make([]*shard, defaultShardCount),
		maxPerShard: 10_000 / defaultShardCount,
		mask:        uint32(defaultShardCount - 1),
	}
	for _, o := range opts {
		o(c)
	}
	for i := range c.shards {
		c.shards[i] = &shard{
			records: make(map[events.TokenId]*entry),
			lru:     list.New(),
			max:     c.maxPerShard,
		}
	}
	return c
}

func (c *Cache) shardFor(id events.TokenId) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return c.shards[h.Sum32()&c.mask]
}

// Get returns a copy of the TokenRecord for id, and whether it was present.
// Readers always get a snapshot copy; the cache's internal mutable state is
// never shared outside its own mutex (spec §4.6 "Readers may obtain a
// consistent snapshot").
func (c *Cache) Get(id events.TokenId) (events.TokenRecord, bool) {
	s := c.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[id]
	if !ok {
		return events.TokenRecord{}, false
	}
	return e.record, true
}

// GetOrCreate returns the existing record for id, or creates a minimal one
// with FirstSeenTs=nowMs if absent (spec §4.3 "Missing TokenRecord creates a
// minimal record on the fly").
func (c *Cache) GetOrCreate(id events.TokenId, nowMs int64) events.TokenRecord {
	s := c.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if ok {
		s.lru.MoveToFront(e.element)
		return e.record
	}
	rec := events.TokenRecord{TokenId: id, FirstSeenTs: nowMs}
	s.put(id, rec)
	return rec
}

// Update applies fn to a copy of the current record (or a fresh one keyed by
// FirstSeenTs=nowMs if absent) and stores the result. Per-key exclusion is
// provided by the shard mutex (spec §4.6 "writers acquire per-key
// exclusion").
func (c *Cache) Update(id events.TokenId, nowMs int64, fn func(*events.TokenRecord)) events.TokenRecord {
	s := c.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec events.TokenRecord
	if e, ok := s.records[id]; ok {
		rec = e.record
	} else {
		rec = events.TokenRecord{TokenId: id, FirstSeenTs: nowMs}
	}
	fn(&rec)
	s.put(id, rec)
	return rec
}

// put inserts or replaces rec, moving it to the front of the LRU list and
// evicting the least-recently-used eligible entry if the shard is over
// capacity. Eviction prefers records with no open position; among those it
// takes the least recently used, and LastPriceTs plays no part in the choice
// (records with a stale LastPriceTs are removed by SweepTTL instead). Caller
// must hold s.mu.
func (s *shard) put(id events.TokenId, rec events.TokenRecord) {
	if e, ok := s.records[id]; ok {
		e.record = rec
		s.lru.MoveToFront(e.element)
		return
	}
	e := &entry{record: rec}
	e.element = s.lru.PushFront(e)
	s.records[id] = e

	for len(s.records) > s.max {
		if !s.evictOne() {
			break
		}
	}
}

// evictOne removes one eligible entry, scanning from the back (least
// recently used) for the first record with no open position; if every
// record has an open position it evicts the least-recently-used one anyway
// to enforce the hard bound. Returns false if the shard is empty.
func (s *shard) evictOne() bool {
	for el := s.lru.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if e.record.OpenPositionId == "" {
			s.lru.Remove(el)
			delete(s.records, e.record.TokenId)
			return true
		}
	}
	if el := s.lru.Back(); el != nil {
		e := el.Value.(*entry)
		s.lru.Remove(el)
		delete(s.records, e.record.TokenId)
		return true
	}
	return false
}

// SweepTTL evicts records whose LastPriceTs is older than maxAge and which
// have no open position, matching the reference fleet's cleanup() ticker
// (yohannesjx-sniperterminal/main.go). Intended to be called periodically
// (e.g. every 10s) by the owning component.
func (c *Cache) SweepTTL(nowMs int64, maxAge time.Duration) int {
	cutoff := nowMs - maxAge.Milliseconds()
	evicted := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for el := s.lru.Back(); el != nil; {
			prev := el.Prev()
			e := el.Value.(*entry)
			if e.record.OpenPositionId == "" && e.record.LastPriceTs > 0 && e.record.LastPriceTs < cutoff {
				s.lru.Remove(el)
				delete(s.records, e.record.TokenId)
				evicted++
			}
			el = prev
		}
		s.mu.Unlock()
	}
	return evicted
}

// MarkOpenPosition records positionId as the open position on id's cached
// record (spec §4.6 "Evictions prefer records with no open position"),
// satisfying executor.PositionCache.
func (c *Cache) MarkOpenPosition(id events.TokenId, positionId string, nowMs int64) {
	c.Update(id, nowMs, func(r *events.TokenRecord) {
		r.OpenPositionId = positionId
	})
}

// ClearOpenPosition clears id's open-position marker, satisfying
// executor.PositionCache.
func (c *Cache) ClearOpenPosition(id events.TokenId, nowMs int64) {
	c.Update(id, nowMs, func(r *events.TokenRecord) {
		r.OpenPositionId = ""
	})
}

// Len returns the total number of records currently cached.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.records)
		s.mu.RUnlock()
	}
	return n
}

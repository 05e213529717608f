package scf

import (
	"container/list"
	"sync"
	"time"
)

// dedupCache suppresses duplicate messages within a configurable window
// (spec §4.1 default 30s), bounded by maxEntries (spec default 10,000) with
// LRU eviction once full. Grounded in the reference fleet's
// AppSignalDistributor.lastPushTime-style "have we seen this recently" maps,
// generalized into one reusable bounded LRU.
type dedupCache struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]*list.Element
	order   *list.List // front = most recently seen
}

type dedupEntry struct {
	key  string
	seen time.Time
}

func newDedupCache(window time.Duration, max int) *dedupCache {
	return &dedupCache{
		window:  window,
		max:     max,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// SeenBefore reports whether key was already recorded within the window as
// of now, and records/refreshes key regardless of the outcome.
func (d *dedupCache) SeenBefore(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.entries[key]; ok {
		e := el.Value.(*dedupEntry)
		d.order.MoveToFront(el)
		if now.Sub(e.seen) < d.window {
			e.seen = now
			return true
		}
		e.seen = now
		return false
	}

	e := &dedupEntry{key: key, seen: now}
	el := d.order.PushFront(e)
	d.entries[key] = el

	for len(d.entries) > d.max {
		back := d.order.Back()
		if back == nil {
			break
		}
		d.order.Remove(back)
		delete(d.entries, back.Value.(*dedupEntry).key)
	}
	return false
}

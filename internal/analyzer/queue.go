package analyzer

import (
	"context"
	"sync"

	"github.com/yohannesjx/sentinel/internal/events"
)

// schedQueue is the Analyzer's bounded global FIFO of analysis jobs waiting
// for a free worker slot (spec §4.3 "Global FIFO for cross-token
// scheduling", §5 "Analyzer queue depth is bounded; on overflow, NewPair
// events are preferred over WhaleTrade ... otherwise oldest-first").
//
// Modeled on scf's boundedQueue (same drop-oldest-on-overflow shape), with
// the eviction rule generalized from "never drop critical" to "prefer
// NewPair over WhaleTrade".
type schedQueue struct {
	mu     sync.Mutex
	buf    []events.Event
	max    int
	signal chan struct{}
	closed bool
}

func newSchedQueue(max int) *schedQueue {
	return &schedQueue{max: max, signal: make(chan struct{}, 1)}
}

// Push enqueues ev, evicting to make room if the queue is at capacity: a
// queued WhaleTrade is dropped first if ev is a NewPair, else the oldest
// entry is dropped. Returns true if a job was evicted to make room.
func (q *schedQueue) Push(ev events.Event) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if len(q.buf) >= q.max {
		victim := 0
		if ev.Kind == events.KindNewPair {
			for i, queued := range q.buf {
				if queued.Kind == events.KindWhaleTrade {
					victim = i
					break
				}
			}
		}
		q.buf = append(q.buf[:victim], q.buf[victim+1:]...)
		dropped = true
	}
	q.buf = append(q.buf, ev)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return dropped
}

// Next blocks until a job is available, the queue closes, or ctx ends.
func (q *schedQueue) Next(ctx context.Context) (events.Event, bool) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			ev := q.buf[0]
			q.buf = q.buf[1:]
			q.mu.Unlock()
			return ev, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return events.Event{}, false
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return events.Event{}, false
		}
	}
}

func (q *schedQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

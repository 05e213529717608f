package scf

import (
	"context"
	"sync"
)

// item wraps a queued delivery with whether it is critical (spec §4.1:
// "critical messages (ConnectionState, Heartbeat) are never dropped").
type item struct {
	critical bool
	value    any
}

// boundedQueue is the per-subscriber back-pressure queue (spec §4.1, §5):
// bounded by max non-critical entries; on overflow the OLDEST non-critical
// entry is evicted (not the newest) and onDrop is called (the SCF uses it to
// bump the transport's drop counter). No DropNotice event is queued.
//
// Modeled on the reference fleet's bounded-channel-with-oldest-drop
// technique (yohannesjx-sniperterminal/main.go uses a fixed-capacity
// `chan Trade` for the same purpose), generalized here into an explicit
// deque so the "drop oldest, not newest" rule can be implemented precisely
// — a plain Go channel can only ever drop the newest item on a full send.
type boundedQueue struct {
	mu     sync.Mutex
	buf    []item
	max    int
	signal chan struct{}
	closed bool
	onDrop func()
}

func newBoundedQueue(max int, onDrop func()) *boundedQueue {
	return &boundedQueue{
		max:    max,
		signal: make(chan struct{}, 1),
		onDrop: onDrop,
	}
}

func (q *boundedQueue) nonCriticalCount() int {
	n := 0
	for _, it := range q.buf {
		if !it.critical {
			n++
		}
	}
	return n
}

// Push enqueues value. Critical items bypass the bound entirely. Non-critical
// items, when the queue is at capacity, cause the oldest queued non-critical
// item to be dropped first.
func (q *boundedQueue) Push(value any, critical bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if !critical && q.nonCriticalCount() >= q.max {
		for i, it := range q.buf {
			if !it.critical {
				q.buf = append(q.buf[:i], q.buf[i+1:]...)
				if q.onDrop != nil {
					q.onDrop()
				}
				break
			}
		}
	}
	q.buf = append(q.buf, item{critical: critical, value: value})
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Next blocks until an item is available, the queue is closed, or ctx is
// done. ok is false only once the queue is closed and drained.
func (q *boundedQueue) Next(ctx context.Context) (value any, ok bool) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			v := q.buf[0].value
			q.buf = q.buf[1:]
			q.mu.Unlock()
			return v, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// Close marks the queue closed; any blocked Next wakes and returns ok=false
// once drained.
func (q *boundedQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/chaz8081/gostt-relay/internal/metrics"
)

// ErrQueueClosed is returned by Pop once the queue is closed and empty,
// and by Push after Close.
var ErrQueueClosed = errors.New("pipeline: queue closed")

// Queue is an unbounded FIFO of utterances with a single consumer. Push
// never blocks. The closed flag acts as the shutdown sentinel: it is
// delivered after all pending items and survives Purge.
type Queue struct {
	mu     sync.Mutex
	items  []Utterance
	closed bool
	notify chan struct{}

	state   *State
	metrics *metrics.Metrics
}

// NewQueue returns an empty queue. When state is non-nil, claiming an item
// clears its transcription-complete flag under the queue lock.
func NewQueue(state *State, m *metrics.Metrics) *Queue {
	return &Queue{
		notify:  make(chan struct{}, 1),
		state:   state,
		metrics: m,
	}
}

// Push appends u.
func (q *Queue) Push(u Utterance) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, u)
	n := len(q.items)
	q.mu.Unlock()

	q.metrics.QueueDepth(n)
	q.signal()
	return nil
}

// Pop removes the oldest item, blocking until one is available, the queue
// is closed and drained, or ctx ends.
func (q *Queue) Pop(ctx context.Context) (Utterance, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			u := q.items[0]
			q.items[0] = Utterance{}
			q.items = q.items[1:]
			n := len(q.items)
			if q.state != nil {
				q.state.setComplete(false)
			}
			q.mu.Unlock()
			q.metrics.QueueDepth(n)
			return u, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Utterance{}, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return Utterance{}, ctx.Err()
		}
	}
}

// Purge discards every pending item and returns how many were removed.
func (q *Queue) Purge() int {
	q.mu.Lock()
	n := len(q.items)
	q.items = nil
	q.mu.Unlock()

	q.metrics.QueueDepth(0)
	return n
}

// Drain removes and returns every pending item.
func (q *Queue) Drain() []Utterance {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	q.metrics.QueueDepth(0)
	return items
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty reports whether no items are pending.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Close marks the end of input. Pending items are still returned by Pop.
// Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

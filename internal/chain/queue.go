package chain

import (
	"sync"
)

// eventQueue is a thread-safe FIFO of holding updates.
//
// Deposits are made from inside a channel's critical section, so events
// must not be delivered on the depositing goroutine. The queue decouples
// the two: FundChannel enqueues and a dispatcher drains.
type eventQueue struct {
	mu     sync.Mutex
	events []HoldingUpdatedArg
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]HoldingUpdatedArg, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
func (q *eventQueue) Enqueue(e HoldingUpdatedArg) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, e)
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (HoldingUpdatedArg, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return HoldingUpdatedArg{}, false
	}
	e := q.events[0]
	q.events[0] = HoldingUpdatedArg{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that signals when events may be available.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

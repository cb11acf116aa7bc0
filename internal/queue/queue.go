// Package queue implements two independent FIFOs — user-input and
// notify — sharing the same push/pop/cancelWait contract.
//
// The concurrency style is channel-based cooperative scheduling: a
// mutex-guarded slice backlog per queue plus a single result channel the
// caller blocks on, created fresh per Pop call and torn down on delivery,
// which is what gives the queue its "at most one parked waiter" invariant.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mark3labs/dialogia/internal/dialogue"
)

// ErrAlreadyWaiting is returned by Pop when a second caller tries to park
// on a queue that already has a waiter. The loop never does this itself —
// it is a programming-error guard, not a runtime condition callers retry on.
var ErrAlreadyWaiting = errors.New("queue: a waiter is already parked")

// delivery is the envelope sent to a parked waiter: either an item or a
// cancellation error, never both.
type delivery struct {
	item dialogue.QueueItem
	err  error
}

// Queue is a single bounded-by-nothing FIFO with at most one parked pop.
type Queue struct {
	name string

	mu     sync.Mutex
	items  []dialogue.QueueItem
	waiter chan delivery
}

// New creates an empty queue identified by name (used only in error
// messages and logs).
func New(name string) *Queue {
	return &Queue{name: name}
}

// Push appends an item to the back of the queue. Non-blocking: if a waiter
// is parked it is woken immediately with the item; otherwise the item sits
// in the backlog until the next Pop.
func (q *Queue) Push(item dialogue.QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.waiter != nil {
		w := q.waiter
		q.waiter = nil
		w <- delivery{item: item}
		return
	}
	q.items = append(q.items, item)
}

// Pop returns the next item, blocking until one is pushed, ctx is
// cancelled, or CancelWait is called. Only one caller may be parked in Pop
// at a time; a second concurrent call returns ErrAlreadyWaiting immediately.
func (q *Queue) Pop(ctx context.Context) (dialogue.QueueItem, error) {
	q.mu.Lock()
	if len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return item, nil
	}
	if q.waiter != nil {
		q.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", q.name, ErrAlreadyWaiting)
	}
	ch := make(chan delivery, 1)
	q.waiter = ch
	q.mu.Unlock()

	select {
	case d := <-ch:
		return d.item, d.err
	case <-ctx.Done():
		// Best-effort: clear ourselves as waiter if we're still registered
		// (CancelWait may have raced us and already cleared it).
		q.mu.Lock()
		if q.waiter == ch {
			q.waiter = nil
		}
		q.mu.Unlock()
		return nil, ctx.Err()
	}
}

// CancelWait wakes the parked waiter, if any, with err, without consuming
// an item from the backlog. A no-op if no one is waiting.
func (q *Queue) CancelWait(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.waiter == nil {
		return
	}
	w := q.waiter
	q.waiter = nil
	w <- delivery{err: err}
}

// Len returns the number of backlogged items (does not count a parked pop).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// HasWaiter reports whether a caller is currently parked in Pop. The loop
// uses it to route pushed input to a parked sub-dialogue.
func (q *Queue) HasWaiter() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiter != nil
}

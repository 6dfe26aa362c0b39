package event

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrClosed = errors.New("event queue closed")
	ErrFull   = errors.New("event queue full")
)

// FullPolicy decides what Push does when a bounded queue is at capacity.
type FullPolicy int

const (
	Block  FullPolicy = iota // wait for the consumer to make room
	Reject                   // fail with ErrFull
)

// ParseFullPolicy maps the config spelling to a FullPolicy.
func ParseFullPolicy(s string) (FullPolicy, error) {
	switch s {
	case "", "block":
		return Block, nil
	case "reject":
		return Reject, nil
	}
	return Block, fmt.Errorf("unknown queue full policy %q", s)
}

func (p FullPolicy) String() string {
	if p == Reject {
		return "reject"
	}
	return "block"
}

// Queue is a FIFO of events with any number of producers and a single
// consumer. Capacity 0 means unbounded: Push never waits.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []Event
	capacity int
	policy   FullPolicy
	closed   bool
}

func NewQueue(capacity int, policy FullPolicy) *Queue {
	q := &Queue{
		items:    make([]Event, 0, 64),
		capacity: capacity,
		policy:   policy,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push appends ev to the tail of the queue.
func (q *Queue) Push(ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return ErrClosed
		}
		if q.capacity <= 0 || len(q.items) < q.capacity {
			break
		}
		if q.policy == Reject {
			return ErrFull
		}
		q.notFull.Wait()
	}
	q.items = append(q.items, ev)
	q.notEmpty.Signal()
	return nil
}

// PushOverflow appends ev even when a bounded queue is at capacity. The
// consumer uses it for events sent while it handles another one, since it
// cannot wait for room only it can make.
func (q *Queue) PushOverflow(ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, ev)
	q.notEmpty.Signal()
	return nil
}

// Pop removes the head of the queue, waiting while it is empty.
// It returns false once the queue has been closed.
func (q *Queue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.closed {
		return nil, false
	}
	ev := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = q.items[:0:0]
	}
	q.notFull.Signal()
	return ev, true
}

// Close rejects further pushes, wakes every waiter and returns the events
// that were still pending. Closing twice returns nil the second time.
func (q *Queue) Close() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	pending := q.items
	q.items = nil
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	return pending
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

package regorus

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultQueueCapacity bounds the number of pending Work items.
const DefaultQueueCapacity = 4096

// Sentinel errors for work queue operations.
var (
	// ErrResourceExhausted indicates the queue is full. The unit of work is
	// dropped; a stalled retry chain recovers on the next inbound frame or
	// probe request.
	ErrResourceExhausted = errors.New("work queue exhausted")

	// ErrEngineClosed indicates the engine no longer accepts work.
	ErrEngineClosed = errors.New("engine closed")
)

// -------------------------------------------------------------------------
// Work — deferred protocol work
// -------------------------------------------------------------------------

// WorkKind identifies a Work variant.
type WorkKind uint8

const (
	// WorkProbe runs a probe attempt for a card.
	WorkProbe WorkKind = 1

	// WorkProbeReceived handles a Ping received from a peer.
	WorkProbeReceived WorkKind = 2

	// WorkAckReceived handles a Pong received from a peer.
	WorkAckReceived WorkKind = 3
)

// String returns the metric-friendly name of the work kind.
func (k WorkKind) String() string {
	switch k {
	case WorkProbe:
		return "probe"
	case WorkProbeReceived:
		return "probe_received"
	case WorkAckReceived:
		return "ack_received"
	default:
		return fmt.Sprintf(unknownFmt, k)
	}
}

// Work is a unit of protocol work handed from a producer to the dispatcher.
// The producer acquires every resource the item points to before Enqueue.
// The dispatcher calls release exactly once after the handler returns,
// whatever the handler did.
//
//sumtype:decl
type Work interface {
	Kind() WorkKind
	release()
}

// ProbeWork asks the dispatcher to run a probe attempt for Card. It holds
// one card reference.
type ProbeWork struct {
	Card *Card
}

// Kind implements Work.
func (ProbeWork) Kind() WorkKind { return WorkProbe }

func (w ProbeWork) release() {
	if w.Card != nil {
		w.Card.release()
	}
}

// ProbeReceivedWork carries a Ping received on Iface. Header is an owned
// copy; the receive buffer is recycled before the item is handled.
type ProbeReceivedWork struct {
	Iface  Interface
	Header Header
}

// Kind implements Work.
func (ProbeReceivedWork) Kind() WorkKind { return WorkProbeReceived }

// Interface handles are reclaimed by the garbage collector once the item
// is dropped; nothing is counted for them.
func (ProbeReceivedWork) release() {}

// AckReceivedWork carries a Pong received on Iface.
type AckReceivedWork struct {
	Iface  Interface
	Header Header
}

// Kind implements Work.
func (AckReceivedWork) Kind() WorkKind { return WorkAckReceived }

func (AckReceivedWork) release() {}

// -------------------------------------------------------------------------
// WorkQueue — FIFO with a coalescing wake-up signal
// -------------------------------------------------------------------------

// WorkQueue is the single FIFO shared by all producers. Its mutex is
// separate from the registry lock so producers never wait on registry
// contention to enqueue.
//
// Every Enqueue performs a non-blocking send on a one-slot signal channel:
// any number of enqueues before the dispatcher wakes result in exactly one
// drain pass.
type WorkQueue struct {
	mu       sync.Mutex
	items    []Work
	capacity int
	closed   bool

	signal chan struct{}
}

// NewWorkQueue creates a queue holding at most capacity pending items.
// A non-positive capacity selects DefaultQueueCapacity.
func NewWorkQueue(capacity int) *WorkQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &WorkQueue{
		items:    make([]Work, 0, min(capacity, 64)),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue appends w to the tail and wakes the dispatcher. On error the
// caller still owns w's resources and must release them.
func (q *WorkQueue) Enqueue(w Work) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("enqueue %s: %w", w.Kind(), ErrEngineClosed)
	}
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		return fmt.Errorf("enqueue %s (%d pending): %w", w.Kind(), q.capacity, ErrResourceExhausted)
	}
	q.items = append(q.items, w)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
		// A wake-up is already pending; the next pass sees this item.
	}
	return nil
}

// Len returns the number of pending items.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// pop removes the head item. The lock is released before the caller
// processes it.
func (q *WorkQueue) pop() (Work, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	w := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return w, true
}

// close rejects further Enqueue calls and returns the items still pending
// so the caller can release them.
func (q *WorkQueue) close() []Work {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	pending := q.items
	q.items = nil
	return pending
}

// Package events implements the durable fill/out log that decouples matching
// from settlement. The matching engine pushes events; a separate
// consume-events operation drains them and applies maker-side ledger updates.
//
// The queue is a fixed-capacity ring buffer: when full, pushes fail and the
// producing operation must abort or throttle. A backlog can only delay
// settlement, never corrupt state.
package events

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianx/meridian/pkg/exchange/book"
)

// ErrQueueFull is returned by pushes onto a full queue. The queue's head and
// count are guaranteed untouched by a rejected push.
var ErrQueueFull = errors.New("events: queue full")

// Type tags an event record.
type Type uint8

const (
	// TypeFill credits a maker for a match.
	TypeFill Type = iota
	// TypeOut removes a resting order without a fill (expiry, peg
	// invalidation, self-trade cancel, prune).
	TypeOut
)

// Event carries enough data to update exactly one maker's position without
// re-reading the book. One flat record covers both kinds.
type Event struct {
	Type Type

	// Side is the taker side for fills and the removed order's side for
	// outs.
	Side      book.Side
	Owner     common.Address // maker / removed-order owner
	OwnerSlot uint8
	Timestamp int64
	SeqNum    uint64 // queue-assigned, monotonic

	// Quantity in base lots: the fill quantity or the removed remainder.
	Quantity int64

	// Fill only.
	PriceLots     int64 // execution price
	MakerOut      bool  // maker order fully finished by this fill
	MakerClientID uint64
	MakerTree     book.Tree
	TakerOwner    common.Address
	TakerClientID uint64

	// LockedPriceLots is the price basis the owner's funds were locked at
	// (peg limit for pegged orders). Needed to release the right amount on
	// both fills and outs.
	LockedPriceLots int64
}

// Queue is the bounded event ring buffer for one market.
type Queue struct {
	buf   []Event
	head  int    // index of the oldest event
	count int    // number of live events
	seq   uint64 // total events ever pushed
}

// NewQueue creates an empty queue with the given capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{buf: make([]Event, capacity)}
}

// Len returns the number of undelivered events.
func (q *Queue) Len() int { return q.count }

// Capacity returns the fixed buffer size.
func (q *Queue) Capacity() int { return len(q.buf) }

// SeqNum returns the number of events ever pushed.
func (q *Queue) SeqNum() uint64 { return q.seq }

// Head returns the index of the oldest live event. Exposed for the
// persistence boundary and for counter-integrity tests.
func (q *Queue) Head() int { return q.head }

// Push appends an event, assigning its sequence number. Fails with
// ErrQueueFull without modifying any counter.
func (q *Queue) Push(ev Event) error {
	if q.count == len(q.buf) {
		return ErrQueueFull
	}
	ev.SeqNum = q.seq
	q.buf[(q.head+q.count)%len(q.buf)] = ev
	q.count++
	q.seq++
	return nil
}

// Peek returns the oldest event without removing it.
func (q *Queue) Peek() (Event, bool) {
	if q.count == 0 {
		return Event{}, false
	}
	return q.buf[q.head], true
}

// Pop removes and returns the oldest event. A popped event is gone for good;
// repeated consumption calls can never double-apply it.
func (q *Queue) Pop() (Event, bool) {
	if q.count == 0 {
		return Event{}, false
	}
	ev := q.buf[q.head]
	q.buf[q.head] = Event{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return ev, true
}

// Events returns the live events oldest-first. Used by the persistence
// boundary; the returned slice is a copy.
func (q *Queue) Events() []Event {
	out := make([]Event, 0, q.count)
	for i := 0; i < q.count; i++ {
		out = append(out, q.buf[(q.head+i)%len(q.buf)])
	}
	return out
}

// Restore rebuilds a queue from a snapshot taken with Events plus the
// preserved push counter.
func Restore(capacity int, evs []Event, seq uint64) (*Queue, error) {
	if len(evs) > capacity {
		return nil, errors.New("events: snapshot exceeds capacity")
	}
	q := NewQueue(capacity)
	copy(q.buf, evs)
	q.count = len(evs)
	q.seq = seq
	return q, nil
}

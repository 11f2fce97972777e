package book

import (
	"errors"
	"fmt"

	"github.com/google/btree"
)

// ErrBookFull is returned when inserting into a side that already holds its
// configured maximum of resting orders. The policy is reject, not
// evict-worst; a full book throttles new makers rather than expelling old
// ones.
var ErrBookFull = errors.New("book: side is full")

// ErrOrderNotFound is returned by removals of unknown order ids.
var ErrOrderNotFound = errors.New("book: order not found")

const btreeDegree = 16

// BookSide holds all resting orders of one side, split across the fixed and
// pegged sub-trees. The capacity bound is shared by both trees.
//
// BookSide is not safe for concurrent use; the operation executing against a
// market owns its books exclusively.
type BookSide struct {
	side     Side
	capacity int
	fixed    *btree.BTreeG[*Order]
	pegged   *btree.BTreeG[*Order]
}

// NewBookSide creates an empty side with the given shared capacity.
func NewBookSide(side Side, capacity int) *BookSide {
	less := func(a, b *Order) bool {
		if a.ID.PriceData != b.ID.PriceData {
			if side == Bid {
				return a.ID.PriceData > b.ID.PriceData
			}
			return a.ID.PriceData < b.ID.PriceData
		}
		// Equal price: earlier sequence number wins.
		return a.ID.Seq < b.ID.Seq
	}
	return &BookSide{
		side:     side,
		capacity: capacity,
		fixed:    btree.NewG(btreeDegree, less),
		pegged:   btree.NewG(btreeDegree, less),
	}
}

// Side returns which side of the book this is.
func (b *BookSide) Side() Side { return b.side }

// Len returns the number of resting orders across both trees.
func (b *BookSide) Len() int { return b.fixed.Len() + b.pegged.Len() }

// Capacity returns the shared maximum number of resting orders.
func (b *BookSide) Capacity() int { return b.capacity }

// LenFixed returns the number of fixed-price resting orders.
func (b *BookSide) LenFixed() int { return b.fixed.Len() }

// LenPegged returns the number of oracle-pegged resting orders.
func (b *BookSide) LenPegged() int { return b.pegged.Len() }

// Insert adds a resting order. Fails with ErrBookFull at capacity.
func (b *BookSide) Insert(o *Order) error {
	if b.Len() >= b.capacity {
		return ErrBookFull
	}
	if o.Side != b.side {
		return fmt.Errorf("book: inserting %s order into %s side", o.Side, b.side)
	}
	t := b.tree(o.Tree)
	if _, found := t.Get(o); found {
		return fmt.Errorf("book: duplicate order id %d/%d", o.ID.PriceData, o.ID.Seq)
	}
	t.ReplaceOrInsert(o)
	return nil
}

// Remove deletes and returns the order with the given id from the given tree.
func (b *BookSide) Remove(id OrderID, tree Tree) (*Order, error) {
	probe := &Order{ID: id}
	o, found := b.tree(tree).Delete(probe)
	if !found {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// Get returns the resting order with the given id, if present.
func (b *BookSide) Get(id OrderID, tree Tree) (*Order, bool) {
	return b.tree(tree).Get(&Order{ID: id})
}

// BestFixed returns the top-priority fixed-price order, or nil when the
// fixed tree is empty. Pegged orders are not considered since their priority
// depends on the oracle; use Iter for the merged view.
func (b *BookSide) BestFixed() *Order {
	var best *Order
	b.fixed.Ascend(func(o *Order) bool {
		best = o
		return false
	})
	return best
}

// Orders returns all resting orders, fixed tree first, in key order. Used by
// the persistence boundary and by read-only book inspection.
func (b *BookSide) Orders() []*Order {
	out := make([]*Order, 0, b.Len())
	b.fixed.Ascend(func(o *Order) bool {
		out = append(out, o)
		return true
	})
	b.pegged.Ascend(func(o *Order) bool {
		out = append(out, o)
		return true
	})
	return out
}

func (b *BookSide) tree(t Tree) *btree.BTreeG[*Order] {
	if t == TreePegged {
		return b.pegged
	}
	return b.fixed
}

// EntryState classifies a candidate yielded by the merged iterator.
type EntryState uint8

const (
	// EntryValid: a live candidate at its effective price.
	EntryValid EntryState = iota
	// EntryExpired: past its expiry; the caller should remove it.
	EntryExpired
	// EntryPegInvalid: a pegged order whose current effective price is
	// non-positive or beyond its peg limit; the caller should remove it.
	EntryPegInvalid
)

// Entry is one step of a merged iteration.
type Entry struct {
	Order     *Order
	State     EntryState
	PriceLots int64 // effective price; clamped to the peg limit when invalid
}

// Iter is a merged, priority-ordered iterator over both sub-trees. Pegged
// orders are re-priced against the oracle at each step; expired and
// peg-invalid orders are still yielded (tagged) so the caller can remove
// them, matching the lazy-sweep contract.
type Iter struct {
	side       *BookSide
	now        int64
	oracleLots int64
	hasOracle  bool

	nextFixed  *Order
	nextPegged *Order
}

// Iter starts a merged iteration. hasOracle must be true whenever the pegged
// tree is non-empty; without an oracle all pegged entries come back
// EntryPegInvalid.
func (b *BookSide) Iter(now int64, oracleLots int64, hasOracle bool) *Iter {
	return &Iter{
		side:       b,
		now:        now,
		oracleLots: oracleLots,
		hasOracle:  hasOracle,
		nextFixed:  first(b.fixed),
		nextPegged: first(b.pegged),
	}
}

// Next yields the next candidate in priority order, or ok=false at the end.
//
// Among valid candidates, better price comes first; at equal price the lower
// sequence number (earlier order) comes first, across both trees.
func (it *Iter) Next() (Entry, bool) {
	f, p := it.nextFixed, it.nextPegged
	if f == nil && p == nil {
		return Entry{}, false
	}

	var pick *Order
	switch {
	case f == nil:
		pick = p
	case p == nil:
		pick = f
	default:
		fPrice := f.FixedPriceLots()
		pPrice, _ := p.EffectivePriceLots(it.oracleLots, it.hasOracle)
		if fPrice == pPrice {
			if f.ID.Seq < p.ID.Seq {
				pick = f
			} else {
				pick = p
			}
		} else if it.side.side.IsPriceBetter(fPrice, pPrice) {
			pick = f
		} else {
			pick = p
		}
	}

	if pick == f {
		it.nextFixed = nextAfter(it.side.fixed, f)
	} else {
		it.nextPegged = nextAfter(it.side.pegged, p)
	}

	price, priceOK := pick.EffectivePriceLots(it.oracleLots, it.hasOracle)
	state := EntryValid
	switch {
	case pick.IsExpired(it.now):
		state = EntryExpired
	case !priceOK:
		state = EntryPegInvalid
	}
	return Entry{Order: pick, State: state, PriceLots: price}, true
}

func first(t *btree.BTreeG[*Order]) *Order {
	var o *Order
	t.Ascend(func(x *Order) bool {
		o = x
		return false
	})
	return o
}

func nextAfter(t *btree.BTreeG[*Order], o *Order) *Order {
	var next *Order
	t.AscendGreaterOrEqual(o, func(x *Order) bool {
		if x.ID == o.ID {
			return true
		}
		next = x
		return false
	})
	return next
}

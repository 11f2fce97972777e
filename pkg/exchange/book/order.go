// Package book maintains one side of a limit order book: an ordered
// collection of resting orders with strict price-then-time priority.
//
// Each side holds two sub-trees, one for fixed-price orders and one for
// oracle-pegged orders, because their sort keys differ (absolute price lots
// vs. signed price offset). A merged iterator re-derives the pegged orders'
// effective price at read time and yields candidates best-price-first.
package book

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
)

// Side of the book.
type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Opposite returns the side an incoming order of side s matches against.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// IsPriceBetter reports whether price a has priority over price b on side s.
func (s Side) IsPriceBetter(a, b int64) bool {
	if s == Bid {
		return a > b
	}
	return a < b
}

// Tree distinguishes the two order families on a side.
type Tree uint8

const (
	TreeFixed Tree = iota
	TreePegged
)

func (t Tree) String() string {
	if t == TreeFixed {
		return "fixed"
	}
	return "pegged"
}

// OrderID is the composite key of a resting order: the upper 64 bits carry
// the price data (fixed price lots, or the shifted peg offset), the lower 64
// the market sequence number at insertion. Within one sub-tree this makes
// priority ordering total and ids unique.
type OrderID struct {
	PriceData uint64
	Seq       uint64
}

// String renders the id as 32 hex digits: price data then sequence number.
func (id OrderID) String() string {
	return fmt.Sprintf("%016x%016x", id.PriceData, id.Seq)
}

// ParseOrderID decodes the 32-hex-digit form produced by String.
func ParseOrderID(s string) (OrderID, error) {
	var id OrderID
	if len(s) != 32 {
		return id, fmt.Errorf("book: order id must be 32 hex digits, got %d", len(s))
	}
	if _, err := fmt.Sscanf(s[:16], "%016x", &id.PriceData); err != nil {
		return id, fmt.Errorf("book: bad order id: %w", err)
	}
	if _, err := fmt.Sscanf(s[16:], "%016x", &id.Seq); err != nil {
		return id, fmt.Errorf("book: bad order id: %w", err)
	}
	return id, nil
}

// peggedDataShift maps a signed price offset onto an unsigned, order-
// preserving key: offset -1 sorts below 0 sorts below +1.
const peggedDataShift = uint64(1) << 63

// FixedPriceData encodes a fixed limit price as order key data.
func FixedPriceData(priceLots int64) uint64 {
	return uint64(priceLots)
}

// PeggedPriceData encodes a price offset as order key data.
func PeggedPriceData(priceOffsetLots int64) uint64 {
	return uint64(priceOffsetLots) + peggedDataShift
}

// Order is a resting order on one side of the book.
type Order struct {
	ID   OrderID
	Side Side
	Tree Tree

	// Owner is the open-orders account the order belongs to; OwnerSlot is
	// the slot index inside that account.
	Owner     common.Address
	OwnerSlot uint8

	// ClientID is the client-supplied order id, not necessarily unique.
	ClientID uint64

	// Quantity is the remaining size in base lots.
	Quantity int64

	// Timestamp is the insertion time (unix seconds); ExpiryTimestamp of 0
	// means good-till-cancelled. Expiry is checked lazily during iteration,
	// never swept eagerly.
	Timestamp       int64
	ExpiryTimestamp int64

	// PegLimit bounds the effective price of a pegged order: an upper bound
	// for bids, a lower bound for asks. Zero for fixed orders.
	PegLimit int64
}

// FixedPriceLots returns the literal limit price of a fixed order.
func (o *Order) FixedPriceLots() int64 {
	return int64(o.ID.PriceData)
}

// PriceOffsetLots returns the oracle offset of a pegged order.
func (o *Order) PriceOffsetLots() int64 {
	return int64(o.ID.PriceData - peggedDataShift)
}

// IsExpired reports whether the order is past its expiry at now.
func (o *Order) IsExpired(now int64) bool {
	return o.ExpiryTimestamp != 0 && o.ExpiryTimestamp < now
}

// LockedPriceLots is the price basis used when locking funds for this order:
// the literal price for fixed orders, the peg limit (worst admissible price)
// for pegged bids and asks.
func (o *Order) LockedPriceLots() int64 {
	if o.Tree == TreePegged {
		return o.PegLimit
	}
	return o.FixedPriceLots()
}

// EffectivePriceLots computes the order's current matching price.
//
// Fixed orders always return their literal price with ok=true. Pegged orders
// return oracle + offset; ok=false when that price is non-positive or beyond
// the peg limit, in which case the returned price is clamped to the limit so
// the caller still encounters the order in bounded position.
func (o *Order) EffectivePriceLots(oracleLots int64, hasOracle bool) (int64, bool) {
	if o.Tree == TreeFixed {
		return o.FixedPriceLots(), true
	}
	if !hasOracle {
		return o.PegLimit, false
	}
	offset := o.PriceOffsetLots()
	if oracleLots > 0 && offset > math.MaxInt64-oracleLots {
		return o.PegLimit, false
	}
	price := oracleLots + offset
	if price <= 0 {
		return o.PegLimit, false
	}
	if o.Side == Bid && price > o.PegLimit {
		return o.PegLimit, false
	}
	if o.Side == Ask && price < o.PegLimit {
		return o.PegLimit, false
	}
	return price, true
}

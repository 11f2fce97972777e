package engine

import (
	"github.com/meridianx/meridian/pkg/exchange/book"
)

// OrderType controls matching and resting behavior of an incoming order.
type OrderType uint8

const (
	// Limit matches up to the limit price; the remainder rests.
	Limit OrderType = iota
	// ImmediateOrCancel matches up to the limit price; the remainder is
	// dropped.
	ImmediateOrCancel
	// PostOnly rests without matching; fails if it would cross.
	PostOnly
	// Market matches at any price and never rests.
	Market
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case ImmediateOrCancel:
		return "ioc"
	case PostOnly:
		return "post_only"
	case Market:
		return "market"
	default:
		return "unknown"
	}
}

// canRest reports whether an unfilled remainder may be inserted in the book.
func (t OrderType) canRest() bool {
	return t == Limit || t == PostOnly
}

// SelfTradeBehavior is the policy applied when an incoming order would match
// one of its own resting orders.
type SelfTradeBehavior uint8

const (
	// DecrementTake matches against the own order like any other. The
	// quote-aggregator path always uses this mode: a read-only simulation
	// has no identity to protect.
	DecrementTake SelfTradeBehavior = iota
	// CancelProvide cancels the resting own order and keeps matching.
	CancelProvide
	// AbortTransaction fails the whole placement.
	AbortTransaction
)

func (b SelfTradeBehavior) String() string {
	switch b {
	case DecrementTake:
		return "decrement_take"
	case CancelProvide:
		return "cancel_provide"
	case AbortTransaction:
		return "abort_transaction"
	default:
		return "unknown"
	}
}

// Order is an incoming (taker) order specification.
type Order struct {
	Side book.Side

	// PriceLots is the literal limit price of a fixed order; ignored for
	// Market orders. Pegged orders use PriceOffsetLots/PegLimit instead.
	PriceLots       int64
	Pegged          bool
	PriceOffsetLots int64
	PegLimit        int64

	// MaxBaseLots caps the base quantity; MaxQuoteLotsIncludingFees caps
	// the quote spent (bids) or received (asks), fees included.
	MaxBaseLots               int64
	MaxQuoteLotsIncludingFees int64

	ClientOrderID uint64
	Type          OrderType

	// ExpiryTimestamp of 0 means good-till-cancelled.
	ExpiryTimestamp int64

	SelfTradeBehavior SelfTradeBehavior
}

// Result summarizes one placement.
type Result struct {
	// TotalBaseTakenLots and TotalQuoteTakenLots are the matched amounts,
	// quote before fees.
	TotalBaseTakenLots  int64
	TotalQuoteTakenLots int64

	// TakerFeeLots is the fee charged on the matched quote, in quote lots.
	TakerFeeLots int64

	// RestingID is set when a remainder was inserted into the book.
	RestingID *book.OrderID

	// NotFullyExecuted is set when the per-call match bound was exhausted
	// with quantity remaining that could not rest.
	NotFullyExecuted bool
}

// Package engine implements order matching against one market's book.
//
// Placement runs in two phases: a read-only planning walk over the opposing
// side that decides every fill and removal, then an apply step that mutates
// the book, the event queue, the taker's ledger and the market counters. All
// failures (self-trade abort, insufficient funds, full book, full event
// queue) are detected before the apply step, so a failed placement leaves no
// partial state behind.
package engine

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/meridianx/meridian/pkg/exchange/account"
	"github.com/meridianx/meridian/pkg/exchange/book"
	"github.com/meridianx/meridian/pkg/exchange/events"
	"github.com/meridianx/meridian/pkg/exchange/market"
	"github.com/meridianx/meridian/pkg/exchange/oracle"
)

var (
	// ErrWouldSelfTrade aborts a placement whose self-trade behavior is
	// AbortTransaction and which would match an own resting order.
	ErrWouldSelfTrade = errors.New("engine: order would match own resting order")
	// ErrWouldCross rejects a post-only order whose price crosses the
	// opposing side.
	ErrWouldCross = errors.New("engine: post-only order would cross")
	// ErrInsufficientFunds means the taker's free balance cannot cover the
	// matched amount plus fees plus the resting lock.
	ErrInsufficientFunds = errors.New("engine: insufficient funds")
)

// Engine is stateless apart from its logger; all state lives in the book,
// queue, market and account records passed per call.
type Engine struct {
	log *zap.Logger
}

// New creates a matching engine.
func New(log *zap.Logger) *Engine {
	return &Engine{log: log}
}

// plannedAction is one decision of the planning walk: either a fill against
// a maker order, or the removal of an invalid / self-traded resting order.
type plannedAction struct {
	order *book.Order
	// fillQty is 0 for pure removals.
	fillQty   int64
	priceLots int64
	// makerOut: the maker order leaves the book (fully filled or removed).
	makerOut bool
	// outOnly: removal without a fill (expired, peg-invalid, self-trade
	// cancel-provide).
	outOnly bool
}

// PlaceOrder matches ord against the opposing side and posts any remainder.
//
// limit bounds the number of maker orders processed in this call; it is the
// compute-budget safety valve. oracleLots is the current oracle price in
// lots; hasOracle is false on markets without a feed.
func (e *Engine) PlaceOrder(
	ob *book.Orderbook,
	eq *events.Queue,
	mkt *market.Market,
	taker *account.OpenOrders,
	ord *Order,
	oracleLots int64,
	hasOracle bool,
	now int64,
	limit int,
) (*Result, error) {
	if err := validateOrder(ord, now); err != nil {
		return nil, err
	}
	if mkt.IsExpired(now) {
		return nil, market.ErrExpired
	}

	limitPrice, postable, err := effectiveLimitPrice(ord, oracleLots, hasOracle)
	if err != nil {
		return nil, err
	}
	if !postable {
		// A pegged order whose computed price is non-positive or outside
		// its peg limit neither matches nor rests.
		return &Result{}, nil
	}

	maxBase := minInt64(ord.MaxBaseLots, mkt.MaxBaseLots())
	maxQuote := minInt64(ord.MaxQuoteLotsIncludingFees, mkt.MaxQuoteLots())
	remainingBase := maxBase
	remainingQuote := maxQuote
	if ord.Side == book.Bid {
		// The taker fee is charged on top for bids, so the matchable quote
		// budget shrinks up front.
		remainingQuote = mkt.SubtractTakerFees(maxQuote)
	}

	opposing := ob.OpposingSide(ord.Side)

	if ord.Type == PostOnly {
		if crossed, against := wouldCross(opposing, ord.Side, limitPrice, now, oracleLots, hasOracle); crossed {
			return nil, fmt.Errorf("%w: limit %d against resting %d", ErrWouldCross, limitPrice, against)
		}
	}

	// Phase 1: plan fills and removals without touching anything.
	var (
		plan       []plannedAction
		totalBase  int64
		totalQuote int64
		taken      int
	)
	if ord.Type != PostOnly {
		iter := opposing.Iter(now, oracleLots, hasOracle)
		for taken < limit && remainingBase > 0 {
			entry, ok := iter.Next()
			if !ok {
				break
			}
			o := entry.Order

			if entry.State != book.EntryValid {
				plan = append(plan, plannedAction{order: o, makerOut: true, outOnly: true, priceLots: entry.PriceLots})
				taken++
				continue
			}
			if priceWorse(ord.Side, entry.PriceLots, limitPrice) {
				break
			}
			maxByQuote := remainingQuote / entry.PriceLots
			qty := minInt64(remainingBase, minInt64(o.Quantity, maxByQuote))
			if qty <= 0 {
				break
			}

			if o.Owner == taker.Address {
				switch ord.SelfTradeBehavior {
				case AbortTransaction:
					return nil, ErrWouldSelfTrade
				case CancelProvide:
					plan = append(plan, plannedAction{order: o, makerOut: true, outOnly: true, priceLots: entry.PriceLots})
					taken++
					continue
				case DecrementTake:
					// Falls through: matches like any other maker.
				}
			}

			plan = append(plan, plannedAction{
				order:     o,
				fillQty:   qty,
				priceLots: entry.PriceLots,
				makerOut:  qty == o.Quantity,
			})
			remainingBase -= qty
			remainingQuote -= qty * entry.PriceLots
			totalBase += qty
			totalQuote += qty * entry.PriceLots
			taken++
		}
	}
	// When the per-call bound stops the walk early, resting order types
	// still post their remainder; the others report a partial execution.
	notFullyExecuted := taken >= limit && remainingBase > 0 && !ord.Type.canRest()

	takerFee := mkt.TakerFeesCeil(totalQuote)

	// Rebates owed to the makers in the plan come out of the taker fee.
	// They are reserved here rather than deducted at consume time, so a fee
	// sweep between match and consume cannot pay out quote the queue still
	// owes. Per-fill floor rounding keeps the sum within the ceiled fee.
	var rebateOwed int64
	if mkt.MakerFee < 0 {
		for _, act := range plan {
			if act.fillQty > 0 {
				rebateOwed += mkt.MakerRebateFloor(act.fillQty * act.priceLots)
			}
		}
	}

	// Decide the resting remainder before any mutation.
	var (
		restQty   int64
		lockPrice int64
		lockFee   int64
	)
	if ord.Type.canRest() && remainingBase > 0 {
		restQty = remainingBase
		lockPrice = limitPrice
		if ord.Pegged {
			// Pegged orders lock at their worst admissible price.
			lockPrice = ord.PegLimit
		}
		if ord.Side == book.Bid {
			restQty = minInt64(restQty, remainingQuote/lockPrice)
		}
	}
	if restQty > 0 && ord.Side == book.Bid {
		lockFee = mkt.MakerFeesCeil(lockPrice * restQty)
	}

	// Affordability, slot, book and queue capacity: all checked up front so
	// the apply step cannot fail.
	if err := e.checkFunding(taker, ord.Side, totalBase, totalQuote, takerFee, restQty, lockPrice, lockFee); err != nil {
		return nil, err
	}
	slotIdx := -1
	if restQty > 0 {
		idx, err := taker.FindFreeSlot()
		if err != nil {
			return nil, err
		}
		slotIdx = idx
		own := ob.SideOf(ord.Side)
		if own.Len() >= own.Capacity() {
			return nil, book.ErrBookFull
		}
	}
	if eq.Len()+len(plan) > eq.Capacity() {
		return nil, fmt.Errorf("%w: placement needs %d event slots, %d free",
			events.ErrQueueFull, len(plan), eq.Capacity()-eq.Len())
	}

	// Phase 2: apply.
	for _, act := range plan {
		e.applyAction(opposing, eq, taker, ord, act, now)
	}

	pos := &taker.Position
	switch ord.Side {
	case book.Bid:
		pos.QuoteFreeLots -= totalQuote + takerFee
		pos.BaseFreeLots += totalBase
	case book.Ask:
		pos.BaseFreeLots -= totalBase
		pos.QuoteFreeLots += totalQuote - takerFee
	}
	pos.TakerVolume += uint64(totalQuote)
	mkt.MakerVolume += mkt.QuoteLotsToNative(totalQuote)
	mkt.FeesAccrued += mkt.QuoteLotsToNative(takerFee)
	mkt.FeesAvailable += mkt.QuoteLotsToNative(takerFee - rebateOwed)
	mkt.MakerRebatesOwed += mkt.QuoteLotsToNative(rebateOwed)

	res := &Result{
		TotalBaseTakenLots:  totalBase,
		TotalQuoteTakenLots: totalQuote,
		TakerFeeLots:        takerFee,
		NotFullyExecuted:    notFullyExecuted,
	}

	if restQty > 0 {
		priceData := book.FixedPriceData(limitPrice)
		tree := book.TreeFixed
		if ord.Pegged {
			priceData = book.PeggedPriceData(ord.PriceOffsetLots)
			tree = book.TreePegged
		}
		id := mkt.GenOrderID(priceData)
		resting := &book.Order{
			ID:              id,
			Side:            ord.Side,
			Tree:            tree,
			Owner:           taker.Address,
			OwnerSlot:       uint8(slotIdx),
			ClientID:        ord.ClientOrderID,
			Quantity:        restQty,
			Timestamp:       now,
			ExpiryTimestamp: ord.ExpiryTimestamp,
			PegLimit:        ord.PegLimit,
		}
		if err := ob.SideOf(ord.Side).Insert(resting); err != nil {
			// Capacity and duplicates were ruled out above.
			return nil, fmt.Errorf("engine: resting insert failed: %w", err)
		}
		taker.OpenSlot(slotIdx, account.Slot{
			ID:              id,
			Side:            ord.Side,
			Tree:            tree,
			ClientID:        ord.ClientOrderID,
			LockedPriceLots: lockPrice,
		})
		if ord.Side == book.Bid {
			pos.QuoteFreeLots -= lockPrice*restQty + lockFee
			pos.LockedQuoteLots += lockPrice * restQty
			pos.LockedMakerFeesLots += lockFee
		} else {
			pos.BaseFreeLots -= restQty
			pos.LockedBaseLots += restQty
		}
		res.RestingID = &id

		e.log.Debug("order rested",
			zap.String("side", ord.Side.String()),
			zap.Int64("price", limitPrice),
			zap.Int64("quantity", restQty),
			zap.Uint64("seq", id.Seq))
	}

	return res, nil
}

// applyAction mutates the opposing side and pushes the corresponding event.
// Queue capacity was verified by the caller.
func (e *Engine) applyAction(opposing *book.BookSide, eq *events.Queue, taker *account.OpenOrders, ord *Order, act plannedAction, now int64) {
	o := act.order
	if act.outOnly {
		if _, err := opposing.Remove(o.ID, o.Tree); err == nil {
			_ = eq.Push(events.Event{
				Type:            events.TypeOut,
				Side:            o.Side,
				Owner:           o.Owner,
				OwnerSlot:       o.OwnerSlot,
				Timestamp:       now,
				Quantity:        o.Quantity,
				LockedPriceLots: o.LockedPriceLots(),
			})
		}
		return
	}

	if act.makerOut {
		_, _ = opposing.Remove(o.ID, o.Tree)
	} else {
		// In-place decrement: the key is untouched, so tree order holds.
		o.Quantity -= act.fillQty
	}
	_ = eq.Push(events.Event{
		Type:            events.TypeFill,
		Side:            ord.Side,
		Owner:           o.Owner,
		OwnerSlot:       o.OwnerSlot,
		Timestamp:       now,
		Quantity:        act.fillQty,
		PriceLots:       act.priceLots,
		MakerOut:        act.makerOut,
		MakerClientID:   o.ClientID,
		MakerTree:       o.Tree,
		TakerOwner:      taker.Address,
		TakerClientID:   ord.ClientOrderID,
		LockedPriceLots: o.LockedPriceLots(),
	})

	e.log.Debug("fill",
		zap.String("taker_side", ord.Side.String()),
		zap.Int64("price", act.priceLots),
		zap.Int64("quantity", act.fillQty),
		zap.Bool("maker_out", act.makerOut))
}

func (e *Engine) checkFunding(taker *account.OpenOrders, side book.Side, totalBase, totalQuote, takerFee, restQty, lockPrice, lockFee int64) error {
	pos := taker.Position
	switch side {
	case book.Bid:
		need := totalQuote + takerFee + lockPrice*restQty + lockFee
		if pos.QuoteFreeLots < need {
			return fmt.Errorf("%w: need %d quote lots, have %d", ErrInsufficientFunds, need, pos.QuoteFreeLots)
		}
	case book.Ask:
		need := totalBase + restQty
		if pos.BaseFreeLots < need {
			return fmt.Errorf("%w: need %d base lots, have %d", ErrInsufficientFunds, need, pos.BaseFreeLots)
		}
	}
	return nil
}

func validateOrder(ord *Order, now int64) error {
	if ord.MaxBaseLots <= 0 {
		return fmt.Errorf("%w: max base lots must be positive", market.ErrInvalidInput)
	}
	if ord.MaxQuoteLotsIncludingFees <= 0 {
		return fmt.Errorf("%w: max quote lots must be positive", market.ErrInvalidInput)
	}
	if ord.ExpiryTimestamp != 0 && ord.ExpiryTimestamp <= now {
		return fmt.Errorf("%w: order already expired", market.ErrInvalidInput)
	}
	if ord.Pegged {
		if ord.Type == Market {
			return fmt.Errorf("%w: market orders cannot be pegged", market.ErrInvalidInput)
		}
		if ord.PegLimit <= 0 {
			return fmt.Errorf("%w: peg limit must be positive", market.ErrInvalidInput)
		}
	} else if ord.Type != Market && ord.PriceLots <= 0 {
		return fmt.Errorf("%w: price must be positive", market.ErrInvalidInput)
	}
	return nil
}

// effectiveLimitPrice resolves the price the order may match up to.
// postable=false means a pegged order is currently outside its admissible
// range: the placement is a no-op, not an error.
func effectiveLimitPrice(ord *Order, oracleLots int64, hasOracle bool) (int64, bool, error) {
	if ord.Type == Market {
		if ord.Side == book.Bid {
			return math.MaxInt64, true, nil
		}
		return 1, true, nil
	}
	if !ord.Pegged {
		return ord.PriceLots, true, nil
	}
	if !hasOracle {
		return 0, false, fmt.Errorf("%w: pegged order on market without oracle", oracle.ErrInvalidPrice)
	}
	if oracleLots > 0 && ord.PriceOffsetLots > math.MaxInt64-oracleLots {
		return 0, false, fmt.Errorf("%w: pegged price overflows", oracle.ErrInvalidPrice)
	}
	price := oracleLots + ord.PriceOffsetLots
	if price <= 0 {
		return 0, false, nil
	}
	if ord.Side == book.Bid && price > ord.PegLimit {
		return 0, false, nil
	}
	if ord.Side == book.Ask && price < ord.PegLimit {
		return 0, false, nil
	}
	return price, true, nil
}

// wouldCross checks a post-only order against the best valid opposing
// candidate without mutating the book.
func wouldCross(opposing *book.BookSide, side book.Side, limitPrice int64, now, oracleLots int64, hasOracle bool) (bool, int64) {
	iter := opposing.Iter(now, oracleLots, hasOracle)
	for {
		entry, ok := iter.Next()
		if !ok {
			return false, 0
		}
		if entry.State != book.EntryValid {
			continue
		}
		if priceWorse(side, entry.PriceLots, limitPrice) {
			return false, 0
		}
		return true, entry.PriceLots
	}
}

// priceWorse reports whether a maker price is beyond an incoming order's
// limit: higher than a bid's limit, or lower than an ask's.
func priceWorse(takerSide book.Side, makerPrice, limitPrice int64) bool {
	if takerSide == book.Bid {
		return makerPrice > limitPrice
	}
	return makerPrice < limitPrice
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/meridianx/meridian/pkg/exchange/account"
	"github.com/meridianx/meridian/pkg/exchange/book"
	"github.com/meridianx/meridian/pkg/exchange/engine"
	"github.com/meridianx/meridian/pkg/exchange/market"
)

// PlaceOrderArgs identify who places what where.
type PlaceOrderArgs struct {
	// Signer must be the account's owner or delegate.
	Signer common.Address
	// Admin must co-sign when the market configures an open-orders admin.
	Admin common.Address

	Account common.Address
	Market  common.Address

	Order engine.Order

	// Limit bounds maker orders processed; 0 uses the configured default.
	Limit int
}

// PlaceOrder matches an incoming order against the book and posts any
// remainder, under one market lock. Fixed-price and pegged orders go through
// the same path; the Order spec distinguishes them.
func (x *Exchange) PlaceOrder(args PlaceOrderArgs) (*engine.Result, error) {
	ms, acct, err := x.accountState(args.Account)
	if err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	m := ms.meta
	if acct.Market != m.Address || m.Address != args.Market {
		return nil, fmt.Errorf("%w: account %s does not belong to market %s",
			market.ErrInvalidInput, args.Account.Hex(), args.Market.Hex())
	}
	if !acct.IsOwnerOrDelegate(args.Signer) {
		return nil, account.ErrNoOwnerOrDelegate
	}
	if m.OpenOrdersAdmin.IsSome() && !m.OpenOrdersAdmin.Is(args.Admin) {
		return nil, fmt.Errorf("%w: place order", ErrAdminRequired)
	}

	oracleLots, hasOracle, err := x.oraclePriceLots(m)
	if err != nil {
		// A market with a feed refuses all placements while the feed is
		// unusable; pegged makers could not be priced against the book.
		return nil, err
	}

	limit := args.Limit
	if limit <= 0 {
		limit = x.opts.DefaultMatchLimit
	}
	now := x.clock.Now().Unix()
	seqBefore := ms.events.SeqNum()

	res, err := x.eng.PlaceOrder(ms.books, ms.events, m, acct, &args.Order, oracleLots, hasOracle, now, limit)
	if err != nil {
		return nil, err
	}

	if err := x.persistMarket(ms); err != nil {
		return nil, err
	}
	if err := x.persistAccount(acct); err != nil {
		return nil, err
	}
	x.emitNewEvents(m.Address, ms, seqBefore)
	return res, nil
}

// PlaceOrderPegged is PlaceOrder for oracle-pegged orders; it exists so
// callers cannot place a pegged order with fixed-price fields half filled in.
func (x *Exchange) PlaceOrderPegged(args PlaceOrderArgs) (*engine.Result, error) {
	args.Order.Pegged = true
	args.Order.PriceLots = 0
	return x.PlaceOrder(args)
}

// CancelOrder removes one resting order by id and releases its locked funds.
func (x *Exchange) CancelOrder(signer, accountAddr common.Address, id book.OrderID) error {
	ms, acct, err := x.accountState(accountAddr)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if !acct.IsOwnerOrDelegate(signer) {
		return account.ErrNoOwnerOrDelegate
	}
	slotIdx, ok := acct.SlotByOrderID(id)
	if !ok {
		return book.ErrOrderNotFound
	}
	if err := x.cancelSlot(ms, acct, slotIdx); err != nil {
		return err
	}
	return x.persistAfterCancel(ms, acct)
}

// CancelOrderByClientID cancels the first resting order carrying the
// client-supplied id. Client ids are not unique; repeated calls drain
// duplicates one at a time.
func (x *Exchange) CancelOrderByClientID(signer, accountAddr common.Address, clientID uint64) (book.OrderID, error) {
	ms, acct, err := x.accountState(accountAddr)
	if err != nil {
		return book.OrderID{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if !acct.IsOwnerOrDelegate(signer) {
		return book.OrderID{}, account.ErrNoOwnerOrDelegate
	}
	slotIdx, ok := acct.SlotByClientID(clientID)
	if !ok {
		return book.OrderID{}, book.ErrOrderNotFound
	}
	id := acct.Slots[slotIdx].ID
	if err := x.cancelSlot(ms, acct, slotIdx); err != nil {
		return book.OrderID{}, err
	}
	return id, x.persistAfterCancel(ms, acct)
}

// CancelAll cancels up to limit of the account's resting orders, optionally
// restricted to one side. Returns the number cancelled.
func (x *Exchange) CancelAll(signer, accountAddr common.Address, side *book.Side, limit int) (int, error) {
	ms, acct, err := x.accountState(accountAddr)
	if err != nil {
		return 0, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if !acct.IsOwnerOrDelegate(signer) {
		return 0, account.ErrNoOwnerOrDelegate
	}
	cancelled := x.cancelAccountOrders(ms, acct, side, limit)
	if cancelled == 0 {
		return 0, nil
	}
	return cancelled, x.persistAfterCancel(ms, acct)
}

// cancelAccountOrders is the shared bulk path of CancelAll and PruneOrders.
// Caller holds ms.mu and persists.
func (x *Exchange) cancelAccountOrders(ms *marketState, acct *account.OpenOrders, side *book.Side, limit int) int {
	if limit <= 0 {
		limit = account.MaxOpenOrders
	}
	cancelled := 0
	for i := range acct.Slots {
		if cancelled >= limit {
			break
		}
		s := &acct.Slots[i]
		if !s.Active || (side != nil && s.Side != *side) {
			continue
		}
		if err := x.cancelSlot(ms, acct, i); err != nil {
			x.log.Warn("bulk cancel skipped slot",
				zap.String("account", acct.Address.Hex()),
				zap.Int("slot", i),
				zap.Error(err))
			continue
		}
		cancelled++
	}
	return cancelled
}

// cancelSlot removes the order referenced by slot i from the book, releases
// its locked funds and frees the slot. Caller holds ms.mu.
func (x *Exchange) cancelSlot(ms *marketState, acct *account.OpenOrders, i int) error {
	s := acct.Slots[i]
	o, err := ms.books.SideOf(s.Side).Remove(s.ID, s.Tree)
	if err != nil {
		// Slot and book disagree: surface it, never guess at balances.
		return fmt.Errorf("exchange: slot %d references missing order %s: %w", i, s.ID, err)
	}
	releaseClosedSlot(acct, s, o.Quantity, i)
	x.log.Debug("order cancelled",
		zap.String("account", acct.Address.Hex()),
		zap.String("order", s.ID.String()),
		zap.Int64("remaining", o.Quantity))
	return nil
}

// releaseClosedSlot returns the funds still locked behind a resting order
// (remaining lots at the slot's locked price) and frees slot i. When the last
// bid slot closes, leftover locked maker fees are swept back to the free
// balance.
func releaseClosedSlot(acct *account.OpenOrders, s account.Slot, remaining int64, i int) {
	pos := &acct.Position
	if s.Side == book.Bid {
		freed := s.LockedPriceLots * remaining
		pos.LockedQuoteLots -= freed
		pos.QuoteFreeLots += freed
	} else {
		pos.LockedBaseLots -= remaining
		pos.BaseFreeLots += remaining
	}
	acct.CloseSlot(i)
	if !acct.HasBidSlots() && pos.LockedMakerFeesLots > 0 {
		pos.QuoteFreeLots += pos.LockedMakerFeesLots
		pos.LockedMakerFeesLots = 0
	}
}

func (x *Exchange) persistAfterCancel(ms *marketState, acct *account.OpenOrders) error {
	if err := x.persistMarket(ms); err != nil {
		return err
	}
	return x.persistAccount(acct)
}

// emitNewEvents hands events appended since seqBefore to the fill handler.
// Caller holds ms.mu; the handler must not call back into the exchange.
func (x *Exchange) emitNewEvents(mkt common.Address, ms *marketState, seqBefore uint64) {
	if x.onFill == nil {
		return
	}
	appended := int(ms.events.SeqNum() - seqBefore)
	if appended == 0 {
		return
	}
	evs := ms.events.Events()
	for _, ev := range evs[len(evs)-appended:] {
		x.onFill(mkt, ev)
	}
}

package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/meridianx/meridian/pkg/exchange/account"
	"github.com/meridianx/meridian/pkg/exchange/book"
	"github.com/meridianx/meridian/pkg/exchange/engine"
	"github.com/meridianx/meridian/pkg/exchange/events"
	"github.com/meridianx/meridian/pkg/exchange/market"
)

// ConsumeEvents delivers up to limit queued events to the maker accounts
// they reference, crediting fills and releasing funds behind removed orders.
// Returns the number of events consumed.
//
// Settlement is decoupled from matching: a placement only appends events, and
// maker balances move here. Crankers call this repeatedly until the queue
// drains.
func (x *Exchange) ConsumeEvents(signer, marketAddr common.Address, limit int) (int, error) {
	ms, err := x.state(marketAddr)
	if err != nil {
		return 0, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	m := ms.meta
	if m.ConsumeEventsAdmin.IsSome() && !m.ConsumeEventsAdmin.Is(signer) {
		return 0, fmt.Errorf("%w: consume events", ErrAdminRequired)
	}
	if limit <= 0 {
		limit = ms.events.Capacity()
	}

	touched := make(map[common.Address]*account.OpenOrders)
	consumed := 0
	for consumed < limit {
		ev, ok := ms.events.Peek()
		if !ok {
			break
		}
		acct := ms.accounts[ev.Owner]
		if acct == nil {
			// The account was closed with events in flight. Nothing to
			// credit; drop the event so the queue cannot wedge.
			x.log.Warn("dropping event for unknown account",
				zap.String("market", marketAddr.Hex()),
				zap.String("owner", ev.Owner.Hex()),
				zap.Uint64("seq", ev.SeqNum))
			// A rebate reserved for an undeliverable fill returns to the
			// sweepable pool.
			if ev.Type == events.TypeFill {
				forfeited := m.QuoteLotsToNative(m.MakerRebateFloor(ev.Quantity * ev.PriceLots))
				if forfeited > 0 && forfeited <= m.MakerRebatesOwed {
					m.MakerRebatesOwed -= forfeited
					m.FeesAvailable += forfeited
				}
			}
		} else {
			switch ev.Type {
			case events.TypeFill:
				x.applyFill(m, acct, ev)
			case events.TypeOut:
				x.applyOut(acct, ev)
			}
			touched[acct.Address] = acct
		}
		ms.events.Pop()
		consumed++
	}

	if consumed == 0 {
		return 0, nil
	}
	if err := x.persistMarket(ms); err != nil {
		return consumed, err
	}
	for _, acct := range touched {
		if err := x.persistAccount(acct); err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

// applyFill credits one fill to its maker. The event's Side is the taker
// side, so the maker sits on the opposite one. All amounts come from the
// event itself; the book is never consulted.
func (x *Exchange) applyFill(m *market.Market, acct *account.OpenOrders, ev events.Event) {
	pos := &acct.Position
	quote := ev.Quantity * ev.PriceLots
	fee := m.MakerFeesCeil(quote)
	rebate := m.MakerRebateFloor(quote)

	if ev.Side.Opposite() == book.Bid {
		// Maker bought: quote was locked at the slot's locked price, which
		// for pegged orders exceeds the matched price. The difference is
		// returned here.
		locked := ev.LockedPriceLots * ev.Quantity
		pos.LockedQuoteLots -= locked
		pos.BaseFreeLots += ev.Quantity
		pos.QuoteFreeLots += locked - quote
		// Bid maker fees were locked up-front; release rounds in the
		// market's favor, dust sweeps out when the last bid slot closes.
		if fee > pos.LockedMakerFeesLots {
			fee = pos.LockedMakerFeesLots
		}
		pos.LockedMakerFeesLots -= fee
	} else {
		// Maker sold: base unlocks, quote proceeds net of fees settle free.
		pos.LockedBaseLots -= ev.Quantity
		pos.QuoteFreeLots += quote - fee
	}

	if fee > 0 {
		feeNative := m.QuoteLotsToNative(fee)
		m.FeesAccrued += feeNative
		m.FeesAvailable += feeNative
	}
	if rebate > 0 {
		// The rebate was reserved out of the taker fee at match time; the
		// same per-fill floor on the same quote amount drains the
		// reservation exactly.
		pos.QuoteFreeLots += rebate
		rebateNative := m.QuoteLotsToNative(rebate)
		m.ReferrerRebatesAccrued += rebateNative
		pos.ReferrerRebatesAccrued += rebate
		if rebateNative > m.MakerRebatesOwed {
			x.log.Error("rebate exceeds reservation",
				zap.String("market", m.Address.Hex()),
				zap.Uint64("rebate_native", rebateNative),
				zap.Uint64("owed", m.MakerRebatesOwed))
			rebateNative = m.MakerRebatesOwed
		}
		m.MakerRebatesOwed -= rebateNative
	}
	pos.MakerVolume += uint64(quote)

	if ev.MakerOut {
		if s := acct.Slots[ev.OwnerSlot]; s.Active {
			releaseClosedSlot(acct, s, 0, int(ev.OwnerSlot))
		}
	}
}

// applyOut releases the funds behind an order removed from the book without
// (further) fills: expiry, peg invalidation or cancel-provide.
func (x *Exchange) applyOut(acct *account.OpenOrders, ev events.Event) {
	s := acct.Slots[ev.OwnerSlot]
	if !s.Active {
		x.log.Warn("out event for inactive slot",
			zap.String("owner", ev.Owner.Hex()),
			zap.Uint8("slot", ev.OwnerSlot),
			zap.Uint64("seq", ev.SeqNum))
		return
	}
	releaseClosedSlot(acct, s, ev.Quantity, int(ev.OwnerSlot))
}

// SettleFunds moves the account's free balances out of the market vaults to
// its owner. The free balances are read once and zeroed; the transfer amount
// can never exceed what earlier deposits and fills put there.
func (x *Exchange) SettleFunds(signer, accountAddr common.Address) error {
	ms, acct, err := x.accountState(accountAddr)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if !acct.IsOwnerOrDelegate(signer) {
		return account.ErrNoOwnerOrDelegate
	}

	m := ms.meta
	pos := &acct.Position
	baseNative := m.BaseLotsToNative(pos.BaseFreeLots)
	quoteNative := m.QuoteLotsToNative(pos.QuoteFreeLots)
	if baseNative == 0 && quoteNative == 0 {
		return nil
	}
	if m.BaseDepositTotal < baseNative || m.QuoteDepositTotal < quoteNative {
		return fmt.Errorf("%w: vault underflow settling %s", engine.ErrInsufficientFunds, accountAddr.Hex())
	}
	pos.BaseFreeLots = 0
	pos.QuoteFreeLots = 0
	m.BaseDepositTotal -= baseNative
	m.QuoteDepositTotal -= quoteNative

	if x.custody != nil {
		if baseNative > 0 {
			if err := x.custody.Credit(acct.Owner, m.BaseVault, baseNative); err != nil {
				return err
			}
		}
		if quoteNative > 0 {
			if err := x.custody.Credit(acct.Owner, m.QuoteVault, quoteNative); err != nil {
				return err
			}
		}
	}
	if err := x.persistMarket(ms); err != nil {
		return err
	}
	if err := x.persistAccount(acct); err != nil {
		return err
	}
	x.log.Info("funds settled",
		zap.String("account", accountAddr.Hex()),
		zap.Uint64("base_native", baseNative),
		zap.Uint64("quote_native", quoteNative))
	return nil
}

// Deposit credits native funds into the account's free balances. Amounts
// must be whole lots; the ledger holds lots only.
func (x *Exchange) Deposit(signer, accountAddr common.Address, baseNative, quoteNative uint64) error {
	ms, acct, err := x.accountState(accountAddr)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if !acct.IsOwnerOrDelegate(signer) {
		return account.ErrNoOwnerOrDelegate
	}

	m := ms.meta
	if baseNative%uint64(m.BaseLotSize) != 0 || quoteNative%uint64(m.QuoteLotSize) != 0 {
		return fmt.Errorf("%w: deposit must be a whole number of lots", market.ErrInvalidInput)
	}
	acct.Position.BaseFreeLots += int64(baseNative / uint64(m.BaseLotSize))
	acct.Position.QuoteFreeLots += int64(quoteNative / uint64(m.QuoteLotSize))
	m.BaseDepositTotal += baseNative
	m.QuoteDepositTotal += quoteNative

	if err := x.persistMarket(ms); err != nil {
		return err
	}
	return x.persistAccount(acct)
}

// SweepFees pays out the market's collected fees to destination. Only the
// fee admin may call it.
func (x *Exchange) SweepFees(signer, marketAddr, destination common.Address) (uint64, error) {
	ms, err := x.state(marketAddr)
	if err != nil {
		return 0, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	m := ms.meta
	if signer != m.CollectFeeAdmin {
		return 0, fmt.Errorf("%w: sweep fees", ErrAdminRequired)
	}
	amount := m.FeesAvailable
	if amount == 0 {
		return 0, nil
	}
	if m.QuoteDepositTotal < amount {
		return 0, fmt.Errorf("%w: fee sweep exceeds vault", engine.ErrInsufficientFunds)
	}
	m.FeesAvailable = 0
	m.QuoteDepositTotal -= amount
	if x.custody != nil {
		if err := x.custody.Credit(destination, m.QuoteVault, amount); err != nil {
			return 0, err
		}
	}
	if err := x.persistMarket(ms); err != nil {
		return 0, err
	}
	x.log.Info("fees swept",
		zap.String("market", marketAddr.Hex()),
		zap.Uint64("amount", amount))
	return amount, nil
}

// PruneOrders force-cancels an account's resting orders on an expired
// market, so the book can drain toward closure without the owner's
// cooperation. Requires the close-market admin.
func (x *Exchange) PruneOrders(signer, accountAddr common.Address, limit int) (int, error) {
	ms, acct, err := x.accountState(accountAddr)
	if err != nil {
		return 0, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	m := ms.meta
	if !m.CloseMarketAdmin.Is(signer) {
		return 0, fmt.Errorf("%w: prune orders", ErrAdminRequired)
	}
	if !m.IsExpired(x.clock.Now().Unix()) {
		return 0, fmt.Errorf("%w: market not expired", market.ErrInvalidInput)
	}
	pruned := x.cancelAccountOrders(ms, acct, nil, limit)
	if pruned == 0 {
		return 0, nil
	}
	return pruned, x.persistAfterCancel(ms, acct)
}

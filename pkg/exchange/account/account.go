// Package account tracks per-owner open orders and settled/locked balances.
package account

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianx/meridian/pkg/exchange/book"
	"github.com/meridianx/meridian/pkg/exchange/keys"
)

// MaxOpenOrders is the fixed number of open-order slots per account, a
// protocol constant baked into the persisted layout.
const MaxOpenOrders = 24

var (
	// ErrNoOwnerOrDelegate means the signer is neither the account owner
	// nor its delegate.
	ErrNoOwnerOrDelegate = errors.New("account: signer is not owner or delegate")
	// ErrSlotsFull means all open-order slots are occupied.
	ErrSlotsFull = errors.New("account: no free open-order slot")
	// ErrNotEmpty guards account closure.
	ErrNotEmpty = errors.New("account: has funds or open orders")
)

// Slot references one resting order on the book. A freed slot is zeroed.
type Slot struct {
	Active   bool
	ID       book.OrderID
	Side     book.Side
	Tree     book.Tree
	ClientID uint64

	// LockedPriceLots is the price basis funds were locked at when the
	// order was posted (the peg limit for pegged orders). Releases on fill,
	// out and cancel all compute from it.
	LockedPriceLots int64
}

// Position is the account's ledger on its market, all amounts in lots.
//
// The free balances are withdrawable via settle_funds; the locked balances
// are committed to resting orders. By construction the locked totals equal
// the sum over the open slots of the quantity actually resting in the book;
// they are never recomputed by scanning the book.
type Position struct {
	BaseFreeLots  int64
	QuoteFreeLots int64

	// LockedBaseLots backs resting asks, LockedQuoteLots resting bids
	// (quantity times the slot's locked price).
	LockedBaseLots  int64
	LockedQuoteLots int64

	// LockedMakerFeesLots is quote locked up-front for positive maker fees
	// on resting bids. Released per fill (capped), swept back to free when
	// the last bid slot closes.
	LockedMakerFeesLots int64

	// ReferrerRebatesAccrued accumulates the taker-fee remainder credited
	// to this account's referrer, in quote lots.
	ReferrerRebatesAccrued int64

	// Cumulative quote-lot volume counters.
	MakerVolume uint64
	TakerVolume uint64
}

// OpenOrders is one (owner, account_num) trading account bound to a market.
type OpenOrders struct {
	// Address is the deterministic account id derived from
	// (owner, market, account number).
	Address common.Address
	Owner   common.Address
	// Delegate may act on the owner's behalf for order placement and
	// cancellation, but not for settlement destination changes.
	Delegate keys.OptionalKey

	Market     common.Address
	AccountNum uint32

	Slots    [MaxOpenOrders]Slot
	Position Position
}

// New creates an empty account.
func New(address, owner common.Address, delegate keys.OptionalKey, market common.Address, accountNum uint32) *OpenOrders {
	return &OpenOrders{
		Address:    address,
		Owner:      owner,
		Delegate:   delegate,
		Market:     market,
		AccountNum: accountNum,
	}
}

// IsOwnerOrDelegate reports whether signer may act on this account.
func (a *OpenOrders) IsOwnerOrDelegate(signer common.Address) bool {
	return signer == a.Owner || a.Delegate.Is(signer)
}

// FindFreeSlot returns the lowest free slot index.
func (a *OpenOrders) FindFreeSlot() (int, error) {
	for i := range a.Slots {
		if !a.Slots[i].Active {
			return i, nil
		}
	}
	return 0, ErrSlotsFull
}

// OpenSlot occupies slot i with a resting order reference.
func (a *OpenOrders) OpenSlot(i int, s Slot) {
	s.Active = true
	a.Slots[i] = s
}

// CloseSlot frees slot i.
func (a *OpenOrders) CloseSlot(i int) {
	a.Slots[i] = Slot{}
}

// SlotByOrderID finds the slot holding the given order id.
func (a *OpenOrders) SlotByOrderID(id book.OrderID) (int, bool) {
	for i := range a.Slots {
		if a.Slots[i].Active && a.Slots[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

// SlotByClientID finds the first active slot with the given client order id.
func (a *OpenOrders) SlotByClientID(clientID uint64) (int, bool) {
	for i := range a.Slots {
		if a.Slots[i].Active && a.Slots[i].ClientID == clientID {
			return i, true
		}
	}
	return 0, false
}

// OpenOrderCount returns the number of occupied slots.
func (a *OpenOrders) OpenOrderCount() int {
	n := 0
	for i := range a.Slots {
		if a.Slots[i].Active {
			n++
		}
	}
	return n
}

// HasBidSlots reports whether any resting bid slot remains. Used to decide
// when locked maker-fee dust can be swept back to the free balance.
func (a *OpenOrders) HasBidSlots() bool {
	for i := range a.Slots {
		if a.Slots[i].Active && a.Slots[i].Side == book.Bid {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the account holds no funds and no open orders;
// only empty accounts can be closed.
func (a *OpenOrders) IsEmpty() bool {
	p := a.Position
	return a.OpenOrderCount() == 0 &&
		p.BaseFreeLots == 0 && p.QuoteFreeLots == 0 &&
		p.LockedBaseLots == 0 && p.LockedQuoteLots == 0 &&
		p.LockedMakerFeesLots == 0
}

// Validate checks ledger invariants. A violation indicates corruption (for
// example concurrent mutation) and the operation observing it must fail
// loudly rather than continue.
func (a *OpenOrders) Validate() error {
	p := a.Position
	if p.BaseFreeLots < 0 || p.QuoteFreeLots < 0 {
		return fmt.Errorf("negative free balance: base=%d quote=%d", p.BaseFreeLots, p.QuoteFreeLots)
	}
	if p.LockedBaseLots < 0 || p.LockedQuoteLots < 0 || p.LockedMakerFeesLots < 0 {
		return fmt.Errorf("negative locked balance: base=%d quote=%d fees=%d",
			p.LockedBaseLots, p.LockedQuoteLots, p.LockedMakerFeesLots)
	}
	if a.OpenOrderCount() == 0 && (p.LockedBaseLots != 0 || p.LockedQuoteLots != 0) {
		return fmt.Errorf("locked balances without open orders: base=%d quote=%d",
			p.LockedBaseLots, p.LockedQuoteLots)
	}
	return nil
}

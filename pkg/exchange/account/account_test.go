package account

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianx/meridian/pkg/exchange/book"
	"github.com/meridianx/meridian/pkg/exchange/keys"
)

func newTestAccount() *OpenOrders {
	return New(
		common.HexToAddress("0x0a"),
		common.HexToAddress("0x0b"),
		keys.None(),
		common.HexToAddress("0x0c"),
		0,
	)
}

func TestOwnerAndDelegate(t *testing.T) {
	owner := common.HexToAddress("0x0b")
	delegate := common.HexToAddress("0x0d")
	stranger := common.HexToAddress("0x0e")

	a := newTestAccount()
	if !a.IsOwnerOrDelegate(owner) {
		t.Fatal("owner rejected")
	}
	if a.IsOwnerOrDelegate(delegate) {
		t.Fatal("non-delegate accepted")
	}

	a.Delegate = keys.Some(delegate)
	if !a.IsOwnerOrDelegate(delegate) {
		t.Fatal("delegate rejected")
	}
	if a.IsOwnerOrDelegate(stranger) {
		t.Fatal("stranger accepted")
	}
}

func TestSlotLifecycle(t *testing.T) {
	a := newTestAccount()

	idx, err := a.FindFreeSlot()
	if err != nil || idx != 0 {
		t.Fatalf("first free slot: %d, %v", idx, err)
	}
	id := book.OrderID{PriceData: 100, Seq: 1}
	a.OpenSlot(idx, Slot{ID: id, Side: book.Bid, ClientID: 7, LockedPriceLots: 100})

	if got, ok := a.SlotByOrderID(id); !ok || got != 0 {
		t.Fatalf("SlotByOrderID: %d, %v", got, ok)
	}
	if got, ok := a.SlotByClientID(7); !ok || got != 0 {
		t.Fatalf("SlotByClientID: %d, %v", got, ok)
	}
	if a.OpenOrderCount() != 1 || !a.HasBidSlots() {
		t.Fatal("slot accounting wrong after open")
	}

	a.CloseSlot(idx)
	if a.OpenOrderCount() != 0 || a.HasBidSlots() {
		t.Fatal("slot accounting wrong after close")
	}
	if _, ok := a.SlotByOrderID(id); ok {
		t.Fatal("closed slot still findable")
	}
}

func TestSlotsFull(t *testing.T) {
	a := newTestAccount()
	for i := 0; i < MaxOpenOrders; i++ {
		idx, err := a.FindFreeSlot()
		if err != nil {
			t.Fatalf("slot %d: %v", i, err)
		}
		a.OpenSlot(idx, Slot{ID: book.OrderID{PriceData: 1, Seq: uint64(i)}, Side: book.Ask})
	}
	if _, err := a.FindFreeSlot(); err != ErrSlotsFull {
		t.Fatalf("got %v, want ErrSlotsFull", err)
	}
}

func TestIsEmpty(t *testing.T) {
	a := newTestAccount()
	if !a.IsEmpty() {
		t.Fatal("fresh account should be empty")
	}
	a.Position.QuoteFreeLots = 5
	if a.IsEmpty() {
		t.Fatal("account with free quote is not empty")
	}
	a.Position.QuoteFreeLots = 0
	a.OpenSlot(0, Slot{ID: book.OrderID{Seq: 1}, Side: book.Ask})
	if a.IsEmpty() {
		t.Fatal("account with open order is not empty")
	}
}

func TestValidate(t *testing.T) {
	a := newTestAccount()
	if err := a.Validate(); err != nil {
		t.Fatalf("fresh account: %v", err)
	}

	a.Position.BaseFreeLots = -1
	if err := a.Validate(); err == nil {
		t.Fatal("negative free balance must fail validation")
	}
	a.Position.BaseFreeLots = 0

	// Locked funds with no open orders is corruption.
	a.Position.LockedQuoteLots = 10
	if err := a.Validate(); err == nil {
		t.Fatal("locked funds without open orders must fail validation")
	}
	a.OpenSlot(0, Slot{ID: book.OrderID{Seq: 1}, Side: book.Bid, LockedPriceLots: 10})
	if err := a.Validate(); err != nil {
		t.Fatalf("consistent account: %v", err)
	}
}

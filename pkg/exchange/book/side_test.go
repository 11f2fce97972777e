package book

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func fixedOrder(side Side, price int64, seq uint64, qty int64) *Order {
	return &Order{
		ID:       OrderID{PriceData: FixedPriceData(price), Seq: seq},
		Side:     side,
		Tree:     TreeFixed,
		Owner:    common.HexToAddress("0xaa"),
		Quantity: qty,
	}
}

func peggedOrder(side Side, offset int64, seq uint64, qty, pegLimit int64) *Order {
	return &Order{
		ID:       OrderID{PriceData: PeggedPriceData(offset), Seq: seq},
		Side:     side,
		Tree:     TreePegged,
		Owner:    common.HexToAddress("0xbb"),
		Quantity: qty,
		PegLimit: pegLimit,
	}
}

func TestPriceTimePriority(t *testing.T) {
	side := NewBookSide(Bid, 16)
	for _, o := range []*Order{
		fixedOrder(Bid, 100, 3, 1),
		fixedOrder(Bid, 105, 4, 1),
		fixedOrder(Bid, 105, 2, 1), // same price, earlier seq: wins
		fixedOrder(Bid, 99, 1, 1),
	} {
		if err := side.Insert(o); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	wantSeq := []uint64{2, 4, 3, 1}
	iter := side.Iter(0, 0, false)
	for i, want := range wantSeq {
		entry, ok := iter.Next()
		if !ok {
			t.Fatalf("iterator ended at %d", i)
		}
		if entry.Order.ID.Seq != want {
			t.Fatalf("position %d: got seq %d, want %d", i, entry.Order.ID.Seq, want)
		}
	}
	if _, ok := iter.Next(); ok {
		t.Fatal("iterator should be exhausted")
	}
}

func TestAskPriorityAscending(t *testing.T) {
	side := NewBookSide(Ask, 16)
	side.Insert(fixedOrder(Ask, 120, 1, 1))
	side.Insert(fixedOrder(Ask, 110, 2, 1))
	side.Insert(fixedOrder(Ask, 130, 3, 1))

	iter := side.Iter(0, 0, false)
	var prices []int64
	for {
		entry, ok := iter.Next()
		if !ok {
			break
		}
		prices = append(prices, entry.PriceLots)
	}
	want := []int64{110, 120, 130}
	for i := range want {
		if prices[i] != want[i] {
			t.Fatalf("got %v, want %v", prices, want)
		}
	}
}

func TestMergedIterationRepricesPegged(t *testing.T) {
	side := NewBookSide(Bid, 16)
	side.Insert(fixedOrder(Bid, 1000, 1, 1))
	side.Insert(peggedOrder(Bid, -5, 2, 1, 2000)) // effective oracle-5

	// Oracle at 1010: pegged bid prices at 1005, beating the fixed 1000.
	iter := side.Iter(0, 1010, true)
	entry, _ := iter.Next()
	if entry.Order.Tree != TreePegged || entry.PriceLots != 1005 {
		t.Fatalf("expected pegged@1005 first, got %s@%d", entry.Order.Tree, entry.PriceLots)
	}
	entry, _ = iter.Next()
	if entry.Order.Tree != TreeFixed || entry.PriceLots != 1000 {
		t.Fatalf("expected fixed@1000 second, got %s@%d", entry.Order.Tree, entry.PriceLots)
	}

	// Oracle at 990: pegged bid reprices to 985 and sorts behind.
	iter = side.Iter(0, 990, true)
	entry, _ = iter.Next()
	if entry.Order.Tree != TreeFixed {
		t.Fatalf("expected fixed first after oracle move, got %s", entry.Order.Tree)
	}
}

func TestPeggedBeyondLimitFlagged(t *testing.T) {
	side := NewBookSide(Bid, 16)
	side.Insert(peggedOrder(Bid, 10, 1, 1, 1000)) // peg limit 1000

	// Oracle at 995: effective 1005 exceeds the bid's upper bound.
	iter := side.Iter(0, 995, true)
	entry, ok := iter.Next()
	if !ok {
		t.Fatal("expected one entry")
	}
	if entry.State != EntryPegInvalid {
		t.Fatalf("got state %d, want EntryPegInvalid", entry.State)
	}
	if entry.PriceLots != 1000 {
		t.Fatalf("invalid entry should clamp to peg limit, got %d", entry.PriceLots)
	}

	// Oracle back at 980: effective 990 is admissible again.
	iter = side.Iter(0, 980, true)
	entry, _ = iter.Next()
	if entry.State != EntryValid || entry.PriceLots != 990 {
		t.Fatalf("got state %d price %d, want valid@990", entry.State, entry.PriceLots)
	}
}

func TestExpiredEntryFlagged(t *testing.T) {
	side := NewBookSide(Ask, 16)
	o := fixedOrder(Ask, 100, 1, 1)
	o.ExpiryTimestamp = 50
	side.Insert(o)

	entry, _ := side.Iter(100, 0, false).Next()
	if entry.State != EntryExpired {
		t.Fatalf("got state %d, want EntryExpired", entry.State)
	}
	// Not yet expired at its own timestamp.
	entry, _ = side.Iter(50, 0, false).Next()
	if entry.State != EntryValid {
		t.Fatalf("order expiring at 50 should be valid at t=50")
	}
}

func TestBookFullRejects(t *testing.T) {
	side := NewBookSide(Bid, 2)
	if err := side.Insert(fixedOrder(Bid, 100, 1, 1)); err != nil {
		t.Fatal(err)
	}
	// Capacity is shared between the fixed and pegged trees.
	if err := side.Insert(peggedOrder(Bid, 0, 2, 1, 100)); err != nil {
		t.Fatal(err)
	}
	if err := side.Insert(fixedOrder(Bid, 101, 3, 1)); err != ErrBookFull {
		t.Fatalf("got %v, want ErrBookFull", err)
	}
	// Removal frees a slot.
	if _, err := side.Remove(OrderID{PriceData: FixedPriceData(100), Seq: 1}, TreeFixed); err != nil {
		t.Fatal(err)
	}
	if err := side.Insert(fixedOrder(Bid, 101, 3, 1)); err != nil {
		t.Fatalf("insert after removal: %v", err)
	}
}

func TestRemoveUnknownOrder(t *testing.T) {
	side := NewBookSide(Ask, 4)
	if _, err := side.Remove(OrderID{PriceData: 1, Seq: 1}, TreeFixed); err != ErrOrderNotFound {
		t.Fatalf("got %v, want ErrOrderNotFound", err)
	}
}

func TestOrderIDStringRoundTrip(t *testing.T) {
	id := OrderID{PriceData: PeggedPriceData(-42), Seq: 7}
	parsed, err := ParseOrderID(id.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: %v vs %v", parsed, id)
	}
	if _, err := ParseOrderID("nonsense"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}

func TestPeggedDataOrdering(t *testing.T) {
	// The shifted encoding must preserve signed offset order.
	if !(PeggedPriceData(-1) < PeggedPriceData(0)) || !(PeggedPriceData(0) < PeggedPriceData(1)) {
		t.Fatal("pegged key encoding does not preserve offset order")
	}
}

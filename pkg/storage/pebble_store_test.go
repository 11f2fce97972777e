package storage

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/meridianx/meridian/pkg/exchange"
	"github.com/meridianx/meridian/pkg/exchange/account"
	"github.com/meridianx/meridian/pkg/exchange/book"
	"github.com/meridianx/meridian/pkg/exchange/events"
	"github.com/meridianx/meridian/pkg/exchange/keys"
	"github.com/meridianx/meridian/pkg/exchange/market"
	"github.com/meridianx/meridian/pkg/exchange/oracle"
)

func openStore(t *testing.T, path string) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStore(path)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func testSnapshot(t *testing.T) exchange.MarketSnapshot {
	t.Helper()
	m, err := market.New(common.HexToAddress("0x100"), market.Config{
		Name:             "BTC-USDC",
		BaseDecimals:     9,
		QuoteDecimals:    6,
		BaseLotSize:      10_000,
		QuoteLotSize:     10,
		MakerFee:         -200,
		TakerFee:         400,
		CollectFeeAdmin:  common.HexToAddress("0x01"),
		CloseMarketAdmin: keys.Some(common.HexToAddress("0x02")),
		OracleA:          keys.Some(common.HexToAddress("0x03")),
		OracleConfig: oracle.Config{
			MaxStalenessSlots: 100,
			ConfFilter:        decimal.NewFromFloat(0.1),
		},
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	m.SeqNum = 7
	m.QuoteDepositTotal = 50_000
	m.MakerRebatesOwed = 20

	return exchange.MarketSnapshot{
		Meta: m,
		Bids: []*book.Order{{
			ID:       book.OrderID{PriceData: book.FixedPriceData(1000), Seq: 5},
			Side:     book.Bid,
			Tree:     book.TreeFixed,
			Owner:    common.HexToAddress("0xaa"),
			Quantity: 3,
		}},
		Asks: []*book.Order{{
			ID:       book.OrderID{PriceData: book.PeggedPriceData(5), Seq: 6},
			Side:     book.Ask,
			Tree:     book.TreePegged,
			Owner:    common.HexToAddress("0xbb"),
			Quantity: 2,
			PegLimit: 900,
		}},
		Events: []events.Event{{
			Type:      events.TypeFill,
			Side:      book.Bid,
			Owner:     common.HexToAddress("0xbb"),
			Quantity:  1,
			PriceLots: 1000,
			SeqNum:    3,
		}},
		EventSeq: 4,
	}
}

func TestMarketStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)

	if err := s.SaveMarketState(testSnapshot(t)); err != nil {
		t.Fatal(err)
	}
	// Reopen to prove the write survived the process.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s = openStore(t, dir)
	defer s.Close()

	snaps, accts, err := s.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || len(accts) != 0 {
		t.Fatalf("loaded %d markets, %d accounts", len(snaps), len(accts))
	}

	got := snaps[0]
	want := testSnapshot(t)
	m := got.Meta
	if m.Address != want.Meta.Address || m.Name != "BTC-USDC" || m.SeqNum != 7 {
		t.Fatalf("meta mismatch: %+v", m)
	}
	if m.QuoteDepositTotal != 50_000 || m.MakerFee != -200 || m.MakerRebatesOwed != 20 {
		t.Fatalf("counters mismatch: %+v", m)
	}
	if key, ok := m.CloseMarketAdmin.Key(); !ok || key != common.HexToAddress("0x02") {
		t.Fatal("close admin lost")
	}
	if m.OpenOrdersAdmin.IsSome() {
		t.Fatal("absent admin resurrected")
	}
	if key, ok := m.OracleA.Key(); !ok || key != common.HexToAddress("0x03") {
		t.Fatal("oracle reference lost")
	}
	if !m.OracleConfig.ConfFilter.Equal(decimal.NewFromFloat(0.1)) {
		t.Fatalf("conf filter = %s", m.OracleConfig.ConfFilter)
	}
	if len(got.Bids) != 1 || *got.Bids[0] != *want.Bids[0] {
		t.Fatalf("bids mismatch: %+v", got.Bids)
	}
	if len(got.Asks) != 1 || got.Asks[0].PegLimit != 900 {
		t.Fatalf("asks mismatch: %+v", got.Asks)
	}
	if got.EventSeq != 4 || len(got.Events) != 1 || got.Events[0].SeqNum != 3 {
		t.Fatalf("events mismatch: seq=%d %+v", got.EventSeq, got.Events)
	}

	if err := s.DeleteMarketState(want.Meta.Address); err != nil {
		t.Fatal(err)
	}
	snaps, _, err = s.LoadAll()
	if err != nil || len(snaps) != 0 {
		t.Fatalf("market survived deletion: %d, %v", len(snaps), err)
	}
}

func TestOpenOrdersRoundTrip(t *testing.T) {
	s := openStore(t, t.TempDir())
	defer s.Close()

	acct := account.New(
		common.HexToAddress("0x0a"),
		common.HexToAddress("0x0b"),
		keys.Some(common.HexToAddress("0x0d")),
		common.HexToAddress("0x100"),
		2,
	)
	acct.Position.QuoteFreeLots = 500
	acct.Position.LockedBaseLots = 3
	acct.OpenSlot(0, account.Slot{
		ID:              book.OrderID{PriceData: book.FixedPriceData(1000), Seq: 9},
		Side:            book.Ask,
		ClientID:        77,
		LockedPriceLots: 1000,
	})

	if err := s.SaveOpenOrders(acct); err != nil {
		t.Fatal(err)
	}
	_, accts, err := s.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(accts) != 1 {
		t.Fatalf("loaded %d accounts", len(accts))
	}
	got := accts[0]
	if got.Address != acct.Address || got.Owner != acct.Owner || got.AccountNum != 2 {
		t.Fatalf("identity mismatch: %+v", got)
	}
	if key, ok := got.Delegate.Key(); !ok || key != common.HexToAddress("0x0d") {
		t.Fatal("delegate lost")
	}
	if got.Position != acct.Position {
		t.Fatalf("position mismatch: %+v", got.Position)
	}
	if got.Slots[0] != acct.Slots[0] || got.OpenOrderCount() != 1 {
		t.Fatalf("slots mismatch: %+v", got.Slots[0])
	}

	if err := s.DeleteOpenOrders(acct.Address); err != nil {
		t.Fatal(err)
	}
	_, accts, _ = s.LoadAll()
	if len(accts) != 0 {
		t.Fatal("account survived deletion")
	}
}

func TestCustodyLedger(t *testing.T) {
	s := openStore(t, t.TempDir())
	defer s.Close()

	dest := common.HexToAddress("0xaa")
	vaultQ := common.HexToAddress("0x01")
	vaultB := common.HexToAddress("0x02")

	if bal, err := s.CustodyBalance(dest, vaultQ); err != nil || bal != 0 {
		t.Fatalf("fresh balance: %d, %v", bal, err)
	}
	if err := s.Credit(dest, vaultQ, 100); err != nil {
		t.Fatal(err)
	}
	if err := s.Credit(dest, vaultQ, 50); err != nil {
		t.Fatal(err)
	}
	if err := s.Credit(dest, vaultB, 7); err != nil {
		t.Fatal(err)
	}
	if bal, _ := s.CustodyBalance(dest, vaultQ); bal != 150 {
		t.Fatalf("quote balance = %d, want 150", bal)
	}
	if bal, _ := s.CustodyBalance(dest, vaultB); bal != 7 {
		t.Fatalf("base balance = %d, want 7", bal)
	}
	// Per-vault balances are independent of each other and of other owners.
	if bal, _ := s.CustodyBalance(common.HexToAddress("0xbb"), vaultQ); bal != 0 {
		t.Fatalf("foreign balance = %d", bal)
	}
}

package exchange

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianx/meridian/pkg/exchange/account"
	"github.com/meridianx/meridian/pkg/exchange/book"
	"github.com/meridianx/meridian/pkg/exchange/engine"
	"github.com/meridianx/meridian/pkg/exchange/events"
	"github.com/meridianx/meridian/pkg/exchange/keys"
	"github.com/meridianx/meridian/pkg/exchange/market"
	"github.com/meridianx/meridian/pkg/exchange/oracle"
)

// manualClock lets tests move wall time and the slot counter independently.
type manualClock struct {
	now  time.Time
	slot uint64
}

func (c *manualClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (c *manualClock) Now() time.Time                         { return c.now }
func (c *manualClock) Slot() uint64                           { return c.slot }

// custodyRecorder captures outbound transfers instead of moving real funds.
type custodyRecorder struct {
	credits map[common.Address]map[common.Address]uint64 // dest -> vault -> amount
}

func newCustodyRecorder() *custodyRecorder {
	return &custodyRecorder{credits: make(map[common.Address]map[common.Address]uint64)}
}

func (c *custodyRecorder) Credit(dest, vault common.Address, amount uint64) error {
	if c.credits[dest] == nil {
		c.credits[dest] = make(map[common.Address]uint64)
	}
	c.credits[dest][vault] += amount
	return nil
}

var (
	feeAdmin   = common.HexToAddress("0xfee")
	closeAdmin = common.HexToAddress("0xc1")
	makerOwner = common.HexToAddress("0xaa")
	takerOwner = common.HexToAddress("0xbb")
)

func testExchange(t *testing.T) (*Exchange, *manualClock, *custodyRecorder) {
	t.Helper()
	clock := &manualClock{now: time.Unix(1_000, 0), slot: 1_000}
	custody := newCustodyRecorder()
	x := New(Options{
		BookCapacity:      64,
		EventCapacity:     32,
		DefaultMatchLimit: 16,
	}, zap.NewNop(), clock, nil, custody)
	return x, clock, custody
}

func baseMarketConfig(name string) market.Config {
	return market.Config{
		Name:             name,
		BaseDecimals:     9,
		QuoteDecimals:    6,
		BaseLotSize:      10_000,
		QuoteLotSize:     10,
		MakerFee:         -200,
		TakerFee:         400,
		CollectFeeAdmin:  feeAdmin,
		CloseMarketAdmin: keys.Some(closeAdmin),
	}
}

// setupTradingPair creates a market and two funded accounts on it.
func setupTradingPair(t *testing.T, x *Exchange, cfg market.Config) (mkt, makerAcct, takerAcct common.Address) {
	t.Helper()
	mkt, err := x.CreateMarket(cfg)
	if err != nil {
		t.Fatal(err)
	}
	makerAcct, err = x.InitOpenOrders(makerOwner, mkt, 0, keys.None())
	if err != nil {
		t.Fatal(err)
	}
	takerAcct, err = x.InitOpenOrders(takerOwner, mkt, 0, keys.None())
	if err != nil {
		t.Fatal(err)
	}
	// 100 base lots for the maker, 100_000 quote lots for the taker.
	if err := x.Deposit(makerOwner, makerAcct, 1_000_000, 0); err != nil {
		t.Fatal(err)
	}
	if err := x.Deposit(takerOwner, takerAcct, 0, 1_000_000); err != nil {
		t.Fatal(err)
	}
	return mkt, makerAcct, takerAcct
}

func limitArgs(signer, acct, mkt common.Address, side book.Side, price, qty int64) PlaceOrderArgs {
	return PlaceOrderArgs{
		Signer:  signer,
		Account: acct,
		Market:  mkt,
		Order: engine.Order{
			Side:                      side,
			PriceLots:                 price,
			MaxBaseLots:               qty,
			MaxQuoteLotsIncludingFees: 1 << 40,
			Type:                      engine.Limit,
		},
	}
}

func TestCreateMarket(t *testing.T) {
	x, _, _ := testExchange(t)

	addr, err := x.CreateMarket(baseMarketConfig("BTC-USDC"))
	if err != nil {
		t.Fatal(err)
	}
	if addr != marketAddress("BTC-USDC") {
		t.Fatal("market address must derive from the name")
	}
	if _, err := x.CreateMarket(baseMarketConfig("BTC-USDC")); err == nil {
		t.Fatal("duplicate market name must fail")
	}
	m, err := x.Market(addr)
	if err != nil || m.Name != "BTC-USDC" {
		t.Fatalf("market lookup: %v", err)
	}

	// Referencing an unregistered oracle feed fails.
	cfg := baseMarketConfig("ETH-USDC")
	cfg.OracleA = keys.Some(common.HexToAddress("0xdead"))
	if _, err := x.CreateMarket(cfg); err == nil {
		t.Fatal("unknown oracle feed must fail market creation")
	}
}

func TestInitOpenOrdersAndDeposit(t *testing.T) {
	x, _, _ := testExchange(t)
	mkt, err := x.CreateMarket(baseMarketConfig("BTC-USDC"))
	if err != nil {
		t.Fatal(err)
	}

	addr, err := x.InitOpenOrders(makerOwner, mkt, 3, keys.None())
	if err != nil {
		t.Fatal(err)
	}
	if addr != OpenOrdersAddress(makerOwner, mkt, 3) {
		t.Fatal("account address must be deterministic")
	}
	if _, err := x.InitOpenOrders(makerOwner, mkt, 3, keys.None()); err == nil {
		t.Fatal("duplicate account must fail")
	}

	// Deposits must be whole lots.
	if err := x.Deposit(makerOwner, addr, 10_001, 0); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("fractional-lot deposit: %v", err)
	}
	if err := x.Deposit(makerOwner, addr, 20_000, 50); err != nil {
		t.Fatal(err)
	}
	acct, err := x.Account(addr)
	if err != nil {
		t.Fatal(err)
	}
	if acct.Position.BaseFreeLots != 2 || acct.Position.QuoteFreeLots != 5 {
		t.Fatalf("deposit lots wrong: %+v", acct.Position)
	}
	m, _ := x.Market(mkt)
	if m.BaseDepositTotal != 20_000 || m.QuoteDepositTotal != 50 {
		t.Fatalf("market deposit totals wrong: %d / %d", m.BaseDepositTotal, m.QuoteDepositTotal)
	}

	// Only the owner or delegate may touch the account.
	if err := x.Deposit(takerOwner, addr, 10_000, 0); !errors.Is(err, account.ErrNoOwnerOrDelegate) {
		t.Fatalf("stranger deposit: %v", err)
	}
}

func TestTradeLifecycle(t *testing.T) {
	x, _, custody := testExchange(t)
	mkt, makerAcct, takerAcct := setupTradingPair(t, x, baseMarketConfig("BTC-USDC"))

	if _, err := x.PlaceOrder(limitArgs(makerOwner, makerAcct, mkt, book.Ask, 1000, 10)); err != nil {
		t.Fatal(err)
	}
	res, err := x.PlaceOrder(limitArgs(takerOwner, takerAcct, mkt, book.Bid, 1000, 10))
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalBaseTakenLots != 10 || res.TotalQuoteTakenLots != 10_000 || res.TakerFeeLots != 4 {
		t.Fatalf("cross result wrong: %+v", res)
	}

	// Maker balances move only at consume time.
	maker, _ := x.Account(makerAcct)
	if maker.Position.QuoteFreeLots != 0 || maker.Position.LockedBaseLots != 10 {
		t.Fatalf("maker settled early: %+v", maker.Position)
	}
	n, err := x.ConsumeEvents(common.Address{}, mkt, 0)
	if err != nil || n != 1 {
		t.Fatalf("consume: %d, %v", n, err)
	}
	maker, _ = x.Account(makerAcct)
	// Proceeds 10*1000 plus the 200 ppm rebate of 2 lots.
	if maker.Position.QuoteFreeLots != 10_002 {
		t.Fatalf("maker quote = %d, want 10002", maker.Position.QuoteFreeLots)
	}
	if maker.Position.LockedBaseLots != 0 || maker.Position.BaseFreeLots != 90 {
		t.Fatalf("maker base wrong: %+v", maker.Position)
	}
	if maker.OpenOrderCount() != 0 {
		t.Fatal("maker slot should be released")
	}

	// Taker fee 40 native accrued; rebate 20 native already paid out.
	m, _ := x.Market(mkt)
	if m.FeesAccrued != 40 || m.FeesAvailable != 20 {
		t.Fatalf("fees accrued=%d available=%d", m.FeesAccrued, m.FeesAvailable)
	}

	// Settle the maker out to custody.
	if err := x.SettleFunds(makerOwner, makerAcct); err != nil {
		t.Fatal(err)
	}
	maker, _ = x.Account(makerAcct)
	if maker.Position.BaseFreeLots != 0 || maker.Position.QuoteFreeLots != 0 {
		t.Fatal("settle must zero free balances")
	}
	if got := custody.credits[makerOwner][m.BaseVault]; got != 900_000 {
		t.Fatalf("base payout = %d, want 900000", got)
	}
	if got := custody.credits[makerOwner][m.QuoteVault]; got != 100_020 {
		t.Fatalf("quote payout = %d, want 100020", got)
	}

	// Sweep the remaining fees.
	if _, err := x.SweepFees(takerOwner, mkt, feeAdmin); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("non-admin sweep: %v", err)
	}
	amount, err := x.SweepFees(feeAdmin, mkt, feeAdmin)
	if err != nil || amount != 20 {
		t.Fatalf("sweep: %d, %v", amount, err)
	}
	if got := custody.credits[feeAdmin][m.QuoteVault]; got != 20 {
		t.Fatalf("fee payout = %d", got)
	}
	m, _ = x.Market(mkt)
	if m.FeesAvailable != 0 || m.MakerRebatesOwed != 0 {
		t.Fatal("swept fees must zero out")
	}
}

// Rebates on queued fills are reserved out of the taker fee at match time, so
// a sweep landing between match and consume can neither pay them out nor push
// FeesAvailable below zero when they are later delivered.
func TestSweepBeforeConsumeKeepsRebates(t *testing.T) {
	x, _, custody := testExchange(t)
	mkt, makerAcct, takerAcct := setupTradingPair(t, x, baseMarketConfig("BTC-USDC"))

	if _, err := x.PlaceOrder(limitArgs(makerOwner, makerAcct, mkt, book.Ask, 1000, 10)); err != nil {
		t.Fatal(err)
	}
	if _, err := x.PlaceOrder(limitArgs(takerOwner, takerAcct, mkt, book.Bid, 1000, 10)); err != nil {
		t.Fatal(err)
	}

	// Taker fee 40 native collected, 20 of it reserved for the maker rebate.
	m, _ := x.Market(mkt)
	if m.FeesAccrued != 40 || m.FeesAvailable != 20 || m.MakerRebatesOwed != 20 {
		t.Fatalf("accrued=%d available=%d owed=%d", m.FeesAccrued, m.FeesAvailable, m.MakerRebatesOwed)
	}

	amount, err := x.SweepFees(feeAdmin, mkt, feeAdmin)
	if err != nil || amount != 20 {
		t.Fatalf("sweep: %d, %v", amount, err)
	}
	if got := custody.credits[feeAdmin][m.QuoteVault]; got != 20 {
		t.Fatalf("fee payout = %d, want 20", got)
	}

	if _, err := x.ConsumeEvents(common.Address{}, mkt, 0); err != nil {
		t.Fatal(err)
	}
	m, _ = x.Market(mkt)
	if m.FeesAvailable != 0 || m.MakerRebatesOwed != 0 {
		t.Fatalf("available=%d owed=%d after consume", m.FeesAvailable, m.MakerRebatesOwed)
	}
	maker, _ := x.Account(makerAcct)
	if maker.Position.QuoteFreeLots != 10_002 {
		t.Fatalf("maker quote = %d, want 10002", maker.Position.QuoteFreeLots)
	}
	if amount, _ := x.SweepFees(feeAdmin, mkt, feeAdmin); amount != 0 {
		t.Fatalf("second sweep = %d, want 0", amount)
	}
}

func TestCancelReleasesFunds(t *testing.T) {
	x, _, _ := testExchange(t)
	mkt, makerAcct, takerAcct := setupTradingPair(t, x, baseMarketConfig("BTC-USDC"))

	res, err := x.PlaceOrder(limitArgs(takerOwner, takerAcct, mkt, book.Bid, 1000, 10))
	if err != nil {
		t.Fatal(err)
	}
	acct, _ := x.Account(takerAcct)
	if acct.Position.LockedQuoteLots != 10_000 {
		t.Fatalf("locked = %d", acct.Position.LockedQuoteLots)
	}

	if err := x.CancelOrder(takerOwner, takerAcct, *res.RestingID); err != nil {
		t.Fatal(err)
	}
	acct, _ = x.Account(takerAcct)
	if acct.Position.LockedQuoteLots != 0 || acct.Position.QuoteFreeLots != 100_000 {
		t.Fatalf("cancel did not release funds: %+v", acct.Position)
	}
	if err := x.CancelOrder(takerOwner, takerAcct, *res.RestingID); !errors.Is(err, book.ErrOrderNotFound) {
		t.Fatalf("double cancel: %v", err)
	}

	// Cancel by client id and bulk cancel.
	args := limitArgs(makerOwner, makerAcct, mkt, book.Ask, 1100, 5)
	args.Order.ClientOrderID = 42
	if _, err := x.PlaceOrder(args); err != nil {
		t.Fatal(err)
	}
	if _, err := x.PlaceOrder(limitArgs(makerOwner, makerAcct, mkt, book.Ask, 1200, 5)); err != nil {
		t.Fatal(err)
	}
	if _, err := x.CancelOrderByClientID(makerOwner, makerAcct, 42); err != nil {
		t.Fatal(err)
	}
	n, err := x.CancelAll(makerOwner, makerAcct, nil, 0)
	if err != nil || n != 1 {
		t.Fatalf("cancel all: %d, %v", n, err)
	}
	acct, _ = x.Account(makerAcct)
	if acct.Position.LockedBaseLots != 0 || acct.Position.BaseFreeLots != 100 {
		t.Fatalf("bulk cancel did not release base: %+v", acct.Position)
	}
}

func TestDelegatePlacement(t *testing.T) {
	x, _, _ := testExchange(t)
	mkt, err := x.CreateMarket(baseMarketConfig("BTC-USDC"))
	if err != nil {
		t.Fatal(err)
	}
	delegate := common.HexToAddress("0xdd")
	acct, err := x.InitOpenOrders(makerOwner, mkt, 0, keys.Some(delegate))
	if err != nil {
		t.Fatal(err)
	}
	if err := x.Deposit(delegate, acct, 0, 100_000); err != nil {
		t.Fatal(err)
	}
	if _, err := x.PlaceOrder(limitArgs(delegate, acct, mkt, book.Bid, 1000, 1)); err != nil {
		t.Fatal(err)
	}
	stranger := common.HexToAddress("0xee")
	if _, err := x.PlaceOrder(limitArgs(stranger, acct, mkt, book.Bid, 1000, 1)); !errors.Is(err, account.ErrNoOwnerOrDelegate) {
		t.Fatalf("stranger placement: %v", err)
	}
}

func TestFillHandlerReceivesEvents(t *testing.T) {
	x, _, _ := testExchange(t)
	mkt, makerAcct, takerAcct := setupTradingPair(t, x, baseMarketConfig("BTC-USDC"))

	var got []events.Event
	x.SetFillHandler(func(addr common.Address, ev events.Event) {
		if addr == mkt {
			got = append(got, ev)
		}
	})

	x.PlaceOrder(limitArgs(makerOwner, makerAcct, mkt, book.Ask, 1000, 10))
	x.PlaceOrder(limitArgs(takerOwner, takerAcct, mkt, book.Bid, 1000, 4))

	if len(got) != 1 || got[0].Type != events.TypeFill || got[0].Quantity != 4 {
		t.Fatalf("handler events: %+v", got)
	}
}

func TestBookLevelsAggregate(t *testing.T) {
	x, _, _ := testExchange(t)
	mkt, makerAcct, takerAcct := setupTradingPair(t, x, baseMarketConfig("BTC-USDC"))

	x.PlaceOrder(limitArgs(makerOwner, makerAcct, mkt, book.Ask, 1000, 3))
	x.PlaceOrder(limitArgs(makerOwner, makerAcct, mkt, book.Ask, 1000, 2))
	x.PlaceOrder(limitArgs(makerOwner, makerAcct, mkt, book.Ask, 1010, 1))
	x.PlaceOrder(limitArgs(takerOwner, takerAcct, mkt, book.Bid, 990, 7))

	asks, err := x.BookLevels(mkt, book.Ask)
	if err != nil {
		t.Fatal(err)
	}
	if len(asks) != 2 || asks[0] != (BookLevel{1000, 5}) || asks[1] != (BookLevel{1010, 1}) {
		t.Fatalf("ask levels: %+v", asks)
	}
	bids, err := x.BookLevels(mkt, book.Bid)
	if err != nil {
		t.Fatal(err)
	}
	if len(bids) != 1 || bids[0] != (BookLevel{990, 7}) {
		t.Fatalf("bid levels: %+v", bids)
	}
}

func TestStubOraclePeggedFlow(t *testing.T) {
	x, clock, _ := testExchange(t)

	stubAddr, err := x.CreateStubOracle(makerOwner, "BTC", decimal.NewFromInt(1000))
	if err != nil {
		t.Fatal(err)
	}
	cfg := baseMarketConfig("BTC-USDC")
	cfg.OracleA = keys.Some(stubAddr)
	cfg.OracleConfig = oracle.Config{MaxStalenessSlots: 100, ConfFilter: decimal.NewFromFloat(0.1)}
	mkt, makerAcct, takerAcct := setupTradingPair(t, x, cfg)

	// Stub at 1000 with these lot sizes and decimals prices one lot per unit.
	args := PlaceOrderArgs{
		Signer:  makerOwner,
		Account: makerAcct,
		Market:  mkt,
		Order: engine.Order{
			Side:                      book.Ask,
			PriceOffsetLots:           5,
			PegLimit:                  900,
			MaxBaseLots:               10,
			MaxQuoteLotsIncludingFees: 1 << 40,
			Type:                      engine.Limit,
		},
	}
	res, err := x.PlaceOrderPegged(args)
	if err != nil {
		t.Fatal(err)
	}
	if res.RestingID == nil {
		t.Fatal("pegged ask should rest")
	}

	// A bid below the effective ask price of 1005 does not cross.
	bid := limitArgs(takerOwner, takerAcct, mkt, book.Bid, 1004, 5)
	bid.Order.Type = engine.ImmediateOrCancel
	res, err = x.PlaceOrder(bid)
	if err != nil || res.TotalBaseTakenLots != 0 {
		t.Fatalf("sub-peg bid matched: %+v, %v", res, err)
	}

	// Oracle moves up; the pegged ask follows to 1505.
	if err := x.SetStubOracle(makerOwner, stubAddr, decimal.NewFromInt(1500), decimal.Zero); err != nil {
		t.Fatal(err)
	}
	bid = limitArgs(takerOwner, takerAcct, mkt, book.Bid, 1505, 5)
	bid.Order.Type = engine.ImmediateOrCancel
	res, err = x.PlaceOrder(bid)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalBaseTakenLots != 5 || res.TotalQuoteTakenLots != 5*1505 {
		t.Fatalf("pegged fill wrong: %+v", res)
	}

	// Oracle drops below the ask's peg limit; the order is swept, not filled.
	if err := x.SetStubOracle(makerOwner, stubAddr, decimal.NewFromInt(800), decimal.Zero); err != nil {
		t.Fatal(err)
	}
	bid = limitArgs(takerOwner, takerAcct, mkt, book.Bid, 2000, 5)
	bid.Order.Type = engine.ImmediateOrCancel
	res, err = x.PlaceOrder(bid)
	if err != nil || res.TotalBaseTakenLots != 0 {
		t.Fatalf("invalidated peg must not fill: %+v, %v", res, err)
	}

	// Consume the fill and the out; all maker base unlocks.
	if _, err := x.ConsumeEvents(common.Address{}, mkt, 0); err != nil {
		t.Fatal(err)
	}
	maker, _ := x.Account(makerAcct)
	if maker.Position.LockedBaseLots != 0 || maker.OpenOrderCount() != 0 {
		t.Fatalf("peg sweep did not release: %+v", maker.Position)
	}
	if maker.Position.BaseFreeLots != 95 {
		t.Fatalf("maker base = %d, want 95", maker.Position.BaseFreeLots)
	}

	// A stale feed blocks all placements on the market.
	clock.slot += 1_000
	if _, err := x.PlaceOrder(limitArgs(takerOwner, takerAcct, mkt, book.Bid, 1000, 1)); !errors.Is(err, oracle.ErrStale) {
		t.Fatalf("stale oracle placement: %v", err)
	}
}

func TestCloseMarket(t *testing.T) {
	x, clock, _ := testExchange(t)
	cfg := baseMarketConfig("BTC-USDC")
	cfg.TimeExpiry = 2_000
	mkt, err := x.CreateMarket(cfg)
	if err != nil {
		t.Fatal(err)
	}

	if err := x.CloseMarket(closeAdmin, mkt); err == nil {
		t.Fatal("closing an unexpired market must fail")
	}
	clock.now = time.Unix(3_000, 0)
	if err := x.CloseMarket(makerOwner, mkt); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("non-admin close: %v", err)
	}
	if err := x.CloseMarket(closeAdmin, mkt); err != nil {
		t.Fatal(err)
	}
	if _, err := x.Market(mkt); err == nil {
		t.Fatal("closed market still registered")
	}
}

func TestCloseMarketBlockedByDeposits(t *testing.T) {
	x, clock, _ := testExchange(t)
	cfg := baseMarketConfig("BTC-USDC")
	cfg.TimeExpiry = 2_000
	mkt, acct, _ := setupTradingPair(t, x, cfg)
	_ = acct

	clock.now = time.Unix(3_000, 0)
	if err := x.CloseMarket(closeAdmin, mkt); !errors.Is(err, market.ErrNotEmpty) {
		t.Fatalf("close with deposits outstanding: %v", err)
	}
}

func TestPruneOrdersOnExpiredMarket(t *testing.T) {
	x, clock, _ := testExchange(t)
	cfg := baseMarketConfig("BTC-USDC")
	cfg.TimeExpiry = 2_000
	mkt, makerAcct, _ := setupTradingPair(t, x, cfg)

	if _, err := x.PlaceOrder(limitArgs(makerOwner, makerAcct, mkt, book.Ask, 1000, 5)); err != nil {
		t.Fatal(err)
	}
	if _, err := x.PruneOrders(closeAdmin, makerAcct, 0); err == nil {
		t.Fatal("pruning an unexpired market must fail")
	}

	clock.now = time.Unix(3_000, 0)
	if _, err := x.PruneOrders(makerOwner, makerAcct, 0); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("non-admin prune: %v", err)
	}
	n, err := x.PruneOrders(closeAdmin, makerAcct, 0)
	if err != nil || n != 1 {
		t.Fatalf("prune: %d, %v", n, err)
	}
	acct, _ := x.Account(makerAcct)
	if acct.Position.LockedBaseLots != 0 || acct.OpenOrderCount() != 0 {
		t.Fatalf("prune did not release: %+v", acct.Position)
	}
}

func TestCloseOpenOrders(t *testing.T) {
	x, _, _ := testExchange(t)
	_, makerAcct, _ := setupTradingPair(t, x, baseMarketConfig("BTC-USDC"))

	if err := x.CloseOpenOrders(makerOwner, makerAcct); !errors.Is(err, account.ErrNotEmpty) {
		t.Fatalf("close funded account: %v", err)
	}
	if err := x.SettleFunds(makerOwner, makerAcct); err != nil {
		t.Fatal(err)
	}
	if err := x.CloseOpenOrders(makerOwner, makerAcct); err != nil {
		t.Fatal(err)
	}
	if _, err := x.Account(makerAcct); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("closed account lookup: %v", err)
	}
}

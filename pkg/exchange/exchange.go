// Package exchange exposes the public operations of the order-book program:
// create markets, init open-orders accounts, place and cancel orders, consume
// events, settle funds, deposit, sweep fees and prune orders.
//
// Every operation executes as one atomic, serialized step against its
// market's state. There is no intra-operation parallelism; a per-market lock
// stands in for the ledger's exclusivity rules when the exchange is run
// standalone.
package exchange

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianx/meridian/pkg/exchange/account"
	"github.com/meridianx/meridian/pkg/exchange/book"
	"github.com/meridianx/meridian/pkg/exchange/engine"
	"github.com/meridianx/meridian/pkg/exchange/events"
	"github.com/meridianx/meridian/pkg/exchange/keys"
	"github.com/meridianx/meridian/pkg/exchange/market"
	"github.com/meridianx/meridian/pkg/exchange/num"
	"github.com/meridianx/meridian/pkg/exchange/oracle"
	"github.com/meridianx/meridian/pkg/util"
)

var (
	// ErrUnknownMarket is returned for operations on unregistered markets.
	ErrUnknownMarket = errors.New("exchange: unknown market")
	// ErrUnknownAccount is returned for operations on unknown open-orders
	// accounts.
	ErrUnknownAccount = errors.New("exchange: unknown open-orders account")
	// ErrAdminRequired means a configured admin key did not sign.
	ErrAdminRequired = errors.New("exchange: admin signature required")
)

// FeedSource is the read interface every oracle feed sits behind; stub
// oracles and production price feeds are interchangeable through it.
type FeedSource interface {
	State() oracle.State
}

// Store persists market state across restarts. Serialization happens at this
// boundary; in-memory structures are never written in place.
type Store interface {
	SaveMarketState(snap MarketSnapshot) error
	DeleteMarketState(addr common.Address) error
	SaveOpenOrders(acct *account.OpenOrders) error
	DeleteOpenOrders(addr common.Address) error
	LoadAll() ([]MarketSnapshot, []*account.OpenOrders, error)
}

// CustodyLedger receives outbound transfers from settle_funds and
// sweep_fees. Vault addresses identify the asset moved.
type CustodyLedger interface {
	Credit(destination, vault common.Address, amount uint64) error
}

// MarketSnapshot is the serialized form of one market's full state.
type MarketSnapshot struct {
	Meta     *market.Market
	Bids     []*book.Order
	Asks     []*book.Order
	Events   []events.Event
	EventSeq uint64
}

// Options bound the per-market data structures and the default compute
// budget.
type Options struct {
	// BookCapacity is the maximum number of resting orders per side
	// (fixed and pegged trees combined).
	BookCapacity int
	// EventCapacity is the event ring buffer size.
	EventCapacity int
	// DefaultMatchLimit bounds maker orders processed per placement when
	// the caller passes no explicit limit.
	DefaultMatchLimit int
}

// marketState is everything one market owns: metadata, both book sides, the
// event queue and its open-orders accounts. Guarded by its own mutex.
type marketState struct {
	mu       sync.Mutex
	meta     *market.Market
	books    *book.Orderbook
	events   *events.Queue
	accounts map[common.Address]*account.OpenOrders
}

// Exchange is the top-level state machine.
type Exchange struct {
	mu sync.RWMutex

	log     *zap.Logger
	clock   util.Clock
	opts    Options
	eng     *engine.Engine
	reg     *market.Registry
	states  map[common.Address]*marketState
	feeds   map[common.Address]FeedSource
	stubs   map[common.Address]*oracle.StubOracle
	store   Store         // optional
	custody CustodyLedger // optional

	// accountIndex maps open-orders addresses to their market.
	accountIndex map[common.Address]common.Address

	onFill func(mkt common.Address, ev events.Event)
}

// New creates an empty exchange. store and custody may be nil.
func New(opts Options, log *zap.Logger, clock util.Clock, store Store, custody CustodyLedger) *Exchange {
	return &Exchange{
		log:          log,
		clock:        clock,
		opts:         opts,
		eng:          engine.New(log),
		reg:          market.NewRegistry(),
		states:       make(map[common.Address]*marketState),
		feeds:        make(map[common.Address]FeedSource),
		stubs:        make(map[common.Address]*oracle.StubOracle),
		store:        store,
		custody:      custody,
		accountIndex: make(map[common.Address]common.Address),
	}
}

// Load rebuilds the exchange from the store, running invariant checks on
// every record. Must be called before serving operations.
func (x *Exchange) Load() error {
	if x.store == nil {
		return nil
	}
	snaps, accts, err := x.store.LoadAll()
	if err != nil {
		return fmt.Errorf("exchange: load: %w", err)
	}
	for _, snap := range snaps {
		ms := &marketState{
			meta:     snap.Meta,
			books:    book.NewOrderbook(x.opts.BookCapacity),
			accounts: make(map[common.Address]*account.OpenOrders),
		}
		for _, o := range snap.Bids {
			if err := ms.books.Bids.Insert(o); err != nil {
				return fmt.Errorf("exchange: load market %s bids: %w", snap.Meta.Address.Hex(), err)
			}
		}
		for _, o := range snap.Asks {
			if err := ms.books.Asks.Insert(o); err != nil {
				return fmt.Errorf("exchange: load market %s asks: %w", snap.Meta.Address.Hex(), err)
			}
		}
		q, err := events.Restore(x.opts.EventCapacity, snap.Events, snap.EventSeq)
		if err != nil {
			return fmt.Errorf("exchange: load market %s events: %w", snap.Meta.Address.Hex(), err)
		}
		ms.events = q
		if err := x.reg.Register(snap.Meta); err != nil {
			return err
		}
		x.states[snap.Meta.Address] = ms
	}
	for _, acct := range accts {
		if err := acct.Validate(); err != nil {
			return fmt.Errorf("exchange: load account %s: %w", acct.Address.Hex(), err)
		}
		ms, ok := x.states[acct.Market]
		if !ok {
			return fmt.Errorf("%w: account %s references market %s",
				ErrUnknownMarket, acct.Address.Hex(), acct.Market.Hex())
		}
		ms.accounts[acct.Address] = acct
		x.accountIndex[acct.Address] = acct.Market
	}
	x.log.Info("exchange state loaded",
		zap.Int("markets", len(snaps)),
		zap.Int("accounts", len(accts)))
	return nil
}

// SetFillHandler installs a callback invoked with every event appended by a
// placement. Used by the gateway's trade stream; never called under the
// market lock holder's error paths.
func (x *Exchange) SetFillHandler(fn func(mkt common.Address, ev events.Event)) {
	x.onFill = fn
}

// CreateMarket validates cfg, derives the market address from its name and
// initializes empty books and event queue. Market names are unique.
func (x *Exchange) CreateMarket(cfg market.Config) (common.Address, error) {
	now := x.clock.Now().Unix()
	addr := marketAddress(cfg.Name)
	m, err := market.New(addr, cfg, now)
	if err != nil {
		return common.Address{}, err
	}
	if key, ok := cfg.OracleA.Key(); ok {
		if _, found := x.feed(key); !found {
			return common.Address{}, fmt.Errorf("%w: unknown oracle feed %s", oracle.ErrInvalidPrice, key.Hex())
		}
	}
	if key, ok := cfg.OracleB.Key(); ok {
		if _, found := x.feed(key); !found {
			return common.Address{}, fmt.Errorf("%w: unknown oracle feed %s", oracle.ErrInvalidPrice, key.Hex())
		}
	}
	if !num.IsPowerOfTen(cfg.BaseLotSize) || !num.IsPowerOfTen(cfg.QuoteLotSize) {
		x.log.Warn("lot size is not a power of ten",
			zap.Int64("base_lot_size", cfg.BaseLotSize),
			zap.Int64("quote_lot_size", cfg.QuoteLotSize))
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.reg.Register(m); err != nil {
		return common.Address{}, err
	}
	ms := &marketState{
		meta:     m,
		books:    book.NewOrderbook(x.opts.BookCapacity),
		events:   events.NewQueue(x.opts.EventCapacity),
		accounts: make(map[common.Address]*account.OpenOrders),
	}
	x.states[addr] = ms
	if err := x.persistMarket(ms); err != nil {
		return common.Address{}, err
	}
	x.log.Info("market created",
		zap.String("name", m.Name),
		zap.String("address", addr.Hex()),
		zap.Int64("base_lot_size", m.BaseLotSize),
		zap.Int64("quote_lot_size", m.QuoteLotSize),
		zap.Int64("maker_fee", m.MakerFee),
		zap.Int64("taker_fee", m.TakerFee))
	return addr, nil
}

// CloseMarket removes an expired, fully drained market. Requires the close
// admin to be configured and to sign.
func (x *Exchange) CloseMarket(signer, marketAddr common.Address) error {
	ms, err := x.state(marketAddr)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	m := ms.meta
	if !m.CloseMarketAdmin.Is(signer) {
		return fmt.Errorf("%w: close market", ErrAdminRequired)
	}
	if !m.IsExpired(x.clock.Now().Unix()) {
		return fmt.Errorf("%w: market not expired", market.ErrNotEmpty)
	}
	if !m.IsEmpty() || ms.books.Bids.Len() > 0 || ms.books.Asks.Len() > 0 || ms.events.Len() > 0 {
		return market.ErrNotEmpty
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.reg.Remove(marketAddr); err != nil {
		return err
	}
	delete(x.states, marketAddr)
	for addr, mkt := range x.accountIndex {
		if mkt == marketAddr {
			delete(x.accountIndex, addr)
		}
	}
	if x.store != nil {
		if err := x.store.DeleteMarketState(marketAddr); err != nil {
			return err
		}
	}
	x.log.Info("market closed", zap.String("address", marketAddr.Hex()))
	return nil
}

// InitOpenOrders creates the (owner, market, accountNum) trading account at
// its deterministic address.
func (x *Exchange) InitOpenOrders(owner common.Address, marketAddr common.Address, accountNum uint32, delegate keys.OptionalKey) (common.Address, error) {
	ms, err := x.state(marketAddr)
	if err != nil {
		return common.Address{}, err
	}
	addr := OpenOrdersAddress(owner, marketAddr, accountNum)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, exists := ms.accounts[addr]; exists {
		return common.Address{}, fmt.Errorf("%w: account %s already initialized", market.ErrInvalidInput, addr.Hex())
	}
	acct := account.New(addr, owner, delegate, marketAddr, accountNum)
	ms.accounts[addr] = acct

	x.mu.Lock()
	x.accountIndex[addr] = marketAddr
	x.mu.Unlock()

	if err := x.persistAccount(acct); err != nil {
		return common.Address{}, err
	}
	x.log.Info("open orders account initialized",
		zap.String("owner", owner.Hex()),
		zap.String("account", addr.Hex()),
		zap.Uint32("account_num", accountNum))
	return addr, nil
}

// CloseOpenOrders destroys an empty account.
func (x *Exchange) CloseOpenOrders(signer, accountAddr common.Address) error {
	ms, acct, err := x.accountState(accountAddr)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if acct.Owner != signer {
		return account.ErrNoOwnerOrDelegate
	}
	if !acct.IsEmpty() {
		return account.ErrNotEmpty
	}
	delete(ms.accounts, accountAddr)
	x.mu.Lock()
	delete(x.accountIndex, accountAddr)
	x.mu.Unlock()
	if x.store != nil {
		return x.store.DeleteOpenOrders(accountAddr)
	}
	return nil
}

// Market returns a market's metadata.
func (x *Exchange) Market(addr common.Address) (*market.Market, error) {
	return x.reg.Get(addr)
}

// Markets lists all live markets.
func (x *Exchange) Markets() []*market.Market {
	return x.reg.List()
}

// Account returns a copy of an open-orders account.
func (x *Exchange) Account(addr common.Address) (account.OpenOrders, error) {
	ms, acct, err := x.accountState(addr)
	if err != nil {
		return account.OpenOrders{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return *acct, nil
}

// BookLevel is one aggregated price level of a book snapshot.
type BookLevel struct {
	PriceLots int64
	Quantity  int64
}

// BookLevels aggregates a market's resting orders per price, best first.
// Pegged orders are priced against the current oracle; currently invalid
// ones are skipped.
func (x *Exchange) BookLevels(marketAddr common.Address, side book.Side) ([]BookLevel, error) {
	ms, err := x.state(marketAddr)
	if err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	oracleLots, hasOracle, err := x.oraclePriceLots(ms.meta)
	if err != nil {
		// Stale oracles degrade the snapshot, not the endpoint: fixed
		// orders are still shown.
		hasOracle = false
	}
	now := x.clock.Now().Unix()
	var out []BookLevel
	iter := ms.books.SideOf(side).Iter(now, oracleLots, hasOracle)
	for {
		entry, ok := iter.Next()
		if !ok {
			break
		}
		if entry.State != book.EntryValid {
			continue
		}
		if n := len(out); n > 0 && out[n-1].PriceLots == entry.PriceLots {
			out[n-1].Quantity += entry.Order.Quantity
		} else {
			out = append(out, BookLevel{PriceLots: entry.PriceLots, Quantity: entry.Order.Quantity})
		}
	}
	return out, nil
}

// EventCount returns the number of undelivered events for a market.
func (x *Exchange) EventCount(marketAddr common.Address) (int, error) {
	ms, err := x.state(marketAddr)
	if err != nil {
		return 0, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.events.Len(), nil
}

// OpenOrdersAddress derives the deterministic account address for
// (owner, market, accountNum).
func OpenOrdersAddress(owner, marketAddr common.Address, accountNum uint32) common.Address {
	var num [4]byte
	binary.LittleEndian.PutUint32(num[:], accountNum)
	h := crypto.Keccak256([]byte("open-orders:"), owner.Bytes(), marketAddr.Bytes(), num[:])
	return common.BytesToAddress(h[12:])
}

func marketAddress(name string) common.Address {
	h := crypto.Keccak256([]byte("market:"), []byte(name))
	return common.BytesToAddress(h[12:])
}

func (x *Exchange) state(addr common.Address) (*marketState, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ms, ok := x.states[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, addr.Hex())
	}
	return ms, nil
}

func (x *Exchange) accountState(addr common.Address) (*marketState, *account.OpenOrders, error) {
	x.mu.RLock()
	marketAddr, ok := x.accountIndex[addr]
	var ms *marketState
	if ok {
		ms = x.states[marketAddr]
	}
	x.mu.RUnlock()
	if !ok || ms == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownAccount, addr.Hex())
	}
	// The account pointer is stable; mutations happen under ms.mu.
	ms.mu.Lock()
	acct := ms.accounts[addr]
	ms.mu.Unlock()
	if acct == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownAccount, addr.Hex())
	}
	return ms, acct, nil
}

func (x *Exchange) feed(addr common.Address) (FeedSource, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	f, ok := x.feeds[addr]
	return f, ok
}

// oraclePriceLots reads and validates the market's feed(s) and converts the
// price to lots. hasOracle=false on markets without a feed.
func (x *Exchange) oraclePriceLots(m *market.Market) (int64, bool, error) {
	if !m.HasOracle() {
		return 0, false, nil
	}
	nowSlot := x.clock.Slot()
	aKey, _ := m.OracleA.Key()
	feedA, ok := x.feed(aKey)
	if !ok {
		return 0, true, fmt.Errorf("%w: feed %s not registered", oracle.ErrInvalidPrice, aKey.Hex())
	}
	var price decimal.Decimal
	var err error
	if bKey, hasB := m.OracleB.Key(); hasB {
		feedB, okB := x.feed(bKey)
		if !okB {
			return 0, true, fmt.Errorf("%w: feed %s not registered", oracle.ErrInvalidPrice, bKey.Hex())
		}
		price, err = oracle.PriceFromFeeds(feedA.State(), feedB.State(), m.OracleConfig, nowSlot, m.BaseDecimals, m.QuoteDecimals)
	} else {
		price, err = oracle.Price(feedA.State(), m.OracleConfig, nowSlot, m.BaseDecimals, m.QuoteDecimals)
	}
	if err != nil {
		return 0, true, err
	}
	lots, err := m.NativePriceToLot(price)
	if err != nil {
		return 0, true, err
	}
	if lots <= 0 {
		return 0, true, fmt.Errorf("%w: oracle price rounds to zero lots", oracle.ErrInvalidPrice)
	}
	return lots, true, nil
}

func (x *Exchange) persistMarket(ms *marketState) error {
	if x.store == nil {
		return nil
	}
	return x.store.SaveMarketState(MarketSnapshot{
		Meta:     ms.meta,
		Bids:     ms.books.Bids.Orders(),
		Asks:     ms.books.Asks.Orders(),
		Events:   ms.events.Events(),
		EventSeq: ms.events.SeqNum(),
	})
}

func (x *Exchange) persistAccount(acct *account.OpenOrders) error {
	if x.store == nil {
		return nil
	}
	return x.store.SaveOpenOrders(acct)
}

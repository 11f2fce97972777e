package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianx/meridian/pkg/exchange/account"
	"github.com/meridianx/meridian/pkg/exchange/market"
	"github.com/meridianx/meridian/pkg/exchange/oracle"
)

// RegisterFeed makes an external price feed addressable by markets. Feeds
// must be registered before a market referencing them is created.
func (x *Exchange) RegisterFeed(addr common.Address, feed FeedSource) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.feeds[addr]; exists {
		return fmt.Errorf("%w: feed %s already registered", market.ErrInvalidInput, addr.Hex())
	}
	x.feeds[addr] = feed
	return nil
}

// StubOracleAddress derives the deterministic address of an owner's stub
// feed for a symbol.
func StubOracleAddress(owner common.Address, symbol string) common.Address {
	h := crypto.Keccak256([]byte("stub-oracle:"), owner.Bytes(), []byte(symbol))
	return common.BytesToAddress(h[12:])
}

// CreateStubOracle registers an owner-settable price feed, used on test
// markets and in local setups without a real feed.
func (x *Exchange) CreateStubOracle(owner common.Address, symbol string, price decimal.Decimal) (common.Address, error) {
	addr := StubOracleAddress(owner, symbol)
	stub := oracle.NewStubOracle(owner, price, x.clock.Slot())

	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.feeds[addr]; exists {
		return common.Address{}, fmt.Errorf("%w: feed %s already registered", market.ErrInvalidInput, addr.Hex())
	}
	x.feeds[addr] = stub
	x.stubs[addr] = stub
	x.log.Info("stub oracle created",
		zap.String("owner", owner.Hex()),
		zap.String("symbol", symbol),
		zap.String("address", addr.Hex()))
	return addr, nil
}

// SetStubOracle updates a stub feed's price and deviation. Owner only.
func (x *Exchange) SetStubOracle(signer, addr common.Address, price, deviation decimal.Decimal) error {
	x.mu.RLock()
	stub, ok := x.stubs[addr]
	x.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no stub oracle at %s", market.ErrInvalidInput, addr.Hex())
	}
	if stub.Owner != signer {
		return account.ErrNoOwnerOrDelegate
	}
	stub.Set(price, deviation, x.clock.Slot())
	return nil
}

// CloseStubOracle removes a stub feed. Markets still referencing it will
// reject placements until it is recreated.
func (x *Exchange) CloseStubOracle(signer, addr common.Address) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	stub, ok := x.stubs[addr]
	if !ok {
		return fmt.Errorf("%w: no stub oracle at %s", market.ErrInvalidInput, addr.Hex())
	}
	if stub.Owner != signer {
		return account.ErrNoOwnerOrDelegate
	}
	delete(x.stubs, addr)
	delete(x.feeds, addr)
	return nil
}

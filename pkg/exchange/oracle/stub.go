package oracle

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// StubOracle is an admin-controlled price feed, substitutable for a real feed
// behind the same State interface. Used on test markets and by market-close
// tooling.
type StubOracle struct {
	mu sync.RWMutex

	Owner common.Address
	state State
}

// NewStubOracle creates a stub feed owned by owner with an initial price.
func NewStubOracle(owner common.Address, price decimal.Decimal, nowSlot uint64) *StubOracle {
	return &StubOracle{
		Owner: owner,
		state: State{Price: price, Deviation: decimal.Zero, LastUpdateSlot: nowSlot},
	}
}

// Set overwrites price and deviation and stamps the update slot.
func (s *StubOracle) Set(price, deviation decimal.Decimal, nowSlot uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{Price: price, Deviation: deviation, LastUpdateSlot: nowSlot}
}

// State returns the current feed observation.
func (s *StubOracle) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

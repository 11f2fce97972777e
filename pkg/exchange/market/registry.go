package market

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry manages the metadata of all live markets in a thread-safe manner.
// The matching state (books, event queues) lives with the exchange; the
// registry only answers metadata lookups and listings.
type Registry struct {
	mu      sync.RWMutex
	markets map[common.Address]*Market
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{markets: make(map[common.Address]*Market)}
}

// Register adds a new market. Returns an error if the address is taken.
func (r *Registry) Register(m *Market) error {
	if m == nil {
		return fmt.Errorf("%w: nil market", ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.markets[m.Address]; exists {
		return fmt.Errorf("%w: market %s already registered", ErrInvalidInput, m.Address.Hex())
	}
	r.markets[m.Address] = m
	return nil
}

// Get retrieves a market by address.
func (r *Registry) Get(addr common.Address) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, exists := r.markets[addr]
	if !exists {
		return nil, fmt.Errorf("%w: market %s not found", ErrInvalidInput, addr.Hex())
	}
	return m, nil
}

// List returns all registered markets in a stable (address) order.
func (r *Registry) List() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Hex() < out[j].Address.Hex()
	})
	return out
}

// Remove deletes a closed market from the registry. The caller is
// responsible for having verified expiry and emptiness.
func (r *Registry) Remove(addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.markets[addr]; !exists {
		return fmt.Errorf("%w: market %s not found", ErrInvalidInput, addr.Hex())
	}
	delete(r.markets, addr)
	return nil
}

// Count returns the number of registered markets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}

// Exists checks whether a market is registered.
func (r *Registry) Exists(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.markets[addr]
	return ok
}

// Package keys provides an explicit optional wrapper for addresses.
//
// Persisted records encode an absent key as the zero address; that sentinel
// stays confined to the (de)serialization boundary, everything above it works
// with OptionalKey.
package keys

import "github.com/ethereum/go-ethereum/common"

// OptionalKey is Some(address) or None.
type OptionalKey struct {
	key   common.Address
	valid bool
}

// Some wraps an address. Some(zero address) is None.
func Some(key common.Address) OptionalKey {
	if key == (common.Address{}) {
		return OptionalKey{}
	}
	return OptionalKey{key: key, valid: true}
}

// None is the absent key.
func None() OptionalKey { return OptionalKey{} }

// FromSentinel decodes the persisted zero-sentinel form.
func FromSentinel(key common.Address) OptionalKey { return Some(key) }

// IsSome reports whether a key is present.
func (o OptionalKey) IsSome() bool { return o.valid }

// IsNone reports whether the key is absent.
func (o OptionalKey) IsNone() bool { return !o.valid }

// Key returns the wrapped address; ok=false when absent.
func (o OptionalKey) Key() (common.Address, bool) { return o.key, o.valid }

// Is reports whether the key is present and equal to addr.
func (o OptionalKey) Is(addr common.Address) bool { return o.valid && o.key == addr }

// Sentinel re-encodes for persistence: the address, or zero when absent.
func (o OptionalKey) Sentinel() common.Address {
	if !o.valid {
		return common.Address{}
	}
	return o.key
}

// Package storage persists exchange state in pebble and doubles as the
// custody ledger for settled funds.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianx/meridian/pkg/exchange"
	"github.com/meridianx/meridian/pkg/exchange/account"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}
func (s *PebbleStore) Close() error { return s.db.Close() }

// SaveMarketState writes one market's full snapshot: metadata, both book
// sides and the pending event queue, as a single record so restarts never
// see a half-written market.
func (s *PebbleStore) SaveMarketState(snap exchange.MarketSnapshot) error {
	val, err := encodeGob(newMarketRecord(snap))
	if err != nil {
		return fmt.Errorf("encode market %s: %w", snap.Meta.Address.Hex(), err)
	}
	if err := s.db.Set(marketKey(snap.Meta.Address), val, pebble.Sync); err != nil {
		return fmt.Errorf("save market %s: %w", snap.Meta.Address.Hex(), err)
	}
	return nil
}

func (s *PebbleStore) DeleteMarketState(addr common.Address) error {
	if err := s.db.Delete(marketKey(addr), pebble.Sync); err != nil {
		return fmt.Errorf("delete market %s: %w", addr.Hex(), err)
	}
	return nil
}

func (s *PebbleStore) SaveOpenOrders(acct *account.OpenOrders) error {
	data, err := json.Marshal(newOpenOrdersRecord(acct))
	if err != nil {
		return fmt.Errorf("marshal account %s: %w", acct.Address.Hex(), err)
	}
	if err := s.db.Set(openOrdersKey(acct.Address), data, pebble.Sync); err != nil {
		return fmt.Errorf("save account %s: %w", acct.Address.Hex(), err)
	}
	return nil
}

func (s *PebbleStore) DeleteOpenOrders(addr common.Address) error {
	if err := s.db.Delete(openOrdersKey(addr), pebble.Sync); err != nil {
		return fmt.Errorf("delete account %s: %w", addr.Hex(), err)
	}
	return nil
}

// LoadAll reads every market snapshot and open-orders account.
func (s *PebbleStore) LoadAll() ([]exchange.MarketSnapshot, []*account.OpenOrders, error) {
	var snaps []exchange.MarketSnapshot
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefixMarket,
		UpperBound: keyUpperBound(prefixMarket),
	})
	if err != nil {
		return nil, nil, err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		var rec marketRecord
		if err := decodeGob(iter.Value(), &rec); err != nil {
			iter.Close()
			return nil, nil, fmt.Errorf("decode market record: %w", err)
		}
		snaps = append(snaps, rec.snapshot())
	}
	if err := iter.Close(); err != nil {
		return nil, nil, err
	}

	var accts []*account.OpenOrders
	iter, err = s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefixOpenOrders,
		UpperBound: keyUpperBound(prefixOpenOrders),
	})
	if err != nil {
		return nil, nil, err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		var rec openOrdersRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			iter.Close()
			return nil, nil, fmt.Errorf("decode account record: %w", err)
		}
		accts = append(accts, rec.account())
	}
	if err := iter.Close(); err != nil {
		return nil, nil, err
	}
	return snaps, accts, nil
}

// Credit adds amount to the (destination, vault) custody balance. Called by
// settle_funds and sweep_fees with amounts already deducted from the market
// deposit totals.
func (s *PebbleStore) Credit(destination, vault common.Address, amount uint64) error {
	key := custodyKey(destination, vault)
	balance, err := s.readUint64(key)
	if err != nil {
		return err
	}
	var val [8]byte
	binary.BigEndian.PutUint64(val[:], balance+amount)
	if err := s.db.Set(key, val[:], pebble.Sync); err != nil {
		return fmt.Errorf("credit %s: %w", destination.Hex(), err)
	}
	return nil
}

// CustodyBalance returns the accumulated settled balance of destination in
// vault's asset.
func (s *PebbleStore) CustodyBalance(destination, vault common.Address) (uint64, error) {
	return s.readUint64(custodyKey(destination, vault))
}

func (s *PebbleStore) readUint64(key []byte) (uint64, error) {
	val, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("storage: malformed uint64 record, %d bytes", len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}

var (
	_ exchange.Store         = (*PebbleStore)(nil)
	_ exchange.CustodyLedger = (*PebbleStore)(nil)
)

package storage

import (
	"bytes"
	"encoding/gob"

	"github.com/ethereum/go-ethereum/common"
)

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

// keys: m:<20-byte-market>, oo:<20-byte-account>, l:<vault><destination>
var (
	prefixMarket     = []byte("m:")
	prefixOpenOrders = []byte("oo:")
	prefixCustody    = []byte("l:")
)

func marketKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixMarket...), addr.Bytes()...)
}

func openOrdersKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixOpenOrders...), addr.Bytes()...)
}

func custodyKey(destination, vault common.Address) []byte {
	k := append(append([]byte{}, prefixCustody...), vault.Bytes()...)
	return append(k, destination.Bytes()...)
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

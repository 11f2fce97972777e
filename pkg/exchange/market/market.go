// Package market holds per-market configuration and counters consumed by the
// matching core: lot sizes, fee rates, oracle references, admin keys, the
// order-id sequence and the fee/volume/deposit accumulators.
package market

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/meridianx/meridian/pkg/exchange/book"
	"github.com/meridianx/meridian/pkg/exchange/keys"
	"github.com/meridianx/meridian/pkg/exchange/num"
	"github.com/meridianx/meridian/pkg/exchange/oracle"
)

var (
	// ErrInvalidInput covers malformed market parameters.
	ErrInvalidInput = errors.New("market: invalid input")
	// ErrExpired means the market is past its expiry and rejects trading.
	ErrExpired = errors.New("market: expired")
	// ErrNotEmpty guards market closure.
	ErrNotEmpty = errors.New("market: deposits or fees outstanding")
)

// maxNameLen matches the fixed name field of the persisted record.
const maxNameLen = 16

// Market is the metadata record of one trading pair. Lot sizes and fee rates
// never change after creation; the counters are mutated by every match and
// fund movement.
type Market struct {
	// Address identifies the market; vault and book references derive from
	// it deterministically.
	Address common.Address
	Name    string

	// Decimals of the underlying native units, used to scale oracle prices
	// into native/native prices.
	BaseDecimals  uint8
	QuoteDecimals uint8

	// TimeExpiry of 0 means the market never expires. No trading is allowed
	// after expiry; an expired and empty market can be closed.
	TimeExpiry int64

	// CollectFeeAdmin may sweep accrued fees. The optional admins gate
	// order placement, event consumption and market closure respectively.
	CollectFeeAdmin    common.Address
	OpenOrdersAdmin    keys.OptionalKey
	ConsumeEventsAdmin keys.OptionalKey
	CloseMarketAdmin   keys.OptionalKey

	// QuoteLotSize and BaseLotSize are the native units per lot, both
	// positive and conventionally powers of ten.
	QuoteLotSize int64
	BaseLotSize  int64

	// SeqNum counts every order ever seen; order ids derive from it.
	SeqNum uint64

	RegistrationTime int64

	// MakerFee and TakerFee are in parts-per-million of the quote amount.
	// TakerFee is always >= 0; a negative MakerFee is a rebate funded out
	// of the taker fee, so |MakerFee| <= TakerFee.
	MakerFee int64
	TakerFee int64

	// Fee accumulators in quote native units. MakerRebatesOwed is the part
	// of collected taker fees reserved for rebates on fills still in the
	// event queue; it never enters FeesAvailable, so a sweep cannot pay out
	// quote the queue still owes to makers.
	FeesAccrued            uint64
	FeesAvailable          uint64
	MakerRebatesOwed       uint64
	ReferrerRebatesAccrued uint64

	// MakerVolume is cumulative matched volume in quote native units.
	MakerVolume uint64

	// Custody vault references and their running native totals.
	BaseVault         common.Address
	QuoteVault        common.Address
	BaseDepositTotal  uint64
	QuoteDepositTotal uint64

	// OracleA alone prices the market directly; with OracleB set the price
	// is the ratio a/b with propagated uncertainty.
	OracleA      keys.OptionalKey
	OracleB      keys.OptionalKey
	OracleConfig oracle.Config
}

// Config are the creation parameters of a market.
type Config struct {
	Name          string
	BaseDecimals  uint8
	QuoteDecimals uint8
	QuoteLotSize  int64
	BaseLotSize   int64
	MakerFee      int64
	TakerFee      int64
	TimeExpiry    int64

	CollectFeeAdmin    common.Address
	OpenOrdersAdmin    keys.OptionalKey
	ConsumeEventsAdmin keys.OptionalKey
	CloseMarketAdmin   keys.OptionalKey

	OracleA      keys.OptionalKey
	OracleB      keys.OptionalKey
	OracleConfig oracle.Config
}

// New validates cfg and creates the market record.
func New(address common.Address, cfg Config, now int64) (*Market, error) {
	if cfg.Name == "" || len(cfg.Name) > maxNameLen {
		return nil, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidInput, maxNameLen)
	}
	if cfg.QuoteLotSize <= 0 || cfg.BaseLotSize <= 0 {
		return nil, fmt.Errorf("%w: lot sizes must be positive", ErrInvalidInput)
	}
	if cfg.TakerFee < 0 || cfg.TakerFee > num.FeesScaleFactor {
		return nil, fmt.Errorf("%w: taker fee %d out of range", ErrInvalidInput, cfg.TakerFee)
	}
	if cfg.MakerFee < 0 && -cfg.MakerFee > cfg.TakerFee {
		return nil, fmt.Errorf("%w: maker rebate %d exceeds taker fee %d",
			ErrInvalidInput, cfg.MakerFee, cfg.TakerFee)
	}
	if cfg.MakerFee > num.FeesScaleFactor {
		return nil, fmt.Errorf("%w: maker fee %d out of range", ErrInvalidInput, cfg.MakerFee)
	}
	if cfg.TimeExpiry != 0 && cfg.TimeExpiry <= now {
		return nil, fmt.Errorf("%w: expiry %d is in the past", ErrInvalidInput, cfg.TimeExpiry)
	}
	if cfg.OracleB.IsSome() && cfg.OracleA.IsNone() {
		return nil, fmt.Errorf("%w: oracle b without oracle a", ErrInvalidInput)
	}
	return &Market{
		Address:            address,
		Name:               cfg.Name,
		BaseDecimals:       cfg.BaseDecimals,
		QuoteDecimals:      cfg.QuoteDecimals,
		TimeExpiry:         cfg.TimeExpiry,
		CollectFeeAdmin:    cfg.CollectFeeAdmin,
		OpenOrdersAdmin:    cfg.OpenOrdersAdmin,
		ConsumeEventsAdmin: cfg.ConsumeEventsAdmin,
		CloseMarketAdmin:   cfg.CloseMarketAdmin,
		QuoteLotSize:       cfg.QuoteLotSize,
		BaseLotSize:        cfg.BaseLotSize,
		RegistrationTime:   now,
		MakerFee:           cfg.MakerFee,
		TakerFee:           cfg.TakerFee,
		BaseVault:          vaultAddress(address, "base"),
		QuoteVault:         vaultAddress(address, "quote"),
		OracleA:            cfg.OracleA,
		OracleB:            cfg.OracleB,
		OracleConfig:       cfg.OracleConfig,
	}, nil
}

// vaultAddress derives a custody vault reference from the market address,
// the same way the open-orders account addresses are derived from their
// owners.
func vaultAddress(market common.Address, kind string) common.Address {
	h := crypto.Keccak256(market.Bytes(), []byte("vault:"), []byte(kind))
	return common.BytesToAddress(h[12:])
}

// IsExpired reports whether the market rejects trading at now.
func (m *Market) IsExpired(now int64) bool {
	return m.TimeExpiry != 0 && m.TimeExpiry < now
}

// IsEmpty reports whether all deposits, sweepable fees and reserved rebates
// have left the market. Only empty, expired markets can be closed.
// ReferrerRebatesAccrued is a cumulative counter and does not block closure.
func (m *Market) IsEmpty() bool {
	return m.BaseDepositTotal == 0 &&
		m.QuoteDepositTotal == 0 &&
		m.FeesAvailable == 0 &&
		m.MakerRebatesOwed == 0
}

// HasOracle reports whether the market prices against a feed.
func (m *Market) HasOracle() bool { return m.OracleA.IsSome() }

// GenOrderID advances the sequence number and derives a unique order id for
// a new resting order.
func (m *Market) GenOrderID(priceData uint64) book.OrderID {
	m.SeqNum++
	return book.OrderID{PriceData: priceData, Seq: m.SeqNum}
}

// MaxBaseLots is the largest representable base quantity in lots.
func (m *Market) MaxBaseLots() int64 { return int64(^uint64(0)>>1) / m.BaseLotSize }

// MaxQuoteLots is the largest representable quote quantity in lots.
func (m *Market) MaxQuoteLots() int64 { return int64(^uint64(0)>>1) / m.QuoteLotSize }

// LotToNativePrice converts a book price into a native/native price.
func (m *Market) LotToNativePrice(priceLots int64) decimal.Decimal {
	return num.LotToNativePrice(priceLots, m.QuoteLotSize, m.BaseLotSize)
}

// NativePriceToLot converts a native/native price (e.g. a validated oracle
// price) into a book price in lots. Fails with oracle.ErrInvalidPrice when
// the conversion overflows.
func (m *Market) NativePriceToLot(price decimal.Decimal) (int64, error) {
	lots, err := num.NativePriceToLot(price, m.QuoteLotSize, m.BaseLotSize)
	if err != nil {
		return 0, fmt.Errorf("%w: price %s does not fit in lots", oracle.ErrInvalidPrice, price)
	}
	return lots, nil
}

// SubtractTakerFees shrinks a quote budget to its matchable portion, leaving
// room for the taker fee charged on top.
func (m *Market) SubtractTakerFees(quoteLots int64) int64 {
	return num.SubtractTakerFees(quoteLots, m.TakerFee)
}

// TakerFeesCeil is the taker fee on amount, rounded against the taker.
func (m *Market) TakerFeesCeil(amount int64) int64 {
	return num.TakerFeesCeil(amount, m.TakerFee)
}

// MakerFeesCeil is the fee a maker owes on amount (zero unless MakerFee>0).
func (m *Market) MakerFeesCeil(amount int64) int64 {
	return num.MakerFeesCeil(amount, m.MakerFee)
}

// MakerRebateFloor is the rebate a maker earns on amount (zero unless
// MakerFee<0), rounded in favor of the market.
func (m *Market) MakerRebateFloor(amount int64) int64 {
	return num.MakerRebateFloor(amount, m.MakerFee)
}

// QuoteLotsToNative converts quote lots to native units.
func (m *Market) QuoteLotsToNative(lots int64) uint64 {
	return uint64(lots) * uint64(m.QuoteLotSize)
}

// BaseLotsToNative converts base lots to native units.
func (m *Market) BaseLotsToNative(lots int64) uint64 {
	return uint64(lots) * uint64(m.BaseLotSize)
}

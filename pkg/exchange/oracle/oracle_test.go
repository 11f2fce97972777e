package oracle

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCheckStaleness(t *testing.T) {
	cfg := Config{MaxStalenessSlots: 100, ConfFilter: dec("0.1")}
	fresh := State{Price: dec("50"), LastUpdateSlot: 950}
	require.NoError(t, fresh.CheckStaleness(cfg, 1000))

	stale := State{Price: dec("50"), LastUpdateSlot: 800}
	assert.ErrorIs(t, stale.CheckStaleness(cfg, 1000), ErrStale)

	// Negative window disables the check entirely.
	disabled := Config{MaxStalenessSlots: -1, ConfFilter: dec("0.1")}
	assert.NoError(t, stale.CheckStaleness(disabled, 1000))
}

func TestCheckConfidence(t *testing.T) {
	cfg := Config{MaxStalenessSlots: -1, ConfFilter: dec("0.01")}

	tight := State{Price: dec("100"), Deviation: dec("0.5")}
	require.NoError(t, tight.CheckConfidence(cfg))

	wide := State{Price: dec("100"), Deviation: dec("2")}
	assert.ErrorIs(t, wide.CheckConfidence(cfg), ErrConfidence)

	zero := State{Price: decimal.Zero, Deviation: dec("1")}
	assert.ErrorIs(t, zero.CheckConfidence(cfg), ErrInvalidPrice)
}

func TestPriceScalesByDecimals(t *testing.T) {
	cfg := Config{MaxStalenessSlots: -1, ConfFilter: dec("0.1")}
	feed := State{Price: dec("50000"), Deviation: dec("1")}

	// base 9 decimals, quote 6: native price = ui price * 10^(6-9).
	p, err := Price(feed, cfg, 0, 9, 6)
	require.NoError(t, err)
	assert.True(t, p.Equal(dec("50")), "got %s", p)

	// Equal decimals leave the price untouched.
	p, err = Price(feed, cfg, 0, 6, 6)
	require.NoError(t, err)
	assert.True(t, p.Equal(dec("50000")), "got %s", p)
}

func TestPriceFromFeedsRatio(t *testing.T) {
	cfg := Config{MaxStalenessSlots: -1, ConfFilter: dec("0.1")}
	a := State{Price: dec("50000"), Deviation: dec("10")}
	b := State{Price: dec("2000"), Deviation: dec("1")}

	p, err := PriceFromFeeds(a, b, cfg, 0, 6, 6)
	require.NoError(t, err)
	assert.True(t, p.Equal(dec("25")), "got %s", p)
}

func TestPriceFromFeedsConfidence(t *testing.T) {
	// Combined scaled variance: (sa*B)^2 + (sb*A)^2 vs (conf*B)^2 * B^2.
	cfg := Config{MaxStalenessSlots: -1, ConfFilter: dec("0.001")}
	a := State{Price: dec("50000"), Deviation: dec("500")}
	b := State{Price: dec("2000"), Deviation: dec("0")}
	_, err := PriceFromFeeds(a, b, cfg, 0, 6, 6)
	assert.ErrorIs(t, err, ErrConfidence)

	// The two-feed filter bounds the absolute sigma of the ratio price:
	// here sigma ~= 0.25, so 0.5 passes.
	loose := Config{MaxStalenessSlots: -1, ConfFilter: dec("0.5")}
	_, err = PriceFromFeeds(a, b, loose, 0, 6, 6)
	assert.NoError(t, err)
}

func TestPriceFromFeedsZeroDivisor(t *testing.T) {
	cfg := Config{MaxStalenessSlots: -1, ConfFilter: dec("0.1")}
	a := State{Price: dec("50000")}
	b := State{Price: decimal.Zero}
	_, err := PriceFromFeeds(a, b, cfg, 0, 6, 6)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestStubOracle(t *testing.T) {
	owner := common.HexToAddress("0x01")
	stub := NewStubOracle(owner, dec("42"), 7)
	st := stub.State()
	assert.True(t, st.Price.Equal(dec("42")))
	assert.Equal(t, uint64(7), st.LastUpdateSlot)

	stub.Set(dec("43"), dec("0.5"), 9)
	st = stub.State()
	assert.True(t, st.Price.Equal(dec("43")))
	assert.True(t, st.Deviation.Equal(dec("0.5")))
	assert.Equal(t, uint64(9), st.LastUpdateSlot)
}

package num

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubtractTakerFees(t *testing.T) {
	tests := []struct {
		name     string
		quote    int64
		takerFee int64
		want     int64
	}{
		{"zero fee keeps budget", 10_000, 0, 10_000},
		{"one percent", 10_100, 10_000, 10_000},
		{"rounds down", 10_000, 10_000, 9_900},
		{"tiny budget", 1, 10_000, 0},
		{"max fee halves", 300, FeesScaleFactor, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SubtractTakerFees(tt.quote, tt.takerFee))
		})
	}
}

// The matchable budget plus the ceil fee on it must never exceed the original
// budget, or a bid could spend more than it committed.
func TestSubtractTakerFeesPlusFeeWithinBudget(t *testing.T) {
	for _, quote := range []int64{1, 7, 99, 1000, 123_457, 999_999_999} {
		for _, fee := range []int64{0, 1, 40, 1000, 10_000, 500_000, FeesScaleFactor} {
			matchable := SubtractTakerFees(quote, fee)
			total := matchable + TakerFeesCeil(matchable, fee)
			assert.LessOrEqual(t, total, quote, "quote=%d fee=%d", quote, fee)
		}
	}
}

func TestFeeRounding(t *testing.T) {
	// 0.04% on 10001 = 4.0004: taker pays 5, floor collects 4.
	assert.Equal(t, int64(5), TakerFeesCeil(10_001, 400))
	assert.Equal(t, int64(4), TakerFeesFloor(10_001, 400))

	// Maker fee only applies when positive.
	assert.Equal(t, int64(5), MakerFeesCeil(10_001, 400))
	assert.Equal(t, int64(0), MakerFeesCeil(10_001, -400))
	assert.Equal(t, int64(0), MakerFeesCeil(10_001, 0))

	// Rebate only applies when negative, rounded down.
	assert.Equal(t, int64(4), MakerRebateFloor(10_001, -400))
	assert.Equal(t, int64(0), MakerRebateFloor(10_001, 400))
}

// A maker rebate can never exceed the taker fee collected on the same amount,
// for any |maker| <= taker.
func TestRebateNeverExceedsTakerFee(t *testing.T) {
	for _, amount := range []int64{1, 3, 10_001, 999_983} {
		for _, taker := range []int64{1, 400, 10_000, 250_000} {
			for _, maker := range []int64{-taker, -taker / 2, -1} {
				rebate := MakerRebateFloor(amount, maker)
				collected := TakerFeesFloor(amount, taker)
				assert.LessOrEqual(t, rebate, collected,
					"amount=%d taker=%d maker=%d", amount, taker, maker)
			}
		}
	}
}

func TestLotNativePriceRoundTrip(t *testing.T) {
	// quote_lot=10, base_lot=10000: lot price 250 = native price 0.25.
	native := LotToNativePrice(250, 10, 10_000)
	assert.True(t, native.Equal(decimal.RequireFromString("0.25")), "got %s", native)

	lots, err := NativePriceToLot(native, 10, 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(250), lots)
}

func TestNativePriceToLotTruncates(t *testing.T) {
	price := decimal.RequireFromString("0.2549")
	lots, err := NativePriceToLot(price, 10, 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(254), lots)
}

func TestNativePriceToLotOverflow(t *testing.T) {
	huge := decimal.New(1, 30)
	_, err := NativePriceToLot(huge, 1, 1_000_000)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedArithmetic(t *testing.T) {
	v, err := CheckedMulInt64(1<<31, 1<<31)
	require.NoError(t, err)
	assert.Equal(t, int64(1)<<62, v)

	_, err = CheckedMulInt64(1<<32, 1<<32)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = CheckedAddInt64(1<<62, 1<<62)
	assert.ErrorIs(t, err, ErrOverflow)

	v, err = CheckedAddInt64(-5, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), v)
}

func TestIsPowerOfTen(t *testing.T) {
	for _, n := range []int64{1, 10, 100, 1_000_000} {
		assert.True(t, IsPowerOfTen(n), "%d", n)
	}
	for _, n := range []int64{0, -10, 2, 20, 1024} {
		assert.False(t, IsPowerOfTen(n), "%d", n)
	}
}

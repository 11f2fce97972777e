// Package num provides the fixed-point arithmetic used by the matching core.
//
// All prices and quantities on the book are signed 64-bit lot counts. Anything
// that needs fractional precision (native-price conversions, oracle math) goes
// through decimal.Decimal so that independent re-executions produce identical
// results. Floats are banned from every consensus-relevant path.
package num

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// FeesScaleFactor is the denominator for fee rates: fees are expressed in
// parts-per-million of the quote amount.
const FeesScaleFactor int64 = 1_000_000

// ErrOverflow is returned when a conversion does not fit in an int64.
var ErrOverflow = errors.New("num: int64 overflow")

var feesScale = decimal.NewFromInt(FeesScaleFactor)

// PowerOfTen returns 10^exp as a decimal. exp may be negative.
func PowerOfTen(exp int32) decimal.Decimal {
	return decimal.New(1, exp)
}

// LotToNativePrice converts a book price (quote lots per base lot) into a
// native/native price: price * quote_lot_size / base_lot_size.
func LotToNativePrice(priceLots, quoteLotSize, baseLotSize int64) decimal.Decimal {
	return decimal.NewFromInt(priceLots).
		Mul(decimal.NewFromInt(quoteLotSize)).
		Div(decimal.NewFromInt(baseLotSize))
}

// NativePriceToLot converts a native/native price into a book price in lots,
// truncating toward zero. Fails with ErrOverflow if the result does not fit
// in an int64.
func NativePriceToLot(price decimal.Decimal, quoteLotSize, baseLotSize int64) (int64, error) {
	lots := price.
		Mul(decimal.NewFromInt(baseLotSize)).
		Div(decimal.NewFromInt(quoteLotSize)).
		Truncate(0)
	if !lots.IsInteger() || !fitsInt64(lots) {
		return 0, ErrOverflow
	}
	return lots.IntPart(), nil
}

// SubtractTakerFees returns the portion of a quote budget that is actually
// matchable once the taker fee is reserved on top:
//
//	quote * SCALE / (SCALE + taker_fee)
//
// Rounds down, so the budget plus its fee never exceeds the original amount.
func SubtractTakerFees(quote, takerFee int64) int64 {
	return decimal.NewFromInt(quote).
		Mul(feesScale).
		Div(feesScale.Add(decimal.NewFromInt(takerFee))).
		Floor().
		IntPart()
}

// TakerFeesCeil returns the taker fee on amount, rounded up. Fees charged
// always round against the taker.
func TakerFeesCeil(amount, takerFee int64) int64 {
	return ceilFeeDivision(amount, takerFee)
}

// TakerFeesFloor returns the taker fee on amount, rounded down.
func TakerFeesFloor(amount, takerFee int64) int64 {
	return floorFeeDivision(amount, takerFee)
}

// MakerFeesCeil returns the fee a maker owes on amount, rounded up. Zero when
// the maker fee is a rebate (negative) or zero.
func MakerFeesCeil(amount, makerFee int64) int64 {
	if makerFee <= 0 {
		return 0
	}
	return ceilFeeDivision(amount, makerFee)
}

// MakerRebateFloor returns the rebate a maker earns on amount, rounded down.
// Zero when the maker fee is positive or zero. Rebates paid always round in
// favor of the market.
func MakerRebateFloor(amount, makerFee int64) int64 {
	if makerFee >= 0 {
		return 0
	}
	return floorFeeDivision(amount, -makerFee)
}

func ceilFeeDivision(amount, fee int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(fee)).
		Div(feesScale).
		Ceil().
		IntPart()
}

func floorFeeDivision(amount, fee int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(fee)).
		Div(feesScale).
		Floor().
		IntPart()
}

// CheckedMulInt64 multiplies two int64 values, failing instead of wrapping.
func CheckedMulInt64(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	c := a * b
	if c/b != a {
		return 0, ErrOverflow
	}
	return c, nil
}

// CheckedAddInt64 adds two int64 values, failing instead of wrapping.
func CheckedAddInt64(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

func fitsInt64(d decimal.Decimal) bool {
	return d.Cmp(decimal.NewFromInt(math.MaxInt64)) <= 0 &&
		d.Cmp(decimal.NewFromInt(math.MinInt64)) >= 0
}

// IsPowerOfTen reports whether n is a (positive) power of ten. Lot sizes are
// conventionally powers of ten so book prices stay human-readable.
func IsPowerOfTen(n int64) bool {
	if n <= 0 {
		return false
	}
	for n%10 == 0 {
		n /= 10
	}
	return n == 1
}

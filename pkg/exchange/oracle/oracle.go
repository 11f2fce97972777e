// Package oracle reads and validates external price feeds.
//
// A market references one or two feeds. With a single feed the adapter checks
// staleness and confidence and scales the price by the base/quote decimal
// difference. With two feeds (base/USD and quote/USD) it derives the ratio
// price and propagates the combined uncertainty without ever taking a square
// root: everything is compared in squared, pre-scaled form.
package oracle

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridianx/meridian/pkg/exchange/num"
)

var (
	// ErrStale means the feed has not been updated within the configured
	// slot window.
	ErrStale = errors.New("oracle: stale price")
	// ErrConfidence means the feed's (or combined) deviation exceeds the
	// configured confidence filter.
	ErrConfidence = errors.New("oracle: confidence interval too wide")
	// ErrInvalidPrice covers zero/negative prices and any division or
	// conversion failure in the price path.
	ErrInvalidPrice = errors.New("oracle: invalid price")
)

// Config is the per-market oracle acceptance policy.
type Config struct {
	// MaxStalenessSlots is the maximum slot age of a feed update.
	// Negative disables the staleness check.
	MaxStalenessSlots int64
	// ConfFilter is the maximum accepted relative deviation (sigma/price).
	ConfFilter decimal.Decimal
}

// State is one observation of a price feed.
type State struct {
	Price          decimal.Decimal
	Deviation      decimal.Decimal // one standard deviation, same unit as Price
	LastUpdateSlot uint64
}

// CheckStaleness fails with ErrStale when the feed's last update is older
// than the configured window.
func (s State) CheckStaleness(cfg Config, nowSlot uint64) error {
	if cfg.MaxStalenessSlots < 0 {
		return nil
	}
	if nowSlot > s.LastUpdateSlot && nowSlot-s.LastUpdateSlot > uint64(cfg.MaxStalenessSlots) {
		return fmt.Errorf("%w: last update slot %d, now %d", ErrStale, s.LastUpdateSlot, nowSlot)
	}
	return nil
}

// CheckConfidence fails with ErrConfidence when deviation/price exceeds the
// configured filter.
func (s State) CheckConfidence(cfg Config) error {
	if s.Price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if s.Deviation.Div(s.Price).Cmp(cfg.ConfFilter) > 0 {
		return fmt.Errorf("%w: deviation %s, price %s", ErrConfidence, s.Deviation, s.Price)
	}
	return nil
}

// Price validates a single feed and returns its price scaled by
// 10^(quoteDecimals - baseDecimals), i.e. a native/native price.
func Price(feed State, cfg Config, nowSlot uint64, baseDecimals, quoteDecimals uint8) (decimal.Decimal, error) {
	if err := feed.CheckStaleness(cfg, nowSlot); err != nil {
		return decimal.Zero, err
	}
	if err := feed.CheckConfidence(cfg); err != nil {
		return decimal.Zero, err
	}
	return feed.Price.Mul(decimalAdj(baseDecimals, quoteDecimals)), nil
}

// PriceFromFeeds validates two feeds and returns the ratio price a/b scaled
// by the decimal difference.
//
// The combined uncertainty of a ratio of Gaussians is, to first order,
//
//	sigma ~= (A/B) * sqrt((sigma_A/A)^2 + (sigma_B/B)^2)
//
// which, scaled by B^2 to avoid the square root and the divisions, becomes
//
//	sigma^2 * B^4 ~= (sigma_A * B)^2 + (sigma_B * A)^2
//
// The target variance is scaled the same way before comparison.
func PriceFromFeeds(a, b State, cfg Config, nowSlot uint64, baseDecimals, quoteDecimals uint8) (decimal.Decimal, error) {
	if err := a.CheckStaleness(cfg, nowSlot); err != nil {
		return decimal.Zero, fmt.Errorf("feed a: %w", err)
	}
	if err := b.CheckStaleness(cfg, nowSlot); err != nil {
		return decimal.Zero, fmt.Errorf("feed b: %w", err)
	}
	if b.Price.Sign() == 0 {
		return decimal.Zero, fmt.Errorf("%w: zero divisor feed", ErrInvalidPrice)
	}
	price := a.Price.Div(b.Price)
	if price.Sign() <= 0 {
		return decimal.Zero, ErrInvalidPrice
	}

	// conf * B, squared, then * B^2: target variance scaled by B^4.
	sigmaTarget := cfg.ConfFilter.Mul(b.Price)
	scaledTargetVar := sigmaTarget.Mul(sigmaTarget).Mul(b.Price).Mul(b.Price)

	sa := a.Deviation.Mul(b.Price)
	sb := b.Deviation.Mul(a.Price)
	scaledVar := sa.Mul(sa).Add(sb.Mul(sb))

	if scaledVar.Cmp(scaledTargetVar) > 0 {
		return decimal.Zero, fmt.Errorf("%w: combined scaled variance %s exceeds target %s",
			ErrConfidence, scaledVar, scaledTargetVar)
	}
	return price.Mul(decimalAdj(baseDecimals, quoteDecimals)), nil
}

func decimalAdj(baseDecimals, quoteDecimals uint8) decimal.Decimal {
	return num.PowerOfTen(int32(quoteDecimals) - int32(baseDecimals))
}

// Package pricing converts a discounted USD notional into exact
// payment-currency amounts. All USD values are fixed-point with 8 decimals
// (1e8 = $1), matching the oracle feeds.
package pricing

import (
	"errors"
	"math/big"
)

// Currency selects what an offer is paid in.
type Currency uint8

const (
	CurrencyNative Currency = 0
	CurrencyStable Currency = 1
)

func (c Currency) String() string {
	switch c {
	case CurrencyNative:
		return "NATIVE"
	case CurrencyStable:
		return "STABLE"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether c is a known payment currency.
func (c Currency) Valid() bool {
	return c == CurrencyNative || c == CurrencyStable
}

var (
	ErrAmountRange = errors.New("token amount out of per-order range")
	ErrMinUsd      = errors.New("discounted notional below minimum USD floor")
	ErrNoPrice     = errors.New("price not available")
	ErrBadInput    = errors.New("non-positive amount or price")
)

// MaxBps is the basis-point denominator; a discount of MaxBps is 100%.
const MaxBps = 10_000

// UsdDecimals is the fixed-point scale of all USD values.
const UsdDecimals = 8

var usdUnit = Pow10(UsdDecimals)

// Decimals carries the fixed-point scales of the three assets involved in a
// settlement.
type Decimals struct {
	Token  uint8
	Stable uint8
	Native uint8
}

// Limits is the per-order policy record. Values are policy inputs, never
// hardcoded; the desk owner updates them through the admin surface.
type Limits struct {
	MinUsd8  *big.Int // minimum discounted notional, 8-decimal USD
	MinToken *big.Int // minimum tokenAmount per order (token decimals)
	MaxToken *big.Int // maximum tokenAmount per order (token decimals)
}

// Pow10 returns 10^exp as a big.Int.
func Pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// mulDiv computes a*b/d with the product taken at full width first.
func mulDiv(a, b, d *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Div(p, d)
}

// mulDivCeil computes ceil(a*b/d). The payment side always rounds up so the
// desk never undercollects by a rounding quantum.
func mulDivCeil(a, b, d *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(p, d, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// DiscountedUsd returns the discounted USD notional of an order:
// tokenAmount * tokenPriceUsd8 / 10^tokenDecimals, reduced by discountBps.
func DiscountedUsd(tokenAmount *big.Int, discountBps uint16, tokenPriceUsd8 *big.Int, tokenDecimals uint8) (*big.Int, error) {
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return nil, ErrBadInput
	}
	if tokenPriceUsd8 == nil || tokenPriceUsd8.Sign() <= 0 {
		return nil, ErrNoPrice
	}
	if discountBps > MaxBps {
		return nil, ErrBadInput
	}

	totalUsd := mulDiv(tokenAmount, tokenPriceUsd8, Pow10(tokenDecimals))
	keep := big.NewInt(int64(MaxBps - discountBps))
	return mulDiv(totalUsd, keep, big.NewInt(MaxBps)), nil
}

// RequiredPayment computes the exact payment-currency amount for an order.
// For STABLE the 8-decimal USD notional is rescaled to the stablecoin's
// decimals; for NATIVE it is divided by the native/USD price and rescaled to
// native decimals. Multiplications happen before divisions.
func RequiredPayment(
	tokenAmount *big.Int,
	discountBps uint16,
	currency Currency,
	tokenPriceUsd8 *big.Int,
	nativePriceUsd8 *big.Int,
	dec Decimals,
) (*big.Int, error) {
	discountedUsd, err := DiscountedUsd(tokenAmount, discountBps, tokenPriceUsd8, dec.Token)
	if err != nil {
		return nil, err
	}

	switch currency {
	case CurrencyStable:
		return mulDivCeil(discountedUsd, Pow10(dec.Stable), usdUnit), nil
	case CurrencyNative:
		if nativePriceUsd8 == nil || nativePriceUsd8.Sign() <= 0 {
			return nil, ErrNoPrice
		}
		return mulDivCeil(discountedUsd, Pow10(dec.Native), nativePriceUsd8), nil
	default:
		return nil, ErrBadInput
	}
}

// CheckOrder enforces the per-order guards: tokenAmount within [min, max] and
// discounted notional at or above the USD floor.
func (l Limits) CheckOrder(tokenAmount *big.Int, discountBps uint16, tokenPriceUsd8 *big.Int, tokenDecimals uint8) error {
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return ErrAmountRange
	}
	if l.MinToken != nil && tokenAmount.Cmp(l.MinToken) < 0 {
		return ErrAmountRange
	}
	if l.MaxToken != nil && l.MaxToken.Sign() > 0 && tokenAmount.Cmp(l.MaxToken) > 0 {
		return ErrAmountRange
	}

	discountedUsd, err := DiscountedUsd(tokenAmount, discountBps, tokenPriceUsd8, tokenDecimals)
	if err != nil {
		return err
	}
	if l.MinUsd8 != nil && discountedUsd.Cmp(l.MinUsd8) < 0 {
		return ErrMinUsd
	}
	return nil
}

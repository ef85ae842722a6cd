package pricing

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDecimals = Decimals{Token: 9, Stable: 6, Native: 9}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Pow10(9))
}

func TestDiscountedUsd(t *testing.T) {
	// 10,000 tokens at $0.001 with 10% discount -> $9.00 = 9e8 in 8-dec USD.
	price := big.NewInt(100_000) // $0.001
	usd, err := DiscountedUsd(tokens(10_000), 1000, price, 9)
	require.NoError(t, err)
	assert.Equal(t, "900000000", usd.String())
}

func TestDiscountedUsdNoDiscount(t *testing.T) {
	usd, err := DiscountedUsd(tokens(10_000), 0, big.NewInt(100_000), 9)
	require.NoError(t, err)
	assert.Equal(t, "1000000000", usd.String()) // $10.00
}

func TestDiscountedUsdRejectsBadInput(t *testing.T) {
	_, err := DiscountedUsd(big.NewInt(0), 0, big.NewInt(100_000), 9)
	assert.ErrorIs(t, err, ErrBadInput)

	_, err = DiscountedUsd(tokens(1), 10_001, big.NewInt(100_000), 9)
	assert.ErrorIs(t, err, ErrBadInput)

	_, err = DiscountedUsd(tokens(1), 0, big.NewInt(0), 9)
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestRequiredPaymentStable(t *testing.T) {
	// $9.00 notional in a 6-decimal stablecoin -> 9,000,000 units.
	amount, err := RequiredPayment(tokens(10_000), 1000, CurrencyStable,
		big.NewInt(100_000), nil, testDecimals)
	require.NoError(t, err)
	assert.Equal(t, "9000000", amount.String())
}

func TestRequiredPaymentNative(t *testing.T) {
	// $9.00 at $200/native -> 0.045 native = 45,000,000 lamport-scale units.
	amount, err := RequiredPayment(tokens(10_000), 1000, CurrencyNative,
		big.NewInt(100_000), big.NewInt(20_000_000_000), testDecimals)
	require.NoError(t, err)
	assert.Equal(t, "45000000", amount.String())
}

func TestRequiredPaymentRoundsUp(t *testing.T) {
	// 1,010,000 base units at $0.001 -> 101 in 8-dec USD. Rescaling to a
	// 6-decimal stable gives 1.01 units; payment rounds toward the desk.
	amount, err := RequiredPayment(big.NewInt(1_010_000), 0, CurrencyStable,
		big.NewInt(100_000), nil, testDecimals)
	require.NoError(t, err)
	assert.Equal(t, "2", amount.String())
}

func TestRequiredPaymentNativeNeedsPrice(t *testing.T) {
	_, err := RequiredPayment(tokens(1), 0, CurrencyNative,
		big.NewInt(100_000), nil, testDecimals)
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestRequiredPaymentMonotonic(t *testing.T) {
	price := big.NewInt(100_000)
	prev := big.NewInt(0)
	for _, n := range []int64{1, 10, 100, 1000, 10_000} {
		amount, err := RequiredPayment(tokens(n), 500, CurrencyStable, price, nil, testDecimals)
		require.NoError(t, err)
		assert.True(t, amount.Cmp(prev) > 0, "payment must grow with order size")
		prev = amount
	}
}

func TestCheckOrderLimits(t *testing.T) {
	limits := Limits{
		MinUsd8:  big.NewInt(100_000_000), // $1
		MinToken: tokens(1),
		MaxToken: tokens(1_000_000),
	}
	price := big.NewInt(100_000) // $0.001

	// 10,000 tokens -> $10 discounted to $9, passes.
	assert.NoError(t, limits.CheckOrder(tokens(10_000), 1000, price, 9))

	// Below minimum token size.
	assert.ErrorIs(t, limits.CheckOrder(big.NewInt(1), 0, price, 9), ErrAmountRange)

	// Above maximum.
	assert.ErrorIs(t, limits.CheckOrder(tokens(2_000_000), 0, price, 9), ErrAmountRange)

	// 500 tokens at $0.001 = $0.50, below the $1 floor.
	assert.ErrorIs(t, limits.CheckOrder(tokens(500), 0, price, 9), ErrMinUsd)

	// Discount can push an otherwise-passing order under the floor.
	assert.ErrorIs(t, limits.CheckOrder(tokens(1_000), 5000, price, 9), ErrMinUsd)
}

func TestCheckOrderUnlimitedMax(t *testing.T) {
	limits := Limits{MaxToken: big.NewInt(0)} // zero means unlimited
	assert.NoError(t, limits.CheckOrder(tokens(100_000_000), 0, big.NewInt(100_000), 9))
}

package math_test

import (
	fpmath "QuoteLedger/internal/math"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAmount_RoundTrip(t *testing.T) {
	for _, v := range []float64{0, 0.1, 1, 100, 105.25, 0.0001, -42.5, 1e-9, 100.123456789, 1e12} {
		d, ok := fpmath.ToAmount(v)
		require.True(t, ok)
		assert.Equal(t, v, fpmath.FromAmount(d))
	}
}

func TestToAmount_KeepsShortestDecimal(t *testing.T) {
	assert.Equal(t, "100.123456789", fpmath.MustAmount(100.123456789).String())
	assert.Equal(t, "0.000000004", fpmath.MustAmount(4e-9).String())
	assert.Equal(t, "0.1", fpmath.MustAmount(0.1).String())
}

func TestToAmount_RejectsNonFinite(t *testing.T) {
	_, ok := fpmath.ToAmount(math.NaN())
	assert.False(t, ok)
	_, ok = fpmath.ToAmount(math.Inf(1))
	assert.False(t, ok)
	_, ok = fpmath.ToAmount(math.Inf(-1))
	assert.False(t, ok)
}

func TestComputeNotional(t *testing.T) {
	price := fpmath.MustAmount(100)
	vol := fpmath.MustAmount(1.5)
	assert.Equal(t, "150", fpmath.ComputeNotional(price, vol).String())
}

func TestComputeNotional_LargeValuesAreExact(t *testing.T) {
	notional := fpmath.ComputeNotional(fpmath.MustAmount(1e6), fpmath.MustAmount(1e6))
	assert.Equal(t, "1000000000000", notional.String())

	notional = fpmath.ComputeNotional(fpmath.MustAmount(9.5e9), fpmath.MustAmount(2e9))
	assert.Equal(t, "19000000000000000000", notional.String())
}

func TestComputeNotional_TinyValuesAreExact(t *testing.T) {
	notional := fpmath.ComputeNotional(fpmath.MustAmount(1e-9), fpmath.MustAmount(3))
	assert.Equal(t, "0.000000003", notional.String())
	assert.True(t, notional.IsPositive())
}

func TestComputeFundingPnL_LongPaysWhenRatePositive(t *testing.T) {
	pnl := fpmath.ComputeFundingPnL(fpmath.MustAmount(10), fpmath.MustAmount(100), fpmath.MustAmount(0.0001))
	assert.Equal(t, "-0.1", pnl.String())
	assert.InDelta(t, -0.1, fpmath.FromAmount(pnl), 1e-12)
}

func TestComputeFundingPnL_ShortReceivesWhenRatePositive(t *testing.T) {
	pnl := fpmath.ComputeFundingPnL(fpmath.MustAmount(-10), fpmath.MustAmount(100), fpmath.MustAmount(0.0001))
	assert.Equal(t, "0.1", pnl.String())
}

func TestComputeFundingPnL_NegativeRateFlipsDirection(t *testing.T) {
	pnl := fpmath.ComputeFundingPnL(fpmath.MustAmount(2), fpmath.MustAmount(50), fpmath.MustAmount(-0.001))
	assert.Equal(t, "0.1", pnl.String())
}

func TestSideSign(t *testing.T) {
	assert.Equal(t, int64(1), fpmath.SideSign(fpmath.MustAmount(0.5)))
	assert.Equal(t, int64(-1), fpmath.SideSign(fpmath.MustAmount(-0.5)))
}

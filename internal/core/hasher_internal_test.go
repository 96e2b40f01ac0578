package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStateDigest_CanonicalAmounts(t *testing.T) {
	a := stateDigest(nil).amount(decimal.RequireFromString("1.50"))
	b := stateDigest(nil).amount(decimal.RequireFromString("1.5"))
	assert.Equal(t, a, b)

	c := stateDigest(nil).amount(decimal.RequireFromString("1.05"))
	assert.NotEqual(t, a, c)
}

func TestStateDigest_LengthPrefixSeparatesFields(t *testing.T) {
	a := stateDigest(nil).text("ab").text("c")
	b := stateDigest(nil).text("a").text("bc")
	assert.NotEqual(t, a, b)

	assert.Len(t, stateDigest(nil).num(42), 8)
}

package store

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payrollDoc struct {
	Id    string          `json:"id"`
	Gross decimal.Decimal `json:"gross"`
}

func TestDecimalFieldsCompareNumerically(t *testing.T) {
	nine, err := json.Marshal(payrollDoc{Id: "a", Gross: decimal.NewFromInt(9)})
	require.NoError(t, err)
	ten, err := json.Marshal(payrollDoc{Id: "b", Gross: decimal.NewFromInt(10)})
	require.NoError(t, err)

	ok, err := Match(nine, []Predicate{Gt("gross", decimal.NewFromInt(10))})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Match(ten, []Predicate{Gt("gross", decimal.NewFromInt(9))})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match(nine, Between("gross", decimal.RequireFromString("8.5"), 10))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match(ten, []Predicate{Eq("gross", decimal.RequireFromString("10.00"))})
	require.NoError(t, err)
	assert.True(t, ok)

	c, ok := Compare(decimal.NewFromInt(9), decimal.NewFromInt(10))
	require.True(t, ok)
	assert.Equal(t, -1, c)

	_, ok = Compare("abc", 3)
	assert.False(t, ok)
	c, ok = Compare("100", "9")
	require.True(t, ok)
	assert.Equal(t, -1, c)
}

package scaled

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefensiveCopy(t *testing.T) {
	raw := big.NewInt(42)
	a := New(raw)

	raw.SetInt64(999)
	assert.Equal(t, "42", a.Raw().String(), "mutating the input must not change the amount")

	out := a.Raw()
	out.SetInt64(-1)
	assert.Equal(t, "42", a.Raw().String(), "mutating Raw() output must not change the amount")
}

func TestNewPanics(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
	assert.Panics(t, func() { New(big.NewInt(-1)) })
}

func TestFromUnits(t *testing.T) {
	a := FromUnits(3)
	assert.Equal(t, "3000000000000000000", a.Raw().String())
	assert.Equal(t, "3", a.ToDecimal().String())
}

func TestAddSub(t *testing.T) {
	a := FromUnits(5)
	b := FromUnits(2)

	sum := a.Add(b)
	assert.Equal(t, "7", sum.ToDecimal().String())

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, "3", diff.ToDecimal().String())

	_, err = b.Sub(a)
	assert.ErrorIs(t, err, ErrNegativeResult)

	// operands untouched
	assert.Equal(t, "5", a.ToDecimal().String())
	assert.Equal(t, "2", b.ToDecimal().String())
}

func TestMulBpsTruncates(t *testing.T) {
	a := New(big.NewInt(10001))

	// 10001 * 9970 / 10000 = 9970.997 truncated to 9970
	got := a.MulBps(9970)
	assert.Equal(t, "9970", got.Raw().String())

	assert.True(t, a.MulBps(10000).Equals(a))
	assert.True(t, a.MulBps(0).IsZero())
}

func TestDivInt64(t *testing.T) {
	a := New(big.NewInt(7))
	q, err := a.DivInt64(2)
	require.NoError(t, err)
	assert.Equal(t, "3", q.Raw().String())

	_, err = a.DivInt64(0)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantRaw string
		wantErr error
	}{
		{name: "integer", input: "1", wantRaw: "1000000000000000000"},
		{name: "fraction", input: "0.5", wantRaw: "500000000000000000"},
		{name: "max precision", input: "0.000000000000000001", wantRaw: "1"},
		{name: "zero", input: "0", wantRaw: "0"},
		{name: "too many decimals", input: "0.0000000000000000001", wantErr: ErrTooManyDecimals},
		{name: "negative", input: "-1", wantErr: ErrNegativeAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := decimal.NewFromString(tt.input)
			require.NoError(t, err)

			a, err := ParseDecimal(d)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRaw, a.Raw().String())
		})
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	a := MustParse("1234.567890123456789012")
	d := a.ToDecimal()

	back, err := ParseDecimal(d)
	require.NoError(t, err)
	assert.True(t, a.Equals(back))
}

func TestComparisons(t *testing.T) {
	small := FromUnits(1)
	large := FromUnits(2)

	assert.True(t, small.LessThan(large))
	assert.True(t, large.GreaterThan(small))
	assert.True(t, small.Equals(FromUnits(1)))
	assert.Equal(t, -1, small.Cmp(large))
	assert.True(t, Zero().IsZero())
	assert.True(t, small.IsPositive())
	assert.False(t, Zero().IsPositive())
}

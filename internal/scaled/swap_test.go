package scaled

import (
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwapOutput(t *testing.T) {
	tests := []struct {
		name       string
		amountIn   Amount
		reserveIn  Amount
		reserveOut Amount
		feeBps     int64
		want       string // integer units, or "" when an error is expected
		wantErr    error
	}{
		{
			name:       "balanced pool no fee",
			amountIn:   FromUnits(100),
			reserveIn:  FromUnits(1000),
			reserveOut: FromUnits(1000),
			feeBps:     0,
			// 100 * 1000 / 1100
			want: "90.90909090909090909",
		},
		{
			name:       "imbalanced pool with 30bps fee",
			amountIn:   FromUnits(10),
			reserveIn:  FromUnits(1000),
			reserveOut: FromUnits(2000),
			feeBps:     30,
			// feeIn = 9.97; 9.97 * 2000 / 1009.97
			want: "19.743160687941225977",
		},
		{
			name:       "zero input",
			amountIn:   Zero(),
			reserveIn:  FromUnits(1000),
			reserveOut: FromUnits(1000),
			feeBps:     30,
			want:       "0",
		},
		{
			name:       "degenerate reserves",
			amountIn:   Zero(),
			reserveIn:  Zero(),
			reserveOut: FromUnits(1000),
			feeBps:     0,
			wantErr:    ErrDivisionByZero,
		},
		{
			name:       "fee out of range",
			amountIn:   FromUnits(1),
			reserveIn:  FromUnits(1000),
			reserveOut: FromUnits(1000),
			feeBps:     10000,
			wantErr:    ErrInvalidFeeBps,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SwapOutput(tt.amountIn, tt.reserveIn, tt.reserveOut, tt.feeBps)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ToDecimal().String())
		})
	}
}

func TestPriceImpact(t *testing.T) {
	// Trading 10% of the input reserve moves the marginal price noticeably.
	impact, err := PriceImpactBps(FromUnits(100), FromUnits(1000), FromUnits(1000), 0)
	require.NoError(t, err)
	assert.Greater(t, impact, int64(0))

	// A dust trade barely moves the price.
	dust, err := PriceImpactBps(New(big.NewInt(1_000_000)), FromUnits(1000), FromUnits(1000), 0)
	require.NoError(t, err)
	assert.Less(t, dust, impact)

	_, err = PriceImpactBps(FromUnits(1), Zero(), FromUnits(1000), 0)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMultiHopMatchesSequential(t *testing.T) {
	hops := []Hop{
		{ReserveIn: FromUnits(1000), ReserveOut: FromUnits(2000), FeeBps: 30},
		{ReserveIn: FromUnits(500), ReserveOut: FromUnits(800), FeeBps: 25},
		{ReserveIn: FromUnits(3000), ReserveOut: FromUnits(2900), FeeBps: 30},
	}
	in := FromUnits(10)

	got, err := MultiHop(in, hops)
	require.NoError(t, err)

	want := in
	for _, h := range hops {
		want, err = SwapOutput(want, h.ReserveIn, h.ReserveOut, h.FeeBps)
		require.NoError(t, err)
	}
	assert.True(t, got.Equals(want))
}

func TestMultiHopSurfacesFailingHop(t *testing.T) {
	hops := []Hop{
		{ReserveIn: FromUnits(1000), ReserveOut: FromUnits(2000), FeeBps: 30},
		{ReserveIn: Zero(), ReserveOut: Zero(), FeeBps: 30},
	}

	_, err := MultiHop(Zero(), hops)
	require.Error(t, err)

	var hopErr *HopError
	require.ErrorAs(t, err, &hopErr)
	assert.Equal(t, 1, hopErr.Index)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestProfitBps(t *testing.T) {
	initial := FromUnits(100)

	assert.Equal(t, int64(0), ProfitBps(initial, FromUnits(100)))
	assert.Equal(t, int64(0), ProfitBps(initial, FromUnits(90)), "losses clamp to zero")
	assert.Equal(t, int64(500), ProfitBps(initial, FromUnits(105)))
	assert.Equal(t, int64(10000), ProfitBps(initial, FromUnits(200)))
}

// Mispriced pools quoted in opposite directions form a profitable cycle.
func TestTwoHopCycleProfit(t *testing.T) {
	hops := []Hop{
		{ReserveIn: FromUnits(1000), ReserveOut: FromUnits(2000), FeeBps: 30},
		{ReserveIn: FromUnits(1000), ReserveOut: FromUnits(2000), FeeBps: 30},
	}
	in := FromUnits(10)

	out, err := MultiHop(in, hops)
	require.NoError(t, err)
	assert.True(t, out.GreaterThan(in))
	assert.Greater(t, ProfitBps(in, out), int64(0))
}

func TestSwapProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	reserves := gen.Int64Range(1, 1_000_000_000)
	amounts := gen.Int64Range(0, 1_000_000_000)
	fees := gen.Int64Range(0, 9999)

	properties.Property("output is below the output reserve", prop.ForAll(
		func(amountIn, reserveIn, reserveOut, feeBps int64) bool {
			out, err := SwapOutput(FromUnits(amountIn), FromUnits(reserveIn), FromUnits(reserveOut), feeBps)
			if err != nil {
				return false
			}
			return out.LessThan(FromUnits(reserveOut))
		},
		amounts, reserves, reserves, fees,
	))

	properties.Property("output is monotone in the input", prop.ForAll(
		func(a, b, reserveIn, reserveOut, feeBps int64) bool {
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			outLo, err := SwapOutput(FromUnits(lo), FromUnits(reserveIn), FromUnits(reserveOut), feeBps)
			if err != nil {
				return false
			}
			outHi, err := SwapOutput(FromUnits(hi), FromUnits(reserveIn), FromUnits(reserveOut), feeBps)
			if err != nil {
				return false
			}
			return outHi.Cmp(outLo) >= 0
		},
		amounts, amounts, reserves, reserves, fees,
	))

	properties.Property("round trip on equal reserves loses value", prop.ForAll(
		func(amountIn, reserve, feeBps int64) bool {
			in := FromUnits(amountIn)
			hops := []Hop{
				{ReserveIn: FromUnits(reserve), ReserveOut: FromUnits(reserve), FeeBps: feeBps},
				{ReserveIn: FromUnits(reserve), ReserveOut: FromUnits(reserve), FeeBps: feeBps},
			}
			out, err := MultiHop(in, hops)
			if err != nil {
				return false
			}
			return out.LessThan(in)
		},
		gen.Int64Range(1, 1_000_000_000), reserves, fees,
	))

	properties.TestingRun(t)
}

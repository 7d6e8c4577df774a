package scaled

import (
	"fmt"
	"math/big"
)

// Hop describes one constant-product swap in a multi-hop path.
type Hop struct {
	ReserveIn  Amount
	ReserveOut Amount
	FeeBps     int64
}

// HopError reports which hop of a multi-hop computation failed.
type HopError struct {
	Index int
	Err   error
}

func (e *HopError) Error() string {
	return fmt.Sprintf("scaled: hop %d: %v", e.Index, e.Err)
}

func (e *HopError) Unwrap() error {
	return e.Err
}

// SwapOutput computes the constant-product output for a trade of amountIn
// against reserves (reserveIn, reserveOut) with the pool fee in basis points:
//
//	amountInWithFee = amountIn * (10000 - feeBps) / 10000
//	amountOut       = amountInWithFee * reserveOut / (reserveIn + amountInWithFee)
//
// All arithmetic is exact integer math; truncation only ever rounds the
// output down, never changes its sign. Returns ErrDivisionByZero when the
// denominator degenerates to zero.
func SwapOutput(amountIn, reserveIn, reserveOut Amount, feeBps int64) (Amount, error) {
	if feeBps < 0 || feeBps >= BpsDenominator {
		return Amount{}, ErrInvalidFeeBps
	}

	inWithFee := amountIn.MulBps(BpsDenominator - feeBps)

	denom := new(big.Int).Add(reserveIn.norm(), inWithFee.norm())
	if denom.Sign() == 0 {
		return Amount{}, ErrDivisionByZero
	}

	num := new(big.Int).Mul(inWithFee.norm(), reserveOut.norm())
	return Amount{raw: num.Div(num, denom)}, nil
}

// PriceImpactBps compares the pre-trade marginal price (reserveOut/reserveIn)
// against the post-trade marginal price and returns the absolute difference
// in basis points of the pre-trade price. Returns ErrDivisionByZero when the
// pre-trade price is zero or undefined.
func PriceImpactBps(amountIn, reserveIn, reserveOut Amount, feeBps int64) (int64, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return 0, ErrDivisionByZero
	}

	out, err := SwapOutput(amountIn, reserveIn, reserveOut, feeBps)
	if err != nil {
		return 0, err
	}

	inWithFee := amountIn.MulBps(BpsDenominator - feeBps)
	postIn := new(big.Int).Add(reserveIn.norm(), inWithFee.norm())
	postOut := new(big.Int).Sub(reserveOut.norm(), out.norm())

	// pre = reserveOut/reserveIn, post = postOut/postIn.
	// |pre - post| / pre == |reserveOut*postIn - postOut*reserveIn| / (reserveOut*postIn)
	lhs := new(big.Int).Mul(reserveOut.norm(), postIn)
	rhs := new(big.Int).Mul(postOut, reserveIn.norm())

	diff := new(big.Int).Sub(lhs, rhs)
	diff.Abs(diff)

	if lhs.Sign() == 0 {
		return 0, ErrDivisionByZero
	}

	bps := diff.Mul(diff, big.NewInt(BpsDenominator))
	bps.Div(bps, lhs)
	return bps.Int64(), nil
}

// MultiHop folds SwapOutput across an ordered hop list, feeding each hop's
// output into the next. A failing hop aborts the whole computation and the
// returned *HopError names the hop that failed.
func MultiHop(amountIn Amount, hops []Hop) (Amount, error) {
	current := amountIn
	for i, h := range hops {
		out, err := SwapOutput(current, h.ReserveIn, h.ReserveOut, h.FeeBps)
		if err != nil {
			return Amount{}, &HopError{Index: i, Err: err}
		}
		current = out
	}
	return current, nil
}

// ProfitBps returns the profit of final over initial in basis points.
// A non-positive profit yields 0, never a negative value.
func ProfitBps(initial, final Amount) int64 {
	if initial.IsZero() || final.Cmp(initial) <= 0 {
		return 0
	}
	gain := new(big.Int).Sub(final.norm(), initial.norm())
	gain.Mul(gain, big.NewInt(BpsDenominator))
	gain.Div(gain, initial.norm())
	return gain.Int64()
}

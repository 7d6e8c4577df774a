// Package scaled provides exact fixed-point arithmetic over integers
// scaled by 10^18. All pricing math in the system runs on Amount;
// decimal.Decimal appears only at parsing and display boundaries.
package scaled

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the fixed scaling exponent: 1 unit == 10^18 raw.
const Decimals = 18

// BpsDenominator is the basis-point scale: 10000 bps == 100%.
const BpsDenominator = 10000

// Common errors
var (
	ErrNilRaw          = errors.New("scaled: nil raw value")
	ErrNegativeAmount  = errors.New("scaled: negative amount")
	ErrNegativeResult  = errors.New("scaled: operation would result in negative amount")
	ErrTooManyDecimals = errors.New("scaled: too many decimal places")
	ErrDivisionByZero  = errors.New("scaled: division by zero")
	ErrInvalidFeeBps   = errors.New("scaled: fee must be in [0, 10000)")
)

var scaleFactor = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Amount is an immutable value object holding a non-negative token
// quantity in raw 10^-18 units.
type Amount struct {
	raw *big.Int
}

// New creates an Amount from a raw big.Int value (10^-18 units).
// Panics on nil or negative input; amounts are non-negative by construction.
func New(raw *big.Int) Amount {
	if raw == nil {
		panic(ErrNilRaw)
	}
	if raw.Sign() < 0 {
		panic(ErrNegativeAmount)
	}
	return Amount{raw: new(big.Int).Set(raw)} // defensive copy
}

// Zero returns the zero Amount.
func Zero() Amount {
	return Amount{raw: big.NewInt(0)}
}

// FromInt64 creates an Amount from raw 10^-18 units.
func FromInt64(raw int64) Amount {
	if raw < 0 {
		panic(ErrNegativeAmount)
	}
	return Amount{raw: big.NewInt(raw)}
}

// FromUnits creates an Amount from whole units (n * 10^18 raw).
func FromUnits(n int64) Amount {
	if n < 0 {
		panic(ErrNegativeAmount)
	}
	return Amount{raw: new(big.Int).Mul(big.NewInt(n), scaleFactor)}
}

// FromTokenUnits rescales a raw token quantity from its native decimals
// to the fixed 10^18 scale. Tokens with more than 18 decimals are
// rejected rather than truncated.
func FromTokenUnits(raw *big.Int, decimals uint8) (Amount, error) {
	if raw == nil {
		return Amount{}, ErrNilRaw
	}
	if raw.Sign() < 0 {
		return Amount{}, ErrNegativeAmount
	}
	if decimals > Decimals {
		return Amount{}, ErrTooManyDecimals
	}
	shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(Decimals-decimals)), nil)
	return Amount{raw: new(big.Int).Mul(raw, shift)}, nil
}

// Raw returns a copy of the underlying raw value.
func (a Amount) Raw() *big.Int {
	if a.raw == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a.raw)
}

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool {
	return a.raw == nil || a.raw.Sign() == 0
}

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool {
	return a.raw != nil && a.raw.Sign() > 0
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{raw: new(big.Int).Add(a.norm(), b.norm())}
}

// Sub returns a - b, or an error if the result would be negative.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.norm().Cmp(b.norm()) < 0 {
		return Amount{}, ErrNegativeResult
	}
	return Amount{raw: new(big.Int).Sub(a.norm(), b.norm())}, nil
}

// MustSub returns a - b, panicking if the result would be negative.
func (a Amount) MustSub(b Amount) Amount {
	r, err := a.Sub(b)
	if err != nil {
		panic(err)
	}
	return r
}

// MulInt64 multiplies by a non-negative integer factor.
func (a Amount) MulInt64(factor int64) Amount {
	if factor < 0 {
		panic(ErrNegativeAmount)
	}
	return Amount{raw: new(big.Int).Mul(a.norm(), big.NewInt(factor))}
}

// DivInt64 divides by a positive integer divisor (truncating).
func (a Amount) DivInt64(divisor int64) (Amount, error) {
	if divisor == 0 {
		return Amount{}, ErrDivisionByZero
	}
	if divisor < 0 {
		return Amount{}, ErrNegativeAmount
	}
	return Amount{raw: new(big.Int).Div(a.norm(), big.NewInt(divisor))}, nil
}

// MulBps returns a * bps / 10000 (truncating integer division).
func (a Amount) MulBps(bps int64) Amount {
	if bps < 0 {
		panic(ErrNegativeAmount)
	}
	n := new(big.Int).Mul(a.norm(), big.NewInt(bps))
	return Amount{raw: n.Div(n, big.NewInt(BpsDenominator))}
}

// Cmp compares a to b: -1 if a < b, 0 if equal, 1 if a > b.
func (a Amount) Cmp(b Amount) int {
	return a.norm().Cmp(b.norm())
}

// Equals returns true if both amounts hold the same value.
func (a Amount) Equals(b Amount) bool {
	return a.Cmp(b) == 0
}

// GreaterThan returns true if a > b.
func (a Amount) GreaterThan(b Amount) bool {
	return a.Cmp(b) > 0
}

// LessThan returns true if a < b.
func (a Amount) LessThan(b Amount) bool {
	return a.Cmp(b) < 0
}

// ToDecimal converts the amount for display. Exact: big.Int carries over
// without rounding. Boundary use only, never feed results back into pricing.
func (a Amount) ToDecimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.norm(), -Decimals)
}

// ParseDecimal creates an Amount from a decimal value, rejecting values
// with more than 18 fractional digits rather than rounding them.
func ParseDecimal(d decimal.Decimal) (Amount, error) {
	if d.IsNegative() {
		return Amount{}, ErrNegativeAmount
	}
	shifted := d.Shift(Decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return Amount{}, ErrTooManyDecimals
	}
	return Amount{raw: shifted.BigInt()}, nil
}

// ParseString creates an Amount from a decimal string.
func ParseString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("scaled: invalid decimal string: %w", err)
	}
	return ParseDecimal(d)
}

// MustParse creates an Amount from a decimal string, panicking on error.
// Intended for constants and tests.
func MustParse(s string) Amount {
	a, err := ParseString(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the human-readable decimal form.
func (a Amount) String() string {
	return a.ToDecimal().String()
}

func (a Amount) norm() *big.Int {
	if a.raw == nil {
		return big.NewInt(0)
	}
	return a.raw
}

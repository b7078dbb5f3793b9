package p4p

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Currency amount on decimal arithmetic
// =============================================================================

// Money is a USD amount. Arithmetic is exact; Round() applies cent rounding
// (half away from zero) and is only called on reported values.
type Money struct {
	Value decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

func NewMoney(value float64) Money                 { return Money{Value: decimal.NewFromFloat(value)} }
func MoneyFromInt(value int64) Money               { return Money{Value: decimal.NewFromInt(value)} }
func MoneyFromDecimal(value decimal.Decimal) Money { return Money{Value: value} }
func ZeroMoney() Money                             { return Money{Value: decimal.Zero} }

// ParseMoney parses a decimal string such as "1234.50".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Value: d}, nil
}

// MustParseMoney is ParseMoney for literals. It panics on invalid input.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(fmt.Sprintf("p4p: invalid money %q: %v", s, err))
	}
	return m
}

func (m Money) Add(b Money) Money           { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money           { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money { return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                  { return Money{Value: m.Value.Neg()} }
func (m Money) Round() Money                { return Money{Value: m.Value.Round(2)} }
func (m Money) IsNegative() bool            { return m.Value.IsNegative() }
func (m Money) IsZero() bool                { return m.Value.IsZero() }
func (m Money) IsPositive() bool            { return m.Value.IsPositive() }
func (m Money) Equal(b Money) bool          { return m.Value.Equal(b.Value) }
func (m Money) GreaterThan(b Money) bool    { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool       { return m.Value.LessThan(b.Value) }
func (m Money) Cents() int64                { return m.Value.Mul(hundred).Round(0).IntPart() }
func (m Money) String() string              { return m.Value.StringFixed(2) }

func (m Money) Max(b Money) Money {
	if m.GreaterThan(b) {
		return m
	}
	return b
}

func (m Money) Min(b Money) Money {
	if m.LessThan(b) {
		return m
	}
	return b
}

// Float64 is for display layers (PDF, metrics) only.
func (m Money) Float64() float64 {
	f, _ := m.Value.Float64()
	return f
}

// MarshalJSON writes a fixed two-decimal string, e.g. "396.00".
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts a JSON number or string.
func (m *Money) UnmarshalJSON(b []byte) error {
	return m.Value.UnmarshalJSON(b)
}

// SumMoney adds a list of amounts.
func SumMoney(amounts ...Money) Money {
	total := ZeroMoney()
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

package num

import (
	"github.com/shopspring/decimal"
)

// DecimalFactory is the arbitrary-precision backend.
var DecimalFactory Factory = decimalFactory{}

// Decimal wraps decimal.Decimal.
type Decimal struct {
	d decimal.Decimal
}

type decimalFactory struct{}

func (decimalFactory) Name() string       { return "decimal" }
func (decimalFactory) Zero() Num          { return Decimal{d: decimal.Zero} }
func (decimalFactory) FromInt(n int64) Num { return Decimal{d: decimal.NewFromInt(n)} }

// FromFloat uses the shortest decimal representation of f, so 0.1 becomes
// exactly 0.1 rather than its binary approximation.
func (decimalFactory) FromFloat(f float64) Num { return Decimal{d: decimal.NewFromFloat(f)} }

func (decimalFactory) FromString(s string) (Num, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return Decimal{d: d}, nil
}

// NewDecimal wraps an existing decimal value.
func NewDecimal(d decimal.Decimal) Decimal { return Decimal{d: d} }

// Decimal returns the underlying value.
func (v Decimal) Decimal() decimal.Decimal { return v.d }

func (v Decimal) Add(other Num) Num  { return Decimal{d: v.d.Add(toDecimal(other))} }
func (v Decimal) Sub(other Num) Num  { return Decimal{d: v.d.Sub(toDecimal(other))} }
func (v Decimal) MulInt(n int64) Num { return Decimal{d: v.d.Mul(decimal.NewFromInt(n))} }
func (v Decimal) DivInt(n int64) Num { return Decimal{d: v.d.Div(decimal.NewFromInt(n))} }
func (v Decimal) Cmp(other Num) int  { return v.d.Cmp(toDecimal(other)) }
func (v Decimal) IsZero() bool       { return v.d.IsZero() }
func (v Decimal) Float64() float64   { return v.d.InexactFloat64() }
func (v Decimal) String() string     { return v.d.String() }
func (v Decimal) Factory() Factory   { return DecimalFactory }

func toDecimal(n Num) decimal.Decimal {
	if d, ok := n.(Decimal); ok {
		return d.d
	}
	return decimal.NewFromFloat(n.Float64())
}

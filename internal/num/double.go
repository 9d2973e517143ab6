package num

import (
	"strconv"
)

// DoubleFactory is the float64 backend. Faster than Decimal, but sums drift.
var DoubleFactory Factory = doubleFactory{}

// Double is a float64 Num.
type Double float64

type doubleFactory struct{}

func (doubleFactory) Name() string           { return "double" }
func (doubleFactory) Zero() Num              { return Double(0) }
func (doubleFactory) FromInt(n int64) Num     { return Double(n) }
func (doubleFactory) FromFloat(f float64) Num { return Double(f) }

func (doubleFactory) FromString(s string) (Num, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return Double(f), nil
}

func (v Double) Add(other Num) Num  { return v + Double(other.Float64()) }
func (v Double) Sub(other Num) Num  { return v - Double(other.Float64()) }
func (v Double) MulInt(n int64) Num { return v * Double(n) }
func (v Double) DivInt(n int64) Num { return v / Double(n) }
func (v Double) IsZero() bool       { return v == 0 }
func (v Double) Float64() float64   { return float64(v) }
func (v Double) Factory() Factory   { return DoubleFactory }

func (v Double) Cmp(other Num) int {
	o := Double(other.Float64())
	switch {
	case v < o:
		return -1
	case v > o:
		return 1
	default:
		return 0
	}
}

func (v Double) String() string {
	return strconv.FormatFloat(float64(v), 'f', -1, 64)
}

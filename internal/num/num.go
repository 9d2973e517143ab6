// Package num defines the numeric capability used by bars and aggregators.
// Prices and volumes are carried as Num values so the aggregation code does
// not depend on a particular precision or representation. Two backends are
// provided: Decimal (arbitrary precision) and Double (float64).
package num

// Num is an immutable numeric value. Operands passed to Add, Sub and Cmp
// are expected to come from the same Factory; mixing backends converts the
// operand through its float64 value.
type Num interface {
	Add(other Num) Num
	Sub(other Num) Num
	MulInt(n int64) Num
	DivInt(n int64) Num
	Cmp(other Num) int
	IsZero() bool
	Float64() float64
	String() string
	Factory() Factory
}

// Factory creates values for one numeric backend.
type Factory interface {
	Name() string
	Zero() Num
	FromInt(n int64) Num
	FromFloat(f float64) Num
	FromString(s string) (Num, error)
}

// Max returns the larger of a and b. A nil operand yields the other one.
func Max(a, b Num) Num {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.Cmp(a) > 0 {
		return b
	}
	return a
}

// Min returns the smaller of a and b. A nil operand yields the other one.
func Min(a, b Num) Num {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.Cmp(a) < 0 {
		return b
	}
	return a
}

// ByName returns the factory registered under name ("decimal" or "double").
// Unknown names fall back to the decimal backend.
func ByName(name string) Factory {
	if name == DoubleFactory.Name() {
		return DoubleFactory
	}
	return DecimalFactory
}

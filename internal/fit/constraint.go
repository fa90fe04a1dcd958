package fit

import (
	"fmt"
	"math"
	"strconv"
)

const (
	// RatioGuard is the smallest denominator concentration a ratio is computed for.
	RatioGuard = 0.01

	// RatioGuardPenalty is charged instead of a ratio whose denominator is below RatioGuard.
	RatioGuardPenalty = 10000.0

	exactTolerance = 1.0
	ratioTolerance = 0.1
)

// Constraint scores a concentration vector against one target.
type Constraint interface {
	// Penalty returns a non-negative, finite violation measure; zero when satisfied.
	Penalty(concentrations []float64) float64

	// Achieved returns the quantity the constraint looks at (a concentration or a ratio).
	Achieved(concentrations []float64) float64

	// Satisfied reports whether the achieved value is close enough to count as a pass.
	Satisfied(concentrations []float64) bool

	// Ions returns the ion indices the constraint reads.
	Ions() []int

	String() string
}

// Exact asks for one ion to match a target concentration.
type Exact struct {
	Ion    int
	Name   string
	Target float64
}

func (c Exact) Penalty(conc []float64) float64 {
	d := conc[c.Ion] - c.Target
	return d * d
}

func (c Exact) Achieved(conc []float64) float64 { return conc[c.Ion] }

func (c Exact) Satisfied(conc []float64) bool {
	return math.Abs(conc[c.Ion]-c.Target) < exactTolerance
}

func (c Exact) Ions() []int { return []int{c.Ion} }

func (c Exact) String() string {
	return fmt.Sprintf("%s %s", ionLabel(c.Name, c.Ion), formatNumber(c.Target))
}

// Range asks for one ion to lie within [Min, Max].
type Range struct {
	Ion  int
	Name string
	Min  float64
	Max  float64
}

func (c Range) Penalty(conc []float64) float64 {
	v := conc[c.Ion]
	switch {
	case v < c.Min:
		return (v - c.Min) * (v - c.Min)
	case v > c.Max:
		return (v - c.Max) * (v - c.Max)
	}
	return 0
}

func (c Range) Achieved(conc []float64) float64 { return conc[c.Ion] }

func (c Range) Satisfied(conc []float64) bool {
	v := conc[c.Ion]
	return v >= c.Min && v <= c.Max
}

func (c Range) Ions() []int { return []int{c.Ion} }

func (c Range) String() string {
	return fmt.Sprintf("%s %s - %s", ionLabel(c.Name, c.Ion), formatNumber(c.Min), formatNumber(c.Max))
}

// Ratio asks for conc[Numerator]/conc[Denominator] to equal Target.
type Ratio struct {
	Numerator       int
	Denominator     int
	NumeratorName   string
	DenominatorName string
	Target          float64
}

func (c Ratio) Penalty(conc []float64) float64 {
	if conc[c.Denominator] < RatioGuard {
		return RatioGuardPenalty
	}
	d := conc[c.Numerator]/conc[c.Denominator] - c.Target
	return d * d
}

// Achieved returns the ratio, or NaN when the denominator is below RatioGuard.
func (c Ratio) Achieved(conc []float64) float64 {
	if conc[c.Denominator] < RatioGuard {
		return math.NaN()
	}
	return conc[c.Numerator] / conc[c.Denominator]
}

func (c Ratio) Satisfied(conc []float64) bool {
	if conc[c.Denominator] < RatioGuard {
		return false
	}
	return math.Abs(conc[c.Numerator]/conc[c.Denominator]-c.Target) < ratioTolerance
}

func (c Ratio) Ions() []int { return []int{c.Numerator, c.Denominator} }

func (c Ratio) String() string {
	return fmt.Sprintf("%s : %s %s",
		ionLabel(c.NumeratorName, c.Numerator),
		ionLabel(c.DenominatorName, c.Denominator),
		formatNumber(c.Target))
}

func ionLabel(name string, index int) string {
	if name != "" {
		return name
	}
	return "#" + strconv.Itoa(index)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

package fit

// ConstraintSet is the collection of constraints a run is scored against.
// Ions without a constraint are simply absent and contribute nothing.
type ConstraintSet []Constraint

// Error sums the penalties of every constraint. The result is finite and non-negative,
// and zero exactly when every constraint is met.
func (cs ConstraintSet) Error(concentrations []float64) float64 {
	var sum float64
	for _, c := range cs {
		sum += c.Penalty(concentrations)
	}
	return sum
}

// Check is the outcome of one constraint for a final concentration vector.
type Check struct {
	Constraint Constraint
	Achieved   float64
	Pass       bool
}

// Check evaluates every constraint for reporting.
func (cs ConstraintSet) Check(concentrations []float64) []Check {
	checks := make([]Check, len(cs))
	for i, c := range cs {
		checks[i] = Check{
			Constraint: c,
			Achieved:   c.Achieved(concentrations),
			Pass:       c.Satisfied(concentrations),
		}
	}
	return checks
}

// ForIon returns the single-ion constraint (Exact or Range) on ion i, if any.
func (cs ConstraintSet) ForIon(i int) (Constraint, bool) {
	for _, c := range cs {
		switch v := c.(type) {
		case Exact:
			if v.Ion == i {
				return c, true
			}
		case Range:
			if v.Ion == i {
				return c, true
			}
		}
	}
	return nil, false
}

// CostFunc scores a quantity vector.
type CostFunc func(quantities []float64) float64

// NewCostFunc binds the concentration model and the error metric into one objective.
// The returned function owns a scratch concentration buffer and is not safe for
// concurrent use; build one per search.
func NewCostFunc(t *Table, cs ConstraintSet) CostFunc {
	scratch := make([]float64, len(t.Ions))
	return func(q []float64) float64 {
		scratch = t.Matrix.Concentrations(scratch, q)
		return cs.Error(scratch)
	}
}

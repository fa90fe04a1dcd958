package fit

import (
	"math"
	"testing"
)

func TestExactPenalty(t *testing.T) {
	c := Exact{Ion: 0, Name: "Ca", Target: 60}

	if got := c.Penalty([]float64{60}); got != 0 {
		t.Errorf("Penalty at target = %f, want 0", got)
	}
	if got := c.Penalty([]float64{57}); got != 9 {
		t.Errorf("Penalty 3 below = %f, want 9", got)
	}
	if got := c.Penalty([]float64{62}); got != 4 {
		t.Errorf("Penalty 2 above = %f, want 4", got)
	}
	if !c.Satisfied([]float64{60.9}) || c.Satisfied([]float64{61}) {
		t.Error("Exact pass must require |achieved - target| < 1")
	}
}

func TestRangePenalty(t *testing.T) {
	c := Range{Ion: 0, Name: "Mg", Min: 5, Max: 15}

	tests := []struct {
		conc float64
		want float64
		pass bool
	}{
		{conc: 5, want: 0, pass: true},
		{conc: 10, want: 0, pass: true},
		{conc: 15, want: 0, pass: true},
		{conc: 2, want: 9, pass: false},
		{conc: 19, want: 16, pass: false},
	}

	for _, tt := range tests {
		conc := []float64{tt.conc}
		if got := c.Penalty(conc); got != tt.want {
			t.Errorf("Penalty(%f) = %f, want %f", tt.conc, got, tt.want)
		}
		if got := c.Satisfied(conc); got != tt.pass {
			t.Errorf("Satisfied(%f) = %v, want %v", tt.conc, got, tt.pass)
		}
	}
}

func TestRatioPenalty(t *testing.T) {
	c := Ratio{Numerator: 0, Denominator: 1, NumeratorName: "Cl", DenominatorName: "SO4", Target: 2}

	if got := c.Penalty([]float64{20, 10}); got != 0 {
		t.Errorf("Penalty at target ratio = %f, want 0", got)
	}
	if got := c.Penalty([]float64{30, 10}); got != 1 {
		t.Errorf("Penalty at ratio 3 = %f, want 1", got)
	}
	if got := c.Achieved([]float64{30, 10}); got != 3 {
		t.Errorf("Achieved = %f, want 3", got)
	}
	if !c.Satisfied([]float64{20.5, 10}) || c.Satisfied([]float64{22, 10}) {
		t.Error("Ratio pass must require |ratio - target| < 0.1")
	}
}

func TestRatioGuard(t *testing.T) {
	c := Ratio{Numerator: 0, Denominator: 1, Target: 2}

	for _, den := range []float64{0, 0.005, 0.00999} {
		conc := []float64{5, den}
		got := c.Penalty(conc)
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Fatalf("Penalty with denominator %g is not finite: %v", den, got)
		}
		if got != RatioGuardPenalty {
			t.Errorf("Penalty with denominator %g = %f, want %f", den, got, RatioGuardPenalty)
		}
		if c.Satisfied(conc) {
			t.Errorf("Ratio with denominator %g must not pass", den)
		}
		if !math.IsNaN(c.Achieved(conc)) {
			t.Errorf("Achieved with denominator %g should be NaN", den)
		}
	}

	// At the guard threshold the ratio is computed normally.
	if got := c.Penalty([]float64{0.02, RatioGuard}); got != 0 {
		t.Errorf("Penalty at guard threshold = %f, want 0", got)
	}
}

func TestConstraintSetError(t *testing.T) {
	cs := ConstraintSet{
		Exact{Ion: 0, Target: 10},
		Range{Ion: 1, Min: 5, Max: 15},
		Ratio{Numerator: 0, Denominator: 1, Target: 1},
	}

	tests := []struct {
		name string
		conc []float64
		want float64
	}{
		{name: "all satisfied", conc: []float64{10, 10}, want: 0},
		{name: "exact and ratio off", conc: []float64{12, 10}, want: 4 + 0.2*0.2},
		{name: "range off", conc: []float64{10, 20}, want: 25 + 0.25},
		{name: "guard", conc: []float64{10, 0}, want: 25 + RatioGuardPenalty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cs.Error(tt.conc)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Error = %f, want %f", got, tt.want)
			}
			if got < 0 {
				t.Errorf("Error must be non-negative, got %f", got)
			}
		})
	}
}

func TestEmptyConstraintSet(t *testing.T) {
	var cs ConstraintSet
	if got := cs.Error([]float64{1, 2, 3}); got != 0 {
		t.Errorf("Empty set error = %f, want 0", got)
	}
	if len(cs.Check([]float64{1})) != 0 {
		t.Error("Empty set should yield no checks")
	}
}

func TestConstraintSetCheck(t *testing.T) {
	cs := ConstraintSet{
		Exact{Ion: 0, Name: "Ca", Target: 10},
		Range{Ion: 1, Name: "Mg", Min: 5, Max: 15},
	}

	checks := cs.Check([]float64{10.5, 20})
	if len(checks) != 2 {
		t.Fatalf("Expected 2 checks, got %d", len(checks))
	}
	if !checks[0].Pass || checks[0].Achieved != 10.5 {
		t.Errorf("Exact check = %+v, want pass at 10.5", checks[0])
	}
	if checks[1].Pass || checks[1].Achieved != 20 {
		t.Errorf("Range check = %+v, want fail at 20", checks[1])
	}
}

func TestConstraintSetForIon(t *testing.T) {
	cs := ConstraintSet{
		Ratio{Numerator: 0, Denominator: 1, Target: 1},
		Range{Ion: 1, Min: 5, Max: 15},
	}

	if _, ok := cs.ForIon(0); ok {
		t.Error("Ion 0 only appears in a ratio and has no single-ion constraint")
	}
	c, ok := cs.ForIon(1)
	if !ok {
		t.Fatal("Expected a constraint for ion 1")
	}
	if _, isRange := c.(Range); !isRange {
		t.Errorf("Expected Range, got %T", c)
	}
}

func TestConstraintStrings(t *testing.T) {
	tests := []struct {
		c    Constraint
		want string
	}{
		{c: Exact{Ion: 0, Name: "Ca", Target: 60}, want: "Ca 60"},
		{c: Range{Ion: 1, Name: "Mg", Min: 5, Max: 15.5}, want: "Mg 5 - 15.5"},
		{c: Ratio{NumeratorName: "Cl", DenominatorName: "SO4", Target: 0.5}, want: "Cl : SO4 0.5"},
		{c: Exact{Ion: 3, Target: 1}, want: "#3 1"},
	}

	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestCostFunc(t *testing.T) {
	table, _ := NewTable([]string{"A", "B"}, []string{"S"}, [][]float64{{10, 0}})
	cost := NewCostFunc(table, ConstraintSet{Exact{Ion: 0, Target: 10}, Exact{Ion: 1, Target: 0}})

	if got := cost([]float64{1}); got != 0 {
		t.Errorf("cost(1) = %f, want 0", got)
	}
	if got := cost([]float64{0.5}); got != 25 {
		t.Errorf("cost(0.5) = %f, want 25", got)
	}
}

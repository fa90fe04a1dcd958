package fit

import (
	"context"
	"math"
	"testing"

	"github.com/cwbudde/saltcalc/internal/opt"
)

func testTable(t *testing.T, ions, salts []string, rows [][]float64) *Table {
	t.Helper()
	table, err := NewTable(ions, salts, rows)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	return table
}

func nudge(iters int, seed int64) opt.Optimizer {
	return opt.NewHillClimber(opt.HillClimberConfig{Iterations: iters, Eps: 0.01, ReportEvery: 1000}, opt.NewSource(seed))
}

func TestSolveExactTarget(t *testing.T) {
	// One salt contributing [10, 0]; optimum at quantity 1.0.
	p := &Problem{
		Table:       testTable(t, []string{"A", "B"}, []string{"S"}, [][]float64{{10, 0}}),
		Constraints: ConstraintSet{Exact{Ion: 0, Target: 10}, Exact{Ion: 1, Target: 0}},
	}

	result, err := Solve(context.Background(), p, nudge(20000, 42), nil)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	if math.Abs(result.Quantities[0]-1) > 0.01 {
		t.Errorf("Expected quantity near 1.0, got %f", result.Quantities[0])
	}
	if result.Error > 0.01 {
		t.Errorf("Expected error near 0, got %g", result.Error)
	}
	if result.InitialError != 100 {
		t.Errorf("Initial (undosed) error = %f, want 100", result.InitialError)
	}
	if !result.Checks[0].Pass || !result.Checks[1].Pass {
		t.Errorf("Expected both checks to pass: %+v", result.Checks)
	}
}

func TestSolveRangeTarget(t *testing.T) {
	p := &Problem{
		Table:       testTable(t, []string{"A", "B"}, []string{"S"}, [][]float64{{10, 0}}),
		Constraints: ConstraintSet{Range{Ion: 0, Min: 5, Max: 15}},
	}

	for _, seed := range []int64{1, 2, 3, 4} {
		result, err := Solve(context.Background(), p, nudge(20000, seed), nil)
		if err != nil {
			t.Fatalf("Solve failed: %v", err)
		}

		q := result.Quantities[0]
		if q < 0.5 || q > 1.5 {
			t.Errorf("seed %d: quantity %f outside [0.5, 1.5]", seed, q)
		}
		if result.Error != 0 {
			t.Errorf("seed %d: expected zero error inside the range, got %g", seed, result.Error)
		}
	}
}

func TestSolveRatioTarget(t *testing.T) {
	p := &Problem{
		Table:       testTable(t, []string{"A", "B"}, []string{"SA", "SB"}, [][]float64{{1, 0}, {0, 1}}),
		Constraints: ConstraintSet{Ratio{Numerator: 0, Denominator: 1, Target: 2}},
	}

	result, err := Solve(context.Background(), p, nudge(20000, 7), nil)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	ratio := result.Quantities[0] / result.Quantities[1]
	if math.Abs(ratio-2) > 0.05 {
		t.Errorf("Expected quantity ratio near 2, got %f (%v)", ratio, result.Quantities)
	}
	if result.Concentrations[1] < RatioGuard {
		t.Errorf("Denominator driven below the guard: %f", result.Concentrations[1])
	}
}

func TestSolveZeroSalts(t *testing.T) {
	p := &Problem{
		Table:       testTable(t, []string{"A"}, nil, nil),
		Constraints: ConstraintSet{Exact{Ion: 0, Target: 5}},
	}

	tracker := NewProgressTracker(0.001)
	result, err := Solve(context.Background(), p, nudge(5000, 1), func(i int, cost float64, _ []float64) {
		tracker.Update(i, cost)
	})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	if result.Error != 25 {
		t.Errorf("Expected error 25, got %f", result.Error)
	}
	history := tracker.History()
	if len(history) != 5 {
		t.Fatalf("Expected 5 progress reports, got %d", len(history))
	}
	for i, e := range history {
		if e != 25 {
			t.Errorf("Report %d: error %f, want 25 for the whole run", i, e)
		}
	}
	if len(result.Quantities) != 0 || result.Concentrations[0] != 0 {
		t.Errorf("Unexpected degenerate result: %+v", result)
	}
}

func TestSolveProgressMonotone(t *testing.T) {
	p := &Problem{
		Table: testTable(t,
			[]string{"Ca", "Mg", "SO4", "Cl"},
			[]string{"CaSO4", "MgSO4", "CaCl2"},
			[][]float64{{232, 0, 558, 0}, {0, 99, 390, 0}, {272, 0, 0, 482}}),
		Constraints: ConstraintSet{
			Exact{Ion: 0, Target: 60},
			Range{Ion: 1, Min: 5, Max: 15},
			Ratio{Numerator: 3, Denominator: 2, Target: 0.5},
		},
	}

	tracker := NewProgressTracker(0.001)
	_, err := Solve(context.Background(), p, nudge(30000, 99), func(i int, cost float64, _ []float64) {
		tracker.Update(i, cost)
	})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	if len(tracker.History()) != 30 {
		t.Fatalf("Expected 30 reports, got %d", len(tracker.History()))
	}
	if !tracker.Monotone() {
		t.Errorf("Logged best errors increased: %v", tracker.History())
	}
}

func TestSolveCancelled(t *testing.T) {
	p := &Problem{
		Table:       testTable(t, []string{"A"}, []string{"S"}, [][]float64{{10}}),
		Constraints: ConstraintSet{Exact{Ion: 0, Target: 10}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Solve(ctx, p, nudge(1<<20, 1), nil)
	if err == nil {
		t.Fatal("Expected context error")
	}
	if result == nil || len(result.Quantities) != 1 {
		t.Fatal("Cancelled solve should still return the best result so far")
	}
}

func TestSolveBoundsMismatch(t *testing.T) {
	p := &Problem{
		Table:  testTable(t, []string{"A"}, []string{"S"}, [][]float64{{10}}),
		Bounds: NewBounds(2, 1),
	}
	if _, err := Solve(context.Background(), p, nudge(10, 1), nil); err == nil {
		t.Fatal("Expected error for bounds of the wrong size")
	}
}

func TestSolveWithMayfly(t *testing.T) {
	p := &Problem{
		Table:       testTable(t, []string{"A", "B"}, []string{"SA", "SB"}, [][]float64{{1, 0}, {0, 1}}),
		Constraints: ConstraintSet{Exact{Ion: 0, Target: 0.5}, Exact{Ion: 1, Target: 0.25}},
	}

	result, err := Solve(context.Background(), p, opt.NewMayfly(100, 20, 42, 0), nil)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if result.Error >= result.InitialError {
		t.Errorf("Mayfly did not improve: initial=%f, best=%f", result.InitialError, result.Error)
	}
	for i, q := range result.Quantities {
		if q < 0 || q > 1 {
			t.Errorf("Quantity %d = %f outside the search box", i, q)
		}
	}
}

func TestSolveRestarts(t *testing.T) {
	p := &Problem{
		Table:       testTable(t, []string{"A", "B"}, []string{"S"}, [][]float64{{10, 0}}),
		Constraints: ConstraintSet{Exact{Ion: 0, Target: 10}},
	}

	calls := make(map[int][]float64)
	result, err := SolveRestarts(context.Background(), p, 4, func(r int) opt.Optimizer {
		return nudge(5000, int64(100+r))
	}, func(r, _ int, cost float64, _ []float64) {
		calls[r] = append(calls[r], cost) // serialized by SolveRestarts
	})
	if err != nil {
		t.Fatalf("SolveRestarts failed: %v", err)
	}
	for r := 0; r < 4; r++ {
		costs := calls[r]
		if len(costs) != 5 {
			t.Errorf("Restart %d: expected 5 progress calls, got %d", r, len(costs))
		}
		for i := 1; i < len(costs); i++ {
			if costs[i] > costs[i-1] {
				t.Errorf("Restart %d: best error increased %g -> %g", r, costs[i-1], costs[i])
			}
		}
	}

	// The winner must be at least as good as each restart run alone.
	for r := 0; r < 4; r++ {
		single, err := Solve(context.Background(), p, nudge(5000, int64(100+r)), nil)
		if err != nil {
			t.Fatalf("Solve failed: %v", err)
		}
		if result.Error > single.Error {
			t.Errorf("Restart %d alone reached %g, better than the winner %g", r, single.Error, result.Error)
		}
	}
}

func TestSolveRestartsSingle(t *testing.T) {
	p := &Problem{
		Table:       testTable(t, []string{"A"}, []string{"S"}, [][]float64{{10}}),
		Constraints: ConstraintSet{Exact{Ion: 0, Target: 10}},
	}

	a, err := SolveRestarts(context.Background(), p, 1, func(int) opt.Optimizer { return nudge(2000, 5) }, nil)
	if err != nil {
		t.Fatalf("SolveRestarts failed: %v", err)
	}
	b, _ := Solve(context.Background(), p, nudge(2000, 5), nil)
	if a.Error != b.Error {
		t.Errorf("Single restart should match Solve: %g vs %g", a.Error, b.Error)
	}
}

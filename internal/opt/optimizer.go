package opt

import "context"

// ProgressFunc receives the best cost found after a given number of iterations.
// best aliases the optimizer's internal buffer and must be copied to be retained.
type ProgressFunc func(iteration int, bestCost float64, best []float64)

// Problem describes what an optimizer minimizes.
type Problem struct {
	// Eval is the objective to minimize. It is only ever called from one goroutine.
	Eval func([]float64) float64

	// Lower and Upper have one entry per dimension. How they are used is strategy
	// specific; see the individual optimizers.
	Lower []float64
	Upper []float64

	// Progress is optional.
	Progress ProgressFunc
}

// Dim returns the dimensionality of the parameter space.
func (p Problem) Dim() int {
	return len(p.Lower)
}

// Result is the outcome of a run.
type Result struct {
	Best       []float64
	Cost       float64
	Iterations int
}

// Optimizer defines an optimization algorithm interface
type Optimizer interface {
	// Run executes the optimization. When ctx is cancelled it returns the best
	// parameters found so far together with the context error.
	Run(ctx context.Context, p Problem) (Result, error)
}

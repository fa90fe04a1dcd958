package opt

import (
	"context"
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters    int
	popSize     int
	seed        int64
	reportEvery int
}

// NewMayfly creates a new Mayfly optimizer adapter.
// Progress is reported every reportEvery objective evaluations (0 disables).
func NewMayfly(maxIters, popSize int, seed int64, reportEvery int) Optimizer {
	return &MayflyAdapter{
		maxIters:    maxIters,
		popSize:     popSize,
		seed:        seed,
		reportEvery: reportEvery,
	}
}

// Run executes the Mayfly optimization over the box [Lower[0], Upper[0]]^dim.
// The library cannot be interrupted; once ctx is cancelled the remaining evaluations
// short-circuit to +Inf and the best vector seen before cancellation is returned.
// Result.Iterations counts objective evaluations on every path, the same unit
// progress reports use.
func (m *MayflyAdapter) Run(ctx context.Context, p Problem) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	dim := p.Dim()
	if dim == 0 {
		return Result{Best: []float64{}, Cost: p.Eval([]float64{})}, nil
	}

	tracked := &trackingEval{
		ctx:         ctx,
		eval:        p.Eval,
		progress:    p.Progress,
		reportEvery: m.reportEvery,
		bestCost:    math.Inf(1),
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = tracked.call
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize

	// The library takes scalar bounds.
	config.LowerBound = p.Lower[0]
	config.UpperBound = p.Upper[0]

	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err := ctx.Err(); err != nil {
		return Result{Best: tracked.best, Cost: tracked.bestCost, Iterations: tracked.calls}, err
	}
	if err != nil {
		slog.Warn("Mayfly search failed, keeping best point evaluated", "error", err, "evaluations", tracked.calls)
		if tracked.best == nil {
			zero := append([]float64(nil), p.Lower...)
			return Result{Best: zero, Cost: p.Eval(zero), Iterations: tracked.calls}, nil
		}
		return Result{Best: tracked.best, Cost: tracked.bestCost, Iterations: tracked.calls}, nil
	}

	best := append([]float64(nil), result.GlobalBest.Position...)
	for i := range best {
		best[i] = math.Max(p.Lower[i], math.Min(p.Upper[i], best[i]))
	}

	return Result{Best: best, Cost: p.Eval(best), Iterations: tracked.calls}, nil
}

// trackingEval counts evaluations and remembers the best point for progress reports.
type trackingEval struct {
	ctx         context.Context
	eval        func([]float64) float64
	progress    ProgressFunc
	reportEvery int

	calls    int
	best     []float64
	bestCost float64
}

func (t *trackingEval) call(x []float64) float64 {
	if t.ctx.Err() != nil {
		return math.Inf(1)
	}

	t.calls++
	cost := t.eval(x)
	if cost < t.bestCost {
		t.bestCost = cost
		t.best = append(t.best[:0], x...)
	}

	if t.reportEvery > 0 && t.calls%t.reportEvery == 0 && t.progress != nil {
		t.progress(t.calls, t.bestCost, t.best)
	}
	return cost
}

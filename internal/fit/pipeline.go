package fit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwbudde/saltcalc/internal/opt"
	"golang.org/x/sync/errgroup"
)

// DefaultInitMax is the upper end of the initial per-salt quantity draw, in g/l.
const DefaultInitMax = 1.0

// Problem couples a table with the constraints its concentrations are scored against.
type Problem struct {
	Table       *Table
	Constraints ConstraintSet

	// Bounds defaults to NewBounds(len(Table.Salts), DefaultInitMax).
	Bounds *Bounds
}

func (p *Problem) bounds() *Bounds {
	if p.Bounds != nil {
		return p.Bounds
	}
	return NewBounds(len(p.Table.Salts), DefaultInitMax)
}

// OptimizationResult holds the output of an optimization run
type OptimizationResult struct {
	Quantities     []float64 // g/l per salt
	Concentrations []float64 // per ion
	Error          float64
	InitialError   float64 // error of the undosed water
	Iterations     int
	Restart        int
	Checks         []Check
}

// Solve runs one optimizer over the problem.
// On cancellation the best result found so far is returned with the context error.
func Solve(ctx context.Context, p *Problem, optimizer opt.Optimizer, progress opt.ProgressFunc) (*OptimizationResult, error) {
	salts := len(p.Table.Salts)
	b := p.bounds()
	if len(b.Lower) != salts || len(b.Upper) != salts {
		return nil, fmt.Errorf("bounds cover %d/%d salts, want %d", len(b.Lower), len(b.Upper), salts)
	}

	cost := NewCostFunc(p.Table, p.Constraints)
	initialError := cost(make([]float64, salts))

	slog.Debug("Starting search", "salts", salts, "ions", len(p.Table.Ions), "constraints", len(p.Constraints), "initial_error", initialError)

	out, runErr := optimizer.Run(ctx, opt.Problem{
		Eval:     cost,
		Lower:    b.Lower,
		Upper:    b.Upper,
		Progress: progress,
	})
	if out.Best == nil {
		if runErr == nil {
			runErr = errors.New("optimizer returned no result")
		}
		return nil, runErr
	}

	quantities := make([]float64, len(out.Best))
	copy(quantities, out.Best)
	b.ClampLower(quantities)

	concentrations := p.Table.Matrix.Concentrations(nil, quantities)
	result := &OptimizationResult{
		Quantities:     quantities,
		Concentrations: concentrations,
		Error:          p.Constraints.Error(concentrations),
		InitialError:   initialError,
		Iterations:     out.Iterations,
		Checks:         p.Constraints.Check(concentrations),
	}

	slog.Debug("Search complete", "initial_error", initialError, "best_error", result.Error, "iterations", out.Iterations)
	return result, runErr
}

// RestartProgressFunc receives progress reports tagged with the restart that produced them.
type RestartProgressFunc func(restart, iteration int, bestCost float64, best []float64)

// SolveRestarts runs n independent searches concurrently and keeps the lowest error.
// newOptimizer is called once per restart and must return an optimizer with its own
// random source. Ties go to the lower restart index. progress calls are serialized.
func SolveRestarts(ctx context.Context, p *Problem, n int, newOptimizer func(restart int) opt.Optimizer, progress RestartProgressFunc) (*OptimizationResult, error) {
	var mu sync.Mutex
	tagged := func(r int) opt.ProgressFunc {
		if progress == nil {
			return nil
		}
		return func(iteration int, bestCost float64, best []float64) {
			mu.Lock()
			defer mu.Unlock()
			progress(r, iteration, bestCost, best)
		}
	}

	if n <= 1 {
		return Solve(ctx, p, newOptimizer(0), tagged(0))
	}

	results := make([]*OptimizationResult, n)
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < n; r++ {
		g.Go(func() error {
			res, err := Solve(gctx, p, newOptimizer(r), tagged(r))
			if res != nil {
				res.Restart = r
			}
			results[r] = res
			return err
		})
	}
	waitErr := g.Wait()

	var best *OptimizationResult
	for _, res := range results {
		if res == nil {
			continue
		}
		if best == nil || res.Error < best.Error {
			best = res
		}
	}
	if best == nil {
		if waitErr == nil {
			waitErr = errors.New("no restart produced a result")
		}
		return nil, waitErr
	}

	slog.Debug("Restarts complete", "restarts", n, "winner", best.Restart, "best_error", best.Error)
	return best, waitErr
}

package opt

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

const cancelCheckMask = 1<<10 - 1

// HillClimberConfig parameterizes the nudge search.
type HillClimberConfig struct {
	// Iterations is the fixed number of nudges; the search never stops early.
	Iterations int

	// Eps is the nudge scale. Each component moves by a Normal(-Eps, Eps) sample.
	Eps float64

	// ReportEvery controls how often Progress is called (0 disables).
	ReportEvery int

	// Initial optionally replaces the random starting point.
	Initial []float64
}

// HillClimber is a greedy randomized local search. Every iteration perturbs the current
// best vector, clamps it at the lower bounds, and keeps the trial only if its cost is
// strictly lower.
//
// Lower bounds are hard floors. Upper bounds only limit the uniform initial draw.
type HillClimber struct {
	cfg HillClimberConfig
	src rand.Source
}

// NewHillClimber creates a hill climber drawing from src.
func NewHillClimber(cfg HillClimberConfig, src rand.Source) *HillClimber {
	return &HillClimber{cfg: cfg, src: src}
}

// NewSource returns a deterministic random source for seed.
func NewSource(seed int64) rand.Source {
	return rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15)
}

// Run executes the search.
func (h *HillClimber) Run(ctx context.Context, p Problem) (Result, error) {
	dim := p.Dim()
	best := make([]float64, dim)
	trial := make([]float64, dim)

	if h.cfg.Initial != nil {
		if len(h.cfg.Initial) != dim {
			return Result{}, fmt.Errorf("initial vector has %d entries, want %d", len(h.cfg.Initial), dim)
		}
		for s, q := range h.cfg.Initial {
			best[s] = math.Max(p.Lower[s], q)
		}
	} else {
		for s := range best {
			u := distuv.Uniform{Min: p.Lower[s], Max: p.Upper[s], Src: h.src}
			best[s] = u.Rand()
		}
	}

	bestCost := p.Eval(best)

	// The mean is -eps, not zero: every nudge drifts slightly toward smaller doses.
	nudge := distuv.Normal{Mu: -h.cfg.Eps, Sigma: h.cfg.Eps, Src: h.src}

	for i := 1; i <= h.cfg.Iterations; i++ {
		for s, q := range best {
			trial[s] = math.Max(p.Lower[s], q+nudge.Rand())
		}

		if cost := p.Eval(trial); cost < bestCost {
			best, trial = trial, best
			bestCost = cost
		}

		if h.cfg.ReportEvery > 0 && i%h.cfg.ReportEvery == 0 && p.Progress != nil {
			p.Progress(i, bestCost, best)
		}

		if i&cancelCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return Result{Best: best, Cost: bestCost, Iterations: i}, err
			}
		}
	}

	return Result{Best: best, Cost: bestCost, Iterations: h.cfg.Iterations}, nil
}

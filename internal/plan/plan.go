// Package plan turns a run configuration into a dosing plan: it loads the table and
// targets, builds the search, and runs it.
package plan

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cwbudde/saltcalc/internal/config"
	"github.com/cwbudde/saltcalc/internal/fit"
	"github.com/cwbudde/saltcalc/internal/loader"
	"github.com/cwbudde/saltcalc/internal/opt"
	"github.com/cwbudde/saltcalc/internal/report"
)

// Options adjust a run without changing its configuration.
type Options struct {
	// Progress receives best-error reports from every restart.
	Progress fit.RestartProgressFunc

	// Initial warm-starts the nudge search from these quantities, in table order.
	Initial []float64
}

// Plan is a finished dosing search.
type Plan struct {
	Table       *fit.Table
	Constraints fit.ConstraintSet
	Result      *fit.OptimizationResult
	Volume      float64
}

// Report returns the printable form of the plan.
func (p *Plan) Report() report.Report {
	return report.Report{
		Table:       p.Table,
		Constraints: p.Constraints,
		Result:      p.Result,
		Volume:      p.Volume,
	}
}

// WriteReport prints the plan to w.
func (p *Plan) WriteReport(w io.Writer) error {
	return report.Write(w, p.Report())
}

// Load reads the table and targets named by cfg into a search problem.
func Load(cfg config.Config) (*fit.Problem, error) {
	table, err := loader.LoadTable(cfg.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to load contribution table: %w", err)
	}
	constraints, err := loader.LoadTargets(cfg.Targets, table)
	if err != nil {
		return nil, fmt.Errorf("failed to load targets: %w", err)
	}

	slog.Debug("Loaded problem", "table", cfg.Table, "targets", cfg.Targets,
		"salts", len(table.Salts), "ions", len(table.Ions), "constraints", len(constraints))

	return &fit.Problem{
		Table:       table,
		Constraints: constraints,
		Bounds:      fit.NewBounds(len(table.Salts), cfg.Search.InitMax),
	}, nil
}

// NewOptimizer builds the optimizer for one restart. Restart r uses seed+r so
// restarts are independent and the whole run stays reproducible.
func NewOptimizer(s config.Search, restart int, initial []float64) (opt.Optimizer, error) {
	seed := s.Seed + int64(restart)
	switch s.Strategy {
	case config.StrategyNudge:
		return opt.NewHillClimber(opt.HillClimberConfig{
			Iterations:  s.Iterations,
			Eps:         s.Eps,
			ReportEvery: s.ReportEvery,
			Initial:     initial,
		}, opt.NewSource(seed)), nil
	case config.StrategyMayfly:
		if initial != nil {
			return nil, fmt.Errorf("strategy %s cannot warm-start", s.Strategy)
		}
		return opt.NewMayfly(s.Iterations, s.Population, seed, s.ReportEvery), nil
	default:
		return nil, fmt.Errorf("unknown strategy: %s", s.Strategy)
	}
}

// mustOptimizer is NewOptimizer for settings already accepted by it.
func mustOptimizer(s config.Search, restart int, initial []float64) opt.Optimizer {
	o, err := NewOptimizer(s, restart, initial)
	if err != nil {
		panic(fmt.Sprintf("plan: optimizer for restart %d: %v", restart, err))
	}
	return o
}

// Run validates cfg and executes the search. On cancellation the best plan found so
// far is returned together with the context error.
func Run(ctx context.Context, cfg config.Config, opts Options) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	problem, err := Load(cfg)
	if err != nil {
		return nil, err
	}
	if opts.Initial != nil && len(opts.Initial) != len(problem.Table.Salts) {
		return nil, fmt.Errorf("warm start has %d quantities, table has %d salts", len(opts.Initial), len(problem.Table.Salts))
	}

	// Checked once here; the factory runs inside restarts and cannot return errors.
	if _, err := NewOptimizer(cfg.Search, 0, opts.Initial); err != nil {
		return nil, err
	}
	factory := func(r int) opt.Optimizer {
		return mustOptimizer(cfg.Search, r, opts.Initial)
	}

	slog.Info("Starting search",
		"strategy", cfg.Search.Strategy,
		"iterations", cfg.Search.Iterations,
		"restarts", cfg.Search.Restarts,
		"seed", cfg.Search.Seed,
		"warm_start", opts.Initial != nil,
	)

	result, runErr := fit.SolveRestarts(ctx, problem, cfg.Search.Restarts, factory, opts.Progress)
	if result == nil {
		return nil, runErr
	}

	passed, failed := report.Summary(result.Checks)
	slog.Info("Search finished",
		"initial_error", result.InitialError,
		"best_error", result.Error,
		"passed", passed,
		"failed", failed,
	)

	return &Plan{
		Table:       problem.Table,
		Constraints: problem.Constraints,
		Result:      result,
		Volume:      cfg.Volume,
	}, runErr
}

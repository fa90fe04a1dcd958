package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/saltcalc/internal/config"
	"github.com/cwbudde/saltcalc/internal/fit"
	"github.com/cwbudde/saltcalc/internal/plan"
	"github.com/cwbudde/saltcalc/internal/store"
)

// recorder persists a CLI run: trace while searching, checkpoint and report after.
type recorder struct {
	jobID string
	store *store.FSStore
	trace *store.TraceWriter
}

func newRecorder(dataDir, jobID string, appendTrace bool) (*recorder, error) {
	st, err := store.NewFSStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	tw, err := store.NewTraceWriter(dataDir, jobID, appendTrace)
	if err != nil {
		return nil, err
	}
	return &recorder{jobID: jobID, store: st, trace: tw}, nil
}

func (r *recorder) Close() error {
	return r.trace.Close()
}

// save writes the checkpoint and report of p. iterations is the total across runs.
func (r *recorder) save(p *plan.Plan, cfg config.Config, iterations int) error {
	cp := store.NewCheckpoint(
		r.jobID,
		p.Result.Quantities,
		p.Result.Concentrations,
		p.Result.Error,
		p.Result.InitialError,
		iterations,
		cfg.Job(),
	)
	if err := r.store.SaveCheckpoint(r.jobID, cp); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := p.WriteReport(&buf); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return r.store.SaveArtifact(r.jobID, store.ReportArtifact, buf.Bytes())
}

// progressLogger logs every progress report and traces it when rec is set.
// Calls are serialized by the search, so the trackers need no lock.
func progressLogger(rec *recorder) fit.RestartProgressFunc {
	trackers := make(map[int]*fit.ProgressTracker)
	return func(restart, iteration int, bestError float64, best []float64) {
		tracker, ok := trackers[restart]
		if !ok {
			tracker = fit.NewProgressTracker(1e-9)
			trackers[restart] = tracker
		}
		stale := tracker.Update(iteration, bestError)

		slog.Info("Search progress",
			"restart", restart,
			"iteration", iteration,
			"best_error", bestError,
			"stale_reports", stale,
		)

		if rec == nil {
			return
		}
		if err := rec.trace.Write(store.TraceEntry{
			Iteration:  iteration,
			Error:      bestError,
			Restart:    restart,
			Timestamp:  time.Now(),
			Quantities: append([]float64(nil), best...),
		}); err != nil {
			slog.Warn("Failed to write trace entry", "error", err)
		}
	}
}

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbudde/saltcalc/internal/config"
	"github.com/cwbudde/saltcalc/internal/fit"
	"github.com/cwbudde/saltcalc/internal/plan"
	"github.com/cwbudde/saltcalc/internal/store"
)

// runJob executes a dosing job in the background.
// If checkpointStore is not nil the final state is checkpointed with its report and trace,
// and periodic checkpoints are saved when the job has checkpointInterval > 0.
func runJob(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string) error {
	defer jm.release(jobID)

	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}
	jobsRunning.Inc()
	defer jobsRunning.Dec()

	slog.Info("Starting job", "job_id", jobID, "table", job.Config.TablePath, "targets", job.Config.TargetsPath)

	cfg := config.FromJob(job.Config)
	cfg.Search.ReportEvery = reportEvery(cfg.Search.Iterations)

	if ctx.Err() != nil {
		markJobCancelled(jm, jobID)
		return ctx.Err()
	}

	var trace *store.TraceWriter
	if fsStore, ok := checkpointStore.(*store.FSStore); ok {
		tw, err := store.NewTraceWriter(fsStore.BaseDir(), jobID, false)
		if err != nil {
			slog.Warn("Failed to open trace", "job_id", jobID, "error", err)
		} else {
			trace = tw
			defer trace.Close()
		}
	}

	progress := newJobProgress(jm, jobID, trace)

	start := time.Now()
	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, start, progressDone)

	checkpointDone := make(chan struct{})
	if checkpointStore != nil && job.Config.CheckpointInterval > 0 {
		go monitorCheckpoints(ctx, jm, checkpointStore, jobID, checkpointDone)
	}

	p, err := plan.Run(ctx, cfg, plan.Options{Progress: progress.report})

	close(progressDone)
	close(checkpointDone)
	elapsed := time.Since(start)
	jobDuration.Observe(elapsed.Seconds())

	if p != nil {
		var buf bytes.Buffer
		if werr := p.WriteReport(&buf); werr != nil {
			slog.Warn("Failed to render report", "job_id", jobID, "error", werr)
		}
		applyResult(jm, jobID, p.Result, buf.String())
	}

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		markJobCancelled(jm, jobID)
	case err != nil:
		markJobFailed(jm, jobID, err)
		return err
	default:
		endTime := time.Now()
		jm.UpdateJob(jobID, func(j *Job) {
			j.State = StateCompleted
			j.EndTime = &endTime
		})
		jobsFinished.WithLabelValues(string(StateCompleted)).Inc()
	}

	if p != nil && checkpointStore != nil {
		if serr := saveCheckpoint(jm, checkpointStore, jobID); serr != nil {
			slog.Error("Failed to save checkpoint", "job_id", jobID, "error", serr)
		}
	}

	final, _ := jm.GetJob(jobID)
	slog.Info("Job finished",
		"job_id", jobID,
		"state", final.State,
		"elapsed", elapsed,
		"initial_error", final.InitialError,
		"best_error", final.BestError,
	)

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:      jobID,
		State:      final.State,
		Iterations: final.Iterations,
		BestError:  final.BestError,
		Rate:       iterationRate(final.Iterations, elapsed),
		Timestamp:  time.Now(),
	})

	return err
}

// jobProgress folds reports from concurrent restarts into the job.
type jobProgress struct {
	jm    *JobManager
	jobID string
	trace *store.TraceWriter

	mu       sync.Mutex
	iters    map[int]int
	trackers map[int]*fit.ProgressTracker
}

func newJobProgress(jm *JobManager, jobID string, trace *store.TraceWriter) *jobProgress {
	return &jobProgress{
		jm:       jm,
		jobID:    jobID,
		trace:    trace,
		iters:    make(map[int]int),
		trackers: make(map[int]*fit.ProgressTracker),
	}
}

func (p *jobProgress) report(restart, iteration int, bestError float64, best []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, ok := p.trackers[restart]
	if !ok {
		tracker = fit.NewProgressTracker(1e-9)
		p.trackers[restart] = tracker
	}
	tracker.Update(iteration, bestError)

	p.iters[restart] = iteration
	total := 0
	for _, n := range p.iters {
		total += n
	}

	quantities := append([]float64(nil), best...)
	p.jm.UpdateJob(p.jobID, func(j *Job) {
		j.Iterations = total
		if j.Quantities == nil || bestError < j.BestError {
			j.BestError = bestError
			j.Quantities = quantities
		}
	})

	if p.trace != nil {
		if err := p.trace.Write(store.TraceEntry{
			Iteration:  iteration,
			Error:      bestError,
			Restart:    restart,
			Timestamp:  time.Now(),
			Quantities: quantities,
		}); err != nil {
			slog.Warn("Failed to write trace entry", "job_id", p.jobID, "error", err)
		}
	}
}

func applyResult(jm *JobManager, jobID string, result *fit.OptimizationResult, report string) {
	checks := newCheckViews(result.Checks)
	jm.UpdateJob(jobID, func(j *Job) {
		j.Quantities = result.Quantities
		j.Concentrations = result.Concentrations
		j.Checks = checks
		j.BestError = result.Error
		j.InitialError = result.InitialError
		j.Report = report
		if result.Iterations > j.Iterations {
			j.Iterations = result.Iterations
		}
	})
}

// reportEvery picks a progress interval giving about 50 reports per search.
func reportEvery(iterations int) int {
	n := iterations / 50
	if n < 1 {
		return 1
	}
	if n > 10000 {
		return 10000
	}
	return n
}

func iterationRate(iterations int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(iterations) / elapsed.Seconds()
}

// monitorProgress periodically broadcasts progress events during the search
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, startTime time.Time, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond) // Throttle to 2 updates per second
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}

			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:      jobID,
				State:      job.State,
				Iterations: job.Iterations,
				BestError:  job.BestError,
				Rate:       iterationRate(job.Iterations, time.Since(startTime)),
				Timestamp:  time.Now(),
			})
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jobsFinished.WithLabelValues(string(StateFailed)).Inc()
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	jobsFinished.WithLabelValues(string(StateCancelled)).Inc()
	slog.Info("Job cancelled", "job_id", jobID)
}

// monitorCheckpoints periodically saves checkpoints during the search
func monitorCheckpoints(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string, done chan struct{}) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}

	ticker := time.NewTicker(time.Duration(job.Config.CheckpointInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint saves a checkpoint for the given job, plus its report once finished
func saveCheckpoint(jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if job.Quantities == nil {
		slog.Debug("Skipping checkpoint, no quantities yet", "job_id", jobID)
		return nil
	}

	checkpoint := store.NewCheckpoint(
		jobID,
		job.Quantities,
		job.Concentrations,
		job.BestError,
		job.InitialError,
		job.Iterations,
		job.Config,
	)

	if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"iteration", job.Iterations,
		"best_error", job.BestError,
	)

	if job.Report != "" {
		if err := checkpointStore.SaveArtifact(jobID, store.ReportArtifact, []byte(job.Report)); err != nil {
			// The checkpoint itself is what resume needs.
			slog.Warn("Failed to save report artifact", "job_id", jobID, "error", err)
		}
	}

	return nil
}

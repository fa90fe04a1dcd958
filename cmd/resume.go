package main

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/saltcalc/internal/config"
	"github.com/cwbudde/saltcalc/internal/plan"
	"github.com/cwbudde/saltcalc/internal/store"
	"github.com/spf13/cobra"
)

var resumeFlags searchFlags

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Continue a saved search from its checkpoint",
	Long: `Loads the checkpoint of a saved run and continues the nudge search from its
best quantities. Search flags override the saved configuration; the table and
targets must match the checkpoint. The checkpoint is replaced only when the
continued search improves on it.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeFlags.register(resumeCmd.Flags())
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	// The data directory comes from flags or --config; the rest from the checkpoint.
	base, err := loadConfig(cmd, &resumeFlags)
	if err != nil {
		return err
	}

	checkpointStore, err := store.NewFSStore(base.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	cp, err := checkpointStore.LoadCheckpoint(jobID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := cp.Validate(); err != nil {
		return err
	}

	cfg := config.FromJob(cp.Config)
	cfg.DataDir = base.DataDir
	cfg.Search.ReportEvery = base.Search.ReportEvery
	resumeFlags.apply(cmd.Flags(), &cfg)
	if cfg.Search.Strategy != config.StrategyNudge {
		slog.Info("Switching to nudge search for warm start", "saved_strategy", cfg.Search.Strategy)
		cfg.Search.Strategy = config.StrategyNudge
	}

	if err := cp.IsCompatible(cfg.Job()); err != nil {
		return err
	}

	slog.Info("Resuming search",
		"job_id", jobID,
		"checkpoint_error", cp.BestError,
		"checkpoint_iteration", cp.Iteration,
	)

	rec, err := newRecorder(cfg.DataDir, jobID, true)
	if err != nil {
		return err
	}
	defer rec.Close()

	p, runErr := plan.Run(cmd.Context(), cfg, plan.Options{
		Progress: progressLogger(rec),
		Initial:  cp.Quantities,
	})
	if p == nil {
		return runErr
	}
	if runErr != nil {
		slog.Warn("Search interrupted, reporting best result so far", "error", runErr)
	}

	if err := p.WriteReport(cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if p.Result.Error < cp.BestError {
		if err := rec.save(p, cfg, cp.Iteration+p.Result.Iterations); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nImproved checkpoint %s: %.6g -> %.6g\n", jobID, cp.BestError, p.Result.Error)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "\nNo improvement over checkpoint %s (%.6g)\n", jobID, cp.BestError)
	}
	return runErr
}

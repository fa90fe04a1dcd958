package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/saltcalc/internal/plan"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	runFlags searchFlags
	saveRun  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Search for salt additions that meet the targets",
	Long: `Loads the contribution table and targets, searches for per-salt quantities and
prints the dosing report. With --save the result is kept as a checkpoint that
"resume" can continue from.`,
	Args: cobra.NoArgs,
	RunE: runDosing,
}

func init() {
	runFlags.register(runCmd.Flags())
	runCmd.Flags().BoolVar(&saveRun, "save", false, "Save a checkpoint, report and trace under --data-dir")
	rootCmd.AddCommand(runCmd)
}

func runDosing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, &runFlags)
	if err != nil {
		return err
	}

	var rec *recorder
	if saveRun {
		rec, err = newRecorder(cfg.DataDir, uuid.New().String(), false)
		if err != nil {
			return err
		}
		defer rec.Close()
		slog.Info("Recording run", "job_id", rec.jobID, "data_dir", cfg.DataDir)
	}

	start := time.Now()
	p, runErr := plan.Run(cmd.Context(), cfg, plan.Options{Progress: progressLogger(rec)})
	if p == nil {
		return runErr
	}
	if runErr != nil {
		slog.Warn("Search interrupted, reporting best result so far", "error", runErr)
	}

	slog.Info("Search complete",
		"elapsed", time.Since(start),
		"iterations", p.Result.Iterations,
		"initial_error", p.Result.InitialError,
		"best_error", p.Result.Error,
	)

	if err := p.WriteReport(cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if rec != nil {
		if err := rec.save(p, cfg, p.Result.Iterations); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nSaved checkpoint %s\n", rec.jobID)
	}
	return runErr
}

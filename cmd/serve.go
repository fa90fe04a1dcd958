package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwbudde/saltcalc/internal/server"
	"github.com/cwbudde/saltcalc/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var (
	serveAddr    string
	serveDataDir string
	serveInput   string
	submitRate   float64
	submitBurst  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Serves the job API under /api/v1/jobs, a job list at / and Prometheus
metrics at /metrics. Finished jobs are checkpointed under --data-dir.

Jobs name their table and target files by path. With --input-dir those paths
are resolved inside that directory; without it the server opens any path it
can read, so only listen on a trusted interface.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Base directory for checkpoints and traces")
	serveCmd.Flags().StringVar(&serveInput, "input-dir", "", "Directory submitted table and target paths are confined to")
	serveCmd.Flags().Float64Var(&submitRate, "submit-rate", float64(server.DefaultSubmitRate), "Job submissions per second")
	serveCmd.Flags().IntVar(&submitBurst, "submit-burst", server.DefaultSubmitBurst, "Job submission burst")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	checkpointStore, err := store.NewFSStore(serveDataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	opts := []server.Option{server.WithSubmitLimit(rate.Limit(submitRate), submitBurst)}
	if serveInput != "" {
		opts = append(opts, server.WithInputDir(serveInput))
	} else {
		slog.Warn("No --input-dir set, jobs may read any file the server can open")
	}
	srv := server.NewServer(serveAddr, checkpointStore, opts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-cmd.Context().Done():
	}

	slog.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

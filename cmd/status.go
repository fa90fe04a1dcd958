package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwbudde/saltcalc/internal/server"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	showReport bool
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	statusCmd.Flags().BoolVar(&showReport, "report", false, "Print the dosing report of a finished job")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus is the body of GET /api/v1/jobs/{id}/status.
type jobStatus struct {
	server.Job
	Elapsed float64 `json:"elapsed"`
	Rate    float64 `json:"iterationsPerSecond"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return listJobs(out, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}

	jobID := args[0]
	if err := getJobStatus(out, fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID); err != nil {
		return err
	}
	if showReport {
		return getJobReport(out, fmt.Sprintf("%s/api/v1/jobs/%s/report", serverURL, jobID))
	}
	return nil
}

func fetch(url string, v any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &httpError{status: resp.StatusCode, body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.status, e.body)
}

func listJobs(w io.Writer, url string) error {
	var jobs []server.Job
	if err := fetch(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Strategy: %s\n", job.Config.Strategy)
		fmt.Fprintf(w, "  Targets: %s\n", job.Config.TargetsPath)
		if job.Iterations > 0 {
			fmt.Fprintf(w, "  Error: %.6g -> %.6g\n", job.InitialError, job.BestError)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func getJobStatus(w io.Writer, url, jobID string) error {
	var status jobStatus
	if err := fetch(url, &status); err != nil {
		if he, ok := err.(*httpError); ok && he.status == http.StatusNotFound {
			return fmt.Errorf("job not found: %s", jobID)
		}
		return err
	}

	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintln(w)

	cfg := status.Config
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Table: %s\n", cfg.TablePath)
	fmt.Fprintf(w, "  Targets: %s\n", cfg.TargetsPath)
	fmt.Fprintf(w, "  Volume: %g l\n", cfg.Volume)
	fmt.Fprintf(w, "  Strategy: %s\n", cfg.Strategy)
	fmt.Fprintf(w, "  Iterations: %d x %d restart(s)\n", cfg.Iters, cfg.Restarts)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Iterations: %d\n", status.Iterations)
	if status.Iterations > 0 {
		fmt.Fprintf(w, "  Initial Error: %.6g\n", status.InitialError)
		fmt.Fprintf(w, "  Best Error: %.6g\n", status.BestError)
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.Rate > 0 {
		fmt.Fprintf(w, "  Throughput: %.0f iterations/sec\n", status.Rate)
	}

	if len(status.Checks) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Targets:")
		for _, c := range status.Checks {
			mark := "FAIL"
			if c.Pass {
				mark = "ok"
			}
			achieved := "n/a"
			if c.Achieved != nil {
				achieved = fmt.Sprintf("%.2f", *c.Achieved)
			}
			fmt.Fprintf(w, "  %s: %s %s\n", c.Constraint, achieved, mark)
		}
	}

	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}
	return nil
}

func getJobReport(w io.Writer, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &httpError{status: resp.StatusCode, body: string(body)}
	}

	fmt.Fprintln(w)
	_, err = w.Write(body)
	return err
}

package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/saltcalc/internal/config"
	"github.com/cwbudde/saltcalc/internal/store"
)

const testTable = `Ca Mg SO4 Cl
CaCl2  272 0  0   482
MgSO4  0   99 390 0
`

// writeProblem writes a contribution table and targets and returns a small job config.
func writeProblem(t *testing.T, targets string) JobConfig {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default().Job()
	cfg.TablePath = filepath.Join(dir, "ions.txt")
	cfg.TargetsPath = filepath.Join(dir, "targets.txt")
	cfg.Iters = 5000
	cfg.Eps = 0.001

	if err := os.WriteFile(cfg.TablePath, []byte(testTable), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.TargetsPath, []byte(targets), 0644); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestRunJob_Success(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(writeProblem(t, "Ca 60\nMg 10\n"))

	if err := runJob(context.Background(), jm, nil, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Errorf("Job should be completed, got %s", updated.State)
	}
	if updated.EndTime == nil {
		t.Error("EndTime should be set")
	}
	if len(updated.Quantities) != 2 || len(updated.Concentrations) != 4 {
		t.Errorf("Expected 2 quantities and 4 concentrations, got %d/%d", len(updated.Quantities), len(updated.Concentrations))
	}
	if updated.InitialError != 3700 {
		t.Errorf("Initial error = %f, want 3700", updated.InitialError)
	}
	if updated.BestError >= updated.InitialError {
		t.Errorf("Search should improve on undosed water: %f", updated.BestError)
	}
	if updated.Iterations != 5000 {
		t.Errorf("Expected 5000 iterations, got %d", updated.Iterations)
	}
	if len(updated.Checks) != 2 {
		t.Errorf("Expected 2 checks, got %d", len(updated.Checks))
	}
	if updated.Report == "" {
		t.Error("Report should be rendered")
	}
}

func TestRunJob_SavesCheckpointAndTrace(t *testing.T) {
	dataDir := t.TempDir()
	st, err := store.NewFSStore(dataDir)
	if err != nil {
		t.Fatal(err)
	}

	jm := NewJobManager()
	job := jm.CreateJob(writeProblem(t, "Ca 60\nMg 10\n"))

	if err := runJob(context.Background(), jm, st, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	cp, err := st.LoadCheckpoint(job.ID)
	if err != nil {
		t.Fatalf("Checkpoint not saved: %v", err)
	}
	if err := cp.Validate(); err != nil {
		t.Errorf("Saved checkpoint is invalid: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if cp.BestError != updated.BestError {
		t.Errorf("Checkpoint error %f differs from job %f", cp.BestError, updated.BestError)
	}

	report, err := st.LoadArtifact(job.ID, store.ReportArtifact)
	if err != nil {
		t.Fatalf("Report not saved: %v", err)
	}
	if string(report) != updated.Report {
		t.Error("Stored report differs from the job report")
	}

	reader, err := store.NewTraceReader(dataDir, job.ID)
	if err != nil {
		t.Fatalf("Trace not written: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read trace: %v", err)
	}
	if len(entries) != 50 { // 5000 iterations, reported every 100
		t.Errorf("Expected 50 trace entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Error > entries[i-1].Error {
			t.Errorf("Trace error increased at %d: %f -> %f", i, entries[i-1].Error, entries[i].Error)
		}
	}
}

func TestRunJob_MissingTable(t *testing.T) {
	jm := NewJobManager()
	cfg := writeProblem(t, "Ca 60\n")
	cfg.TablePath = "/nonexistent/ions.txt"
	job := jm.CreateJob(cfg)

	if err := runJob(context.Background(), jm, nil, job.ID); err == nil {
		t.Error("runJob should fail for a missing table")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}
	if updated.Error == "" {
		t.Error("Error message should be set")
	}
}

func TestRunJob_Cancellation(t *testing.T) {
	jm := NewJobManager()
	cfg := writeProblem(t, "Ca 60\nMg 10\n")
	cfg.Iters = 1 << 22
	job := jm.CreateJob(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runJob(ctx, jm, nil, job.ID)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
}

func TestRunJob_NotFound(t *testing.T) {
	if err := runJob(context.Background(), NewJobManager(), nil, "missing"); err == nil {
		t.Error("Expected error for unknown job")
	}
}

func TestReportEvery(t *testing.T) {
	tests := map[int]int{10: 1, 5000: 100, 400000: 8000, 10000000: 10000}
	for iters, want := range tests {
		if got := reportEvery(iters); got != want {
			t.Errorf("reportEvery(%d) = %d, want %d", iters, got, want)
		}
	}
}

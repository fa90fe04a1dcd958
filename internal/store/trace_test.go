package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-123"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := []TraceEntry{
		{Iteration: 10000, Error: 812.5, Timestamp: time.Now()},
		{Iteration: 20000, Error: 40.1, Timestamp: time.Now()},
		{Iteration: 30000, Error: 3.2, Timestamp: time.Now(), Quantities: []float64{0.1, 0.2, 0.3}},
		{Iteration: 40000, Error: 0.4, Restart: 2, Timestamp: time.Now()},
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	tracePath := filepath.Join(tmpDir, "jobs", jobID, TraceArtifact)
	if writer.Path() != tracePath {
		t.Errorf("Path = %s, want %s", writer.Path(), tracePath)
	}

	reader, err := NewTraceReader(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	got, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(got))
	}
	for i, entry := range got {
		if entry.Iteration != entries[i].Iteration || entry.Error != entries[i].Error || entry.Restart != entries[i].Restart {
			t.Errorf("Entry %d: expected %+v, got %+v", i, entries[i], entry)
		}
		if len(entry.Quantities) != len(entries[i].Quantities) {
			t.Errorf("Entry %d: expected %d quantities, got %d", i, len(entries[i].Quantities), len(entry.Quantities))
		}
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-append"

	for round := 0; round < 2; round++ {
		writer, err := NewTraceWriter(tmpDir, jobID, round > 0)
		if err != nil {
			t.Fatalf("Failed to create trace writer: %v", err)
		}
		if err := writer.Write(TraceEntry{Iteration: round, Error: 1, Timestamp: time.Now()}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		writer.Close()
	}

	reader, err := NewTraceReader(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	got, _ := reader.ReadAll()
	if len(got) != 2 {
		t.Errorf("Expected 2 entries after append, got %d", len(got))
	}
}

func TestTraceWriter_Truncate(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-truncate"

	for round := 0; round < 2; round++ {
		writer, err := NewTraceWriter(tmpDir, jobID, false)
		if err != nil {
			t.Fatalf("Failed to create trace writer: %v", err)
		}
		writer.Write(TraceEntry{Iteration: round, Error: 1, Timestamp: time.Now()})
		writer.Close()
	}

	reader, err := NewTraceReader(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	got, _ := reader.ReadAll()
	if len(got) != 1 || got[0].Iteration != 1 {
		t.Errorf("Expected only the second round, got %+v", got)
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-flush"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	writer.Write(TraceEntry{Iteration: 1, Error: 0.5, Timestamp: time.Now()})
	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	info, err := os.Stat(writer.Path())
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Trace file should have content after flush")
	}
}

func TestTraceReader_ReadIteratively(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-iter"

	writer, _ := NewTraceWriter(tmpDir, jobID, false)
	for i := 0; i < 3; i++ {
		writer.Write(TraceEntry{Iteration: i, Error: float64(3 - i), Timestamp: time.Now()})
	}
	writer.Close()

	reader, err := NewTraceReader(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	for i := 0; i < 3; i++ {
		entry, err := reader.Read()
		if err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
		if entry.Iteration != i {
			t.Errorf("Expected iteration %d, got %d", i, entry.Iteration)
		}
	}
	if _, err := reader.Read(); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTraceReader_Malformed(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "jobs", "bad")
	os.MkdirAll(dir, 0755)
	os.WriteFile(filepath.Join(dir, TraceArtifact), []byte("{\"iteration\":1}\nnot json\n"), 0644)

	reader, err := NewTraceReader(tmpDir, "bad")
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	if _, err := reader.ReadAll(); err == nil {
		t.Error("Expected error for malformed line")
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-concurrent"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(iter int) {
			defer wg.Done()
			if err := writer.Write(TraceEntry{Iteration: iter, Error: float64(iter), Timestamp: time.Now()}); err != nil {
				t.Errorf("Concurrent write failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	writer.Close()

	reader, err := NewTraceReader(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 10 {
		t.Errorf("Expected 10 entries, got %d", len(entries))
	}
}

func TestReadTrace(t *testing.T) {
	tmpDir := t.TempDir()

	writer, _ := NewTraceWriter(tmpDir, "job", false)
	writer.Write(TraceEntry{Iteration: 1000, Error: 9, Timestamp: time.Now()})
	writer.Write(TraceEntry{Iteration: 2000, Error: 4, Timestamp: time.Now()})
	writer.Close()

	entries, err := ReadTrace(tmpDir, "job")
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(entries) != 2 || entries[1].Error != 4 {
		t.Errorf("Unexpected entries: %+v", entries)
	}

	if _, err := ReadTrace(tmpDir, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	entries := []TraceEntry{
		{Iteration: 1000, Error: 50, Restart: 0},
		{Iteration: 1000, Error: 70, Restart: 1},
		{Iteration: 2000, Error: 20, Restart: 0},
		{Iteration: 2000, Error: 30, Restart: 1},
		// A resumed run appended after restart 0 ended at 20.
		{Iteration: 1000, Error: 25, Restart: 0},
		{Iteration: 2000, Error: 10, Restart: 0},
	}

	got := Summarize(entries)
	if len(got) != 2 {
		t.Fatalf("Expected 2 restarts, got %d", len(got))
	}

	tests := []struct {
		want RestartSummary
	}{
		{RestartSummary{Restart: 0, Reports: 4, FirstErr: 50, LastErr: 10, BestErr: 10, LastIter: 2000, Increases: 1}},
		{RestartSummary{Restart: 1, Reports: 2, FirstErr: 70, LastErr: 30, BestErr: 30, LastIter: 2000}},
	}
	for i, tt := range tests {
		if got[i] != tt.want {
			t.Errorf("Summary %d = %+v, want %+v", i, got[i], tt.want)
		}
	}

	if Summarize(nil) != nil {
		t.Error("Expected nil summary for an empty trace")
	}
}

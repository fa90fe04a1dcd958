package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraceEntry is one progress report of a dosing search, stored as a line of trace.jsonl.
type TraceEntry struct {
	Iteration int       `json:"iteration"`
	Error     float64   `json:"error"`
	Restart   int       `json:"restart,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Quantities are the best g/l per salt at this report.
	Quantities []float64 `json:"quantities,omitempty"`
}

func tracePath(baseDir, jobID string) string {
	return filepath.Join(baseDir, "jobs", jobID, TraceArtifact)
}

// TraceWriter appends entries to a job's trace. Writes are buffered until
// Flush or Close, and may come from several restarts at once.
type TraceWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	path string
}

// NewTraceWriter opens <baseDir>/jobs/<jobID>/trace.jsonl. Resumed searches pass
// appendTo so the earlier reports stay in front of the new ones.
func NewTraceWriter(baseDir, jobID string, appendTo bool) (*TraceWriter, error) {
	path := tracePath(baseDir, jobID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendTo {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	buf := bufio.NewWriterSize(file, 64*1024)
	return &TraceWriter{file: file, buf: buf, enc: json.NewEncoder(buf), path: path}, nil
}

// Write buffers one entry. The encoder terminates it with a newline.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// Flush pushes buffered entries to disk.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	flushErr := tw.buf.Flush()
	closeErr := tw.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush trace: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close trace file: %w", closeErr)
	}
	return nil
}

// Path returns the trace file location.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader decodes a trace entry by entry.
type TraceReader struct {
	file *os.File
	dec  *json.Decoder
	n    int
}

// NewTraceReader opens the trace of jobID. A missing trace is a NotFoundError.
func NewTraceReader(baseDir, jobID string) (*TraceReader, error) {
	file, err := os.Open(tracePath(baseDir, jobID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{JobID: jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return &TraceReader{file: file, dec: json.NewDecoder(bufio.NewReader(file))}, nil
}

// Read returns the next entry, or io.EOF after the last one.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	var entry TraceEntry
	if err := tr.dec.Decode(&entry); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("trace entry %d: %w", tr.n+1, err)
	}
	tr.n++
	return &entry, nil
}

// ReadAll returns the remaining entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

// Close releases the file.
func (tr *TraceReader) Close() error {
	return tr.file.Close()
}

// ReadTrace loads every entry of a job's trace.
func ReadTrace(baseDir, jobID string) ([]TraceEntry, error) {
	tr, err := NewTraceReader(baseDir, jobID)
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	return tr.ReadAll()
}

// RestartSummary condenses the entries one restart contributed to a trace.
type RestartSummary struct {
	Restart   int
	Reports   int
	FirstErr  float64
	LastErr   float64
	BestErr   float64
	LastIter  int
	Increases int // reports whose error rose above the previous one
}

// Summarize groups entries by restart, in order of first appearance. A search only
// accepts improvements, so Increases stays 0 unless a resume appended a run that
// started from a worse point than the previous one ended at.
func Summarize(entries []TraceEntry) []RestartSummary {
	var out []RestartSummary
	index := make(map[int]int)
	for _, e := range entries {
		i, ok := index[e.Restart]
		if !ok {
			i = len(out)
			index[e.Restart] = i
			out = append(out, RestartSummary{Restart: e.Restart, FirstErr: e.Error, LastErr: e.Error, BestErr: e.Error})
		}
		s := &out[i]
		if e.Error > s.LastErr {
			s.Increases++
		}
		s.Reports++
		s.LastErr = e.Error
		s.LastIter = e.Iteration
		if e.Error < s.BestErr {
			s.BestErr = e.Error
		}
	}
	return out
}

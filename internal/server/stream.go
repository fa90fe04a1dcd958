package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	streamBuffer = 8
	streamPing   = 30 * time.Second
)

// ProgressEvent is a snapshot of a dosing job pushed to stream subscribers.
type ProgressEvent struct {
	JobID      string    `json:"jobId"`
	State      JobState  `json:"state"`
	Iterations int       `json:"iterations"`
	BestError  float64   `json:"bestError"`
	Rate       float64   `json:"iterationsPerSecond"`
	Timestamp  time.Time `json:"timestamp"`
}

// name is the SSE event type: "done" for the final state, "progress" otherwise.
func (e ProgressEvent) name() string {
	if e.State.Done() {
		return "done"
	}
	return "progress"
}

// jobFeed holds the subscribers of one job and the newest event they were sent.
type jobFeed struct {
	subs map[chan ProgressEvent]struct{}
	last *ProgressEvent
}

// EventBroadcaster fans job events out to stream subscribers. A slow subscriber
// loses its oldest pending event, never the newest, so the final state always lands.
type EventBroadcaster struct {
	mu    sync.Mutex
	feeds map[string]*jobFeed
}

// NewEventBroadcaster creates an empty broadcaster.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{feeds: make(map[string]*jobFeed)}
}

func (eb *EventBroadcaster) feed(jobID string) *jobFeed {
	f, ok := eb.feeds[jobID]
	if !ok {
		f = &jobFeed{subs: make(map[chan ProgressEvent]struct{})}
		eb.feeds[jobID] = f
	}
	return f
}

// Subscribe registers a subscriber for jobID. The newest event, if any, is queued
// immediately. The returned func unsubscribes and closes the channel.
func (eb *EventBroadcaster) Subscribe(jobID string) (<-chan ProgressEvent, func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, streamBuffer)
	f := eb.feed(jobID)
	f.subs[ch] = struct{}{}
	if f.last != nil {
		ch <- *f.last
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() { eb.unsubscribe(jobID, ch) })
	}
}

func (eb *EventBroadcaster) unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	f, ok := eb.feeds[jobID]
	if !ok {
		return
	}
	delete(f.subs, ch)
	close(ch)
	if len(f.subs) == 0 && (f.last == nil || !f.last.State.Done()) {
		// Keep the final event of a finished job for late subscribers.
		delete(eb.feeds, jobID)
	}
}

// Broadcast records event as the newest for its job and queues it for every subscriber.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	f := eb.feed(event.JobID)
	f.last = &event
	for ch := range f.subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
			slog.Debug("Stream subscriber lagging, dropped oldest event", "job_id", event.JobID)
		}
	}
}

// handleJobStream serves GET /api/v1/jobs/{id}/stream as server-sent events.
// The stream ends after the job's final state has been sent.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, unsubscribe := s.jobManager.broadcaster.Subscribe(jobID)
	defer unsubscribe()

	current := ProgressEvent{
		JobID:      job.ID,
		State:      job.State,
		Iterations: job.Iterations,
		BestError:  job.BestError,
		Timestamp:  time.Now(),
	}
	if err := writeSSEEvent(w, current); err != nil {
		slog.Warn("Failed to write stream event", "job_id", jobID, "error", err)
		return
	}
	flusher.Flush()
	if job.State.Done() {
		return
	}

	ping := time.NewTicker(streamPing)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("Stream client disconnected", "job_id", jobID)
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Warn("Failed to write stream event", "job_id", jobID, "error", err)
				return
			}
			flusher.Flush()
			if event.State.Done() {
				return
			}
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one event block: type, iteration count as id, JSON data.
func writeSSEEvent(w http.ResponseWriter, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", event.name(), event.Iterations, data)
	return err
}

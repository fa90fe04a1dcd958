package server

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/saltcalc/internal/fit"
	"github.com/cwbudde/saltcalc/internal/store"
	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Done reports whether the job has reached a final state.
func (s JobState) Done() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig is an alias to avoid duplication with store.JobConfig
type JobConfig = store.JobConfig

// Job represents a dosing search running in the background
type Job struct {
	ID             string      `json:"id"`
	State          JobState    `json:"state"`
	Config         JobConfig   `json:"config"`
	Quantities     []float64   `json:"quantities,omitempty"`
	Concentrations []float64   `json:"concentrations,omitempty"`
	Checks         []CheckView `json:"checks,omitempty"`
	BestError      float64     `json:"bestError"`
	InitialError   float64     `json:"initialError"`
	Iterations     int         `json:"iterations"`
	StartTime      time.Time   `json:"startTime"`
	EndTime        *time.Time  `json:"endTime,omitempty"`
	Error          string      `json:"error,omitempty"`

	// Report is the rendered text report of a finished job.
	Report string `json:"-"`
}

// CheckView is the JSON form of a constraint check.
type CheckView struct {
	Constraint string   `json:"constraint"`
	Achieved   *float64 `json:"achieved"` // nil when the ratio denominator is too small
	Pass       bool     `json:"pass"`
}

func newCheckViews(checks []fit.Check) []CheckView {
	views := make([]CheckView, len(checks))
	for i, c := range checks {
		views[i] = CheckView{Constraint: c.Constraint.String(), Pass: c.Pass}
		if v := c.Achieved; !math.IsNaN(v) {
			views[i].Achieved = &v
		}
	}
	return views
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	cancels     map[string]context.CancelFunc
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]context.CancelFunc),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	jobsCreated.Inc()

	snapshot := *job
	return &snapshot
}

// GetJob returns a snapshot of the job.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// ListJobs returns snapshots of all jobs, oldest first.
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].StartTime.Equal(jobs[j].StartTime) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function.
// updateFn must replace slices rather than modify them in place.
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			snapshot := *job
			runningJobs = append(runningJobs, &snapshot)
		}
	}
	return runningJobs
}

// SetCancel registers the function that stops the job's search.
func (jm *JobManager) SetCancel(id string, cancel context.CancelFunc) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.cancels[id] = cancel
}

// Cancel stops a pending or running job. Cancelling a finished job is a no-op.
func (jm *JobManager) Cancel(id string) error {
	jm.mu.Lock()
	_, exists := jm.jobs[id]
	cancel := jm.cancels[id]
	jm.mu.Unlock()

	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// CancelAll stops every job that is still running.
func (jm *JobManager) CancelAll() {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	for _, cancel := range jm.cancels {
		cancel()
	}
}

// release drops the cancel function of a finished job.
func (jm *JobManager) release(id string) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if cancel, ok := jm.cancels[id]; ok {
		cancel()
		delete(jm.cancels, id)
	}
}

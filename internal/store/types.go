package store

import (
	"fmt"
	"math"
	"time"
)

// JobConfig holds the configuration of a dosing job (checkpoint copy).
// It lives here so the server and config packages can share it without a cycle.
type JobConfig struct {
	TablePath          string  `json:"tablePath" validate:"required"`
	TargetsPath        string  `json:"targetsPath" validate:"required"`
	Volume             float64 `json:"volume" validate:"gt=0"`
	Strategy           string  `json:"strategy" validate:"oneof=nudge mayfly"`
	Iters              int     `json:"iters" validate:"gt=0,lte=10000000"`
	Eps                float64 `json:"eps" validate:"gt=0"`
	InitMax            float64 `json:"initMax" validate:"gt=0"`
	PopSize            int     `json:"popSize" validate:"gte=20"`
	Restarts           int     `json:"restarts" validate:"gte=1,lte=64"`
	Seed               int64   `json:"seed"`
	CheckpointInterval int     `json:"checkpointInterval,omitempty" validate:"gte=0"` // seconds, 0 = disabled
}

// Checkpoint is a saved dosing state that can be resumed later.
//
// Only the best quantities are saved. Resuming warm-starts a fresh nudge search from
// them, so the best error of a resumed job never exceeds the checkpointed one, but the
// random sequence is not a continuation of the interrupted run.
type Checkpoint struct {
	JobID string `json:"jobId"`

	// Quantities are the best per-salt doses in g/l, in table order.
	Quantities []float64 `json:"quantities"`

	// Concentrations are the ion concentrations the quantities produce, in table order.
	Concentrations []float64 `json:"concentrations,omitempty"`

	BestError    float64 `json:"bestError"`
	InitialError float64 `json:"initialError"`

	// Iteration is the iteration count when this checkpoint was created.
	Iteration int `json:"iteration"`

	Timestamp time.Time `json:"timestamp"`

	// Config is needed to check compatibility on resume.
	Config JobConfig `json:"config"`
}

// CheckpointInfo is checkpoint metadata without the quantity vectors.
type CheckpointInfo struct {
	JobID       string    `json:"jobId"`
	BestError   float64   `json:"bestError"`
	Iteration   int       `json:"iteration"`
	Timestamp   time.Time `json:"timestamp"`
	Strategy    string    `json:"strategy"`
	Salts       int       `json:"salts"`
	TablePath   string    `json:"tablePath"`
	TargetsPath string    `json:"targetsPath"`
}

// NewCheckpoint creates a checkpoint from job state.
func NewCheckpoint(jobID string, quantities, concentrations []float64, bestError, initialError float64, iteration int, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:          jobID,
		Quantities:     quantities,
		Concentrations: concentrations,
		BestError:      bestError,
		InitialError:   initialError,
		Iteration:      iteration,
		Timestamp:      time.Now(),
		Config:         config,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo.
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:       c.JobID,
		BestError:   c.BestError,
		Iteration:   c.Iteration,
		Timestamp:   c.Timestamp,
		Strategy:    c.Config.Strategy,
		Salts:       len(c.Quantities),
		TablePath:   c.Config.TablePath,
		TargetsPath: c.Config.TargetsPath,
	}
}

// Validate checks if the checkpoint has valid data.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if c.Quantities == nil {
		return &ValidationError{Field: "Quantities", Reason: "cannot be nil"}
	}
	for i, q := range c.Quantities {
		if q < 0 || math.IsNaN(q) || math.IsInf(q, 0) {
			return &ValidationError{Field: "Quantities", Reason: fmt.Sprintf("entry %d is not a finite non-negative dose", i)}
		}
	}
	if c.BestError < 0 || math.IsNaN(c.BestError) {
		return &ValidationError{Field: "BestError", Reason: "cannot be negative"}
	}
	if c.InitialError < 0 || math.IsNaN(c.InitialError) {
		return &ValidationError{Field: "InitialError", Reason: "cannot be negative"}
	}
	if c.Iteration < 0 {
		return &ValidationError{Field: "Iteration", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.TablePath == "" {
		return &ValidationError{Field: "Config.TablePath", Reason: "cannot be empty"}
	}
	if c.Config.TargetsPath == "" {
		return &ValidationError{Field: "Config.TargetsPath", Reason: "cannot be empty"}
	}
	if c.Config.Strategy == "" {
		return &ValidationError{Field: "Config.Strategy", Reason: "cannot be empty"}
	}
	if c.Config.Iters <= 0 {
		return &ValidationError{Field: "Config.Iters", Reason: "must be positive"}
	}
	if c.Config.Volume <= 0 {
		return &ValidationError{Field: "Config.Volume", Reason: "must be positive"}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks whether this checkpoint can warm-start a job with config.
// The table and targets must be the same files; search parameters may differ.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.TablePath != config.TablePath {
		return &CompatibilityError{
			Field:    "TablePath",
			Expected: c.Config.TablePath,
			Actual:   config.TablePath,
		}
	}
	if c.Config.TargetsPath != config.TargetsPath {
		return &CompatibilityError{
			Field:    "TargetsPath",
			Expected: c.Config.TargetsPath,
			Actual:   config.TargetsPath,
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}

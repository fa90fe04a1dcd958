// Package config loads and validates the YAML run configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/saltcalc/internal/store"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Search strategies.
const (
	StrategyNudge  = "nudge"
	StrategyMayfly = "mayfly"
)

// Config is a complete dosing run.
type Config struct {
	// Table is the path of the salt/ion contribution table.
	Table string `yaml:"table" validate:"required"`

	// Targets is the path of the target file.
	Targets string `yaml:"targets" validate:"required"`

	// Volume is the litres of water the additions are scaled to.
	Volume float64 `yaml:"volume" validate:"gt=0"`

	// DataDir holds checkpoints, traces and reports.
	DataDir string `yaml:"data_dir" validate:"required"`

	Search Search `yaml:"search"`
}

// Search parameterizes the optimizer.
type Search struct {
	Strategy    string  `yaml:"strategy" validate:"oneof=nudge mayfly"`
	Iterations  int     `yaml:"iterations" validate:"gt=0"`
	Eps         float64 `yaml:"eps" validate:"gt=0"`
	InitMax     float64 `yaml:"init_max" validate:"gt=0"`
	ReportEvery int     `yaml:"report_every" validate:"gte=0"`
	Population  int     `yaml:"population" validate:"gte=20"`
	Restarts    int     `yaml:"restarts" validate:"gte=1,lte=64"`
	Seed        int64   `yaml:"seed"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Table:   "ion_contributions.txt",
		Targets: "targets.txt",
		Volume:  25,
		DataDir: "./data",
		Search: Search{
			Strategy:    StrategyNudge,
			Iterations:  400000,
			Eps:         0.0002,
			InitMax:     1,
			ReportEvery: 10000,
			Population:  30,
			Restarts:    1,
			Seed:        42,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path over the defaults. Keys absent from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	return describe(validate.Struct(c))
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return &ValidationError{Fields: msgs, err: err}
}

// Write stores c as YAML at path, creating parent directories.
func Write(path string, c Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Job converts c into the configuration stored with jobs and checkpoints.
func (c Config) Job() store.JobConfig {
	return store.JobConfig{
		TablePath:   c.Table,
		TargetsPath: c.Targets,
		Volume:      c.Volume,
		Strategy:    c.Search.Strategy,
		Iters:       c.Search.Iterations,
		Eps:         c.Search.Eps,
		InitMax:     c.Search.InitMax,
		PopSize:     c.Search.Population,
		Restarts:    c.Search.Restarts,
		Seed:        c.Search.Seed,
	}
}

// FromJob rebuilds a run configuration from a stored job configuration.
// ReportEvery and DataDir are not part of a job and keep their defaults.
func FromJob(j store.JobConfig) Config {
	c := Default()
	c.Table = j.TablePath
	c.Targets = j.TargetsPath
	c.Volume = j.Volume
	c.Search.Strategy = j.Strategy
	c.Search.Iterations = j.Iters
	c.Search.Eps = j.Eps
	c.Search.InitMax = j.InitMax
	c.Search.Population = j.PopSize
	c.Search.Restarts = j.Restarts
	c.Search.Seed = j.Seed
	return c
}

// ValidateJob checks a job configuration submitted over the API.
func ValidateJob(j store.JobConfig) error {
	return describe(validate.Struct(j))
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields []string
	err    error
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Fields, "; ")
}

func (e *ValidationError) Unwrap() error { return e.err }

func fieldMessage(fe validator.FieldError) string {
	name := fe.Namespace()
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", name, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s must satisfy %s=%s, got %v", name, fe.Tag(), fe.Param(), fe.Value())
	}
}

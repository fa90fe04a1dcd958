package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cwbudde/saltcalc/internal/config"
	"github.com/cwbudde/saltcalc/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Default job submission limit.
const (
	DefaultSubmitRate  = rate.Limit(2) // jobs per second
	DefaultSubmitBurst = 5
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	store      store.Store
	limiter    *rate.Limiter
	inputDir   string
	addr       string
	server     *http.Server

	// jobs run under baseCtx so Shutdown can stop them.
	baseCtx    context.Context
	cancelJobs context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithSubmitLimit sets the job submission rate limit.
func WithSubmitLimit(limit rate.Limit, burst int) Option {
	return func(s *Server) {
		s.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithInputDir confines submitted table and target paths to dir. Submitted paths
// must then be relative and stay inside dir. Without it the server reads any path
// it can open and must only listen on a trusted interface.
func WithInputDir(dir string) Option {
	return func(s *Server) {
		s.inputDir = dir
	}
}

// NewServer creates a new HTTP server. checkpointStore may be nil, in which case
// jobs are kept in memory only.
func NewServer(addr string, checkpointStore store.Store, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		jobManager: NewJobManager(),
		store:      checkpointStore,
		limiter:    rate.NewLimiter(DefaultSubmitRate, DefaultSubmitBurst),
		addr:       addr,
		baseCtx:    ctx,
		cancelJobs: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.cancelJobs()
	return s.server.Shutdown(ctx)
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	switch sub {
	case "", "status":
		s.handleGetJobStatus(w, r, jobID)
	case "report":
		s.handleGetReport(w, r, jobID)
	case "stream":
		s.handleJobStream(w, r, jobID)
	case "cancel":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleCancelJob(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
// Fields absent from the request body take the configuration defaults.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		jobsRejected.WithLabelValues("rate_limited").Inc()
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Too many job submissions", http.StatusTooManyRequests)
		return
	}

	jobConfig := config.Default().Job()
	if err := json.NewDecoder(r.Body).Decode(&jobConfig); err != nil {
		jobsRejected.WithLabelValues("invalid_json").Inc()
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if err := config.ValidateJob(jobConfig); err != nil {
		jobsRejected.WithLabelValues("invalid_config").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.resolveInputs(&jobConfig); err != nil {
		jobsRejected.WithLabelValues("invalid_path").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.startJob(jobConfig)
	writeJSON(w, http.StatusCreated, job)
}

// resolveInputs maps the submitted input paths into the input directory, if one is set.
func (s *Server) resolveInputs(j *JobConfig) error {
	if s.inputDir == "" {
		return nil
	}
	for _, p := range []*string{&j.TablePath, &j.TargetsPath} {
		if !filepath.IsLocal(*p) {
			return fmt.Errorf("path %q must be relative to the input directory", *p)
		}
		*p = filepath.Join(s.inputDir, *p)
	}
	return nil
}

// startJob registers a job and runs it in the background.
func (s *Server) startJob(jobConfig JobConfig) *Job {
	job := s.jobManager.CreateJob(jobConfig)

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.jobManager.SetCancel(job.ID, cancel)

	go runJob(ctx, s.jobManager, s.store, job.ID)
	return job
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	response := map[string]interface{}{
		"id":                  job.ID,
		"state":               job.State,
		"config":              job.Config,
		"quantities":          job.Quantities,
		"concentrations":      job.Concentrations,
		"checks":              job.Checks,
		"bestError":           job.BestError,
		"initialError":        job.InitialError,
		"iterations":          job.Iterations,
		"elapsed":             elapsed.Seconds(),
		"iterationsPerSecond": iterationRate(job.Iterations, elapsed),
		"startTime":           job.StartTime,
		"endTime":             job.EndTime,
		"error":               job.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetReport handles GET /api/v1/jobs/:id/report
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		// Jobs from earlier server runs only survive in the store.
		if s.store != nil {
			data, err := s.store.LoadArtifact(jobID, store.ReportArtifact)
			if err == nil {
				writeText(w, data)
				return
			}
			if !errors.Is(err, store.ErrNotFound) {
				http.Error(w, fmt.Sprintf("Failed to load report: %v", err), http.StatusInternalServerError)
				return
			}
		}
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	if job.Report == "" {
		http.Error(w, "No report yet", http.StatusNotFound)
		return
	}
	writeText(w, []byte(job.Report))
}

// handleCancelJob handles POST /api/v1/jobs/:id/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if err := s.jobManager.Cancel(jobID); err != nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	job, _ := s.jobManager.GetJob(jobID)
	writeJSON(w, http.StatusAccepted, job)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saltcalc_jobs_created_total",
		Help: "Total dosing jobs accepted",
	})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saltcalc_jobs_finished_total",
		Help: "Total dosing jobs finished by final state",
	}, []string{"state"})

	jobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "saltcalc_jobs_running",
		Help: "Dosing jobs currently searching",
	})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "saltcalc_job_duration_seconds",
		Help:    "Wall time of finished dosing jobs",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})

	jobsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saltcalc_jobs_rejected_total",
		Help: "Job submissions refused by reason",
	}, []string{"reason"})
)

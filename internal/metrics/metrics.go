// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus collectors for conversions, downloads
// and saved outputs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "markitdown_ui_build_info",
			Help: "Build information for markitdown-ui",
		},
		[]string{"version", "backend"},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "markitdown_ui_jobs_total",
			Help: "Conversion jobs finished, by source kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	jobFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "markitdown_ui_job_failures_total",
			Help: "Failed conversion jobs by error category",
		},
		[]string{"category"},
	)

	jobsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "markitdown_ui_jobs_inflight",
			Help: "Jobs currently converting",
		},
	)

	conversionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "markitdown_ui_conversion_duration_seconds",
			Help:    "Time spent converting a single job",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	outputsSaved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "markitdown_ui_outputs_saved_total",
			Help: "Markdown files written to disk",
		},
	)

	outputBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "markitdown_ui_output_bytes_total",
			Help: "Bytes of Markdown written to disk",
		},
	)
)

// Register adds every collector to r.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, jobsTotal, jobFailures, jobsInflight, conversionDuration, outputsSaved, outputBytes)
}

// SetBuildInfo records the running version and the conversion backend.
func SetBuildInfo(version, backend string) {
	buildInfo.WithLabelValues(version, backend).Set(1)
}

// JobStart marks a job as converting.
func JobStart() { jobsInflight.Inc() }

// JobEnd records a finished job. category is empty on success.
func JobEnd(kind string, category string, d time.Duration) {
	jobsInflight.Dec()
	conversionDuration.WithLabelValues(kind).Observe(d.Seconds())
	if category == "" {
		jobsTotal.WithLabelValues(kind, "success").Inc()
		return
	}
	jobsTotal.WithLabelValues(kind, "failure").Inc()
	jobFailures.WithLabelValues(category).Inc()
}

// JobRejected records a job that failed validation before converting.
func JobRejected(kind, category string) {
	jobsTotal.WithLabelValues(kind, "failure").Inc()
	jobFailures.WithLabelValues(category).Inc()
}

// OutputSaved records a written output file.
func OutputSaved(size int64) {
	outputsSaved.Inc()
	outputBytes.Add(float64(size))
}

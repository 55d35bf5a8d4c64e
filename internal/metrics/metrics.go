// Package metrics exposes service and job metrics in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a private prometheus registry and the CRM collectors.
type Registry struct {
	reg *prometheus.Registry

	Operations   *prometheus.CounterVec
	Latency      *prometheus.HistogramVec
	BatchRecords *prometheus.CounterVec

	JobRuns        *prometheus.CounterVec
	JobLastSuccess *prometheus.GaugeVec
}

// NewRegistry creates and registers all collectors.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_operations_total",
		Help: "Service mutations by operation and outcome.",
	}, []string{"operation", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crm_operation_duration_seconds",
		Help:    "Service mutation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	batch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_batch_records_total",
		Help: "Records processed by bulk mutations by outcome.",
	}, []string{"operation", "outcome"})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_job_runs_total",
		Help: "Scheduled job runs by outcome.",
	}, []string{"job", "status"})
	jobLast := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crm_job_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run per job.",
	}, []string{"job"})

	r.MustRegister(operations, latency, batch, jobRuns, jobLast)
	return &Registry{
		reg:            r,
		Operations:     operations,
		Latency:        latency,
		BatchRecords:   batch,
		JobRuns:        jobRuns,
		JobLastSuccess: jobLast,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Observe records a service operation outcome.
func (r *Registry) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	r.Operations.WithLabelValues(operation, status(success)).Inc()
	r.Latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveBatch records per-record outcomes of a bulk mutation.
func (r *Registry) ObserveBatch(_ context.Context, operation string, created, failed int) {
	r.BatchRecords.WithLabelValues(operation, "created").Add(float64(created))
	r.BatchRecords.WithLabelValues(operation, "failed").Add(float64(failed))
}

// ObserveJob records a scheduled job run.
func (r *Registry) ObserveJob(job string, success bool, at time.Time) {
	r.JobRuns.WithLabelValues(job, status(success)).Inc()
	if success {
		r.JobLastSuccess.WithLabelValues(job).Set(float64(at.Unix()))
	}
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Package metrics holds Prometheus instruments that are used across the
// service.  All collectors are registered with the global registry, so
// importing this package is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FormValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storedash_form_validations_total",
			Help: "Validate calls handled, by form.",
		}, []string{"form"})

	FormSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storedash_form_submissions_total",
			Help: "Submit calls handled, by form and outcome (accepted, rejected, failed).",
		}, []string{"form", "outcome"})

	ActionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storedash_form_action_failures_total",
			Help: "Post-submit action failures, by action type.",
		}, []string{"action"})

	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storedash_api_requests_total",
			Help: "Requests sent to the store backend, by resource, method, and status.",
		}, []string{"resource", "method", "status"})

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storedash_api_request_duration_seconds",
			Help:    "Latency of requests to the store backend.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"})

	APICacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storedash_api_cache_hits_total",
			Help: "Record reads served from the local cache.",
		})
)

func init() {
	prometheus.MustRegister(
		FormValidations,
		FormSubmissions,
		ActionFailures,
		APIRequests,
		APIRequestDuration,
		APICacheHits,
	)
}

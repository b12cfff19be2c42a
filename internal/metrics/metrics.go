// Package metrics exposes Prometheus collectors for the archive bot.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	passesTotal           *prometheus.CounterVec
	passDurationSeconds   *prometheus.HistogramVec
	requestsTotal         *prometheus.CounterVec
	submissionsTotal      *prometheus.CounterVec
	repliesTotal          *prometheus.CounterVec
	submissionsInFlight   prometheus.Gauge
	rateLimitDelaySeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		passesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archivebot_passes_total",
				Help: "Total scheduled pass executions, labeled by pass and result.",
			},
			[]string{"pass", "result"},
		)

		passDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archivebot_pass_duration_seconds",
				Help:    "Histogram of scheduled pass durations, labeled by pass.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"pass"},
		)

		requestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archivebot_requests_total",
				Help: "Total archival requests ingested, labeled by origin.",
			},
			[]string{"origin"},
		)

		submissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archivebot_submissions_total",
				Help: "Total archive submissions, labeled by result.",
			},
			[]string{"result"},
		)

		repliesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archivebot_replies_total",
				Help: "Total outbound replies, labeled by result.",
			},
			[]string{"result"},
		)

		submissionsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archivebot_submissions_in_flight",
				Help: "Archive submissions currently awaiting a response.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archivebot_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations, labeled by host.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePass records one scheduled pass execution.
func ObservePass(pass string, duration time.Duration, err error) {
	if passesTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	passesTotal.WithLabelValues(pass, result).Inc()
	passDurationSeconds.WithLabelValues(pass).Observe(duration.Seconds())
}

// ObserveRequest counts an ingested request; origin is mention or hashtag.
func ObserveRequest(origin string) {
	if requestsTotal == nil {
		return
	}
	requestsTotal.WithLabelValues(origin).Inc()
}

// ObserveSubmission counts a finished archive submission.
func ObserveSubmission(result string) {
	if submissionsTotal == nil {
		return
	}
	submissionsTotal.WithLabelValues(result).Inc()
}

// ObserveReply counts an outbound reply attempt.
func ObserveReply(result string) {
	if repliesTotal == nil {
		return
	}
	repliesTotal.WithLabelValues(result).Inc()
}

// IncSubmissionsInFlight marks one submission as launched.
func IncSubmissionsInFlight() {
	if submissionsInFlight == nil {
		return
	}
	submissionsInFlight.Inc()
}

// DecSubmissionsInFlight marks one submission as settled.
func DecSubmissionsInFlight() {
	if submissionsInFlight == nil {
		return
	}
	submissionsInFlight.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

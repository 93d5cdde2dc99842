// Package metrics exposes the acquisition core's Prometheus instrumentation.
//
// Grounded on the teacher's engine/telemetry/metrics/prometheus.go
// registry-backed provider, narrowed from that file's fully dynamic
// namespace/subsystem/name metric registry down to the fixed set of series
// this spec's cascade actually emits (fetch attempts, durations, challenge
// detections, captcha spend, breaker trips).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the acquisition core's metrics sink.
type Recorder struct {
	reg *prometheus.Registry

	fetchAttempts   *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	challengeHits   *prometheus.CounterVec
	captchaSpend    *prometheus.CounterVec
	breakerTrips    *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	honeypotBlocked prometheus.Counter
}

// New builds a Recorder registered against a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		reg: reg,
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ultrareader_fetch_attempts_total",
			Help: "Fetch attempts per engine and outcome.",
		}, []string{"engine", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ultrareader_fetch_duration_seconds",
			Help:    "Per-engine fetch latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"engine"}),
		challengeHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ultrareader_challenge_detections_total",
			Help: "Challenge detections by type.",
		}, []string{"type"}),
		captchaSpend: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ultrareader_captcha_solves_total",
			Help: "CAPTCHA solve attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		breakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ultrareader_breaker_trips_total",
			Help: "Circuit breaker transitions to open, by domain.",
		}, []string{"domain"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ultrareader_breaker_state",
			Help: "Current breaker state per domain (0=closed,1=half_open,2=open).",
		}, []string{"domain"}),
		honeypotBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ultrareader_honeypot_links_blocked_total",
			Help: "Links blocked by the honeypot assessor.",
		}),
	}
	reg.MustRegister(r.fetchAttempts, r.fetchDuration, r.challengeHits, r.captchaSpend, r.breakerTrips, r.breakerState, r.honeypotBlocked)
	return r
}

// Handler exposes the registry's /metrics endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveFetch(engine, outcome string, seconds float64) {
	r.fetchAttempts.WithLabelValues(engine, outcome).Inc()
	r.fetchDuration.WithLabelValues(engine).Observe(seconds)
}

func (r *Recorder) ObserveChallenge(challengeType string) {
	r.challengeHits.WithLabelValues(challengeType).Inc()
}

func (r *Recorder) ObserveCaptchaSolve(provider, outcome string) {
	r.captchaSpend.WithLabelValues(provider, outcome).Inc()
}

func (r *Recorder) ObserveBreakerTrip(domain string) {
	r.breakerTrips.WithLabelValues(domain).Inc()
}

// breakerStateValue maps the breaker.State string to the gauge's 0/1/2 scale.
func breakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half_open":
		return 1
	default:
		return 0
	}
}

func (r *Recorder) SetBreakerState(domain, state string) {
	r.breakerState.WithLabelValues(domain).Set(breakerStateValue(state))
}

func (r *Recorder) ObserveHoneypotBlock() {
	r.honeypotBlocked.Inc()
}

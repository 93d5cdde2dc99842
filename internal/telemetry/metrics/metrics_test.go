package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestObserveFetchExposedOnHandler(t *testing.T) {
	r := New()
	r.ObserveFetch("http", "success", 0.42)
	r.ObserveChallenge("js_challenge")
	r.ObserveCaptchaSolve("capsolver", "success")
	r.ObserveBreakerTrip("example.com")
	r.SetBreakerState("example.com", "open")
	r.ObserveHoneypotBlock()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"ultrareader_fetch_attempts_total",
		"ultrareader_fetch_duration_seconds",
		"ultrareader_challenge_detections_total",
		"ultrareader_captcha_solves_total",
		"ultrareader_breaker_trips_total",
		"ultrareader_breaker_state",
		"ultrareader_honeypot_links_blocked_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestBreakerStateValueMapping(t *testing.T) {
	cases := map[string]float64{"closed": 0, "half_open": 1, "open": 2, "unknown": 0}
	for state, want := range cases {
		if got := breakerStateValue(state); got != want {
			t.Errorf("breakerStateValue(%q) = %v, want %v", state, got, want)
		}
	}
}

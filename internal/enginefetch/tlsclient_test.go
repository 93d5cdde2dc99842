package enginefetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ultrareader/internal/models"
)

func TestTLSEngineSuccessfulFetch(t *testing.T) {
	body := "<html><body>" + strings.Repeat("word ", 40) + "</body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	eng := NewTLSEngine(newRotator())
	res, err := eng.Scrape(context.Background(), models.EngineMeta{URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EngineName != "tlsclient" {
		t.Fatalf("unexpected engine name: %v", res.EngineName)
	}
}

func TestTLSEngineJSRequiredChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>Please enable JavaScript to continue<noscript>fallback</noscript></body></html>"))
	}))
	defer srv.Close()

	eng := NewTLSEngine(newRotator())
	_, err := eng.Scrape(context.Background(), models.EngineMeta{URL: srv.URL})
	ce, ok := err.(*models.ChallengeDetectedError)
	if !ok {
		t.Fatalf("expected ChallengeDetectedError, got %v", err)
	}
	if ce.ChallengeType != "js-required" {
		t.Fatalf("expected js-required challenge type, got %v", ce.ChallengeType)
	}
}

func TestTLSEngineConfigDeclaresFingerprintFeature(t *testing.T) {
	eng := NewTLSEngine(newRotator())
	if !eng.Config().Features.TLSFingerprint {
		t.Fatal("expected TLSFingerprint feature flag set")
	}
}

package enginefetch

import (
	"testing"

	"ultrareader/internal/captcha"
	"ultrareader/internal/challenge"
)

func TestTokenFieldForTurnstile(t *testing.T) {
	if got := tokenFieldFor(captcha.TypeTurnstile); got != challenge.FieldTurnstile {
		t.Fatalf("expected turnstile field, got %v", got)
	}
}

func TestTokenFieldForRecaptcha(t *testing.T) {
	if got := tokenFieldFor(captcha.TypeRecaptchaV2); got != challenge.FieldRecaptcha {
		t.Fatalf("expected recaptcha field, got %v", got)
	}
	if got := tokenFieldFor(captcha.TypeRecaptchaV3); got != challenge.FieldRecaptcha {
		t.Fatalf("expected recaptcha field for v3, got %v", got)
	}
}

func TestNewBrowserEngineWiresChallengeHandler(t *testing.T) {
	e := NewBrowserEngine(nil, false, nil)
	if e.challengeHandler == nil {
		t.Fatal("expected NewBrowserEngine to wire a challenge handler")
	}
}

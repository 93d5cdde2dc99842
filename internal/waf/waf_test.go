package waf

import "testing"

func TestDetectsCloudflareChallenge(t *testing.T) {
	in := Input{
		StatusCode: 503,
		Headers:    map[string]string{"CF-RAY": "abc123-SJC"},
		HTML:       "<html>Just a moment...</html>",
	}
	d, ok := Detect(in)
	if !ok {
		t.Fatal("expected a detection")
	}
	if d.Provider != Cloudflare {
		t.Fatalf("expected cloudflare provider, got %v", d.Provider)
	}
	if FormatChallengeType(*d) != "cloudflare" {
		t.Fatalf("expected plain cloudflare challenge type, got %v", FormatChallengeType(*d))
	}
}

func TestNoDetectionBelowThreshold(t *testing.T) {
	in := Input{StatusCode: 200, Headers: map[string]string{}, HTML: "<html>hello</html>"}
	if _, ok := Detect(in); ok {
		t.Fatal("expected no detection for plain content")
	}
}

func TestTwoActionSignalsWithoutInfraStillDetects(t *testing.T) {
	in := Input{
		StatusCode: 200,
		Headers:    map[string]string{},
		HTML:       "just a moment checking your browser",
	}
	d, ok := Detect(in)
	if !ok {
		t.Fatal("expected detection from 2 action signals alone")
	}
	_ = d
}

func TestRateLimitCategory(t *testing.T) {
	in := Input{
		StatusCode: 429,
		Headers:    map[string]string{"cf-ray": "x"},
		HTML:       "just a moment",
	}
	d, ok := Detect(in)
	if !ok || d.Category != CategoryRateLimit {
		t.Fatalf("expected rate_limit category, got %+v ok=%v", d, ok)
	}
	if FormatChallengeType(*d) != "cloudflare-rate-limit" {
		t.Fatalf("expected cloudflare-rate-limit token, got %v", FormatChallengeType(*d))
	}
}

func TestCaptchaCategoryNonCloudflareProvider(t *testing.T) {
	in := Input{
		StatusCode: 403,
		Headers:    map[string]string{"x-datadome": "x"},
		HTML:       "just a moment, please complete the recaptcha challenge",
	}
	d, ok := Detect(in)
	if !ok || d.Provider != DataDome || d.Category != CategoryCaptcha {
		t.Fatalf("expected datadome captcha, got %+v ok=%v", d, ok)
	}
	want := "waf:datadome:captcha"
	if FormatChallengeType(*d) != want {
		t.Fatalf("expected %v, got %v", want, FormatChallengeType(*d))
	}
}

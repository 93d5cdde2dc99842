package captcha

import (
	"context"
	"errors"
	"testing"
)

func TestExtractSiteKeysTurnstileClass(t *testing.T) {
	html := `<div class="cf-turnstile" data-sitekey="0x4AAAAAAA"></div>`
	keys := ExtractSiteKeys(html)
	if len(keys) != 1 || keys[0].Type != TypeTurnstile || keys[0].Key != "0x4AAAAAAA" {
		t.Fatalf("expected one turnstile key, got %+v", keys)
	}
}

func TestExtractSiteKeysRecaptchaJS(t *testing.T) {
	html := `<script>grecaptcha.render({sitekey: "6Lc-key", theme: "light"});</script>`
	keys := ExtractSiteKeys(html)
	if len(keys) != 1 || keys[0].Type != TypeRecaptchaV2 || keys[0].Key != "6Lc-key" {
		t.Fatalf("expected one recaptcha key, got %+v", keys)
	}
}

func TestExtractSiteKeysDedupes(t *testing.T) {
	html := `<div class="cf-turnstile" data-sitekey="abc"></div><div class="cf-turnstile" data-sitekey="abc"></div>`
	keys := ExtractSiteKeys(html)
	if len(keys) != 1 {
		t.Fatalf("expected duplicates collapsed, got %+v", keys)
	}
}

type stubSolver struct {
	name string
	err  error
	res  *SolveResult
}

func (s *stubSolver) Name() string { return s.name }
func (s *stubSolver) Solve(ctx context.Context, req SolveRequest) (*SolveResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

func TestMultiProviderFallsThroughOnRetryableError(t *testing.T) {
	primary := &stubSolver{name: "a", err: &SolveError{Code: ErrProviderRequestFailed, Retryable: true}}
	fallback := &stubSolver{name: "b", res: &SolveResult{Provider: "b", Token: "tok"}}
	mp := NewMultiProvider(primary, fallback)
	res, err := mp.Solve(context.Background(), SolveRequest{})
	if err != nil || res.Token != "tok" {
		t.Fatalf("expected fallback success, got %v %v", res, err)
	}
}

func TestMultiProviderPropagatesNonRetryable(t *testing.T) {
	primary := &stubSolver{name: "a", err: &SolveError{Code: ErrBudgetExceeded, Retryable: false}}
	fallback := &stubSolver{name: "b", res: &SolveResult{Provider: "b", Token: "tok"}}
	mp := NewMultiProvider(primary, fallback)
	_, err := mp.Solve(context.Background(), SolveRequest{})
	var se *SolveError
	if !errors.As(err, &se) || se.Code != ErrBudgetExceeded {
		t.Fatalf("expected non-retryable error propagated without trying fallback, got %v", err)
	}
}

func TestMultiProviderDedupesByName(t *testing.T) {
	a := &stubSolver{name: "a"}
	mp := NewMultiProvider(a, a)
	if len(mp.providers) != 1 {
		t.Fatalf("expected dedup by name, got %d providers", len(mp.providers))
	}
}

func TestBudgetExceeded(t *testing.T) {
	b := NewBudget(2)
	if err := b.CheckAndRecord("https://example.com/page"); err != nil {
		t.Fatalf("unexpected error on first solve: %v", err)
	}
	if err := b.CheckAndRecord("https://example.com/page"); err != nil {
		t.Fatalf("unexpected error on second solve: %v", err)
	}
	err := b.CheckAndRecord("https://example.com/page")
	var se *SolveError
	if !errors.As(err, &se) || se.Code != ErrBudgetExceeded || se.Retryable {
		t.Fatalf("expected non-retryable BUDGET_EXCEEDED, got %v", err)
	}
}

func TestBudgetUnknownDomainOnInvalidURL(t *testing.T) {
	b := NewBudget(1)
	if err := b.CheckAndRecord("::not a url::"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := domainOf("::not a url::"); got != "unknown" {
		t.Fatalf("expected unknown domain for invalid URL, got %v", got)
	}
}

func TestSolveWithFallbackBothAbsentReturnsNil(t *testing.T) {
	res, err := SolveWithFallback(context.Background(), nil, nil, SolveRequest{})
	if res != nil || err != nil {
		t.Fatalf("expected nil, nil when both configs absent, got %v %v", res, err)
	}
}

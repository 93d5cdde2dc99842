// Package challenge implements the live-DOM Challenge Detector and the
// Challenge Handler of spec.md §4.6 and §4.7.
//
// Grounded on engine/internal/crawler/crawler.go's HTML scanning idiom,
// using goquery for CSS-selector probing (already a teacher dependency).
package challenge

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ultrareader/internal/clock"
)

// Type classifies a detected challenge.
type Type string

const (
	TypeNone        Type = "none"
	TypeJSChallenge Type = "js_challenge"
	TypeBlocked     Type = "blocked"
)

var cloudflareInfraMarkers = []string{"/cdn-cgi/", "cloudflare", "__cf_bm", "cf-ray"}

var challengeSelectors = []string{
	"#challenge-running",
	"#challenge-form",
	"#turnstile-wrapper",
	"#cf-hcaptcha-container",
}

var challengeTextPatterns = []string{
	"checking if the site connection is secure",
	"waiting for",
}

// Result is the detector's output.
type Result struct {
	IsChallenge bool
	Type        Type
	Confidence  int
	Signals     []string
}

// Detect inspects html (and, when doc is non-nil, queries CSS selectors
// against the parsed document) per spec.md §4.6. A nil doc together with
// empty html (missing document) yields a non-challenge result with a
// dedicated signal; a nil doc with non-empty html skips the selector checks
// and runs only the text checks.
func Detect(html string, doc *goquery.Document) Result {
	if doc == nil && html == "" {
		return Result{IsChallenge: false, Type: TypeNone, Confidence: 0, Signals: []string{"No document available"}}
	}

	lower := strings.ToLower(html)
	var signals []string

	infra := false
	for _, m := range cloudflareInfraMarkers {
		if strings.Contains(lower, m) {
			infra = true
			signals = append(signals, "infra:"+m)
		}
	}

	selectorHit := false
	if doc != nil {
		for _, sel := range challengeSelectors {
			hit, sig := safeSelectorMatch(doc, sel)
			if sig != "" {
				signals = append(signals, sig)
			}
			if hit {
				selectorHit = true
				signals = append(signals, "selector:"+sel)
			}
		}
	}

	textHit := false
	for _, p := range challengeTextPatterns {
		if strings.Contains(lower, p) {
			textHit = true
			signals = append(signals, "text:"+p)
		}
	}

	blocked := strings.Contains(lower, "sorry, you have been blocked") && strings.Contains(lower, "ray id")
	if blocked {
		signals = append(signals, "block:sorry, you have been blocked", "block:ray id")
		return Result{IsChallenge: true, Type: TypeBlocked, Confidence: 100, Signals: signals}
	}

	if selectorHit || textHit {
		return Result{IsChallenge: true, Type: TypeJSChallenge, Confidence: 100, Signals: signals}
	}
	_ = infra

	return Result{IsChallenge: false, Type: TypeNone, Confidence: 0, Signals: signals}
}

// safeSelectorMatch evaluates a CSS selector without panicking: goquery
// itself doesn't throw on malformed selectors the way a DOM API might, but
// callers in the teacher's style still guard evaluation so a future richer
// selector engine swap stays safe. An exception during evaluation is
// reported as a signal, not propagated, per spec.md §4.6.
func safeSelectorMatch(doc *goquery.Document, selector string) (hit bool, signal string) {
	defer func() {
		if r := recover(); r != nil {
			signal = "error evaluating selector " + selector
			hit = false
		}
	}()
	return doc.Find(selector).Length() > 0, ""
}

// ResolveMethod names how a challenge was observed to clear.
type ResolveMethod string

const (
	MethodURLRedirect    ResolveMethod = "url_redirect"
	MethodSignalsCleared ResolveMethod = "signals_cleared"
	MethodTimeout        ResolveMethod = "timeout"
)

// ResolveResult is the outcome of waiting for a challenge to clear.
type ResolveResult struct {
	Resolved bool
	Method   ResolveMethod
	WaitedMs int64
}

// PageState is the minimal live-page contract the handler polls.
type PageState interface {
	CurrentURL() string
	HTML() (string, *goquery.Document)
	WaitForStable(ctx context.Context) error
}

// WaitForChallengeResolution implements spec.md §4.7's poll loop.
func WaitForChallengeResolution(ctx context.Context, page PageState, initialURL string, maxWait, pollInterval time.Duration, clk clock.Clock) ResolveResult {
	start := clk.Now()
	for {
		elapsed := clk.Now().Sub(start)
		if elapsed >= maxWait {
			return ResolveResult{Resolved: false, Method: MethodTimeout, WaitedMs: elapsed.Milliseconds()}
		}

		if page.CurrentURL() != initialURL {
			_ = page.WaitForStable(ctx)
			return ResolveResult{Resolved: true, Method: MethodURLRedirect, WaitedMs: clk.Now().Sub(start).Milliseconds()}
		}

		html, doc := page.HTML()
		res := Detect(html, doc)
		if !res.IsChallenge {
			return ResolveResult{Resolved: true, Method: MethodSignalsCleared, WaitedMs: clk.Now().Sub(start).Milliseconds()}
		}

		clk.Sleep(pollInterval)
	}
}

// TokenField names the form field a CAPTCHA widget expects its token in.
type TokenField string

const (
	FieldTurnstile  TokenField = "cf-turnstile-response"
	FieldRecaptcha  TokenField = "g-recaptcha-response"
)

// FormActor is the minimal DOM-manipulation contract ApplyToken needs;
// adapters (e.g. a rod-backed browser page) implement this against a real
// document.
type FormActor interface {
	SetFieldValue(name, value string) error
	DispatchInputChange(name string) error
	RequestSubmit() error
	Submit() error
	ClickSubmitButton() error
}

// ApplyToken is best-effort per spec.md §4.7: set the field, dispatch
// input+change, then try requestSubmit, then submit, then a submit button
// click, stopping at the first that doesn't error.
func ApplyToken(actor FormActor, field TokenField, token string) error {
	if err := actor.SetFieldValue(string(field), token); err != nil {
		return err
	}
	_ = actor.DispatchInputChange(string(field))

	if err := actor.RequestSubmit(); err == nil {
		return nil
	}
	if err := actor.Submit(); err == nil {
		return nil
	}
	return actor.ClickSubmitButton()
}

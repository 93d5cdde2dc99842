package challenge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ultrareader/internal/clock"
)

func mustDoc(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(err)
	}
	return doc
}

func TestMissingDocumentIsNonChallenge(t *testing.T) {
	r := Detect("", nil)
	if r.IsChallenge {
		t.Fatal("expected non-challenge for missing document")
	}
	if len(r.Signals) != 1 || r.Signals[0] != "No document available" {
		t.Fatalf("expected dedicated signal, got %v", r.Signals)
	}
}

func TestBlockedRequiresBothMarkers(t *testing.T) {
	html := `<html><body>Sorry, you have been blocked. Ray ID: abc123</body></html>`
	r := Detect(html, mustDoc(html))
	if !r.IsChallenge || r.Type != TypeBlocked || r.Confidence != 100 {
		t.Fatalf("expected blocked detection, got %+v", r)
	}
}

func TestBlockedRequiresBothMarkersNotJustOne(t *testing.T) {
	html := `<html><body>Sorry, you have been blocked.</body></html>` // no ray id
	r := Detect(html, mustDoc(html))
	if r.Type == TypeBlocked {
		t.Fatal("expected no block without ray id marker")
	}
}

func TestChallengeSelectorDetected(t *testing.T) {
	html := `<html><body><div id="challenge-running"></div></body></html>`
	r := Detect(html, mustDoc(html))
	if !r.IsChallenge || r.Type != TypeJSChallenge {
		t.Fatalf("expected js_challenge from selector, got %+v", r)
	}
}

func TestChallengeTextPatternDetected(t *testing.T) {
	html := `<html><body>Checking if the site connection is secure...</body></html>`
	r := Detect(html, mustDoc(html))
	if !r.IsChallenge {
		t.Fatal("expected challenge text pattern to be detected")
	}
}

type fakePage struct {
	urls    []string
	call    int
	htmls   []string
	stable  bool
}

func (p *fakePage) CurrentURL() string {
	u := p.urls[p.call]
	return u
}

func (p *fakePage) HTML() (string, *goquery.Document) {
	h := p.htmls[p.call]
	p.call++
	return h, mustDoc(h)
}

func (p *fakePage) WaitForStable(ctx context.Context) error {
	p.stable = true
	return nil
}

func TestWaitForChallengeResolutionURLRedirect(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	page := &fakePage{
		urls:  []string{"https://example.com/cdn-cgi/challenge"},
		htmls: []string{"<html>challenge</html>"},
	}
	res := WaitForChallengeResolution(context.Background(), page, "https://example.com/", 5*time.Second, 100*time.Millisecond, fc)
	if !res.Resolved || res.Method != MethodURLRedirect {
		t.Fatalf("expected url_redirect resolution, got %+v", res)
	}
}

func TestWaitForChallengeResolutionSignalsCleared(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	page := &fakePage{
		urls:  []string{"https://example.com/", "https://example.com/"},
		htmls: []string{"<html>clean page</html>", "<html>clean page</html>"},
	}
	res := WaitForChallengeResolution(context.Background(), page, "https://example.com/", 5*time.Second, 100*time.Millisecond, fc)
	if !res.Resolved || res.Method != MethodSignalsCleared {
		t.Fatalf("expected signals_cleared resolution, got %+v", res)
	}
}

func TestWaitForChallengeResolutionTimeout(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	htmls := make([]string, 100)
	urls := make([]string, 100)
	for i := range htmls {
		htmls[i] = `<html><body><div id="challenge-running"></div></body></html>`
		urls[i] = "https://example.com/"
	}
	page := &fakePage{urls: urls, htmls: htmls}
	res := WaitForChallengeResolution(context.Background(), page, "https://example.com/", 300*time.Millisecond, 100*time.Millisecond, fc)
	if res.Resolved || res.Method != MethodTimeout {
		t.Fatalf("expected timeout, got %+v", res)
	}
}

type fakeForm struct {
	values           map[string]string
	requestSubmitErr error
	submitCalls      []string
}

func (f *fakeForm) SetFieldValue(name, value string) error {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[name] = value
	return nil
}
func (f *fakeForm) DispatchInputChange(name string) error { return nil }
func (f *fakeForm) RequestSubmit() error {
	f.submitCalls = append(f.submitCalls, "requestSubmit")
	return f.requestSubmitErr
}
func (f *fakeForm) Submit() error {
	f.submitCalls = append(f.submitCalls, "submit")
	return nil
}
func (f *fakeForm) ClickSubmitButton() error {
	f.submitCalls = append(f.submitCalls, "click")
	return nil
}

func TestApplyTokenUsesRequestSubmitFirst(t *testing.T) {
	form := &fakeForm{}
	if err := ApplyToken(form, FieldTurnstile, "tok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if form.values["cf-turnstile-response"] != "tok" {
		t.Fatal("expected token set on field")
	}
	if len(form.submitCalls) != 1 || form.submitCalls[0] != "requestSubmit" {
		t.Fatalf("expected requestSubmit alone to be tried first and succeed, got %v", form.submitCalls)
	}
}

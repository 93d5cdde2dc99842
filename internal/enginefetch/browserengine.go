package enginefetch

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ultrareader/internal/browser"
	"ultrareader/internal/captcha"
	"ultrareader/internal/challenge"
	"ultrareader/internal/clock"
	"ultrareader/internal/discovery"
	"ultrareader/internal/models"
)

const browserEngineName = "hero"
const browserMaxTimeout = 30 * time.Second
const challengeMaxWait = 20 * time.Second
const challengePollInterval = 1 * time.Second

// BrowserEngine drives a pooled headless browser for JS-heavy pages and
// challenge resolution, per spec.md §4.9.
type BrowserEngine struct {
	pool             *browser.Pool
	challengeHandler func(ctx context.Context, page *browser.RodPage, initialURL string) challenge.ResolveResult
	captureAPIs      bool
	captchaSolver    captcha.Solver
}

// NewBrowserEngine builds a BrowserEngine over an already-warmed pool.
// captchaSolver may be nil, in which case handleChallenge skips straight to
// the passive wait loop.
func NewBrowserEngine(pool *browser.Pool, captureAPIs bool, captchaSolver captcha.Solver) *BrowserEngine {
	e := &BrowserEngine{pool: pool, captureAPIs: captureAPIs, captchaSolver: captchaSolver}
	e.challengeHandler = e.handleChallenge
	return e
}

// challengePage adapts *browser.RodPage to challenge.PageState and
// challenge.FormActor, the two minimal contracts the Challenge Handler needs.
type challengePage struct {
	rp *browser.RodPage
}

func (c *challengePage) CurrentURL() string { return c.rp.CurrentURL() }

func (c *challengePage) HTML() (string, *goquery.Document) {
	html, err := c.rp.HTML()
	if err != nil {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html, nil
	}
	return html, doc
}

func (c *challengePage) WaitForStable(ctx context.Context) error { return c.rp.WaitStable(ctx) }

func (c *challengePage) SetFieldValue(name, value string) error { return c.rp.SetFieldValue(name, value) }
func (c *challengePage) DispatchInputChange(name string) error  { return c.rp.DispatchInputChange(name) }
func (c *challengePage) RequestSubmit() error                   { return c.rp.RequestSubmit() }
func (c *challengePage) Submit() error                          { return c.rp.Submit() }
func (c *challengePage) ClickSubmitButton() error                { return c.rp.ClickSubmitButton() }


// tokenFieldFor maps a detected CAPTCHA widget to the form field its token
// belongs in.
func tokenFieldFor(t captcha.Type) challenge.TokenField {
	if t == captcha.TypeTurnstile {
		return challenge.FieldTurnstile
	}
	return challenge.FieldRecaptcha
}

// handleChallenge implements spec.md §4.7: if a CAPTCHA widget is present
// and a solver is configured, attempt exactly one solve and apply its token
// before falling through to the passive wait-for-resolution loop.
func (e *BrowserEngine) handleChallenge(ctx context.Context, page *browser.RodPage, initialURL string) challenge.ResolveResult {
	cp := &challengePage{rp: page}

	if e.captchaSolver != nil {
		if html, err := page.HTML(); err == nil {
			if keys := captcha.ExtractSiteKeys(html); len(keys) > 0 {
				key := keys[0]
				req := captcha.SolveRequest{CaptchaType: key.Type, PageURL: initialURL, SiteKey: key.Key}
				if res, err := e.captchaSolver.Solve(ctx, req); err == nil && res != nil {
					_ = challenge.ApplyToken(cp, tokenFieldFor(key.Type), res.Token)
				}
			}
		}
	}

	return challenge.WaitForChallengeResolution(ctx, cp, initialURL, challengeMaxWait, challengePollInterval, clock.Default)
}

func (e *BrowserEngine) Config() models.EngineConfig {
	return models.EngineConfig{
		Name:       browserEngineName,
		MaxTimeout: browserMaxTimeout,
		Features:   models.EngineFeatures{JavaScript: true},
	}
}

func (e *BrowserEngine) IsAvailable() bool { return e.pool != nil }

func (e *BrowserEngine) Scrape(ctx context.Context, meta models.EngineMeta) (*models.EngineResult, error) {
	if e.pool == nil {
		return nil, models.NewEngineUnavailableError(browserEngineName, "no browser pool configured")
	}
	ctx, cancel := boundContext(ctx, browserMaxTimeout)
	defer cancel()

	start := time.Now()
	page, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, models.NewEngineUnavailableError(browserEngineName, "could not acquire browser page: "+err.Error())
	}
	defer page.Close()

	var stopCapture func() []browser.NetworkEvent
	if e.captureAPIs {
		stopCapture = page.EnableAPIInterception()
	}

	if err := page.Navigate(ctx, meta.URL); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, models.NewEngineTimeoutError(browserEngineName, browserMaxTimeout.Milliseconds())
		}
		return nil, models.NewEngineError(browserEngineName, "navigation failed", err)
	}
	if err := page.WaitStable(ctx); err != nil {
		return nil, models.NewEngineError(browserEngineName, "page did not stabilize", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, models.NewEngineError(browserEngineName, "reading page html failed", err)
	}

	det := challenge.Detect(html, nil)
	if det.IsChallenge && e.challengeHandler != nil {
		res := e.challengeHandler(ctx, page, meta.URL)
		if !res.Resolved {
			return nil, models.NewChallengeDetectedError(browserEngineName, string(det.Type), "")
		}
		html, err = page.HTML()
		if err != nil {
			return nil, models.NewEngineError(browserEngineName, "reading page html failed after resolution", err)
		}
	} else if det.IsChallenge {
		return nil, models.NewChallengeDetectedError(browserEngineName, string(det.Type), "")
	}

	if err := checkSufficientContent(browserEngineName, html); err != nil {
		return nil, err
	}

	var artifacts *models.Artifacts
	if stopCapture != nil {
		events := stopCapture()
		artifacts = &models.Artifacts{DiscoveredAPIs: summarizeEvents(events)}
	}

	return &models.EngineResult{
		HTML:       []byte(html),
		FinalURL:   page.CurrentURL(),
		StatusCode: 200,
		EngineName: browserEngineName,
		DurationMs: time.Since(start).Milliseconds(),
		Artifacts:  artifacts,
	}, nil
}

// summarizeEvents converts raw network events into the Discovery Profiler's
// per-(method,templated path) ApiPattern summaries (see
// internal/discovery.GroupAPIPatterns), so a captured live session and a
// standalone discovery pass produce identically-shaped artifacts.
func summarizeEvents(events []browser.NetworkEvent) []models.ApiPattern {
	calls := make([]discovery.APICall, 0, len(events))
	for _, ev := range events {
		var headers map[string]string
		if ev.ContentType != "" {
			headers = map[string]string{"content-type": ev.ContentType}
		}
		calls = append(calls, discovery.APICall{
			Method:       ev.Method,
			URL:          ev.URL,
			StatusCode:   ev.StatusCode,
			RequestBody:  []byte(ev.RequestBody),
			ResponseBody: []byte(ev.RespBody),
			Headers:      headers,
		})
	}
	return discovery.GroupAPIPatterns(calls)
}

// Package browser adapts go-rod/rod into the BrowserPool contract that
// spec.md §6 requires of the Browser fetch engine: acquire a page, navigate,
// wait for stability, optionally hijack network traffic for API discovery.
//
// Grounded on the retrieval pack's flaresolverr-go internal/browser pool
// (pre-warmed rod.Browser reuse, launcher flags tuned for anti-detection);
// simplified from that file's full health-check/recycle machinery down to
// the pool shape this module's orchestrator actually exercises.
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Page is the minimal live-page surface the challenge handler and browser
// engine need; it is satisfied by *RodPage.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitStable(ctx context.Context) error
	CurrentURL() string
	HTML() (string, error)
	Close()
}

// NetworkEvent is one observed request/response pair, used by the browser
// engine's API interceptor (spec.md §4.9's discoveredApis artifact).
type NetworkEvent struct {
	Method      string
	URL         string
	StatusCode  int
	RequestBody string
	RespBody    string
	ContentType string
}

// Pool manages a fixed number of reusable rod.Browser instances.
type Pool struct {
	mu        sync.Mutex
	browsers  []*rod.Browser
	available chan *rod.Browser
	size      int
	headless  bool
}

// Config controls pool construction.
type Config struct {
	Size     int
	Headless bool
}

// NewPool pre-warms Size browser instances. Size defaults to 2.
func NewPool(cfg Config) (*Pool, error) {
	if cfg.Size <= 0 {
		cfg.Size = 2
	}
	p := &Pool{
		available: make(chan *rod.Browser, cfg.Size),
		size:      cfg.Size,
		headless:  cfg.Headless,
	}
	for i := 0; i < cfg.Size; i++ {
		b, err := p.spawn()
		if err != nil {
			p.Close()
			return nil, err
		}
		p.browsers = append(p.browsers, b)
		p.available <- b
	}
	return p, nil
}

func (p *Pool) spawn() (*rod.Browser, error) {
	l := launcher.New().
		Headless(p.headless).
		Set("disable-blink-features", "AutomationControlled")
	url, err := l.Launch()
	if err != nil {
		return nil, err
	}
	b := rod.New().ControlURL(url)
	if err := b.Connect(); err != nil {
		return nil, err
	}
	return b, nil
}

// Acquire blocks until a browser is available or ctx is done, returning a
// fresh Page bound to it.
func (p *Pool) Acquire(ctx context.Context) (*RodPage, error) {
	select {
	case b := <-p.available:
		page, err := b.Page(proto.TargetCreateTarget{})
		if err != nil {
			p.available <- b
			return nil, err
		}
		return &RodPage{browser: b, page: page, pool: p}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) release(b *rod.Browser) {
	select {
	case p.available <- b:
	default:
	}
}

// Close shuts down every pooled browser.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.browsers {
		_ = b.Close()
	}
	p.browsers = nil
}

// RodPage implements Page against a live rod.Page.
type RodPage struct {
	browser *rod.Browser
	page    *rod.Page
	pool    *Pool

	mu     sync.Mutex
	events []NetworkEvent
	hijack bool
}

func (rp *RodPage) Navigate(ctx context.Context, url string) error {
	return rp.page.Context(ctx).Navigate(url)
}

// WaitStable waits for load + a brief paint-stabilization window, matching
// the "load+paint stabilization" step of spec.md §4.9's Browser engine.
func (rp *RodPage) WaitStable(ctx context.Context) error {
	if err := rp.page.Context(ctx).WaitLoad(); err != nil {
		return err
	}
	if err := rp.page.Context(ctx).WaitIdle(2 * time.Second); err != nil {
		return err
	}
	return nil
}

func (rp *RodPage) CurrentURL() string {
	info, err := rp.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (rp *RodPage) HTML() (string, error) {
	return rp.page.HTML()
}

// EnableAPIInterception installs a request-hijack router recording XHR/
// fetch traffic for the browser engine's discoveredApis artifact. Grounded
// on spec.md §9 OQ1's resolution: rod's page.HijackRequests stands in for
// the original's ActiveTab "resource" event listener.
func (rp *RodPage) EnableAPIInterception() func() []NetworkEvent {
	rp.mu.Lock()
	rp.hijack = true
	rp.mu.Unlock()

	router := rp.page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		method := h.Request.Method()
		reqURL := h.Request.URL().String()
		h.MustLoadResponse()

		rp.mu.Lock()
		rp.events = append(rp.events, NetworkEvent{
			Method:      method,
			URL:         reqURL,
			StatusCode:  h.Response.Payload().ResponseCode,
			ContentType: h.Response.Headers().Get("Content-Type"),
		})
		rp.mu.Unlock()
	})
	go router.Run()

	return func() []NetworkEvent {
		_ = router.Stop()
		rp.mu.Lock()
		defer rp.mu.Unlock()
		out := make([]NetworkEvent, len(rp.events))
		copy(out, rp.events)
		return out
	}
}

func (rp *RodPage) Close() {
	_ = rp.page.Close()
	rp.pool.release(rp.browser)
}

// SetFieldValue implements challenge.FormActor against the live page via a
// direct DOM write, matching spec.md §4.7's ApplyToken contract.
func (rp *RodPage) SetFieldValue(name, value string) error {
	_, err := rp.page.Eval(`(name, value) => {
		const el = document.querySelector('[name="' + name + '"]');
		if (!el) throw new Error('field not found: ' + name);
		el.value = value;
	}`, name, value)
	return err
}

// DispatchInputChange fires input+change events so frameworks bound to the
// field observe the injected token.
func (rp *RodPage) DispatchInputChange(name string) error {
	_, err := rp.page.Eval(`(name) => {
		const el = document.querySelector('[name="' + name + '"]');
		if (!el) throw new Error('field not found: ' + name);
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
	}`, name)
	return err
}

// RequestSubmit calls the enclosing form's requestSubmit(), which runs
// constraint validation the way a real user submit would.
func (rp *RodPage) RequestSubmit() error {
	_, err := rp.page.Eval(`() => {
		const form = document.querySelector('form');
		if (!form || typeof form.requestSubmit !== 'function') throw new Error('requestSubmit unavailable');
		form.requestSubmit();
	}`)
	return err
}

// Submit falls back to form.submit() when requestSubmit is unavailable.
func (rp *RodPage) Submit() error {
	_, err := rp.page.Eval(`() => {
		const form = document.querySelector('form');
		if (!form) throw new Error('no form found');
		form.submit();
	}`)
	return err
}

// ClickSubmitButton is the last-resort fallback: a real mouse click on the
// visible submit control.
func (rp *RodPage) ClickSubmitButton() error {
	el, err := rp.page.Timeout(5 * time.Second).Element(`button[type="submit"], input[type="submit"]`)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

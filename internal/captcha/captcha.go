// Package captcha implements the site-key extractor, provider clients,
// multi-provider fallback, and per-domain daily budget of spec.md §4.8.
//
// Grounded on the teacher's HTTP-client idioms in
// engine/internal/crawler/colly_fetcher.go (context-bound http.Client calls,
// JSON/form encoding); google/uuid stamps each MultiProvider with a trace
// ID (MultiProvider.traceID); nothing in this package reads or logs it.
package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ultrareader/internal/clock"
)

// Type names a supported CAPTCHA widget kind.
type Type string

const (
	TypeTurnstile     Type = "turnstile"
	TypeRecaptchaV2   Type = "recaptcha_v2"
	TypeRecaptchaV3   Type = "recaptcha_v3"
)

// SiteKey is one extracted widget reference.
type SiteKey struct {
	Type Type
	Key  string
}

var (
	turnstileClassRe = regexp.MustCompile(`(?is)class=["'][^"']*cf-turnstile[^"']*["'][^>]*data-sitekey=["']([^"']+)["']`)
	turnstileJSRe    = regexp.MustCompile(`(?is)turnstile\.render\(\s*\{[^}]*sitekey\s*:\s*["']([^"']+)["']`)
	recaptchaClassRe = regexp.MustCompile(`(?is)class=["'][^"']*g-recaptcha[^"']*["'][^>]*data-sitekey=["']([^"']+)["']`)
	recaptchaJSRe    = regexp.MustCompile(`(?is)grecaptcha\.render\(\s*\{[^}]*sitekey\s*:\s*["']([^"']+)["']`)
)

// ExtractSiteKeys scans html for Turnstile/reCAPTCHA widget declarations,
// collapsing duplicates per (type, key).
func ExtractSiteKeys(html string) []SiteKey {
	seen := make(map[[2]string]bool)
	var out []SiteKey
	add := func(t Type, key string) {
		k := [2]string{string(t), key}
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, SiteKey{Type: t, Key: key})
	}
	for _, m := range turnstileClassRe.FindAllStringSubmatch(html, -1) {
		add(TypeTurnstile, m[1])
	}
	for _, m := range turnstileJSRe.FindAllStringSubmatch(html, -1) {
		add(TypeTurnstile, m[1])
	}
	for _, m := range recaptchaClassRe.FindAllStringSubmatch(html, -1) {
		add(TypeRecaptchaV2, m[1])
	}
	for _, m := range recaptchaJSRe.FindAllStringSubmatch(html, -1) {
		add(TypeRecaptchaV2, m[1])
	}
	return out
}

// SolveRequest is what a caller asks a provider to solve.
type SolveRequest struct {
	CaptchaType Type
	PageURL     string
	SiteKey     string
	Action      string
	MinScore    *float64
}

// SolveResult is a successful solve.
type SolveResult struct {
	Provider string
	Token    string
	Raw      map[string]any
}

// ErrorCode classifies a provider failure.
type ErrorCode string

const (
	ErrProviderRequestFailed ErrorCode = "PROVIDER_REQUEST_FAILED"
	ErrProviderBadResponse   ErrorCode = "PROVIDER_BAD_RESPONSE"
	ErrBudgetExceeded        ErrorCode = "BUDGET_EXCEEDED"
)

// SolveError wraps a provider/budget failure with a retryability verdict.
type SolveError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

func (e *SolveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("captcha: %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("captcha: %s: %s", e.Code, e.Message)
}

func (e *SolveError) Unwrap() error { return e.Cause }

// Solver is the common provider contract.
type Solver interface {
	Name() string
	Solve(ctx context.Context, req SolveRequest) (*SolveResult, error)
}

const defaultTimeout = 60 * time.Second

// CapSolverClient implements the CapSolver protocol of spec.md §4.8.
type CapSolverClient struct {
	ClientKey string
	BaseURL   string
	client    *http.Client
	clock     clock.Clock
}

// NewCapSolverClient builds a client against the production CapSolver API.
func NewCapSolverClient(clientKey string) *CapSolverClient {
	return &CapSolverClient{
		ClientKey: clientKey,
		BaseURL:   "https://api.capsolver.com",
		client:    &http.Client{Timeout: defaultTimeout},
		clock:     clock.Default,
	}
}

func (c *CapSolverClient) Name() string { return "capsolver" }

func (c *CapSolverClient) taskType(t Type) string {
	switch t {
	case TypeTurnstile:
		return "AntiTurnstileTaskProxyLess"
	case TypeRecaptchaV2:
		return "ReCaptchaV2TaskProxyLess"
	case TypeRecaptchaV3:
		return "ReCaptchaV3TaskProxyLess"
	default:
		return "AntiTurnstileTaskProxyLess"
	}
}

func (c *CapSolverClient) Solve(ctx context.Context, req SolveRequest) (*SolveResult, error) {
	task := map[string]any{
		"type":       c.taskType(req.CaptchaType),
		"websiteURL": req.PageURL,
		"websiteKey": req.SiteKey,
	}
	if req.Action != "" {
		task["pageAction"] = req.Action
	}
	if req.MinScore != nil {
		task["minScore"] = *req.MinScore
	}
	body, _ := json.Marshal(map[string]any{"clientKey": c.ClientKey, "task": task})

	var createResp struct {
		TaskID    string `json:"taskId"`
		ErrorID   int    `json:"errorId"`
		ErrorDesc string `json:"errorDescription"`
	}
	if err := c.postJSON(ctx, "/createTask", body, &createResp); err != nil {
		return nil, &SolveError{Code: ErrProviderRequestFailed, Message: "createTask", Retryable: true, Cause: err}
	}
	if createResp.ErrorID != 0 || createResp.TaskID == "" {
		return nil, &SolveError{Code: ErrProviderBadResponse, Message: createResp.ErrorDesc, Retryable: true}
	}

	pollBody, _ := json.Marshal(map[string]any{"clientKey": c.ClientKey, "taskId": createResp.TaskID})
	for i := 0; i < 40; i++ {
		var pollResp struct {
			Status   string `json:"status"`
			Solution struct {
				Token              string `json:"token"`
				GRecaptchaResponse string `json:"gRecaptchaResponse"`
			} `json:"solution"`
			ErrorID int `json:"errorId"`
		}
		if err := c.postJSON(ctx, "/getTaskResult", pollBody, &pollResp); err != nil {
			return nil, &SolveError{Code: ErrProviderRequestFailed, Message: "getTaskResult", Retryable: true, Cause: err}
		}
		if pollResp.Status == "ready" {
			token := pollResp.Solution.Token
			if token == "" {
				token = pollResp.Solution.GRecaptchaResponse
			}
			if token == "" {
				return nil, &SolveError{Code: ErrProviderBadResponse, Message: "empty token in ready response", Retryable: true}
			}
			return &SolveResult{Provider: c.Name(), Token: token}, nil
		}
		c.clock.Sleep(1500 * time.Millisecond)
	}
	return nil, &SolveError{Code: ErrProviderBadResponse, Message: "poll exhausted", Retryable: true}
}

func (c *CapSolverClient) postJSON(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// TwoCaptchaClient implements the 2Captcha protocol of spec.md §4.8.
type TwoCaptchaClient struct {
	APIKey  string
	BaseURL string
	client  *http.Client
	clock   clock.Clock
}

func NewTwoCaptchaClient(apiKey string) *TwoCaptchaClient {
	return &TwoCaptchaClient{
		APIKey:  apiKey,
		BaseURL: "https://2captcha.com",
		client:  &http.Client{Timeout: defaultTimeout},
		clock:   clock.Default,
	}
}

func (c *TwoCaptchaClient) Name() string { return "2captcha" }

func (c *TwoCaptchaClient) Solve(ctx context.Context, req SolveRequest) (*SolveResult, error) {
	form := url.Values{}
	form.Set("method", "userrecaptcha")
	form.Set("key", c.APIKey)
	form.Set("googlekey", req.SiteKey)
	form.Set("pageurl", req.PageURL)
	if req.Action != "" {
		form.Set("action", req.Action)
	}
	if req.MinScore != nil {
		form.Set("min_score", strconv.FormatFloat(*req.MinScore, 'f', -1, 64))
	}
	if req.CaptchaType == TypeRecaptchaV3 {
		form.Set("version", "v3")
	}

	submitResp, err := c.postForm(ctx, "/in.php", form)
	if err != nil {
		return nil, &SolveError{Code: ErrProviderRequestFailed, Message: "in.php", Retryable: true, Cause: err}
	}
	parts := strings.SplitN(submitResp, "|", 2)
	if len(parts) != 2 || parts[0] != "OK" {
		return nil, &SolveError{Code: ErrProviderBadResponse, Message: submitResp, Retryable: true}
	}
	requestID := parts[1]

	for i := 0; i < 24; i++ {
		c.clock.Sleep(5 * time.Second)
		pollResp, err := c.get(ctx, fmt.Sprintf("/res.php?key=%s&action=get&id=%s", url.QueryEscape(c.APIKey), url.QueryEscape(requestID)))
		if err != nil {
			return nil, &SolveError{Code: ErrProviderRequestFailed, Message: "res.php", Retryable: true, Cause: err}
		}
		if pollResp == "CAPCHA_NOT_READY" {
			continue
		}
		parts := strings.SplitN(pollResp, "|", 2)
		if len(parts) == 2 && parts[0] == "OK" {
			return &SolveResult{Provider: c.Name(), Token: parts[1]}, nil
		}
		return nil, &SolveError{Code: ErrProviderBadResponse, Message: pollResp, Retryable: true}
	}
	return nil, &SolveError{Code: ErrProviderBadResponse, Message: "poll exhausted", Retryable: true}
}

func (c *TwoCaptchaClient) postForm(ctx context.Context, path string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func (c *TwoCaptchaClient) get(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// MultiProvider tries providers in order, falling through to the next on a
// retryable error (unknown errors are treated as retryable per spec.md §4.8).
type MultiProvider struct {
	providers []Solver
	traceID   string
}

// NewMultiProvider dedupes providers by name, preserving first-seen order.
func NewMultiProvider(providers ...Solver) *MultiProvider {
	seen := make(map[string]bool)
	var deduped []Solver
	for _, p := range providers {
		if p == nil || seen[p.Name()] {
			continue
		}
		seen[p.Name()] = true
		deduped = append(deduped, p)
	}
	return &MultiProvider{providers: deduped, traceID: uuid.NewString()}
}

func (m *MultiProvider) Solve(ctx context.Context, req SolveRequest) (*SolveResult, error) {
	var lastErr error
	for i, p := range m.providers {
		res, err := p.Solve(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		if i == len(m.providers)-1 {
			return nil, err
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	var se *SolveError
	if e, ok := err.(*SolveError); ok {
		se = e
		return se.Retryable
	}
	return true
}

// Budget enforces a per-domain per-UTC-day solve cap.
type Budget struct {
	mu      sync.Mutex
	max     int
	counts  map[string]int // key: domain|YYYY-MM-DD
	clock   clock.Clock
}

func NewBudget(maxPerDomainPerDay int, opts ...BudgetOption) *Budget {
	b := &Budget{max: maxPerDomainPerDay, counts: make(map[string]int), clock: clock.Default}
	for _, o := range opts {
		o(b)
	}
	return b
}

type BudgetOption func(*Budget)

func WithBudgetClock(c clock.Clock) BudgetOption { return func(b *Budget) { b.clock = c } }

func domainOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}

// CheckAndRecord implements the "check-then-record at start of solve"
// budget semantics; returns BUDGET_EXCEEDED (non-retryable) when the day's
// cap for the domain is already spent.
func (b *Budget) CheckAndRecord(pageURL string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	domain := domainOf(pageURL)
	key := domain + "|" + b.clock.Now().UTC().Format("2006-01-02")
	if b.counts[key] >= b.max {
		return &SolveError{Code: ErrBudgetExceeded, Message: fmt.Sprintf("daily budget exceeded for %s", domain), Retryable: false}
	}
	b.counts[key]++
	return nil
}

// FallbackConfig pairs a primary and optional fallback solver configuration.
type FallbackConfig struct {
	Primary  Solver
	Fallback Solver
}

// SolveWithFallback tries the primary config's solver; on any error it
// tries the fallback config's solver. Returns nil, nil if both are absent.
func SolveWithFallback(ctx context.Context, primary, fallback *FallbackConfig, req SolveRequest) (*SolveResult, error) {
	if primary == nil && fallback == nil {
		return nil, nil
	}
	if primary != nil && primary.Primary != nil {
		if res, err := primary.Primary.Solve(ctx, req); err == nil {
			return res, nil
		}
	}
	if fallback != nil && fallback.Primary != nil {
		return fallback.Primary.Solve(ctx, req)
	}
	return nil, fmt.Errorf("captcha: no solver configured")
}

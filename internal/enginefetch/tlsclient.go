package enginefetch

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"

	"ultrareader/internal/models"
	"ultrareader/internal/useragent"
	"ultrareader/internal/waf"
)

const tlsEngineName = "tlsclient"
const tlsMaxTimeout = 15 * time.Second

var jsRequiredPatterns = []string{"enable javascript", "javascript is required", "<noscript>"}

// TLSEngine is the TLS-fingerprint-aware fetch engine. No TLS-fingerprint
// spoofing library appears anywhere in the retrieval pack (see DESIGN.md);
// this engine uses a stdlib crypto/tls transport (TLS 1.2 minimum, HTTP/2
// attempted) and does not alter the TLS ClientHello fingerprint.
type TLSEngine struct {
	client  *http.Client
	rotator *useragent.Rotator
}

func NewTLSEngine(rotator *useragent.Rotator) *TLSEngine {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2: true,
	}
	return &TLSEngine{
		client:  &http.Client{Timeout: tlsMaxTimeout, Transport: transport},
		rotator: rotator,
	}
}

func (e *TLSEngine) Config() models.EngineConfig {
	return models.EngineConfig{
		Name:       tlsEngineName,
		MaxTimeout: tlsMaxTimeout,
		Features:   models.EngineFeatures{TLSFingerprint: true},
	}
}

func (e *TLSEngine) IsAvailable() bool { return true }

func (e *TLSEngine) Scrape(ctx context.Context, meta models.EngineMeta) (*models.EngineResult, error) {
	ctx, cancel := boundContext(ctx, tlsMaxTimeout)
	defer cancel()

	ua := resolveUA(meta.Options, meta.URL, e.rotator)
	headers := buildHeaders(meta.URL, ua, meta.Options, true, meta.Options.Proxy, e.rotator)

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, models.NewEngineError(tlsEngineName, "invalid request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if isTimeoutErr(err) || ctx.Err() == context.DeadlineExceeded {
			return nil, models.NewEngineTimeoutError(tlsEngineName, tlsMaxTimeout.Milliseconds())
		}
		return nil, models.NewEngineError(tlsEngineName, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, models.NewEngineError(tlsEngineName, "reading body failed", err)
	}
	html := string(body)
	duration := time.Since(start)

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	wafInput := waf.Input{URL: meta.URL, StatusCode: resp.StatusCode, Headers: respHeaders, HTML: html}
	wafDetection, wafHit := waf.Detect(wafInput)

	if _, ok := hasChallengePattern(html, jsRequiredPatterns...); ok {
		challengeType := jsRequiredChallengeType(html)
		wafName := ""
		if wafHit {
			wafName = string(wafDetection.Provider)
			challengeType = waf.FormatChallengeType(*wafDetection)
		}
		return nil, models.NewChallengeDetectedError(tlsEngineName, challengeType, wafName)
	}

	if resp.StatusCode >= 400 {
		if wafHit {
			return nil, models.NewChallengeDetectedError(tlsEngineName, waf.FormatChallengeType(*wafDetection), string(wafDetection.Provider))
		}
		return nil, models.NewHTTPError(tlsEngineName, resp.StatusCode, resp.Status)
	}

	if wafHit {
		return nil, models.NewChallengeDetectedError(tlsEngineName, waf.FormatChallengeType(*wafDetection), string(wafDetection.Provider))
	}

	if err := checkSufficientContent(tlsEngineName, html); err != nil {
		return nil, err
	}

	return &models.EngineResult{
		HTML:        body,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: strings.TrimSpace(resp.Header.Get("Content-Type")),
		Headers:     respHeaders,
		EngineName:  tlsEngineName,
		DurationMs:  duration.Milliseconds(),
	}, nil
}

func jsRequiredChallengeType(html string) string {
	if looksLikeCloudflare(html, nil) {
		return "cloudflare-js"
	}
	return "js-required"
}

// isTimeoutErr implements spec.md §4.9's "error names matching TimeoutError
// or messages containing 'timeout'" classification against Go's error
// shapes (net.Error.Timeout() plus a message substring fallback).
func isTimeoutErr(err error) bool {
	type timeout interface{ Timeout() bool }
	if te, ok := err.(timeout); ok && te.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

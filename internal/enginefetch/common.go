// Package enginefetch implements the three interchangeable fetch engines of
// spec.md §4.9 (HTTP, TLS-fingerprint, Browser) behind a common Engine
// contract, sharing the header-building and content-extraction pipeline all
// three follow.
//
// The HTTP engine is grounded verbatim on the teacher's
// engine/internal/crawler/colly_fetcher.go (gocolly/colly/v2 + goquery);
// the Browser engine on the flaresolverr-go browser-pool retrieval file via
// internal/browser.Pool; the TLS-fingerprint engine documents its
// stdlib-backed transport choice in the module's design notes.
package enginefetch

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"ultrareader/internal/geo"
	"ultrareader/internal/models"
	"ultrareader/internal/useragent"
)

// Engine is the common contract all three fetch strategies satisfy,
// reusing the shared models.EngineConfig/EngineMeta request envelope.
type Engine interface {
	Config() models.EngineConfig
	IsAvailable() bool
	Scrape(ctx context.Context, meta models.EngineMeta) (*models.EngineResult, error)
}

// boundContext binds the engine's maxTimeout against any externally
// supplied abort signal, honoring whichever fires first.
func boundContext(parent context.Context, maxTimeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, maxTimeout)
}

// resolveUA implements step 2 of the common scrape pipeline.
func resolveUA(opts models.EngineOptions, rawURL string, rotator *useragent.Rotator) string {
	if opts.UserAgent != "" {
		return opts.UserAgent
	}
	if v, ok := opts.Headers["User-Agent"]; ok && v != "" {
		return v
	}
	return rotator.Get(rawURL)
}

// resolveReferer implements step 4.
func resolveReferer(opts models.EngineOptions, rawURL string, rotator *useragent.Rotator) string {
	if v, ok := opts.Headers["Referer"]; ok && v != "" {
		return v
	}
	if opts.SpoofReferer != nil && !*opts.SpoofReferer {
		return ""
	}
	return rotator.GenerateReferer(rawURL)
}

// buildHeaders implements step 5: defaults ∪ client hints ∪ geo headers
// (tlsclient only) ∪ options.Headers ∪ explicit UA override ∪ referer.
func buildHeaders(rawURL, ua string, opts models.EngineOptions, includeGeo bool, proxyURL string, rotator *useragent.Rotator) map[string]string {
	headers := map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Encoding": "gzip, deflate, br",
		"Connection":      "keep-alive",
		"User-Agent":      ua,
	}
	for k, v := range useragent.GetClientHints(ua) {
		headers[k] = v
	}
	if includeGeo {
		for k, v := range geo.GeoConsistentHeaders(proxyURL) {
			headers[k] = v
		}
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	headers["User-Agent"] = ua

	referer := resolveReferer(opts, rawURL, rotator)
	if referer != "" {
		headers["Referer"] = referer
		headers["Sec-Fetch-Site"] = secFetchSite(rawURL, referer)
	}
	return headers
}

func secFetchSite(rawURL, referer string) string {
	target, err1 := url.Parse(rawURL)
	ref, err2 := url.Parse(referer)
	if err1 != nil || err2 != nil {
		return "cross-site"
	}
	if target.Scheme == ref.Scheme && target.Host == ref.Host {
		return "same-origin"
	}
	return "cross-site"
}

var baseChallengePatterns = []string{
	"cf-browser-verification",
	"_cf_chl_tk",
	"just a moment",
	"ddos protection by",
	"access denied",
	"bot detection",
	"are you a robot",
}

// hasChallengePattern implements step 8's base pattern set (case-
// insensitive), shared by HTTP and TLS engines.
func hasChallengePattern(html string, extra ...string) (string, bool) {
	lower := strings.ToLower(html)
	for _, p := range baseChallengePatterns {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	for _, p := range extra {
		if strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}

var cloudflareInfraSubstrings = []string{"cf-ray", "cloudflare", "__cf_bm", "/cdn-cgi/"}

func looksLikeCloudflare(html string, headers map[string]string) bool {
	lower := strings.ToLower(html)
	for _, s := range cloudflareInfraSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	for k, v := range headers {
		kl := strings.ToLower(k)
		if kl == "cf-ray" || kl == "server" && strings.Contains(strings.ToLower(v), "cloudflare") {
			return true
		}
	}
	return false
}

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]+>`)
	wsRe          = regexp.MustCompile(`\s+`)
)

// extractText implements step 9's strip/collapse pipeline.
func extractText(html string) string {
	stripped := scriptStyleRe.ReplaceAllString(html, " ")
	stripped = tagRe.ReplaceAllString(stripped, " ")
	stripped = wsRe.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(stripped)
}

const insufficientContentThreshold = 100

// checkSufficientContent implements step 9's threshold check.
func checkSufficientContent(engine, html string) error {
	text := extractText(html)
	if len(text) < insufficientContentThreshold {
		return models.NewInsufficientContentError(engine, len(text), insufficientContentThreshold)
	}
	return nil
}

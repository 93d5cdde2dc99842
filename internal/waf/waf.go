// Package waf implements the WAF fingerprint detector of spec.md §4.5:
// header/cookie infra signals plus HTML action signals, combined into a
// provider/category/confidence verdict.
//
// Grounded on the teacher's pattern-matcher style in
// engine/internal/crawler/colly_fetcher.go's challenge-string callbacks,
// generalized to the spec's infra+action signal split; gobwas/glob matches
// the Server header against the Cloudflare fingerprint.
package waf

import (
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

// Provider names a recognized WAF/anti-bot vendor.
type Provider string

const (
	Cloudflare Provider = "cloudflare"
	Akamai     Provider = "akamai"
	DataDome   Provider = "datadome"
	PerimeterX Provider = "perimeterx"
	Imperva    Provider = "imperva"
	Sucuri     Provider = "sucuri"
	Unknown    Provider = "unknown"
)

// Category classifies the nature of the detected block.
type Category string

const (
	CategoryRateLimit Category = "rate_limit"
	CategoryCaptcha   Category = "captcha"
	CategoryBlock     Category = "block"
	CategoryChallenge Category = "challenge"
)

// Input is the evidence the detector inspects.
type Input struct {
	URL        string
	StatusCode int
	Headers    map[string]string
	HTML       string
}

// Detection is the verdict produced when enough signals accumulate.
type Detection struct {
	Provider   Provider
	Category   Category
	Confidence int
	Signals    []string
}

type fingerprint struct {
	provider    Provider
	infraHeader []string // header-name substrings, also looked for in Cookie/Set-Cookie values (case-insensitive)
	infraValue  glob.Glob
	htmlInfra   []string
}

var fingerprints = []fingerprint{
	{provider: Cloudflare, infraHeader: []string{"cf-ray", "__cf_bm"}},
	{provider: Akamai, infraHeader: []string{"ak_bmsc"}},
	{provider: DataDome, infraHeader: []string{"x-datadome"}},
	{provider: PerimeterX, infraHeader: []string{"_px3"}},
	{provider: Imperva, infraHeader: []string{"incap_ses"}},
	{provider: Sucuri, infraHeader: []string{"x-sucuri-id"}},
}

var serverCloudflare = mustGlob("*cloudflare*")

func mustGlob(pattern string) glob.Glob {
	g, err := glob.Compile(strings.ToLower(pattern))
	if err != nil {
		panic(err)
	}
	return g
}

var actionHTMLPatterns = []string{
	"/cdn-cgi/challenge-platform/",
	"just a moment",
	"checking your browser",
}

var providerNamedBlocks = map[string]Provider{
	"cloudflare": Cloudflare,
	"akamai":     Akamai,
	"datadome":   DataDome,
	"perimeterx": PerimeterX,
	"imperva":    Imperva,
	"sucuri":     Sucuri,
}

// Detect implements spec.md §4.5's detection threshold: a Detection is
// returned iff action>=1 && (infra>=1 || action>=2).
func Detect(in Input) (*Detection, bool) {
	lowerHeaders := make(map[string]string, len(in.Headers))
	for k, v := range in.Headers {
		lowerHeaders[strings.ToLower(k)] = strings.ToLower(v)
	}
	htmlLower := strings.ToLower(in.HTML)

	var signals []string
	infraCount := 0
	actionCount := 0
	provider := Unknown

	for _, fp := range fingerprints {
		for _, h := range fp.infraHeader {
			for k, v := range lowerHeaders {
				cookieHeader := k == "cookie" || k == "set-cookie"
				if !strings.Contains(k, h) && !(cookieHeader && strings.Contains(v, h)) {
					continue
				}
				infraCount++
				signals = append(signals, "infra:"+h+"="+v)
				if provider == Unknown {
					provider = fp.provider
				}
				break
			}
		}
	}
	if v, ok := lowerHeaders["server"]; ok && serverCloudflare.Match(v) {
		infraCount++
		signals = append(signals, "infra:server=cloudflare")
		if provider == Unknown {
			provider = Cloudflare
		}
	}

	for _, p := range actionHTMLPatterns {
		if strings.Contains(htmlLower, p) {
			actionCount++
			signals = append(signals, "action:html:"+p)
			if provider == Unknown && strings.Contains(p, "cdn-cgi") {
				provider = Cloudflare
			}
		}
	}
	if in.StatusCode >= 400 && strings.Contains(htmlLower, "ray id") {
		actionCount++
		signals = append(signals, "action:html:ray id")
		if provider == Unknown {
			provider = Cloudflare
		}
	}
	for name, p := range providerNamedBlocks {
		if strings.Contains(htmlLower, name) {
			actionCount++
			signals = append(signals, "action:provider-name:"+name)
			if provider == Unknown {
				provider = p
			}
		}
	}

	if !(actionCount >= 1 && (infraCount >= 1 || actionCount >= 2)) {
		return nil, false
	}

	category := classify(in.StatusCode, htmlLower)
	confidence := 60
	if infraCount >= 1 && actionCount >= 1 {
		confidence = 90
	} else if actionCount >= 2 {
		confidence = 75
	}

	return &Detection{
		Provider:   provider,
		Category:   category,
		Confidence: confidence,
		Signals:    signals,
	}, true
}

func classify(statusCode int, htmlLower string) Category {
	if statusCode == 429 {
		return CategoryRateLimit
	}
	if strings.Contains(htmlLower, "turnstile") || strings.Contains(htmlLower, "recaptcha") || strings.Contains(htmlLower, "hcaptcha") {
		return CategoryCaptcha
	}
	if strings.Contains(htmlLower, "access denied") || strings.Contains(htmlLower, "you have been blocked") || strings.Contains(htmlLower, "request blocked") {
		return CategoryBlock
	}
	return CategoryChallenge
}

// FormatChallengeType implements spec.md §4.5's formatWafChallengeType:
// Cloudflare gets specialized tokens; other providers get a generic
// "waf:<provider>:<category>" token.
func FormatChallengeType(d Detection) string {
	if d.Provider == Cloudflare {
		switch d.Category {
		case CategoryCaptcha:
			return "cloudflare-captcha"
		case CategoryRateLimit:
			return "cloudflare-rate-limit"
		case CategoryBlock:
			return "cloudflare-blocked"
		default:
			return "cloudflare"
		}
	}
	return "waf:" + string(d.Provider) + ":" + string(d.Category)
}

// confidenceLabel is a human-readable debugging aid, not part of the spec
// contract; nothing in the module calls it.
func confidenceLabel(c int) string { return strconv.Itoa(c) + "%" }

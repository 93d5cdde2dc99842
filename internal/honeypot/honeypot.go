// Package honeypot implements the Honeypot Link Assessor of spec.md §4.14:
// a scored heuristic over an anchor's DOM presentation and its URL shape,
// used to steer a crawl away from traps before a request is ever made.
//
// Grounded on the teacher's goquery-based DOM inspection idiom (the same
// library backing internal/challenge's selector probing), generalized from
// "detect a challenge" to "score a link".
package honeypot

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Input is one candidate link plus the context needed to score it.
type Input struct {
	Href        string
	ResolvedURL string
	Anchor      *goquery.Selection // optional; nil skips DOM-presentation scoring
	BaseURL     string
}

// Options configures the assessor.
type Options struct {
	Enabled   bool
	Threshold int
}

// WithDefaults fills in the spec's default threshold (8) when unset.
func (o Options) WithDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = 8
	}
	return o
}

// Assessment is the scored verdict for one link.
type Assessment struct {
	Blocked   bool
	Score     int
	Threshold int
	Reasons   []string
}

var (
	suspiciousVerbRe = regexp.MustCompile(`(?i)\b(delete|remove|destroy|unsubscribe|trap|honeypot)\b`)
	logoutRe         = regexp.MustCompile(`(?i)\b(logout|log-out|signout|sign-out)\b`)
	numericLeftmostRe = regexp.MustCompile(`^[0-9]{4,}`)
)

// Assess scores a single link. When opts.Enabled is false, assessment is
// skipped and the link is always allowed.
func Assess(in Input, opts Options) Assessment {
	opts = opts.WithDefaults()
	if !opts.Enabled {
		return Assessment{Threshold: opts.Threshold}
	}

	score := 0
	var reasons []string
	add := func(points int, reason string) {
		score += points
		reasons = append(reasons, reason)
	}

	if in.Anchor != nil {
		scoreDOMPresentation(in.Anchor, add)
	}

	scoreURLShape(in.ResolvedURL, in.Href, add)

	return Assessment{
		Blocked:   score >= opts.Threshold,
		Score:     score,
		Threshold: opts.Threshold,
		Reasons:   reasons,
	}
}

func scoreDOMPresentation(a *goquery.Selection, add func(int, string)) {
	if _, ok := a.Attr("hidden"); ok {
		add(6, "hidden attribute")
	}
	if v, ok := a.Attr("aria-hidden"); ok && strings.EqualFold(v, "true") {
		add(4, "aria-hidden")
	}

	style := strings.ToLower(a.AttrOr("style", ""))
	hiddenByStyle := false
	if strings.Contains(style, "display:none") || strings.Contains(style, "display: none") {
		hiddenByStyle = true
	}
	if strings.Contains(style, "visibility:hidden") || strings.Contains(style, "visibility: hidden") {
		hiddenByStyle = true
	}
	if strings.Contains(style, "color:transparent") || strings.Contains(style, "color: transparent") {
		hiddenByStyle = true
	}
	if op := extractOpacity(style); op >= 0 && op <= 0.01 {
		hiddenByStyle = true
	}
	if hiddenByStyle {
		add(6, "hidden via inline style")
	}

	if w, h, ok := extractPixelBox(style); ok && w <= 1 && h <= 1 {
		add(8, "1x1 pixel box")
	}
	if tiny := extractTinyFont(style); tiny {
		add(4, "tiny font/line-height")
	}

	if isOffscreenNotSR(style, a) {
		add(2, "off-screen and not screen-reader-only")
	}

	if strings.TrimSpace(a.Text()) == "" {
		add(1, "empty anchor text")
	}
}

var opacityRe = regexp.MustCompile(`opacity\s*:\s*([0-9.]+)`)

func extractOpacity(style string) float64 {
	m := opacityRe.FindStringSubmatch(style)
	if m == nil {
		return -1
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return -1
	}
	return v
}

var widthRe = regexp.MustCompile(`width\s*:\s*([0-9.]+)px`)
var heightRe = regexp.MustCompile(`height\s*:\s*([0-9.]+)px`)

func extractPixelBox(style string) (w, h float64, ok bool) {
	wm := widthRe.FindStringSubmatch(style)
	hm := heightRe.FindStringSubmatch(style)
	if wm == nil || hm == nil {
		return 0, 0, false
	}
	w, werr := strconv.ParseFloat(wm[1], 64)
	h, herr := strconv.ParseFloat(hm[1], 64)
	if werr != nil || herr != nil {
		return 0, 0, false
	}
	return w, h, true
}

var fontSizeRe = regexp.MustCompile(`font-size\s*:\s*([0-9.]+)px`)
var lineHeightRe = regexp.MustCompile(`line-height\s*:\s*([0-9.]+)px`)

func extractTinyFont(style string) bool {
	if m := fontSizeRe.FindStringSubmatch(style); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v <= 2 {
			return true
		}
	}
	if m := lineHeightRe.FindStringSubmatch(style); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v <= 2 {
			return true
		}
	}
	return false
}

var positionOffscreenRe = regexp.MustCompile(`(left|top)\s*:\s*-[0-9]{3,}px`)

func isOffscreenNotSR(style string, a *goquery.Selection) bool {
	if !positionOffscreenRe.MatchString(style) {
		return false
	}
	class := strings.ToLower(a.AttrOr("class", ""))
	return !strings.Contains(class, "sr-only") && !strings.Contains(class, "visually-hidden") && !strings.Contains(class, "screen-reader")
}

func scoreURLShape(resolvedURL, href string, add func(int, string)) {
	target := resolvedURL
	if target == "" {
		target = href
	}
	lower := strings.ToLower(target)

	if strings.Contains(lower, "wp-admin") || strings.Contains(lower, "wp-login.php") {
		add(10, "explicit admin path")
	}
	if logoutRe.MatchString(lower) {
		add(6, "logout pattern")
	}
	if suspiciousVerbRe.MatchString(lower) {
		add(3, "suspicious verb in path")
	}

	if qIdx := strings.IndexByte(target, '?'); qIdx >= 0 {
		query := target[qIdx+1:]
		if len(query) >= 512 {
			add(3, "very long query string")
		}
		if repeatedParams(query) {
			add(3, "repeated query parameters")
		}
	}

	if weirdSubdomain(target) {
		add(2, "weird subdomain")
	}
}

func repeatedParams(query string) bool {
	pairs := strings.Split(query, "&")
	if len(pairs) >= 20 {
		return true
	}
	counts := make(map[string]int)
	for _, p := range pairs {
		name := p
		if i := strings.IndexByte(p, '='); i >= 0 {
			name = p[:i]
		}
		counts[name]++
		if counts[name] >= 4 {
			return true
		}
	}
	return false
}

func weirdSubdomain(rawURL string) bool {
	host := extractHost(rawURL)
	if host == "" {
		return false
	}
	labels := strings.Split(host, ".")
	if len(labels) >= 5 {
		return true
	}
	if len(labels) > 0 && numericLeftmostRe.MatchString(labels[0]) {
		return true
	}
	return false
}

func extractHost(rawURL string) string {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		rest = rest[i+1:]
	}
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

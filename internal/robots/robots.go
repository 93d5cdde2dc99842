// Package robots implements spec.md §4.4's robots.txt fetch+parse+allow
// policy: one fetch per origin, wildcard/$ path matching, Allow-always-wins
// precedence.
//
// Grounded on the retrieval pack's hyperifyio-goresearch robots_test.go
// (fetch-once-per-origin, Clock-driven expiry idiom) generalized to the
// spec's exact group-union and wildcard semantics; gobwas/glob compiles the
// `*`/`$` patterns and kennygrant/sanitize produces safe on-disk cache keys
// for the owning SiteProfile cache.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/kennygrant/sanitize"

	"ultrareader/internal/clock"
)

// fetchUserAgent is deliberately a browser-like string, not an identifiable
// crawler token, per spec.md §4.4.
const fetchUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Rule is a single compiled Allow/Disallow directive.
type Rule struct {
	Allow   bool
	Raw     string
	pattern glob.Glob
}

// Rules is the parsed robots.txt for one origin, or nil ("no rules": allow
// everything), matching spec.md's `isUrlAllowed(url, null) = true`.
type Rules struct {
	rules        []Rule
	CrawlDelayMs *int64
	fetchedAt    time.Time
}

// Policy fetches and caches robots.txt per origin.
type Policy struct {
	mu        sync.Mutex
	cache     map[string]*Rules
	agent     string
	client    *http.Client
	clock     clock.Clock
	ttl       time.Duration
}

// Option customizes a Policy at construction.
type Option func(*Policy)

func WithClock(c clock.Clock) Option        { return func(p *Policy) { p.clock = c } }
func WithHTTPClient(c *http.Client) Option   { return func(p *Policy) { p.client = c } }
func WithCacheTTL(d time.Duration) Option    { return func(p *Policy) { p.ttl = d } }

// New builds a Policy. agent is the configured crawler agent name matched
// against robots.txt `User-agent:` groups (case-insensitively); the fetch
// itself always uses fetchUserAgent, never agent.
func New(agent string, opts ...Option) *Policy {
	p := &Policy{
		cache:  make(map[string]*Rules),
		agent:  strings.ToLower(agent),
		client: &http.Client{Timeout: 10 * time.Second},
		clock:  clock.Default,
		ttl:    24 * time.Hour,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Get returns the cached or freshly-fetched Rules for rawURL's origin. A
// fetch failure or non-2xx response yields an empty, cached Rules with a nil
// error, which allows every path just like a nil Rules.
func (p *Policy) Get(ctx context.Context, rawURL string) (*Rules, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("robots: invalid url: %w", err)
	}
	origin := u.Scheme + "://" + u.Host

	p.mu.Lock()
	if r, ok := p.cache[origin]; ok && p.clock.Now().Sub(r.fetchedAt) <= p.ttl {
		p.mu.Unlock()
		return r, nil
	}
	p.mu.Unlock()

	rules := p.fetch(ctx, origin)
	p.mu.Lock()
	p.cache[origin] = rules
	p.mu.Unlock()
	return rules, nil
}

func (p *Policy) fetch(ctx context.Context, origin string) *Rules {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return emptyRules(p.clock.Now())
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return emptyRules(p.clock.Now())
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return emptyRules(p.clock.Now())
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return emptyRules(p.clock.Now())
	}
	return parse(string(body), p.agent, p.clock.Now())
}

func emptyRules(now time.Time) *Rules { return &Rules{fetchedAt: now} }

// parse implements spec.md §4.4's group-union parse loop: the effective
// rule set for agent is the union of the `*` group and any group whose name
// matches agent (case-insensitive).
func parse(body, agent string, now time.Time) *Rules {
	lines := strings.Split(body, "\n")

	type group struct {
		agents []string
		rules  []Rule
		delay  *int64
	}
	var groups []*group
	var current *group

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		field := strings.ToLower(strings.TrimSpace(line[:colon]))
		value := strings.TrimSpace(line[colon+1:])

		switch field {
		case "user-agent":
			if current == nil || len(current.rules) > 0 || current.delay != nil {
				g := &group{}
				groups = append(groups, g)
				current = g
			}
			current.agents = append(current.agents, strings.ToLower(value))
		case "disallow":
			if current == nil || value == "" {
				continue // empty Disallow is ignored
			}
			current.rules = append(current.rules, Rule{Allow: false, Raw: value, pattern: compile(value)})
		case "allow":
			if current == nil || value == "" {
				continue
			}
			current.rules = append(current.rules, Rule{Allow: true, Raw: value, pattern: compile(value)})
		case "crawl-delay":
			if current == nil {
				continue
			}
			if secs, err := strconv.ParseFloat(value, 64); err == nil {
				ms := int64(secs * 1000)
				current.delay = &ms
			}
		}
	}

	var effective []Rule
	var crawlDelay *int64
	for _, g := range groups {
		matches := false
		for _, a := range g.agents {
			if a == "*" || a == agent {
				matches = true
				break
			}
		}
		if !matches {
			continue
		}
		effective = append(effective, g.rules...)
		if g.delay != nil {
			crawlDelay = g.delay
		}
	}

	return &Rules{rules: effective, CrawlDelayMs: crawlDelay, fetchedAt: now}
}

// compile turns a robots.txt path pattern into a glob: `*` → wildcard, a
// trailing `$` → end-anchor (no further characters permitted).
func compile(pattern string) glob.Glob {
	anchored := strings.HasSuffix(pattern, "$")
	p := strings.TrimSuffix(pattern, "$")
	if !anchored {
		p += "*"
	}
	g, err := glob.Compile(p)
	if err != nil {
		// Unparseable pattern: never match, rather than falsely block.
		g, _ = glob.Compile("\x00unmatchable\x00")
	}
	return g
}

// IsPathAllowed applies spec.md §4.4's precedence: any matching Allow rule
// wins over any matching Disallow rule, regardless of pattern length.
func (r *Rules) IsPathAllowed(rawPath string) bool {
	if r == nil {
		return true
	}
	path := rawPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	allowed := true
	matchedDisallow := false
	matchedAllow := false
	for _, rule := range r.rules {
		if rule.pattern == nil || !rule.pattern.Match(path) {
			continue
		}
		if rule.Allow {
			matchedAllow = true
		} else {
			matchedDisallow = true
		}
	}
	if matchedAllow {
		return true
	}
	if matchedDisallow {
		allowed = false
	}
	return allowed
}

// IsURLAllowed is the full-URL convenience form; a nil Rules always allows,
// satisfying spec.md's `isUrlAllowed(url, null) = true`.
func IsURLAllowed(r *Rules, rawURL string) bool {
	if r == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return r.IsPathAllowed(path)
}

// CacheKey produces a filesystem-safe cache key for a domain, shared with
// the SiteProfile disk cache.
func CacheKey(domain string) string {
	return sanitize.BaseName(domain)
}

// Package useragent implements the UA Rotator: a pool of user-agent strings
// selectable by weighted/round-robin/random/per-domain strategy, with
// per-domain stickiness and client-hint synthesis.
//
// Grounded on the teacher's weighted-selection + injectable-RNG idiom
// (colly.LimitRule random jitter, ratelimit.Clock-for-tests) and its bounded
// LRU idiom, here backed by golang/groupcache/lru for the sticky-domain map.
package useragent

import (
	"math/rand"
	"net/url"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
)

// Strategy selects how Get() picks a UA.
type Strategy string

const (
	Weighted    Strategy = "weighted"
	Random      Strategy = "random"
	RoundRobin  Strategy = "round-robin"
	PerDomain   Strategy = "per-domain"
)

// Family identifies a UA's browser family.
type Family string

const (
	FamilyChrome  Family = "chrome"
	FamilyEdge    Family = "edge"
	FamilyFirefox Family = "firefox"
	FamilySafari  Family = "safari"
	FamilyUnknown Family = "unknown"
)

type weightedUA struct {
	ua     string
	weight int
}

// Default pool: browser-family cumulative weights sum to 100.
var defaultPool = []weightedUA{
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36", 40},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36", 18},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Edg/124.0.0.0 Safari/537.36", 12},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15", 11},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0", 8},
	{"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36", 4},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0", 4},
	{"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0", 3},
}

const stickyCapacity = 5000

// Options configures a Rotator. Sticky defaults to true; set StickyDisabled
// to true (or call DisableSticky) to turn it off.
type Options struct {
	Strategy       Strategy
	Pool           []string // when set, replaces defaultPool for every strategy, each UA weighted 1
	StickyDisabled bool
	Rand           *rand.Rand
}

// Rotator hands out user-agent strings per the configured strategy.
type Rotator struct {
	mu       sync.Mutex
	strategy Strategy
	pool     []weightedUA
	total    int
	sticky   bool
	stickyM  *lru.Cache
	rrIndex  int
	rng      *rand.Rand
}

// New builds a Rotator. Sticky defaults to true.
func New(opts Options) *Rotator {
	pool := defaultPool
	if len(opts.Pool) > 0 {
		pool = make([]weightedUA, len(opts.Pool))
		for i, ua := range opts.Pool {
			pool[i] = weightedUA{ua: ua, weight: 1}
		}
	}
	total := 0
	for _, w := range pool {
		total += w.weight
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = Weighted
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	r := &Rotator{
		strategy: strategy,
		pool:     pool,
		total:    total,
		sticky:   !opts.StickyDisabled,
		stickyM:  lru.New(stickyCapacity),
		rng:      rng,
	}
	return r
}

// DisableSticky turns off per-domain stickiness.
func (r *Rotator) DisableSticky() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sticky = false
}

// Get returns a UA string for the given URL (optional).
func (r *Rotator) Get(rawURL string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	host := hostOf(rawURL)

	if r.sticky && host != "" && (r.strategy == Weighted || r.strategy == PerDomain) {
		if v, ok := r.stickyM.Get(host); ok {
			return v.(string)
		}
	}

	var ua string
	switch r.strategy {
	case RoundRobin:
		ua = r.pool[r.rrIndex%len(r.pool)].ua
		r.rrIndex++
	case Random:
		ua = r.pool[r.rng.Intn(len(r.pool))].ua
	case PerDomain, Weighted:
		fallthrough
	default:
		ua = r.weightedPick()
	}

	if r.sticky && host != "" && (r.strategy == Weighted || r.strategy == PerDomain) {
		r.stickyM.Add(host, ua)
	}
	return ua
}

func (r *Rotator) weightedPick() string {
	if r.total <= 0 {
		return r.pool[0].ua
	}
	roll := r.rng.Intn(r.total)
	cum := 0
	for _, w := range r.pool {
		cum += w.weight
		if roll < cum {
			return w.ua
		}
	}
	return r.pool[len(r.pool)-1].ua
}

// Reset clears round-robin position and sticky assignments.
func (r *Rotator) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rrIndex = 0
	r.stickyM = lru.New(stickyCapacity)
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// IdentifyFamily returns the UA's family by substring precedence
// Edg/ > Firefox/ > Safari/(no Chrome/) > Chrome/.
func IdentifyFamily(ua string) Family {
	switch {
	case strings.Contains(ua, "Edg/"):
		return FamilyEdge
	case strings.Contains(ua, "Firefox/"):
		return FamilyFirefox
	case strings.Contains(ua, "Safari/") && !strings.Contains(ua, "Chrome/"):
		return FamilySafari
	case strings.Contains(ua, "Chrome/"):
		return FamilyChrome
	default:
		return FamilyUnknown
	}
}

// GetClientHints emits Sec-CH-UA headers for Chromium-family UAs; {} otherwise.
func GetClientHints(ua string) map[string]string {
	family := IdentifyFamily(ua)
	if family != FamilyChrome && family != FamilyEdge {
		return map[string]string{}
	}
	platform := "Windows"
	switch {
	case strings.Contains(ua, "Macintosh"):
		platform = "macOS"
	case strings.Contains(ua, "Linux") || strings.Contains(ua, "X11"):
		platform = "Linux"
	}
	brand := `"Chromium";v="124", "Google Chrome";v="124", "Not:A-Brand";v="99"`
	if family == FamilyEdge {
		brand = `"Chromium";v="124", "Microsoft Edge";v="124", "Not:A-Brand";v="99"`
	}
	return map[string]string{
		"Sec-CH-UA":          brand,
		"Sec-CH-UA-Mobile":   "?0",
		"Sec-CH-UA-Platform": `"` + platform + `"`,
	}
}

// referer buckets per spec.md §4.1; cumulative upper bounds.
type refererBucket struct {
	upTo float64
	kind string
}

var refererBuckets = []refererBucket{
	{0.40, "google-search"},
	{0.55, "none"},
	{0.70, "google"},
	{0.80, "bing"},
	{0.88, "duckduckgo"},
	{0.93, "tco"},
	{0.97, "reddit"},
	{1.01, "linkedin"},
}

// GenerateReferer draws a referer using the probability table in spec.md
// §4.1. Returns "" for the direct-navigation outcome.
func (r *Rotator) GenerateReferer(rawURL string) string {
	r.mu.Lock()
	roll := r.rng.Float64()
	r.mu.Unlock()
	return generateRefererFromRoll(rawURL, roll)
}

func generateRefererFromRoll(rawURL string, roll float64) string {
	for _, b := range refererBuckets {
		if roll < b.upTo {
			switch b.kind {
			case "google-search":
				u, err := url.Parse(rawURL)
				if err != nil || u.Hostname() == "" {
					return "https://www.google.com/"
				}
				label := strings.SplitN(u.Hostname(), ".", 2)[0]
				return "https://www.google.com/search?q=" + url.QueryEscape(label)
			case "none":
				return ""
			case "google":
				return "https://www.google.com/"
			case "bing":
				return "https://www.bing.com/"
			case "duckduckgo":
				return "https://duckduckgo.com/"
			case "tco":
				return "https://t.co/"
			case "reddit":
				return "https://www.reddit.com/"
			case "linkedin":
				return "https://www.linkedin.com/"
			}
		}
	}
	return "https://www.linkedin.com/"
}

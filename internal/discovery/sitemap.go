package discovery

import (
	"bufio"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"
)

// SitemapConfig bounds a recursive sitemap crawl, per spec.md §4.13.
type SitemapConfig struct {
	MaxDepth        int
	MaxURLs         int
	SinceDate       string // inclusive lower bound on lastmod, RFC3339 date
	IncludePattern  *regexp.Regexp
	ExcludePattern  *regexp.Regexp
}

func (c SitemapConfig) withDefaults() SitemapConfig {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 3
	}
	if c.MaxURLs <= 0 {
		c.MaxURLs = 50000
	}
	return c
}

// dedupFilter is a bitset-backed probabilistic pre-filter: a hash bit clear
// means "definitely not seen"; a set bit means "maybe seen", confirmed by
// the authoritative seen map. Cuts allocation pressure on very large
// sitemaps before the map lookup.
type dedupFilter struct {
	bits *bitset.BitSet
	seen map[string]bool
}

func newDedupFilter(capacityHint uint) *dedupFilter {
	return &dedupFilter{bits: bitset.New(capacityHint * 8), seen: make(map[string]bool)}
}

func (d *dedupFilter) seenOrAdd(url string) bool {
	h := xxhash.Sum64String(url)
	idx := uint(h % uint64(d.bits.Len()))
	if !d.bits.Test(idx) {
		d.bits.Set(idx)
		d.seen[url] = true
		return false
	}
	if d.seen[url] {
		return true
	}
	d.seen[url] = true
	return false
}

// DiscoverSitemaps merges robots.txt Sitemap: lines with well-known probe
// hits, then recursively fetches and parses each, deduping URLs and
// honoring maxDepth/maxURLs/sinceDate/include/exclude.
func DiscoverSitemaps(ctx context.Context, client *http.Client, robotsSitemaps []string, wellKnownHits []string, cfg SitemapConfig) []SitemapURL {
	cfg = cfg.withDefaults()
	candidates := dedupStrings(append(append([]string{}, robotsSitemaps...), wellKnownHits...))

	filter := newDedupFilter(uint(cfg.MaxURLs))
	var out []SitemapURL

	var visit func(sitemapURL string, depth int)
	visit = func(sitemapURL string, depth int) {
		if depth > cfg.MaxDepth || len(out) >= cfg.MaxURLs {
			return
		}
		body, isIndex, entries, children, err := fetchAndParseSitemap(ctx, client, sitemapURL)
		if err != nil {
			return
		}
		_ = body
		if isIndex {
			for _, child := range children {
				if len(out) >= cfg.MaxURLs {
					return
				}
				visit(child, depth+1)
			}
			return
		}
		for _, e := range entries {
			if len(out) >= cfg.MaxURLs {
				return
			}
			if filter.seenOrAdd(e.Loc) {
				continue
			}
			if cfg.SinceDate != "" && e.LastMod != "" && e.LastMod < cfg.SinceDate {
				continue
			}
			if cfg.IncludePattern != nil && !cfg.IncludePattern.MatchString(e.Loc) {
				continue
			}
			if cfg.ExcludePattern != nil && cfg.ExcludePattern.MatchString(e.Loc) {
				continue
			}
			out = append(out, e)
		}
	}

	for _, c := range candidates {
		visit(c, 0)
	}
	return out
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// fetchAndParseSitemap fetches one sitemap URL (gunzipping when `.gz` or
// gzip content-type), then parses it as XML (urlset/sitemapindex) or, if
// XML parsing fails, as a plain-text URL list.
func fetchAndParseSitemap(ctx context.Context, client *http.Client, sitemapURL string) (body []byte, isIndex bool, entries []SitemapURL, childSitemaps []string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, false, nil, nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, false, nil, nil, err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if strings.HasSuffix(sitemapURL, ".gz") || strings.Contains(resp.Header.Get("Content-Type"), "gzip") {
		gz, gerr := gzip.NewReader(resp.Body)
		if gerr == nil {
			defer gz.Close()
			reader = gz
		}
	}

	raw, err := io.ReadAll(io.LimitReader(reader, 64<<20))
	if err != nil {
		return nil, false, nil, nil, err
	}

	doc, xerr := xmlquery.Parse(strings.NewReader(string(raw)))
	if xerr == nil && doc != nil {
		if idx := xmlquery.FindOne(doc, "//sitemapindex"); idx != nil {
			for _, loc := range xmlquery.Find(doc, "//sitemapindex/sitemap/loc") {
				childSitemaps = append(childSitemaps, strings.TrimSpace(loc.InnerText()))
			}
			return raw, true, nil, childSitemaps, nil
		}
		if urlset := xmlquery.FindOne(doc, "//urlset"); urlset != nil {
			for _, u := range xmlquery.Find(doc, "//urlset/url") {
				entry := SitemapURL{}
				if loc := xmlquery.FindOne(u, "loc"); loc != nil {
					entry.Loc = strings.TrimSpace(loc.InnerText())
				}
				if lastmod := xmlquery.FindOne(u, "lastmod"); lastmod != nil {
					entry.LastMod = strings.TrimSpace(lastmod.InnerText())
				}
				if freq := xmlquery.FindOne(u, "changefreq"); freq != nil {
					entry.ChangeFreq = strings.TrimSpace(freq.InnerText())
				}
				if pr := xmlquery.FindOne(u, "priority"); pr != nil {
					if f, perr := strconv.ParseFloat(strings.TrimSpace(pr.InnerText()), 64); perr == nil {
						entry.Priority = f
					}
				}
				if entry.Loc != "" {
					entries = append(entries, entry)
				}
			}
			return raw, false, entries, nil, nil
		}
	}

	// Plain-text fallback: one URL per line.
	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, SitemapURL{Loc: line})
	}
	return raw, false, entries, nil, nil
}

var sitemapDirectiveRe = regexp.MustCompile(`(?im)^sitemap:\s*(\S+)$`)

// ExtractRobotsSitemaps pulls `Sitemap:` lines out of raw robots.txt body.
func ExtractRobotsSitemaps(robotsBody string) []string {
	var out []string
	for _, m := range sitemapDirectiveRe.FindAllStringSubmatch(robotsBody, -1) {
		out = append(out, m[1])
	}
	return out
}

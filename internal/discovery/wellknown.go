package discovery

import (
	"context"
	"net/http"
	"sync"
)

// WellKnownPath is one probed path with its declared category.
type WellKnownPath struct {
	Path     string
	Category Category
}

// DefaultWellKnownPaths matches spec.md §4.13's probe families.
var DefaultWellKnownPaths = []WellKnownPath{
	{Path: "/sitemap.xml", Category: CategorySitemap},
	{Path: "/sitemap_index.xml", Category: CategorySitemap},
	{Path: "/openapi.json", Category: CategoryOpenAPI},
	{Path: "/openapi.yaml", Category: CategoryOpenAPI},
	{Path: "/swagger.json", Category: CategoryOpenAPI},
	{Path: "/api-docs", Category: CategoryOpenAPI},
	{Path: "/graphql", Category: CategoryGraphQL},
	{Path: "/api/graphql", Category: CategoryGraphQL},
	{Path: "/rss.xml", Category: CategoryFeed},
	{Path: "/feed.xml", Category: CategoryFeed},
	{Path: "/atom.xml", Category: CategoryFeed},
	{Path: "/robots.txt", Category: CategoryService},
	{Path: "/.well-known/security.txt", Category: CategoryService},
}

var foundStatuses = map[int]bool{
	401: true, 403: true, 405: true, 429: true,
}

func isFoundStatus(code int) bool {
	if code >= 200 && code < 300 {
		return true
	}
	return foundStatuses[code]
}

// ProbeWellKnown probes each path under baseURL with bounded concurrency
// (default 4): HEAD, falling back to a ranged GET on 400/405/0 (network
// error).
func ProbeWellKnown(ctx context.Context, client *http.Client, baseURL string, paths []WellKnownPath, concurrency int) []WellKnownResult {
	if concurrency <= 0 {
		concurrency = 4
	}
	sem := make(chan struct{}, concurrency)
	results := make([]WellKnownResult, len(paths))
	var wg sync.WaitGroup

	for i, p := range paths {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, p WellKnownPath) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = probeOne(ctx, client, baseURL, p)
		}(i, p)
	}
	wg.Wait()
	return results
}

func probeOne(ctx context.Context, client *http.Client, baseURL string, p WellKnownPath) WellKnownResult {
	url := baseURL + p.Path
	status := probeHEAD(ctx, client, url)
	if status == 0 || status == 400 || status == 405 {
		status = probeRangedGET(ctx, client, url)
	}
	return WellKnownResult{
		Path:       p.Path,
		Category:   p.Category,
		Found:      isFoundStatus(status),
		StatusCode: status,
		URL:        url,
	}
}

func probeHEAD(ctx context.Context, client *http.Client, url string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func probeRangedGET(ctx context.Context, client *http.Client, url string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0
	}
	req.Header.Set("Range", "bytes=0-2047")
	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

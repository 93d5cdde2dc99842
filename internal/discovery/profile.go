package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"time"
)

// ProfileEndpoints performs a HEAD then a typed GET/POST on each selected
// endpoint, scoring scrapability 0-100 from status/contentType/auth/
// rate-limit signals.
func ProfileEndpoints(ctx context.Context, client *http.Client, baseURL string, endpoints []Endpoint) []EndpointProfile {
	var out []EndpointProfile
	for _, ep := range endpoints {
		url := baseURL + ep.Path
		status, contentType := headThenGet(ctx, client, url, ep.Method)

		requiresAuth := status == 401 || status == 403
		rateLimited := status == 429

		out = append(out, EndpointProfile{
			Method:            ep.Method,
			Path:              ep.Path,
			StatusCode:        status,
			ContentType:       contentType,
			RequiresAuth:      requiresAuth,
			RateLimited:       rateLimited,
			ScrapabilityScore: scrapabilityScore(status, contentType, requiresAuth, rateLimited),
		})
	}
	return out
}

func headThenGet(ctx context.Context, client *http.Client, url, method string) (int, string) {
	headStatus := probeHEAD(ctx, client, url)
	req, err := http.NewRequestWithContext(ctx, httpMethodOrGet(method), url, nil)
	if err != nil {
		return headStatus, ""
	}
	resp, err := client.Do(req)
	if err != nil {
		return headStatus, ""
	}
	defer resp.Body.Close()
	return resp.StatusCode, resp.Header.Get("Content-Type")
}

func httpMethodOrGet(m string) string {
	switch m {
	case http.MethodGet, http.MethodPost:
		return m
	default:
		return http.MethodGet
	}
}

func scrapabilityScore(status int, contentType string, requiresAuth, rateLimited bool) int {
	score := 50
	switch {
	case status >= 200 && status < 300:
		score += 30
	case status == 401 || status == 403:
		score -= 20
	case status == 429:
		score -= 30
	case status >= 500:
		score -= 25
	}
	if contentType == "application/json" {
		score += 15
	}
	if requiresAuth {
		score -= 10
	}
	if rateLimited {
		score -= 10
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Summarize implements spec.md §4.13 step 6's recommendation logic.
func Summarize(wellKnown []WellKnownResult, sitemap []SitemapURL, openapi *OpenAPIProfile, graphql *GraphQLProfile, endpoints []EndpointProfile) Summary {
	hasOpenAPI := openapi != nil && (len(openapi.PublicEndpoints) > 0 || len(openapi.ProtectedEndpoints) > 0)
	hasGraphQL := graphql != nil && !graphql.IntrospectionOff && len(graphql.Types) > 0
	hasSitemap := len(sitemap) > 0

	avgScrapability := 0
	if len(endpoints) > 0 {
		sum := 0
		for _, e := range endpoints {
			sum += e.ScrapabilityScore
		}
		avgScrapability = sum / len(endpoints)
	}

	switch {
	case hasOpenAPI && hasGraphQL:
		return Summary{RecommendedStrategy: StrategyMixed, Reasoning: "both a documented REST API and a GraphQL schema were discovered", OverallScore: max(avgScrapability, 70)}
	case hasOpenAPI:
		return Summary{RecommendedStrategy: StrategyAPI, Reasoning: "an OpenAPI/Swagger document describes the site's endpoints", OverallScore: max(avgScrapability, 75)}
	case hasGraphQL:
		return Summary{RecommendedStrategy: StrategyGraphQL, Reasoning: "GraphQL introspection succeeded", OverallScore: max(avgScrapability, 70)}
	case hasSitemap:
		return Summary{RecommendedStrategy: StrategySitemap, Reasoning: "a sitemap enumerates the site's crawlable URLs", OverallScore: max(avgScrapability, 50)}
	default:
		return Summary{RecommendedStrategy: StrategyHTMLScraping, Reasoning: "no structured API surface found; falling back to HTML scraping", OverallScore: 30}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ComputeContentHash implements spec.md §3's contentHash definition:
// SHA-256 of the canonical JSON of the profile excluding summary,
// contentHash, and generatedAt.
func ComputeContentHash(p SiteProfile) string {
	hashable := struct {
		Domain           string
		SchemaVersion    int
		Sitemap          []SitemapURL
		OpenAPI          *OpenAPIProfile
		GraphQL          *GraphQLProfile
		DiscoveredAPIs   []string
		EndpointProfiles []EndpointProfile
		Feeds            []string
		WellKnownResults []WellKnownResult
	}{
		Domain:           p.Domain,
		SchemaVersion:    p.SchemaVersion,
		Sitemap:          p.Sitemap,
		OpenAPI:          p.OpenAPI,
		GraphQL:          p.GraphQL,
		DiscoveredAPIs:   p.DiscoveredAPIs,
		EndpointProfiles: p.EndpointProfiles,
		Feeds:            p.Feeds,
		WellKnownResults: p.WellKnownResults,
	}
	b, _ := json.Marshal(hashable) // struct field order is the canonical form
	sum := sha256.Sum256(b)
	return hex(sum[:])
}

const hexDigits = "0123456789abcdef"

func hex(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}

// NewSiteProfile assembles a SiteProfile and stamps its ContentHash and
// GeneratedAt. generatedAt is passed in rather than read from time.Now()
// so callers stay testable under an injected clock.
func NewSiteProfile(domain string, generatedAt time.Time, sitemap []SitemapURL, openapi *OpenAPIProfile, graphql *GraphQLProfile, discoveredAPIs []string, endpoints []EndpointProfile, feeds []string, wellKnown []WellKnownResult) SiteProfile {
	p := SiteProfile{
		Domain:           domain,
		GeneratedAt:      generatedAt,
		SchemaVersion:    1,
		Sitemap:          sitemap,
		OpenAPI:          openapi,
		GraphQL:          graphql,
		DiscoveredAPIs:   discoveredAPIs,
		EndpointProfiles: endpoints,
		Feeds:            feeds,
		WellKnownResults: wellKnown,
	}
	p.Summary = Summarize(wellKnown, sitemap, openapi, graphql, endpoints)
	p.ContentHash = ComputeContentHash(p)
	return p
}

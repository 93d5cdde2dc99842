// Package discovery implements the Discovery Profiler of spec.md §4.13:
// well-known-path probing, sitemap crawling, OpenAPI/GraphQL introspection,
// endpoint scrapability scoring, and the resulting cache-hashable
// SiteProfile.
//
// Grounded on the teacher's engine/business/crawler probing/scoring style,
// generalized from "crawl and score pages" to "probe and score API
// surfaces". Uses getkin/kin-openapi for OpenAPI parsing, antchfx/xmlquery
// for sitemap XML, bits-and-blooms/bitset + cespare/xxhash/v2 for a
// large-URL-set dedup pre-filter, and gopkg.in/yaml.v3 for YAML OpenAPI
// documents.
package discovery

import "time"

// Category names a well-known-path probe family.
type Category string

const (
	CategorySitemap Category = "sitemap"
	CategoryOpenAPI Category = "openapi"
	CategoryGraphQL Category = "graphql"
	CategoryFeed    Category = "feed"
	CategoryService Category = "service"
)

// WellKnownResult is one probed well-known path's outcome.
type WellKnownResult struct {
	Path       string
	Category   Category
	Found      bool
	StatusCode int
	URL        string
}

// SitemapURL is one entry discovered in a sitemap.
type SitemapURL struct {
	Loc        string
	LastMod    string
	ChangeFreq string
	Priority   float64
}

// Endpoint is one OpenAPI-described operation.
type Endpoint struct {
	Method      string
	Path        string
	Parameters  []Parameter
	RequestBody bool
	Responses   []string
	Security    []string
	Public      bool // security == []
}

// Parameter is one OpenAPI operation parameter.
type Parameter struct {
	Name     string
	In       string // path|query|header|cookie
	Required bool
}

// OpenAPIProfile is the normalized result of parsing one OpenAPI/Swagger
// document.
type OpenAPIProfile struct {
	SourceURL          string
	Servers             []string
	PublicEndpoints     []Endpoint
	ProtectedEndpoints  []Endpoint
}

// GraphQLField is one field on a GraphQL type, for sample-query generation.
type GraphQLField struct {
	Name   string
	Type   string
	Fields []GraphQLField
}

// GraphQLProfile is the result of introspecting a GraphQL endpoint.
type GraphQLProfile struct {
	Endpoint         string
	IntrospectionOff bool
	Types            []string
	SampleQueries    []string
}

// EndpointProfile is an optionally-probed endpoint's scrapability.
type EndpointProfile struct {
	Method            string
	Path              string
	StatusCode        int
	ContentType       string
	RequiresAuth      bool
	RateLimited       bool
	ScrapabilityScore int
}

// Strategy is the Discovery Profiler's recommended acquisition approach.
type Strategy string

const (
	StrategyAPI          Strategy = "api"
	StrategySitemap      Strategy = "sitemap"
	StrategyGraphQL      Strategy = "graphql"
	StrategyHTMLScraping Strategy = "html-scraping"
	StrategyMixed        Strategy = "mixed"
)

// Summary is the profiler's top-level recommendation.
type Summary struct {
	RecommendedStrategy Strategy
	Reasoning           string
	OverallScore        int
}

// SiteProfile is the full, cache-hashable output of one domain profile run.
type SiteProfile struct {
	Domain           string
	GeneratedAt      time.Time
	SchemaVersion    int
	ContentHash      string
	Sitemap          []SitemapURL
	OpenAPI          *OpenAPIProfile
	GraphQL          *GraphQLProfile
	DiscoveredAPIs   []string
	EndpointProfiles []EndpointProfile
	Feeds            []string
	WellKnownResults []WellKnownResult
	Summary          Summary
}

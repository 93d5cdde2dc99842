package discovery

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"ultrareader/internal/models"
)

// APICall is one observed request/response pair fed in by a browser
// engine's network interceptor, decoupled from any particular browser
// adapter's event shape.
type APICall struct {
	Method      string
	URL         string
	StatusCode  int
	RequestBody []byte
	ResponseBody []byte
	Headers     map[string]string
}

var (
	uuidRe = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	hexRe  = regexp.MustCompile(`(?i)^[0-9a-f]{24,}$`)
	digitsRe = regexp.MustCompile(`^[0-9]+$`)
)

// defaultBlocklist skips analytics/CDN domains the spec explicitly excludes
// from API discovery.
var defaultBlocklist = []string{
	"google-analytics.com", "googletagmanager.com", "doubleclick.net",
	"cloudflare.com", "cloudflareinsights.com", "sentry.io", "segment.io",
	"fonts.googleapis.com", "fonts.gstatic.com",
}

const (
	maxRequestBodyBytes  = 64 << 10
	maxResponseBodyBytes = 256 << 10
)

// TemplatePath replaces numeric, UUID, and long-hex path segments with
// `:id`, `:uuid`, `:hex` placeholders.
func TemplatePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		switch {
		case seg == "":
			continue
		case uuidRe.MatchString(seg):
			segments[i] = ":uuid"
		case hexRe.MatchString(seg):
			segments[i] = ":hex"
		case digitsRe.MatchString(seg):
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

func isBlocklisted(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, b := range defaultBlocklist {
		if host == b || strings.HasSuffix(host, "."+b) {
			return true
		}
	}
	return false
}

var paginationFieldNames = []string{"next", "nextpage", "nextcursor", "cursor", "page", "offset", "hasmore", "total"}

// GroupAPIPatterns implements spec.md §4.13's API interceptor summary:
// groups calls by (method, templated path), infers query-parameter
// presence (likelyRequired >=90%), common headers (>=80% prevalence), a
// naive response-schema hint, and pagination field detection.
func GroupAPIPatterns(calls []APICall) []models.ApiPattern {
	type bucket struct {
		method        string
		path          string
		count         int
		queryPresence map[string]int
		headerPresence map[string]int
		hasPagination bool
		schemaHint    map[string]string
	}
	order := make([]string, 0)
	buckets := make(map[string]*bucket)

	for _, c := range calls {
		if isBlocklisted(c.URL) {
			continue
		}
		u, err := url.Parse(c.URL)
		if err != nil {
			continue
		}
		templated := TemplatePath(u.Path)
		key := c.Method + " " + templated
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				method:         c.Method,
				path:           templated,
				queryPresence:  map[string]int{},
				headerPresence: map[string]int{},
				schemaHint:     map[string]string{},
			}
			buckets[key] = b
			order = append(order, key)
		}
		b.count++

		for param := range u.Query() {
			b.queryPresence[param]++
		}
		for h := range c.Headers {
			if len(c.RequestBody) <= maxRequestBodyBytes {
				b.headerPresence[strings.ToLower(h)]++
			}
		}

		respBody := c.ResponseBody
		if len(respBody) > maxResponseBodyBytes {
			respBody = respBody[:maxResponseBodyBytes]
		}
		var generic map[string]any
		if json.Unmarshal(respBody, &generic) == nil {
			for field, v := range generic {
				b.schemaHint[field] = jsonTypeName(v)
				if paginationField(field) {
					b.hasPagination = true
				}
			}
		}
	}

	out := make([]models.ApiPattern, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		likelyRequired := []string{}
		for param, n := range b.queryPresence {
			if float64(n)/float64(b.count) >= 0.9 {
				likelyRequired = append(likelyRequired, param)
			}
		}
		var commonHeaders []string
		for h, n := range b.headerPresence {
			if float64(n)/float64(b.count) >= 0.8 {
				commonHeaders = append(commonHeaders, h)
			}
		}
		queryParams := make(map[string]float64, len(b.queryPresence))
		for p, n := range b.queryPresence {
			queryParams[p] = float64(n) / float64(b.count)
		}

		out = append(out, models.ApiPattern{
			Method:             b.method,
			TemplatedPath:      b.path,
			Count:              b.count,
			QueryParams:        queryParams,
			LikelyRequired:     likelyRequired,
			CommonHeaders:      commonHeaders,
			HasPagination:      b.hasPagination,
			ResponseSchemeHint: b.schemaHint,
		})
	}
	return out
}

func paginationField(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range paginationFieldNames {
		if lower == p {
			return true
		}
	}
	return false
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

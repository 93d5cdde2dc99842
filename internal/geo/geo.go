// Package geo resolves a plausible country/locale/timezone triple from
// proxy-URL hints, for geo-consistent header synthesis.
//
// Grounded on the teacher's small pure-function config parsers
// (engine/internal/ratelimit/normalize.go); no locale/geo library appears
// anywhere in the retrieval pack, so this stays on the standard library
// (see the `internal/geo` entry of the DESIGN.md ledger).
package geo

import (
	"net/url"
	"regexp"
	"strings"
)

// Profile is the resolved geo-locale bundle for a domain/proxy.
type Profile struct {
	CountryCode     string
	Locale          string
	TimeZone        string
	AcceptLanguages []string
}

var countryAliases = map[string]string{
	"UK": "GB",
}

type countryInfo struct {
	locale   string
	tz       string
	langs    []string
}

var countryTable = map[string]countryInfo{
	"US": {locale: "en-US", tz: "America/New_York", langs: []string{"en-US", "en;q=0.9"}},
	"GB": {locale: "en-GB", tz: "Europe/London", langs: []string{"en-GB", "en;q=0.9"}},
	"DE": {locale: "de-DE", tz: "Europe/Berlin", langs: []string{"de-DE", "de;q=0.9", "en;q=0.8"}},
	"FR": {locale: "fr-FR", tz: "Europe/Paris", langs: []string{"fr-FR", "fr;q=0.9", "en;q=0.8"}},
	"JP": {locale: "ja-JP", tz: "Asia/Tokyo", langs: []string{"ja-JP", "ja;q=0.9", "en;q=0.8"}},
	"IN": {locale: "en-IN", tz: "Asia/Kolkata", langs: []string{"en-IN", "en;q=0.9", "hi;q=0.8"}},
	"BR": {locale: "pt-BR", tz: "America/Sao_Paulo", langs: []string{"pt-BR", "pt;q=0.9", "en;q=0.8"}},
	"AU": {locale: "en-AU", tz: "Australia/Sydney", langs: []string{"en-AU", "en;q=0.9"}},
	"CA": {locale: "en-CA", tz: "America/Toronto", langs: []string{"en-CA", "en;q=0.9", "fr;q=0.7"}},
}

var hintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)country-([a-z]{2})`),
	regexp.MustCompile(`(?i)_country-([a-z]{2})`),
	regexp.MustCompile(`(?i)\bgeo=([a-z]{2})\b`),
	regexp.MustCompile(`(?i)\bcc=([a-z]{2})\b`),
}

// Resolve parses the proxy URL (if any) for a country hint and returns the
// resolved Profile. Unknown/missing hints resolve to US.
func Resolve(proxyURL string) Profile {
	code := "US"
	if proxyURL != "" {
		if found := extractCountry(proxyURL); found != "" {
			code = found
		}
	}
	code = strings.ToUpper(code)
	if alias, ok := countryAliases[code]; ok {
		code = alias
	}
	info, ok := countryTable[code]
	if !ok {
		code = "US"
		info = countryTable["US"]
	}
	return Profile{
		CountryCode:     code,
		Locale:          info.locale,
		TimeZone:        info.tz,
		AcceptLanguages: append([]string(nil), info.langs...),
	}
}

func extractCountry(proxyURL string) string {
	// Check both the raw string (covers query params and user-info that
	// url.Parse might not expose verbatim) and, if parseable, its components.
	for _, re := range hintPatterns {
		if m := re.FindStringSubmatch(proxyURL); len(m) == 2 {
			return strings.ToUpper(m[1])
		}
	}
	if u, err := url.Parse(proxyURL); err == nil {
		if v := u.Query().Get("geo"); v != "" {
			return strings.ToUpper(v)
		}
		if v := u.Query().Get("cc"); v != "" {
			return strings.ToUpper(v)
		}
	}
	return ""
}

// GeoConsistentHeaders returns the Accept-Language header derived from the
// resolved profile, picking the first (highest-weighted) language entry.
func GeoConsistentHeaders(proxyURL string) map[string]string {
	p := Resolve(proxyURL)
	if len(p.AcceptLanguages) == 0 {
		return map[string]string{}
	}
	return map[string]string{
		"Accept-Language": p.AcceptLanguages[0],
	}
}

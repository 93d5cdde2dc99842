package useragent

import (
	"math/rand"
	"testing"
)

func TestStickyPerDomain(t *testing.T) {
	r := New(Options{Strategy: Weighted, Rand: rand.New(rand.NewSource(42))})
	first := r.Get("https://example.com/a")
	for i := 0; i < 20; i++ {
		got := r.Get("https://example.com/b")
		if got != first {
			t.Fatalf("sticky rotator returned different UA on call %d: %q != %q", i, got, first)
		}
	}
	r.Reset()
	// After reset, a new draw is allowed to differ (not asserted, just no panic).
	_ = r.Get("https://example.com/c")
}

func TestIdentifyFamilyPrecedence(t *testing.T) {
	cases := map[string]Family{
		"Mozilla/5.0 Edg/124.0 Chrome/124.0 Safari/537.36": FamilyEdge,
		"Mozilla/5.0 Firefox/125.0":                         FamilyFirefox,
		"Mozilla/5.0 Safari/605.1.15 Version/17.4":          FamilySafari,
		"Mozilla/5.0 Chrome/124.0 Safari/537.36":            FamilyChrome,
		"curl/8.0":                                          FamilyUnknown,
	}
	for ua, want := range cases {
		if got := IdentifyFamily(ua); got != want {
			t.Errorf("IdentifyFamily(%q) = %v, want %v", ua, got, want)
		}
	}
}

func TestClientHintsEmptyForFirefoxAndSafari(t *testing.T) {
	if h := GetClientHints("Mozilla/5.0 Firefox/125.0"); len(h) != 0 {
		t.Errorf("expected empty client hints for Firefox, got %v", h)
	}
	if h := GetClientHints("Mozilla/5.0 Safari/605.1.15 Version/17.4"); len(h) != 0 {
		t.Errorf("expected empty client hints for Safari, got %v", h)
	}
}

func TestClientHintsPlatformForChrome(t *testing.T) {
	h := GetClientHints("Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/124.0 Safari/537.36")
	if h["Sec-CH-UA-Platform"] != `"Windows"` {
		t.Errorf("unexpected platform hint: %v", h)
	}
	if h["Sec-CH-UA-Mobile"] != "?0" {
		t.Errorf("expected non-mobile hint, got %v", h)
	}
}

func TestGenerateRefererBuckets(t *testing.T) {
	cases := []struct {
		roll float64
		want string
	}{
		{0.0, "https://www.google.com/search?q=example"},
		{0.45, ""},
		{0.60, "https://www.google.com/"},
		{0.75, "https://www.bing.com/"},
		{0.85, "https://duckduckgo.com/"},
		{0.90, "https://t.co/"},
		{0.95, "https://www.reddit.com/"},
		{0.99, "https://www.linkedin.com/"},
	}
	for _, c := range cases {
		got := generateRefererFromRoll("https://example.com/page", c.roll)
		if got != c.want {
			t.Errorf("roll %v: got %q want %q", c.roll, got, c.want)
		}
	}
}

func TestGenerateRefererFallsBackOnParseFailure(t *testing.T) {
	got := generateRefererFromRoll("://not a url", 0.0)
	if got != "https://www.google.com/" {
		t.Errorf("expected google.com fallback, got %q", got)
	}
}

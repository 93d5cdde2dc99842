package honeypot

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func anchorFromHTML(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parsing fixture html: %v", err)
	}
	sel := doc.Find("a").First()
	if sel.Length() == 0 {
		t.Fatalf("fixture html has no anchor: %s", html)
	}
	return sel
}

func TestDisabledAssessorAlwaysAllows(t *testing.T) {
	a := anchorFromHTML(t, `<a href="/wp-admin" hidden>x</a>`)
	got := Assess(Input{Href: "/wp-admin", ResolvedURL: "https://example.com/wp-admin", Anchor: a}, Options{Enabled: false})
	if got.Blocked {
		t.Fatalf("expected disabled assessor to never block")
	}
}

func TestHiddenAttributePlusAdminPathBlocks(t *testing.T) {
	a := anchorFromHTML(t, `<a href="/wp-admin" hidden>Admin</a>`)
	got := Assess(Input{Href: "/wp-admin", ResolvedURL: "https://example.com/wp-admin", Anchor: a}, Options{Enabled: true})
	if !got.Blocked {
		t.Fatalf("expected block, got score=%d reasons=%v", got.Score, got.Reasons)
	}
	if got.Score != 16 {
		t.Fatalf("expected score 6(hidden)+10(admin)=16, got %d (%v)", got.Score, got.Reasons)
	}
}

func TestOrdinaryVisibleLinkIsNotBlocked(t *testing.T) {
	a := anchorFromHTML(t, `<a href="/about">About us</a>`)
	got := Assess(Input{Href: "/about", ResolvedURL: "https://example.com/about", Anchor: a}, Options{Enabled: true})
	if got.Blocked {
		t.Fatalf("expected ordinary link to be allowed, got score=%d reasons=%v", got.Score, got.Reasons)
	}
}

func TestOnePixelBoxScores(t *testing.T) {
	a := anchorFromHTML(t, `<a href="/x" style="width:1px;height:1px">x</a>`)
	got := Assess(Input{Href: "/x", ResolvedURL: "https://example.com/x", Anchor: a}, Options{Enabled: true})
	if got.Score != 8 {
		t.Fatalf("expected score 8 for 1x1 box, got %d (%v)", got.Score, got.Reasons)
	}
}

func TestDisplayNoneScores(t *testing.T) {
	a := anchorFromHTML(t, `<a href="/x" style="display:none">x</a>`)
	got := Assess(Input{Href: "/x", ResolvedURL: "https://example.com/x", Anchor: a}, Options{Enabled: true})
	if got.Score != 6 {
		t.Fatalf("expected score 6 for display:none, got %d (%v)", got.Score, got.Reasons)
	}
}

func TestLogoutPatternScores(t *testing.T) {
	a := anchorFromHTML(t, `<a href="/logout">Log out</a>`)
	got := Assess(Input{Href: "/logout", ResolvedURL: "https://example.com/logout", Anchor: a}, Options{Enabled: true})
	if got.Score != 6 {
		t.Fatalf("expected score 6 for logout pattern, got %d (%v)", got.Score, got.Reasons)
	}
}

func TestRepeatedQueryParamsScores(t *testing.T) {
	url := "https://example.com/x?a=1&a=2&a=3&a=4"
	a := anchorFromHTML(t, `<a href="/x">x</a>`)
	got := Assess(Input{Href: "/x", ResolvedURL: url, Anchor: a}, Options{Enabled: true})
	if got.Score != 3 {
		t.Fatalf("expected score 3 for repeated params, got %d (%v)", got.Score, got.Reasons)
	}
}

func TestWeirdSubdomainScores(t *testing.T) {
	url := "https://a.b.c.d.e.example.com/x"
	a := anchorFromHTML(t, `<a href="/x">x</a>`)
	got := Assess(Input{Href: "/x", ResolvedURL: url, Anchor: a}, Options{Enabled: true})
	if got.Score != 2 {
		t.Fatalf("expected score 2 for 5+ label subdomain, got %d (%v)", got.Score, got.Reasons)
	}
}

func TestScreenReaderOnlyOffscreenDoesNotScore(t *testing.T) {
	a := anchorFromHTML(t, `<a href="/x" class="sr-only" style="position:absolute;left:-9999px">Skip to content</a>`)
	got := Assess(Input{Href: "/x", ResolvedURL: "https://example.com/x", Anchor: a}, Options{Enabled: true})
	if got.Blocked {
		t.Fatalf("expected sr-only offscreen link to not be flagged, got score=%d reasons=%v", got.Score, got.Reasons)
	}
}

func TestThresholdDefaultsToEight(t *testing.T) {
	a := anchorFromHTML(t, `<a href="/x">x</a>`)
	got := Assess(Input{Href: "/x", ResolvedURL: "https://example.com/x", Anchor: a}, Options{Enabled: true})
	if got.Threshold != 8 {
		t.Fatalf("expected default threshold 8, got %d", got.Threshold)
	}
}

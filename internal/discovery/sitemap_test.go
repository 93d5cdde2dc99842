package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const sitemapIndexXML = `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/sitemap-a.xml</loc></sitemap>
</sitemapindex>`

const sitemapLeafXML = `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/page-1</loc><lastmod>2024-01-01</lastmod><changefreq>daily</changefreq><priority>0.8</priority></url>
  <url><loc>%s/page-1</loc></url>
  <url><loc>%s/page-2</loc></url>
</urlset>`

func TestDiscoverSitemapsRecursesAndDedupes(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			w.Write([]byte(fmt.Sprintf(sitemapIndexXML, srv.URL)))
		case "/sitemap-a.xml":
			w.Write([]byte(fmt.Sprintf(sitemapLeafXML, srv.URL, srv.URL, srv.URL)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	urls := DiscoverSitemaps(context.Background(), srv.Client(), []string{srv.URL + "/sitemap.xml"}, nil, SitemapConfig{})
	if len(urls) != 2 {
		t.Fatalf("expected 2 deduped urls, got %d: %+v", len(urls), urls)
	}
}

func TestExtractRobotsSitemaps(t *testing.T) {
	body := "User-agent: *\nDisallow: /admin\nSitemap: https://example.com/sitemap.xml\nSitemap: https://example.com/sitemap2.xml\n"
	got := ExtractRobotsSitemaps(body)
	if len(got) != 2 || got[0] != "https://example.com/sitemap.xml" || got[1] != "https://example.com/sitemap2.xml" {
		t.Fatalf("unexpected sitemap extraction: %+v", got)
	}
}

func TestDedupFilterSeenOrAdd(t *testing.T) {
	f := newDedupFilter(100)
	if f.seenOrAdd("https://example.com/a") {
		t.Fatalf("first insert should not be seen")
	}
	if !f.seenOrAdd("https://example.com/a") {
		t.Fatalf("second insert should be seen")
	}
}

package discovery

import "testing"

func TestTemplatePathReplacesIdsUuidsAndHex(t *testing.T) {
	cases := map[string]string{
		"/users/42":                                     "/users/:id",
		"/users/9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d":    "/users/:uuid",
		"/files/abcdef0123456789abcdef0123456789abcdef01": "/files/:hex",
		"/users/42/orders/7":                             "/users/:id/orders/:id",
		"/search":                                        "/search",
	}
	for in, want := range cases {
		if got := TemplatePath(in); got != want {
			t.Errorf("TemplatePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGroupAPIPatternsSkipsBlocklistedDomains(t *testing.T) {
	calls := []APICall{
		{Method: "GET", URL: "https://www.google-analytics.com/collect?x=1"},
		{Method: "GET", URL: "https://api.example.com/users/1"},
	}
	patterns := GroupAPIPatterns(calls)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern after blocklist filter, got %d: %+v", len(patterns), patterns)
	}
	if patterns[0].TemplatedPath != "/users/:id" {
		t.Fatalf("unexpected templated path: %q", patterns[0].TemplatedPath)
	}
}

func TestGroupAPIPatternsInfersLikelyRequiredQueryParams(t *testing.T) {
	calls := []APICall{
		{Method: "GET", URL: "https://api.example.com/search?q=a&page=1"},
		{Method: "GET", URL: "https://api.example.com/search?q=b&page=2"},
		{Method: "GET", URL: "https://api.example.com/search?q=c"},
	}
	patterns := GroupAPIPatterns(calls)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 grouped pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.Count != 3 {
		t.Fatalf("expected count 3, got %d", p.Count)
	}
	foundQ := false
	for _, name := range p.LikelyRequired {
		if name == "q" {
			foundQ = true
		}
		if name == "page" {
			t.Fatalf("page present in only 2/3 calls, should not be likelyRequired")
		}
	}
	if !foundQ {
		t.Fatalf("expected q (present 3/3) to be likelyRequired, got %+v", p.LikelyRequired)
	}
}

func TestGroupAPIPatternsDetectsPagination(t *testing.T) {
	calls := []APICall{
		{Method: "GET", URL: "https://api.example.com/items", ResponseBody: []byte(`{"items":[],"nextCursor":"abc"}`)},
	}
	patterns := GroupAPIPatterns(calls)
	if len(patterns) != 1 || !patterns[0].HasPagination {
		t.Fatalf("expected pagination detection, got %+v", patterns)
	}
}

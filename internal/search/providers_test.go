package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/corvid-labs/websearchd/internal/model"
)

func TestSerper_Search_ParsesOrganicResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"organic":[
			{"title":"Doc A","link":"https://example.com/a","snippet":"hello"},
			{"title":"Blocked","link":"https://blocked.com/x","snippet":"nope"}
		]}`))
	}))
	defer srv.Close()

	// Serper's endpoint is hardcoded, so route through a transport that
	// rewrites the request's scheme/host to the test server.
	s := &Serper{APIKey: "k", HTTPClient: &http.Client{Transport: redirectTransport{target: srv.URL}}}

	hits, err := s.Search(context.Background(), model.PlannedQuery{Query: "q", Type: model.CategorySearch}, 10, []string{"blocked.com"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit after exclude filter, got %d: %+v", len(hits), hits)
	}
	if hits[0].URL != "https://example.com/a" {
		t.Fatalf("unexpected url: %q", hits[0].URL)
	}
}

func TestDuckDuckGoHTML_ParsesResultBlocks(t *testing.T) {
	html := `<html><body>
		<div class="result">
			<a class="result__a" href="https://example.com/one">One</a>
			<a class="result__snippet">first snippet</a>
		</div>
		<div class="result">
			<a class="result__a" href="https://blocked.com/two">Two</a>
			<a class="result__snippet">second snippet</a>
		</div>
	</body></html>`
	hits, err := parseDuckDuckGoHTML(strings.NewReader(html), model.PlannedQuery{Query: "q"}, 10, []string{"blocked.com"})
	if err != nil {
		t.Fatalf("parseDuckDuckGoHTML: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit after exclude filter, got %d: %+v", len(hits), hits)
	}
	if hits[0].URL != "https://example.com/one" {
		t.Fatalf("unexpected url: %q", hits[0].URL)
	}
}

func TestPeriodMappings(t *testing.T) {
	if got := periodToGoogleTBS(model.PeriodPastWeek); got != "qdr:w" {
		t.Fatalf("periodToGoogleTBS(PastWeek) = %q", got)
	}
	if got := periodToDuckDuckGoTimelimit(model.PeriodPastMonth); got != "m" {
		t.Fatalf("periodToDuckDuckGoTimelimit(PastMonth) = %q", got)
	}
	if got := periodToBraveFreshness(model.PeriodPastYear); got != "py" {
		t.Fatalf("periodToBraveFreshness(PastYear) = %q", got)
	}
	if got := periodToGoogleTBS(model.PeriodAny); got != "" {
		t.Fatalf("periodToGoogleTBS(Any) = %q, want empty", got)
	}
}

// redirectTransport rewrites every request's scheme/host to target, letting
// tests exercise a provider's real request-building/response-parsing code
// against a hardcoded production URL without a DI seam for the base URL.
type redirectTransport struct {
	target string
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	targetURL, err := req.URL.Parse(rt.target)
	if err != nil {
		return nil, err
	}
	req.URL.Scheme = targetURL.Scheme
	req.URL.Host = targetURL.Host
	req.Host = targetURL.Host
	return http.DefaultTransport.RoundTrip(req)
}

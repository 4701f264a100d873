package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/corvid-labs/websearchd/internal/language"
	"github.com/corvid-labs/websearchd/internal/model"
)

// titleSanitizer strips any HTML a provider's JSON response smuggles into a
// title or snippet field before it reaches the answer prompt. Search
// providers occasionally echo back query-injected markup in "highlighted"
// fields; stripping here keeps that out of the LLM context and out of any
// HTML the orchestrator might render. Grounded on BumpyClock-hermes's
// pkg/utils/security/sanitizer.go StrictPolicy use.
var titleSanitizer = bluemonday.StrictPolicy()

func sanitize(s string) string {
	return strings.TrimSpace(titleSanitizer.Sanitize(s))
}

func httpClientOrDefault(hc *http.Client) *http.Client {
	if hc != nil {
		return hc
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// periodToGoogleTBS maps spec.md's provider-agnostic Period to Google-style
// "tbs=qdr:*" time filters, used by Serper and SerpAPI.
func periodToGoogleTBS(p model.Period) string {
	switch p {
	case model.PeriodPastHour:
		return "qdr:h"
	case model.PeriodPast24h:
		return "qdr:d"
	case model.PeriodPastWeek:
		return "qdr:w"
	case model.PeriodPastMonth:
		return "qdr:m"
	case model.PeriodPastYear:
		return "qdr:y"
	default:
		return ""
	}
}

// periodToDuckDuckGoTimelimit maps Period to the single-letter "timelimit"
// codes accepted by DuckDuckGo's search endpoints, per
// original_source/src/search/engines/duckduckgo.py's single_search.
func periodToDuckDuckGoTimelimit(p model.Period) string {
	switch p {
	case model.PeriodPast24h:
		return "d"
	case model.PeriodPastWeek:
		return "w"
	case model.PeriodPastMonth:
		return "m"
	case model.PeriodPastYear:
		return "y"
	default:
		return ""
	}
}

func excluded(u string, excludeDomain []string) bool {
	for _, d := range excludeDomain {
		if d != "" && strings.Contains(u, d) {
			return true
		}
	}
	return false
}

// --- Serper ----------------------------------------------------------------

// serperCategoryPath maps an EngineCategory to its google.serper.dev
// endpoint path, per original_source/src/search/engines/serper.py's
// SEARCH_CATEGORY table.
var serperCategoryPath = map[model.EngineCategory]string{
	model.CategorySearch:   "search",
	model.CategoryImages:   "images",
	model.CategoryVideos:   "videos",
	model.CategoryPlaces:   "places",
	model.CategoryNews:     "news",
	model.CategoryShopping: "shopping",
	model.CategoryScholar:  "scholar",
}

// Serper implements Provider against google.serper.dev.
type Serper struct {
	APIKey     string
	HTTPClient *http.Client
}

func (s *Serper) Name() string { return "serper" }

func (s *Serper) Search(ctx context.Context, q model.PlannedQuery, limit int, excludeDomain []string) ([]model.SearchHit, error) {
	path, ok := serperCategoryPath[q.Type]
	if !ok {
		path = "search"
	}
	lang := language.Resolve(q.Language)

	body, _ := json.Marshal(map[string]any{
		"q":   q.Query,
		"gl":  lang.GL,
		"hl":  lang.HL,
		"num": limit,
		"tbs": periodToGoogleTBS(q.Period),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://google.serper.dev/"+path, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClientOrDefault(s.HTTPClient).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("serper: status %d", resp.StatusCode)
	}

	var sr struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
			ImageURL string `json:"imageUrl"`
		} `json:"organic"`
		News []struct {
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
			Date     string `json:"date"`
			ImageURL string `json:"imageUrl"`
		} `json:"news"`
		Videos []struct {
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
			Date     string `json:"date"`
			ImageURL string `json:"imageUrl"`
		} `json:"videos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, err
	}

	var hits []model.SearchHit
	add := func(title, link, snippet, date, image string) {
		if link == "" || excluded(link, excludeDomain) {
			return
		}
		hits = append(hits, model.SearchHit{
			Title: sanitize(title), URL: link, Snippet: sanitize(snippet),
			ImageURL: image, Date: date, Language: q.Language, Type: q.Type,
		})
	}
	switch q.Type {
	case model.CategoryNews:
		for _, r := range sr.News {
			add(r.Title, r.Link, r.Snippet, r.Date, r.ImageURL)
		}
	case model.CategoryVideos:
		for _, r := range sr.Videos {
			add(r.Title, r.Link, r.Snippet, r.Date, r.ImageURL)
		}
	default:
		for _, r := range sr.Organic {
			add(r.Title, r.Link, r.Snippet, r.Date, r.ImageURL)
		}
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// --- SerpAPI -----------------------------------------------------------------

// SerpAPI implements Provider against serpapi.com's engine=google endpoint.
// Grounded on original_source/src/search/engines/serp.py's SERP_URL
// constant. It applies no default exclude-domain list; only the caller's
// excludeDomain is filtered out.
type SerpAPI struct {
	APIKey     string
	HTTPClient *http.Client
}

func (s *SerpAPI) Name() string { return "serpapi" }

func (s *SerpAPI) Search(ctx context.Context, q model.PlannedQuery, limit int, excludeDomain []string) ([]model.SearchHit, error) {
	lang := language.Resolve(q.Language)

	u, _ := url.Parse("https://serpapi.com/search")
	qs := u.Query()
	qs.Set("engine", "google")
	qs.Set("q", q.Query)
	qs.Set("gl", lang.GL)
	qs.Set("hl", lang.HL)
	qs.Set("num", fmt.Sprintf("%d", limit))
	qs.Set("api_key", s.APIKey)
	if tbs := periodToGoogleTBS(q.Period); tbs != "" {
		qs.Set("tbs", tbs)
	}
	switch q.Type {
	case model.CategoryNews:
		qs.Set("tbm", "nws")
	case model.CategoryVideos:
		qs.Set("tbm", "vid")
	case model.CategoryShopping:
		qs.Set("tbm", "shop")
	case model.CategoryImages:
		qs.Set("tbm", "isch")
	case model.CategoryScholar:
		u.Host = "serpapi.com"
		qs.Set("engine", "google_scholar")
	}
	u.RawQuery = qs.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClientOrDefault(s.HTTPClient).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("serpapi: status %d", resp.StatusCode)
	}

	var sr struct {
		OrganicResults []struct {
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
			Date     string `json:"date"`
			Thumbnail string `json:"thumbnail"`
		} `json:"organic_results"`
		NewsResults []struct {
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
			Date     string `json:"date"`
			Thumbnail string `json:"thumbnail"`
		} `json:"news_results"`
		VideoResults []struct {
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
			Date     string `json:"date"`
			Thumbnail string `json:"thumbnail"`
		} `json:"video_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, err
	}

	var hits []model.SearchHit
	add := func(title, link, snippet, date, image string) {
		if link == "" || excluded(link, excludeDomain) {
			return
		}
		hits = append(hits, model.SearchHit{
			Title: sanitize(title), URL: link, Snippet: sanitize(snippet),
			ImageURL: image, Date: date, Language: q.Language, Type: q.Type,
		})
	}
	switch q.Type {
	case model.CategoryNews:
		for _, r := range sr.NewsResults {
			add(r.Title, r.Link, r.Snippet, r.Date, r.Thumbnail)
		}
	case model.CategoryVideos:
		for _, r := range sr.VideoResults {
			add(r.Title, r.Link, r.Snippet, r.Date, r.Thumbnail)
		}
	default:
		for _, r := range sr.OrganicResults {
			add(r.Title, r.Link, r.Snippet, r.Date, r.Thumbnail)
		}
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// --- Brave -------------------------------------------------------------------

// braveCategoryPath maps an EngineCategory to its
// api.search.brave.com/res/v1/<kind>/search path, per
// original_source/src/search/engines/brave.py's SEARCH_CATEGORY table
// (which folds Scholar/Shopping/Places back onto the web endpoint, since
// Brave has no dedicated endpoint for them).
var braveCategoryPath = map[model.EngineCategory]string{
	model.CategorySearch:   "web",
	model.CategoryImages:   "images",
	model.CategoryVideos:   "videos",
	model.CategoryNews:     "news",
	model.CategoryScholar:  "web",
	model.CategoryShopping: "web",
	model.CategoryPlaces:   "web",
}

// Brave implements Provider against api.search.brave.com.
type Brave struct {
	APIKey     string
	HTTPClient *http.Client
}

func (b *Brave) Name() string { return "brave" }

func (b *Brave) Search(ctx context.Context, q model.PlannedQuery, limit int, excludeDomain []string) ([]model.SearchHit, error) {
	kind, ok := braveCategoryPath[q.Type]
	if !ok {
		kind = "web"
	}
	lang := language.Resolve(q.Language)

	u, _ := url.Parse(fmt.Sprintf("https://api.search.brave.com/res/v1/%s/search", kind))
	qs := u.Query()
	qs.Set("q", q.Query)
	qs.Set("country", lang.GL)
	qs.Set("search_lang", lang.HL)
	qs.Set("count", fmt.Sprintf("%d", limit))
	if fr := periodToBraveFreshness(q.Period); fr != "" {
		qs.Set("freshness", fr)
	}
	u.RawQuery = qs.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Subscription-Token", b.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := httpClientOrDefault(b.HTTPClient).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("brave: status %d", resp.StatusCode)
	}

	var br struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
				Age         string `json:"age"`
			} `json:"results"`
		} `json:"web"`
		News struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
				Age         string `json:"age"`
				Thumbnail   struct {
					Src string `json:"src"`
				} `json:"thumbnail"`
			} `json:"results"`
		} `json:"news"`
		Videos struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
				Age         string `json:"age"`
				Thumbnail   struct {
					Src string `json:"src"`
				} `json:"thumbnail"`
			} `json:"results"`
		} `json:"videos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, err
	}

	var hits []model.SearchHit
	add := func(title, link, snippet, date, image string) {
		if link == "" || excluded(link, excludeDomain) {
			return
		}
		hits = append(hits, model.SearchHit{
			Title: sanitize(title), URL: link, Snippet: sanitize(snippet),
			ImageURL: image, Date: date, Language: q.Language, Type: q.Type,
		})
	}
	switch kind {
	case "news":
		for _, r := range br.News.Results {
			add(r.Title, r.URL, r.Description, r.Age, r.Thumbnail.Src)
		}
	case "videos":
		for _, r := range br.Videos.Results {
			add(r.Title, r.URL, r.Description, r.Age, r.Thumbnail.Src)
		}
	default:
		for _, r := range br.Web.Results {
			add(r.Title, r.URL, r.Description, r.Age, "")
		}
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func periodToBraveFreshness(p model.Period) string {
	switch p {
	case model.PeriodPastHour:
		return "pd"
	case model.PeriodPast24h:
		return "pd"
	case model.PeriodPastWeek:
		return "pw"
	case model.PeriodPastMonth:
		return "pm"
	case model.PeriodPastYear:
		return "py"
	default:
		return ""
	}
}

// --- DuckDuckGo --------------------------------------------------------------

// duckDuckGoCategoryPath maps an EngineCategory onto DuckDuckGo's HTML
// result endpoints, falling back to the general text endpoint for types it
// has no dedicated page for, per
// original_source/src/search/engines/duckduckgo.py's single_search
// (which routes Scholar/Shopping/Places through ddgs.text as well).
var duckDuckGoCategoryPath = map[model.EngineCategory]string{
	model.CategorySearch: "html",
	model.CategoryNews:   "news.html",
	model.CategoryVideos: "video.html",
	model.CategoryImages: "image.html",
}

// DuckDuckGo implements Provider against DuckDuckGo's unauthenticated HTML
// search endpoints — no API key is required.
type DuckDuckGo struct {
	HTTPClient *http.Client
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, q model.PlannedQuery, limit int, excludeDomain []string) ([]model.SearchHit, error) {
	path, ok := duckDuckGoCategoryPath[q.Type]
	if !ok {
		path = "html"
	}
	lang := language.Resolve(q.Language)

	u, _ := url.Parse("https://duckduckgo.com/" + path)
	qs := u.Query()
	qs.Set("q", q.Query)
	qs.Set("kl", lang.GL+"-"+lang.HL)
	if tl := periodToDuckDuckGoTimelimit(q.Period); tl != "" {
		qs.Set("df", tl)
	}
	u.RawQuery = qs.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClientOrDefault(d.HTTPClient).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("duckduckgo: status %d", resp.StatusCode)
	}

	hits, err := parseDuckDuckGoHTML(resp.Body, q, limit, excludeDomain)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

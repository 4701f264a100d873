package search

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/corvid-labs/websearchd/internal/model"
)

// parseDuckDuckGoHTML scrapes DuckDuckGo's server-rendered HTML result page,
// since its JSON API requires registration the reference implementation
// avoids by going through duckduckgo_search's HTML scraping path instead
// (original_source/src/search/engines/duckduckgo.py wraps that library's
// DDGS().text/news/videos calls; this is the Go-native equivalent of what
// DDGS does under the hood).
func parseDuckDuckGoHTML(body io.Reader, q model.PlannedQuery, limit int, excludeDomain []string) ([]model.SearchHit, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	var hits []model.SearchHit
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(hits) >= limit {
			return false
		}
		link := sel.Find("a.result__a").First()
		href, _ := link.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || excluded(href, excludeDomain) {
			return true
		}
		title := sanitize(link.Text())
		snippet := sanitize(sel.Find(".result__snippet").First().Text())
		if title == "" {
			return true
		}
		hits = append(hits, model.SearchHit{
			Title:    title,
			URL:      href,
			Snippet:  snippet,
			Language: q.Language,
			Type:     q.Type,
		})
		return true
	})
	return hits, nil
}

// Package search implements the SearchEngineClient described in spec.md
// §4.4: a Provider interface polymorphic over Serper, SerpAPI, Brave, and
// DuckDuckGo, a single-query search call, and a multiple_search fan-out that
// dedups by URL then by SimHash near-duplicate distance.
//
// Grounded on the teacher's internal/search/searxng.go for the provider
// shape (raw net/http + encoding/json, a Provider interface, a Result
// struct) and on original_source/src/search/engines/duckduckgo.py for the
// multiple_search algorithm itself (per-query result splitting against a
// shared top_k, URL-keyed dedup preserving insertion order, and SimHash
// dedup over "title + snippet" token sequences).
package search

import (
	"context"
	"strings"
	"sync"

	"github.com/corvid-labs/websearchd/internal/model"
	"github.com/corvid-labs/websearchd/internal/simhash"
)

// DefaultSimhashThreshold is multiple_search's default near-duplicate
// Hamming-distance cutoff, per spec.md §4.4.
const DefaultSimhashThreshold = 20

// Provider issues one provider-specific search call and normalizes the
// response to SearchHits.
type Provider interface {
	Name() string
	Search(ctx context.Context, q model.PlannedQuery, limit int, excludeDomain []string) ([]model.SearchHit, error)
}

// Client fans a plan of PlannedQueries out to a single Provider and merges
// the results per spec.md §4.4. A Client is shared across concurrent
// requests, so per-request knobs (use_youtube_transcript, top_k) are call
// parameters on Search/MultipleSearch rather than struct fields: spec.md §5
// allows no mutable state to cross a request's suspension points except the
// Orchestrator's own usage map and a read-mostly, copy-on-write exclude list.
type Client struct {
	Provider Provider

	// NumOutputPerQuery caps how many hits each single query call may
	// return before the multi-query split/merge step runs.
	NumOutputPerQuery int
}

// Search issues a single planned query and returns normalized hits.
// useYoutubeTranscript, when true, appends "youtube.com" to the exclude
// list for non-video query types, matching the reference's
// extract_components append-on-read behavior.
func (c *Client) Search(ctx context.Context, q model.PlannedQuery, excludeDomain []string, useYoutubeTranscript bool) ([]model.SearchHit, error) {
	limit := c.NumOutputPerQuery
	if limit <= 0 {
		limit = 20
	}
	exclude := effectiveExcludeDomain(q.Type, excludeDomain, useYoutubeTranscript)
	return c.Provider.Search(ctx, q, limit, exclude)
}

// effectiveExcludeDomain appends youtube.com to the exclude list for every
// query type except Videos itself, per spec.md §4.4: "When
// use_youtube_transcript=true, youtube.com is appended to the exclude list
// for web result types (but not the Videos endpoint itself)."
func effectiveExcludeDomain(t model.EngineCategory, excludeDomain []string, useYoutubeTranscript bool) []string {
	if !useYoutubeTranscript || t == model.CategoryVideos {
		return excludeDomain
	}
	out := make([]string, len(excludeDomain), len(excludeDomain)+1)
	copy(out, excludeDomain)
	return append(out, "youtube.com")
}

// MultipleSearch fans plan out concurrently, splits each query's results
// evenly against topK when set, merges in plan order, then dedups first by
// URL (first occurrence wins) and then by SimHash near-duplicate distance
// over "title snippet" token sequences, per spec.md §4.4.
func (c *Client) MultipleSearch(ctx context.Context, plan []model.PlannedQuery, excludeDomain []string, simhashThreshold int, topK int, useYoutubeTranscript bool) ([]model.SearchHit, error) {
	if simhashThreshold <= 0 {
		simhashThreshold = DefaultSimhashThreshold
	}
	if len(plan) == 0 {
		return nil, nil
	}

	// A single provider call failing (e.g. non-200 status) must not abort
	// the rest of the plan's queries, per spec.md §7's provider_error rule:
	// that query contributes zero hits and the pipeline continues. Using a
	// plain WaitGroup instead of errgroup.WithContext means one query's
	// cancellation never propagates to its siblings.
	perQuery := make([][]model.SearchHit, len(plan))
	var wg sync.WaitGroup
	for i, q := range plan {
		i, q := i, q
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := c.Search(ctx, q, excludeDomain, useYoutubeTranscript)
			if err != nil {
				return
			}
			perQuery[i] = hits
		}()
	}
	wg.Wait()

	splitAt := -1
	if topK > 0 && len(plan) > 0 {
		splitAt = topK / len(plan)
	}

	var merged []model.SearchHit
	for _, hits := range perQuery {
		if splitAt >= 0 && len(hits) > splitAt {
			hits = hits[:splitAt]
		}
		merged = append(merged, hits...)
	}

	return dedup(merged, simhashThreshold), nil
}

// dedup applies URL-level dedup (insertion-order preserving, first
// occurrence wins) followed by SimHash near-duplicate dedup.
func dedup(hits []model.SearchHit, simhashThreshold int) []model.SearchHit {
	seenURL := make(map[string]bool, len(hits))
	urlDeduped := make([]model.SearchHit, 0, len(hits))
	for _, h := range hits {
		key := h.URL
		if key == "" {
			urlDeduped = append(urlDeduped, h)
			continue
		}
		if seenURL[key] {
			continue
		}
		seenURL[key] = true
		urlDeduped = append(urlDeduped, h)
	}

	final := make([]model.SearchHit, 0, len(urlDeduped))
	var hashes []simhash.Fingerprint
	for _, h := range urlDeduped {
		content := strings.TrimSpace(h.Title + " " + h.Snippet)
		if content == "" {
			final = append(final, h)
			continue
		}
		fp := simhash.Of(content)
		dup := false
		for _, existing := range hashes {
			if simhash.Distance(fp, existing) <= simhashThreshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		hashes = append(hashes, fp)
		final = append(final, h)
	}
	return final
}

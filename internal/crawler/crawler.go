// Package crawler implements the Crawler described in spec.md §4.7:
// resolve one SearchHit to a CrawledDoc, preferring a DocumentStore hit,
// then a registered per-domain extractor, then a generic content-type-based
// fallback; run all hits for one request concurrently and return them in
// input order.
//
// Grounded on the teacher's internal/extract dispatch (registry lookup then
// generic fallback) generalized from a single-document fetch into a
// per-hit, concurrent, telemetry-counted crawl, and on
// original_source/src/crawl.py's multiple_crawl/crawl_one for the
// store-then-extractor-then-generic order, the per-stage time budgets, and
// the "never raise, record a diagnostic string instead" failure policy.
package crawler

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corvid-labs/websearchd/internal/extract"
	"github.com/corvid-labs/websearchd/internal/fetch"
	"github.com/corvid-labs/websearchd/internal/model"
	"github.com/corvid-labs/websearchd/internal/store"
)

var _ StreamFetcher = (*fetch.Client)(nil)

// MaxDeclaredBytes and MaxReadBytes are the generic-fetch size caps from
// spec.md §4.7 step 3: reject outright on an oversized declared
// Content-Length, and stop reading early if the body turns out larger than
// declared (or undeclared and unbounded).
const (
	MaxDeclaredBytes = 25 * 1024 * 1024
	MaxReadBytes     = 10 * 1024 * 1024
)

// StreamFetcher extends extract.Fetcher with the streaming call the
// generic-fetch path needs to enforce size caps without buffering the
// whole response first. *fetch.Client satisfies both.
type StreamFetcher interface {
	extract.Fetcher
	StreamGet(ctx context.Context, url string, fn func(contentType string, contentLength int64, body io.Reader) error) error
}

// MaxLen is the default truncation length for crawled content, per
// spec.md §4.7.
const MaxLen = 20000

// Budget durations, per spec.md §4.7. PDFBudget and HTMLBudget bound a
// registered extractor's call by content kind; GenericReadCap bounds the
// generic fallback fetch.
const (
	PDFBudget      = 1500 * time.Millisecond
	HTMLBudget     = 500 * time.Millisecond
	GenericReadCap = 800 * time.Millisecond
)

// Crawler resolves search hits to crawled documents.
type Crawler struct {
	Registry *extract.Registry
	Fetcher  StreamFetcher
	Store    store.DocumentStore
	MaxLen   int

	mu          sync.Mutex
	numContents int
}

func (c *Crawler) maxLen() int {
	if c.MaxLen > 0 {
		return c.MaxLen
	}
	return MaxLen
}

// NumContents returns the count of crawled docs with non-empty content
// observed so far, for SUMMARY-stage telemetry per spec.md §4.7.
func (c *Crawler) NumContents() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.numContents
}

func (c *Crawler) countContent(content string) {
	if content == "" {
		return
	}
	c.mu.Lock()
	c.numContents++
	c.mu.Unlock()
}

// Crawl resolves a single hit to a CrawledDoc, per spec.md §4.7's
// store → extractor → generic-fetch order. Any internal failure is
// recorded as a non-empty diagnostic Content string rather than returned
// as an error, so the caller always has a row to show.
func (c *Crawler) Crawl(ctx context.Context, hit model.SearchHit) model.CrawledDoc {
	if hit.URL == "" {
		return model.FromHit(hit, "")
	}

	if c.Store != nil {
		if doc, ok, err := c.Store.Get(ctx, hit.URL); err == nil && ok && doc.Content != "" {
			c.countContent(doc.Content)
			return doc
		}
	}

	content := c.extract(ctx, hit.URL)
	content = truncate(content, c.maxLen())
	doc := model.FromHit(hit, content)
	c.countContent(content)

	if c.Store != nil && content != "" && store.IsAdmissible(doc.URL) {
		_ = c.Store.Put(ctx, doc)
	}
	return doc
}

func (c *Crawler) extract(ctx context.Context, url string) string {
	if c.Registry != nil {
		if e, ok := c.Registry.Get(url); ok {
			budget := HTMLBudget
			if strings.Contains(strings.ToLower(url), ".pdf") || strings.Contains(strings.ToLower(url), "arxiv.org/abs/") {
				budget = PDFBudget
			}
			return c.runExtractorWithBudget(ctx, e, url, budget)
		}
	}
	return c.genericFetch(ctx, url)
}

func (c *Crawler) runExtractorWithBudget(ctx context.Context, e extract.Extractor, url string, budget time.Duration) string {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type result struct{ doc extract.Document }
	out := make(chan result, 1)
	go func() {
		defer func() { _ = recover() }()
		out <- result{doc: e.Extract(ctx, url, c.Fetcher)}
	}()

	select {
	case r := <-out:
		return r.doc.Text
	case <-ctx.Done():
		return "Processing timed out"
	}
}

// errBodyTooLarge signals the observed-bytes cap was hit mid-read.
var errBodyTooLarge = errors.New("body exceeds max read size")

// genericFetch implements spec.md §4.7 step 3: stream the response,
// enforce the declared and observed size caps, and dispatch on
// Content-Type.
func (c *Crawler) genericFetch(ctx context.Context, url string) string {
	if c.Fetcher == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, GenericReadCap)
	defer cancel()

	var body []byte
	var contentType string
	err := c.Fetcher.StreamGet(ctx, url, func(ct string, contentLength int64, r io.Reader) error {
		contentType = ct
		if contentLength > MaxDeclaredBytes {
			return errBodyTooLarge
		}
		limited := io.LimitReader(r, MaxReadBytes+1)
		data, readErr := io.ReadAll(limited)
		if readErr != nil {
			return readErr
		}
		if len(data) > MaxReadBytes {
			return errBodyTooLarge
		}
		body = data
		return nil
	})
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return "Error: response too large"
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "Processing timed out"
		}
		return "Error: " + err.Error()
	}

	lower := strings.ToLower(contentType)
	switch {
	case strings.Contains(lower, "application/pdf"):
		doc := extract.GenericPDFExtractor{}.Extract(ctx, url, staticFetcher{body: body, contentType: contentType})
		return doc.Text
	case strings.Contains(lower, "text/html"):
		doc := extract.GenericHTMLExtractor{}.Extract(ctx, url, staticFetcher{body: body, contentType: contentType})
		return doc.Text
	case strings.HasPrefix(lower, "text/"):
		return string(body)
	default:
		return ""
	}
}

// staticFetcher adapts an already-fetched body to the extract.Fetcher
// interface so the generic PDF/HTML extractors can be reused against bytes
// the Crawler already downloaded, without a second network round trip.
type staticFetcher struct {
	body        []byte
	contentType string
}

func (s staticFetcher) Get(context.Context, string) ([]byte, string, error) {
	return s.body, s.contentType, nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// MultipleCrawl runs Crawl concurrently for all hits and returns their
// CrawledDocs in the same order as hits, per spec.md §4.7.
func (c *Crawler) MultipleCrawl(ctx context.Context, hits []model.SearchHit) ([]model.CrawledDoc, error) {
	docs := make([]model.CrawledDoc, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	for i, hit := range hits {
		i, hit := i, hit
		g.Go(func() error {
			docs[i] = c.Crawl(gctx, hit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

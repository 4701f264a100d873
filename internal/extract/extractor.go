package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/dslipak/pdf"

	"github.com/corvid-labs/websearchd/internal/fetch"
)

// Fetcher is the subset of fetch.Client an Extractor needs: a GET that
// returns the response body and declared content type.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, string, error)
}

var _ Fetcher = (*fetch.Client)(nil)

// Extractor is one strategy in the registry: CanHandle decides whether this
// extractor owns a URL, Extract does the work. Per spec.md §4.2, Extract
// must never return an error to the caller that aborts the crawl — it
// returns empty text on any internal failure instead.
type Extractor interface {
	CanHandle(url string) bool
	Extract(ctx context.Context, url string, f Fetcher) Document
}

// Registry holds an ordered list of extractors and dispatches to the first
// match, falling back to nothing (caller decides the generic fallback) when
// none claim the URL.
type Registry struct {
	extractors []Extractor
}

// NewRegistry builds an empty registry. Use Register to add extractors in
// priority order — most specific first.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an extractor to the end of the dispatch chain.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Get returns the first registered extractor whose CanHandle(url) is true.
func (r *Registry) Get(url string) (Extractor, bool) {
	for _, e := range r.extractors {
		if e.CanHandle(url) {
			return e, true
		}
	}
	return nil, false
}

// HeuristicExtractor adapts the legacy single-function API to the Extractor
// interface, kept for callers that only need local HTML-bytes extraction
// without a network round trip (e.g. tests).
type HeuristicExtractor struct{}

func (HeuristicExtractor) CanHandle(string) bool { return true }

func (HeuristicExtractor) Extract(ctx context.Context, url string, f Fetcher) Document {
	body, ct, err := f.Get(ctx, url)
	if err != nil {
		return Document{}
	}
	return GenericHTMLExtractor{}.fromBody(body, ct)
}

// GenericHTMLExtractor is the spec.md §4.2 fallback for any page without a
// dedicated site extractor: strip script/style/nav/boilerplate, return
// visible text with blank lines collapsed.
type GenericHTMLExtractor struct{}

func (GenericHTMLExtractor) CanHandle(string) bool { return true }

func (e GenericHTMLExtractor) Extract(ctx context.Context, url string, f Fetcher) Document {
	body, ct, err := f.Get(ctx, url)
	if err != nil {
		return Document{}
	}
	return e.fromBody(body, ct)
}

func (GenericHTMLExtractor) fromBody(body []byte, contentType string) Document {
	charset := ""
	if idx := strings.Index(strings.ToLower(contentType), "charset="); idx >= 0 {
		charset = strings.Trim(contentType[idx+len("charset="):], `"; `)
	}
	decoded := DecodeHTML(body, charset)
	return FromHTML([]byte(decoded))
}

// GenericPDFExtractor opens the fetched bytes as a PDF and extracts text
// from the first min(10, page_count) pages, per spec.md §4.2.
type GenericPDFExtractor struct{}

func (GenericPDFExtractor) CanHandle(url string) bool {
	lower := strings.ToLower(url)
	return strings.HasSuffix(lower, ".pdf") || strings.Contains(lower, "arxiv.org/abs/")
}

func (GenericPDFExtractor) Extract(ctx context.Context, url string, f Fetcher) Document {
	fetchURL := rewriteArxivAbsToPDF(url)
	body, _, err := f.Get(ctx, fetchURL)
	if err != nil || len(body) == 0 {
		return Document{}
	}
	text, err := extractPDFText(body, 10)
	if err != nil {
		return Document{}
	}
	return Document{Text: text}
}

// rewriteArxivAbsToPDF turns an arxiv.org/abs/<id> URL into its PDF form,
// per spec.md §4.2 and the Tapestry reference's crawl._fetch_text.
func rewriteArxivAbsToPDF(url string) string {
	lower := strings.ToLower(url)
	if strings.Contains(lower, "arxiv.org/abs/") {
		idx := strings.Index(lower, "/abs/")
		return url[:idx] + "/pdf/" + url[idx+len("/abs/"):]
	}
	return url
}

func extractPDFText(data []byte, maxPages int) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	n := r.NumPage()
	if n > maxPages {
		n = maxPages
	}
	var b strings.Builder
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return normalizeWhitespace(b.String()), nil
}

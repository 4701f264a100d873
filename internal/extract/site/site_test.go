package site

import (
	"context"
	"strings"
	"testing"

	"github.com/corvid-labs/websearchd/internal/extract"
)

type staticFetcher struct {
	body []byte
}

func (f staticFetcher) Get(context.Context, string) ([]byte, string, error) {
	return f.body, "text/html", nil
}

func findHandler(extractors []extract.Extractor, url string) extract.Extractor {
	for _, e := range extractors {
		if e.CanHandle(url) {
			return e
		}
	}
	return nil
}

func TestNewsExtractors_DispatchByHost(t *testing.T) {
	extractors := NewsExtractors()
	cases := map[string]bool{
		"https://www.chosun.com/article/1": true,
		"https://www.donga.com/news/1":     true,
		"https://m.news.nate.com/view/1":   true,
		"https://example.com/unrelated":    false,
	}
	for url, wantHandled := range cases {
		handled := findHandler(extractors, url) != nil
		if handled != wantHandled {
			t.Fatalf("CanHandle(%q) = %v, want %v", url, handled, wantHandled)
		}
	}
}

func TestSelectorExtractor_TruncatesAtBoilerplateMarker(t *testing.T) {
	html := `<html><head><title>Article title</title></head><body>
		<div class="main_view">Real article body text.좋아요 Related articles: foo</div>
	</body></html>`

	donga := findHandler(NewsExtractors(), "https://www.donga.com/news/1")
	if donga == nil {
		t.Fatalf("expected a donga.com extractor to match")
	}
	doc := donga.Extract(context.Background(), "https://www.donga.com/news/1", staticFetcher{body: []byte(html)})

	if doc.Title != "Article title" {
		t.Fatalf("unexpected title: %q", doc.Title)
	}
	if strings.Contains(doc.Text, "좋아요") {
		t.Fatalf("expected text truncated at boilerplate marker, got %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "Real article body text.") {
		t.Fatalf("expected article body preserved, got %q", doc.Text)
	}
}

func TestSelectorExtractor_RewritesMobileHostBeforeFetch(t *testing.T) {
	var fetchedURL string
	recording := recordingFetcher{staticFetcher: staticFetcher{body: []byte(`<html><head><title>t</title></head><body><div class="content_view">body</div></body></html>`)}, seen: &fetchedURL}

	nate := findHandler(NewsExtractors(), "https://m.news.nate.com/view/123")
	if nate == nil {
		t.Fatalf("expected a nate.com extractor to match")
	}
	nate.Extract(context.Background(), "https://m.news.nate.com/view/123", recording)

	if strings.Contains(fetchedURL, "m.news.nate.com") {
		t.Fatalf("expected the mobile host rewritten before fetch, got %q", fetchedURL)
	}
}

type recordingFetcher struct {
	staticFetcher
	seen *string
}

func (f recordingFetcher) Get(ctx context.Context, url string) ([]byte, string, error) {
	*f.seen = url
	return f.staticFetcher.Get(ctx, url)
}

func TestBlogExtractors_NaverRewritesToMobileHostBeforeFetch(t *testing.T) {
	var fetchedURL string
	recording := recordingFetcher{staticFetcher: staticFetcher{body: []byte(`<html><body>Title
		신고하기 actual blog content 공감한 사람 보러가기
	</body></html>`)}, seen: &fetchedURL}

	naver := findHandler(BlogExtractors(), "https://blog.naver.com/someone/1")
	if naver == nil {
		t.Fatalf("expected a naver blog extractor to match")
	}
	naver.Extract(context.Background(), "https://blog.naver.com/someone/1", recording)

	if fetchedURL != "https://m.blog.naver.com/someone/1" {
		t.Fatalf("fetched URL = %q, want the m.blog.naver.com rewrite", fetchedURL)
	}
}

func TestBlogExtractors_NaverStripsChromeAroundContent(t *testing.T) {
	html := `<html><body>My Post Title
		신고하기some nav chrome here actual blog content 공감한 사람 보러가기 footer chrome
	</body></html>`

	naver := findHandler(BlogExtractors(), "https://blog.naver.com/someone/1")
	if naver == nil {
		t.Fatalf("expected a naver blog extractor to match")
	}
	doc := naver.Extract(context.Background(), "https://blog.naver.com/someone/1", staticFetcher{body: []byte(html)})
	if !strings.Contains(doc.Text, "actual blog content") {
		t.Fatalf("expected blog content preserved, got %q", doc.Text)
	}
}

func TestBlogExtractors_TistoryFindsArticleContentDiv(t *testing.T) {
	html := `<html><body>
		<h1>Tistory post</h1>
		<div class="tt_article_useless_p_margin">The actual tistory content.</div>
	</body></html>`

	tistory := findHandler(BlogExtractors(), "https://myblog.tistory.com/1")
	if tistory == nil {
		t.Fatalf("expected a tistory blog extractor to match")
	}
	doc := tistory.Extract(context.Background(), "https://myblog.tistory.com/1", staticFetcher{body: []byte(html)})
	if doc.Title != "Tistory post" {
		t.Fatalf("unexpected title: %q", doc.Title)
	}
	if !strings.Contains(doc.Text, "actual tistory content") {
		t.Fatalf("expected tistory content preserved, got %q", doc.Text)
	}
}

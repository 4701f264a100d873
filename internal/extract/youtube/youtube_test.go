package youtube

import (
	"context"
	"strings"
	"testing"
)

type scriptedFetcher struct {
	byURL map[string]string
}

func (f scriptedFetcher) Get(_ context.Context, url string) ([]byte, string, error) {
	for prefix, body := range f.byURL {
		if strings.HasPrefix(url, prefix) {
			return []byte(body), "text/html", nil
		}
	}
	return nil, "", errNotFound
}

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

var errNotFound = notFoundError("not found")

func TestCanHandle_MatchesYoutubeAndShortDomains(t *testing.T) {
	e := Extractor{}
	if !e.CanHandle("https://www.youtube.com/watch?v=dQw4w9WgXcQ") {
		t.Fatalf("expected youtube.com watch URL to be handled")
	}
	if !e.CanHandle("https://youtu.be/dQw4w9WgXcQ") {
		t.Fatalf("expected youtu.be short URL to be handled")
	}
	if e.CanHandle("https://vimeo.com/12345") {
		t.Fatalf("did not expect a non-youtube URL to be handled")
	}
}

func TestVideoID_ExtractsFromWatchAndShortURLs(t *testing.T) {
	cases := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ":                "dQw4w9WgXcQ",
		"https://example.com/no-id-here":              "",
	}
	for url, want := range cases {
		if got := VideoID(url); got != want {
			t.Fatalf("VideoID(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestExtract_PrefersManualOverAutoGeneratedTranscript(t *testing.T) {
	watchPage := `var ytInitialPlayerResponse = {"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[` +
		`{"baseUrl":"https://example.com/auto","languageCode":"en","kind":"asr"},` +
		`{"baseUrl":"https://example.com/manual","languageCode":"en"}` +
		`]}}};`
	transcriptXML := `<transcript><text start="0" dur="2">Hello world</text></transcript>`

	f := scriptedFetcher{byURL: map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": watchPage,
		"https://example.com/manual":                  transcriptXML,
	}}

	doc := Extractor{}.Extract(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ", f)

	if !strings.Contains(doc.Text, "Hello world") {
		t.Fatalf("expected the manual transcript's text, got %q", doc.Text)
	}
	if !strings.HasPrefix(doc.Text, "### Transcript") {
		t.Fatalf("expected the transcript heading, got %q", doc.Text)
	}
}

func TestExtract_NoCaptionTracks_ReturnsNoTranscriptFoundPlaceholder(t *testing.T) {
	f := scriptedFetcher{byURL: map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": "<html>no player response here</html>",
	}}

	doc := Extractor{}.Extract(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ", f)

	if !strings.Contains(doc.Text, "No transcript found.") {
		t.Fatalf("expected the no-transcript placeholder, got %q", doc.Text)
	}
}

func TestExtract_InvalidURL_ReturnsEmptyDocument(t *testing.T) {
	doc := Extractor{}.Extract(context.Background(), "https://www.youtube.com/watch?v=short", scriptedFetcher{})
	if doc.Title != "" || doc.Text != "" {
		t.Fatalf("expected an empty document for an unparsable video id, got %+v", doc)
	}
}

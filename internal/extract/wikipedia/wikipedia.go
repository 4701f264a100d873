// Package wikipedia implements the Wikipedia extractor from spec.md §4.2:
// strip editorial chrome, turn wikitable blocks into Markdown tables, then
// into plain text with reference marks and edit-section links removed.
// Grounded on the Tapestry reference's
// src/converter/medias/wiki/url2md_async.py (async_convert_to_markdown +
// remove_markdown_links).
package wikipedia

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/corvid-labs/websearchd/internal/extract"
)

// chromeSelectors are removed outright before text extraction, matching the
// reference's soup.select(...).decompose() call.
var chromeSelectors = []string{
	".mw-editsection", ".mw-empty-elt", ".noprint",
	"#mw-navigation", "#mw-panel", "#footer", "#catlinks",
	".mw-jump-link", "#mw-head",
}

var referenceMark = regexp.MustCompile(`\[\d+\]`)
var blankRuns = regexp.MustCompile(`\n{3,}`)

// Extractor handles any *.wikipedia.org article URL.
type Extractor struct{}

func (Extractor) CanHandle(url string) bool {
	return strings.Contains(strings.ToLower(url), "wikipedia.org")
}

func (Extractor) Extract(ctx context.Context, url string, f extract.Fetcher) extract.Document {
	body, _, err := f.Get(ctx, url)
	if err != nil {
		return extract.Document{}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return extract.Document{}
	}
	title := strings.TrimSpace(doc.Find("#firstHeading").First().Text())
	for _, sel := range chromeSelectors {
		doc.Find(sel).Remove()
	}
	content := doc.Find("#mw-content-text").First()
	if content.Length() == 0 {
		return extract.Document{Title: title}
	}
	content.Find("table.wikitable").Each(func(_ int, table *goquery.Selection) {
		md := tableToMarkdown(table)
		table.ReplaceWithHtml("<pre>" + md + "</pre>")
	})
	text := content.Text()
	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = referenceMark.ReplaceAllString(text, "")
	text = stripEditLinks(text)
	return extract.Document{Title: title, Text: strings.TrimSpace(text)}
}

// tableToMarkdown renders a wikitable's rows as a Markdown pipe table,
// matching the reference's pandas.DataFrame.to_markdown step without
// pulling in a DataFrame library for one conversion.
func tableToMarkdown(table *goquery.Selection) string {
	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cols []string
		tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			cols = append(cols, strings.TrimSpace(cell.Text()))
		})
		if len(cols) > 0 {
			rows = append(rows, cols)
		}
	})
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("| " + strings.Join(rows[0], " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(rows[0])) + "\n")
	for _, row := range rows[1:] {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return b.String()
}

// stripEditLinks removes leftover "[편집](...)"-style edit-section markdown
// links the plain-text walk can leave behind from nested anchors.
func stripEditLinks(s string) string {
	editLink := regexp.MustCompile(`\[(?:편집|edit)\]\([^)]*\)`)
	return editLink.ReplaceAllString(s, "")
}

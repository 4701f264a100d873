// Package extract implements the ExtractorRegistry described in spec.md
// §4.2: a first-match dispatch over per-domain extractors, backed by a
// GenericHTMLExtractor and GenericPDFExtractor fallback pair. The generic
// HTML path keeps the teacher's DOM-walk heuristic (prefer <main>/<article>,
// fall back to <body>, collapse whitespace) and decodes non-UTF-8 bodies via
// chardet, since a crawler fetching arbitrary public pages cannot assume
// either UTF-8 or a boilerplate-free <body>. Tag sanitization with
// bluemonday happens downstream in internal/search, not here.
package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Document is a simplified representation of extracted page content.
type Document struct {
	Title string
	Text  string
}

// DecodeHTML converts a raw HTML response body to UTF-8 text, sniffing the
// encoding from the declared Content-Type charset when present and falling
// back to chardet detection over the first 10KB otherwise.
func DecodeHTML(body []byte, declaredCharset string) string {
	charset := strings.ToLower(strings.TrimSpace(declaredCharset))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		if utf8.Valid(body) {
			return string(body)
		}
	}
	if charset != "" {
		if enc, err := htmlindex.Get(charset); err == nil {
			if out, _, err := transform.Bytes(enc.NewDecoder(), body); err == nil {
				return string(out)
			}
		}
	}
	sample := body
	if len(sample) > 10*1024 {
		sample = sample[:10*1024]
	}
	det := chardet.NewTextDetector()
	if res, err := det.DetectBest(sample); err == nil && res != nil && res.Charset != "" {
		if enc, err := htmlindex.Get(res.Charset); err == nil {
			if out, _, err := transform.Bytes(enc.NewDecoder(), body); err == nil {
				return string(out)
			}
		}
	}
	return string(body)
}

// FromHTML extracts readable text from HTML, preferring <main> or <article>,
// falling back to <body>. It preserves headings, paragraphs, list items,
// and pre/code blocks, while skipping obvious boilerplate like <nav> and
// <footer>, plus elements with inline display:none per spec.md §4.2.
func FromHTML(input []byte) Document {
	node, err := html.Parse(bytes.NewReader(input))
	if err != nil || node == nil {
		return Document{}
	}

	title := strings.TrimSpace(findTitle(node))
	var content *html.Node
	content = findFirst(node, "main")
	if content == nil {
		content = findFirst(node, "article")
	}
	if content == nil {
		content = findFirst(node, "body")
	}
	var b strings.Builder
	if content != nil {
		collectText(&b, content, false)
	}
	text := normalizeWhitespace(b.String())
	return Document{Title: title, Text: text}
}

func findTitle(n *html.Node) string {
	head := findFirst(n, "head")
	if head == nil {
		return ""
	}
	t := findFirst(head, "title")
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return t.FirstChild.Data
}

func findFirst(n *html.Node, tag string) *html.Node {
	var res *html.Node
	var dfs func(*html.Node)
	dfs = func(cur *html.Node) {
		if res != nil {
			return
		}
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			res = cur
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			dfs(c)
			if res != nil {
				return
			}
		}
	}
	dfs(n)
	return res
}

var boilerplateTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "nav": true,
	"header": true, "footer": true, "aside": true, "iframe": true,
}

func collectText(b *strings.Builder, n *html.Node, inPre bool) {
	if n.Type == html.ElementNode {
		if isBoilerplateContainer(n) || hasDisplayNone(n) {
			return
		}
		name := strings.ToLower(n.Data)
		if boilerplateTags[name] {
			return
		}
		switch name {
		case "pre", "code":
			inPre = true
		case "br", "hr":
			b.WriteString("\n")
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li":
			b.WriteString("\n")
		case "ul", "ol":
			b.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		data := n.Data
		if !inPre {
			data = strings.ReplaceAll(data, "\t", " ")
			data = strings.ReplaceAll(data, "\r", " ")
		}
		b.WriteString(data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, inPre)
	}

	if n.Type == html.ElementNode {
		name := strings.ToLower(n.Data)
		switch name {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6":
			b.WriteString("\n\n")
		case "li":
			b.WriteString("\n")
		case "pre", "code":
			b.WriteString("\n")
		}
	}
}

func hasDisplayNone(n *html.Node) bool {
	for _, attr := range n.Attr {
		if strings.ToLower(attr.Key) != "style" {
			continue
		}
		v := strings.ToLower(strings.ReplaceAll(attr.Val, " ", ""))
		if strings.Contains(v, "display:none") {
			return true
		}
	}
	return false
}

// isBoilerplateContainer returns true if the element looks like a
// cookie/consent banner, nav, or menu/sidebar region.
func isBoilerplateContainer(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if key != "id" && key != "class" && !strings.HasPrefix(key, "data-") && key != "aria-label" && key != "role" {
			continue
		}
		val := strings.ToLower(attr.Val)
		if containsAny(val, []string{"cookie", "consent", "gdpr", "navigation", "menu", "sidebar"}) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		collapsed := collapseSpaces(trimmed)
		out = append(out, collapsed)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}

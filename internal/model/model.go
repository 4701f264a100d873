// Package model defines the data shapes shared across the search-and-extract
// pipeline: queries in and out of the planner, search hits, crawled
// documents, and the token-usage and event types that flow to the client.
package model

import "strings"

// SearchType is the caller-facing search mode requested on a QueryRequest.
type SearchType string

const (
	SearchAuto    SearchType = "auto"
	SearchGeneral SearchType = "general"
	SearchScholar SearchType = "scholar"
	SearchNews    SearchType = "news"
	SearchYouTube SearchType = "youtube"
)

// Message is a single turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryRequest is the normalized, immutable input to one orchestration run.
type QueryRequest struct {
	Query                string     `json:"query"`
	Language             string     `json:"language"`
	SearchType           SearchType `json:"search_type"`
	Messages             []Message  `json:"messages"`
	PersonaPrompt        string     `json:"persona_prompt,omitempty"`
	CustomPrompt         string     `json:"custom_prompt,omitempty"`
	TargetNuance         string     `json:"target_nuance,omitempty"`
	ReturnProcess        bool       `json:"return_process,omitempty"`
	Stream               bool       `json:"stream,omitempty"`
	UseYouTubeTranscript bool       `json:"use_youtube_transcript,omitempty"`
	// TopK is either an int or the literal "auto"; ParseTopK resolves it.
	TopK any `json:"top_k,omitempty"`
}

// NormalizedQuery replaces newlines/tabs with spaces and trims the result,
// per the Orchestrator's INIT transition.
func (q QueryRequest) NormalizedQuery() string {
	s := strings.ReplaceAll(q.Query, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	return strings.TrimSpace(s)
}

// TrimmedHistory returns at most the last 4 history messages, in order.
func (q QueryRequest) TrimmedHistory() []Message {
	if len(q.Messages) <= 4 {
		return q.Messages
	}
	return q.Messages[len(q.Messages)-4:]
}

// ParseTopK resolves the TopK field to (value, isAuto). A missing, zero, or
// unparsable TopK is treated as auto.
func (q QueryRequest) ParseTopK() (value int, isAuto bool) {
	switch v := q.TopK.(type) {
	case nil:
		return 0, true
	case float64:
		if v <= 0 {
			return 0, true
		}
		return int(v), false
	case int:
		if v <= 0 {
			return 0, true
		}
		return v, false
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "" || s == "auto" {
			return 0, true
		}
		return 0, true
	default:
		return 0, true
	}
}

// EngineCategory is the search-provider-facing result type.
type EngineCategory string

const (
	CategorySearch   EngineCategory = "Search"
	CategoryNews     EngineCategory = "News"
	CategoryScholar  EngineCategory = "Scholar"
	CategoryVideos   EngineCategory = "Videos"
	CategoryImages   EngineCategory = "Images"
	CategoryPlaces   EngineCategory = "Places"
	CategoryShopping EngineCategory = "Shopping"
)

// Period is a provider-agnostic recency filter.
type Period string

const (
	PeriodAny        Period = "Any time"
	PeriodPastHour   Period = "Past hour"
	PeriodPast24h    Period = "Past 24 hours"
	PeriodPastWeek   Period = "Past week"
	PeriodPastMonth  Period = "Past month"
	PeriodPastYear   Period = "Past year"
)

// SearchTypeToCategory maps the wire-level search_type to the engine
// category used to plan and issue provider calls, per spec.md §6.
func SearchTypeToCategory(t SearchType) EngineCategory {
	switch t {
	case SearchGeneral:
		return CategorySearch
	case SearchScholar:
		return CategoryScholar
	case SearchNews:
		return CategoryNews
	case SearchYouTube:
		return CategoryVideos
	default:
		return CategorySearch
	}
}

// PlannedQuery is one structured search instruction produced by the planner.
type PlannedQuery struct {
	Query    string         `json:"query"`
	Type     EngineCategory `json:"type"`
	Language string         `json:"language"`
	Period   Period         `json:"period"`
}

// SearchHit is a single normalized result from a search provider.
type SearchHit struct {
	Title    string         `json:"title"`
	URL      string         `json:"url"`
	Snippet  string         `json:"snippet"`
	ImageURL string         `json:"image_url,omitempty"`
	Date     string         `json:"date,omitempty"`
	Language string         `json:"language,omitempty"`
	Type     EngineCategory `json:"type,omitempty"`
	PDFURL   string         `json:"pdf_url,omitempty"`
}

// MaxContentLen is the default cap on CrawledDoc.Content length.
const MaxContentLen = 20000

// CrawledDoc is a SearchHit enriched with extracted page content.
type CrawledDoc struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	ImageURL string `json:"image_url,omitempty"`
	Date     string `json:"date,omitempty"`
	Content  string `json:"content"`
}

// FromHit builds a CrawledDoc carrying the hit's fields, dropping Type and
// Language per spec.md §4.7 ("preserved only inside the extractor").
func FromHit(h SearchHit, content string) CrawledDoc {
	return CrawledDoc{
		Title:    h.Title,
		URL:      h.URL,
		Snippet:  h.Snippet,
		ImageURL: h.ImageURL,
		Date:     h.Date,
		Content:  content,
	}
}

// ModelVendor identifies the vendor of a model used during a request.
type ModelVendor string

// ModelKind identifies the functional role a model played in a request.
type ModelKind string

const (
	ModelQueryRewrite ModelKind = "query_rewrite"
	ModelOutline      ModelKind = "outline"
	ModelAnswer       ModelKind = "answer"
)

// ModelIdentity names the vendor/type/name triad for a single model call.
type ModelIdentity struct {
	ModelVendor ModelVendor `json:"model_vendor"`
	ModelType   ModelKind   `json:"model_type"`
	ModelName   string      `json:"model_name"`
}

// Usage is the token accounting for a single model identity.
type Usage struct {
	InputTokenCount  int `json:"input_token_count"`
	OutputTokenCount int `json:"output_token_count"`
}

// ModelUsage pairs an identity with accumulated usage, emitted once per
// request in the final summary event.
type ModelUsage struct {
	Model ModelIdentity `json:"model"`
	Usage Usage         `json:"usage"`
}

// Add accumulates token counts, keeping usage monotonically non-decreasing.
func (u *Usage) Add(input, output int) {
	if input > 0 {
		u.InputTokenCount += input
	}
	if output > 0 {
		u.OutputTokenCount += output
	}
}

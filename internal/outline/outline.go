// Package outline implements the OutlineGenerator described in spec.md
// §4.6: a single LLM call that turns the merged plan-query text and merged
// search-result snippets (or, in URL-only mode, a single crawled document's
// content) into a short list of proposed sub-headings.
//
// Grounded on the teacher's internal/planner/planner.go call pattern reused
// for a second, narrower JSON contract, and on
// original_source/src/models/outline_generator.py's get_response for the
// wire shape: response_format={"type":"json_object"}, a JSON object with one
// key, "sub_titles", holding a list of strings.
package outline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/corvid-labs/websearchd/internal/llm"
	"github.com/corvid-labs/websearchd/internal/model"
)

// Generator produces a list of sub-heading candidates from a merged query
// and a block of source material.
type Generator interface {
	Generate(ctx context.Context, mergedQuery string, sourceMaterial string) ([]string, model.Usage, error)
}

// LLMGenerator calls an OpenAI-compatible endpoint under a JSON-object
// response contract. Any parse or LLM failure returns an empty list and no
// error, per spec.md §4.6's "never raises" requirement — the Orchestrator
// treats a missing outline as a degraded, not fatal, condition.
type LLMGenerator struct {
	Client llm.Client
	Model  string
}

func (g *LLMGenerator) Generate(ctx context.Context, mergedQuery string, sourceMaterial string) ([]string, model.Usage, error) {
	if g.Client == nil || g.Model == "" {
		return nil, model.Usage{}, nil
	}

	resp, err := g.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          g.Model,
		Messages:       buildMessages(mergedQuery, sourceMaterial),
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    1.0,
	})
	if err != nil || len(resp.Choices) == 0 {
		return nil, model.Usage{}, nil
	}

	var usage model.Usage
	usage.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	subTitles, parseErr := parseSubTitles(resp.Choices[0].Message.Content)
	if parseErr != nil {
		return nil, usage, nil
	}
	return subTitles, usage, nil
}

func buildMessages(mergedQuery string, sourceMaterial string) []openai.ChatCompletionMessage {
	system := "You are an editor proposing section sub-headings for a research answer. " +
		"Respond with a single JSON object only, no narration, of the shape " +
		`{"sub_titles": ["...", "..."]}` + ". " +
		"Propose 3 to 6 concise sub-headings that organize the source material below into a coherent outline."
	user := fmt.Sprintf("Query: %s\n\nSource material:\n%s", strings.TrimSpace(mergedQuery), sourceMaterial)
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
}

type subTitlesJSON struct {
	SubTitles []string `json:"sub_titles"`
}

func parseSubTitles(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	var parsed subTitlesJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(parsed.SubTitles))
	for _, s := range parsed.SubTitles {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// MergeHits joins plan queries and search-hit title/snippet pairs into the
// flat text block the prompt expects, mirroring the reference's newline-
// joined "title: snippet" lines.
func MergeHits(plan []model.PlannedQuery, hits []model.SearchHit) (mergedQuery string, sourceMaterial string) {
	queries := make([]string, 0, len(plan))
	for _, p := range plan {
		queries = append(queries, p.Query)
	}
	mergedQuery = strings.Join(queries, "; ")

	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Title == "" && h.Snippet == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", h.Title, h.Snippet))
	}
	sourceMaterial = strings.Join(lines, "\n")
	return mergedQuery, sourceMaterial
}

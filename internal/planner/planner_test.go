package planner

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/corvid-labs/websearchd/internal/llm"
	"github.com/corvid-labs/websearchd/internal/model"
)

func TestIsBareURL(t *testing.T) {
	cases := map[string]bool{
		"https://example.com":          true,
		"http://127.0.0.1:8080/path":   true,
		"https://example.com/a?b=c ":   true, // trailing whitespace is trimmed before matching
		"not a url":                    false,
		"check https://example.com ok": false,
	}
	for in, want := range cases {
		if got := IsBareURL(in); got != want {
			t.Errorf("IsBareURL(%q) = %v, want %v", in, got, want)
		}
	}
}

type fakePlannerClient struct {
	content string
	err     error
}

func (f *fakePlannerClient) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.content}}},
		Usage:   openai.Usage{PromptTokens: 30, CompletionTokens: 12},
	}, nil
}

func (f *fakePlannerClient) CreateChatCompletionStream(_ context.Context, _ openai.ChatCompletionRequest) (llm.Stream, error) {
	return nil, errors.New("not implemented")
}

func TestLLMPlanner_Plan_URLShortCircuit_SkipsLLM(t *testing.T) {
	p := &LLMPlanner{Client: nil, Model: "unused"}
	plan, usage, err := p.Plan(context.Background(), "https://example.com/x", nil, model.SearchGeneral, "en")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan) != 1 || plan[0].Query != "https://example.com/x" {
		t.Fatalf("expected synthetic one-entry plan, got %+v", plan)
	}
	if plan[0].Language != "ko" || plan[0].Period != model.PeriodAny {
		t.Fatalf("unexpected synthetic plan fields: %+v", plan[0])
	}
	if usage != (model.Usage{}) {
		t.Fatalf("expected zero usage for URL short-circuit, got %+v", usage)
	}
}

func TestLLMPlanner_Plan_ShortQuery_AddsPassThroughAndParsesJSON(t *testing.T) {
	client := &fakePlannerClient{content: `{
		"a": ["topic overview", "Search", "en", "Any time"],
		"b": ["topic news", "News", "en", "Past week"]
	}`}
	p := &LLMPlanner{Client: client, Model: "gpt-test"}

	plan, usage, err := p.Plan(context.Background(), "short query", nil, model.SearchGeneral, "en")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan) != 3 {
		t.Fatalf("expected pass-through + 2 parsed queries, got %d: %+v", len(plan), plan)
	}
	if plan[0].Query != "short query" {
		t.Fatalf("expected pass-through query first, got %+v", plan[0])
	}
	if usage.InputTokenCount != 30 || usage.OutputTokenCount != 12 {
		t.Fatalf("expected usage accumulated from response, got %+v", usage)
	}
}

func TestEmbeddedURLQueries_DedupsAndCaps(t *testing.T) {
	text := "see https://a.com and https://a.com again, also https://b.com https://c.com https://d.com"
	out := embeddedURLQueries(text, "en")
	if len(out) != MaxEmbeddedURLs {
		t.Fatalf("expected cap of %d, got %d: %+v", MaxEmbeddedURLs, len(out), out)
	}
	if out[0].Query != "https://a.com" {
		t.Fatalf("expected dedup to keep first occurrence, got %+v", out[0])
	}
}

func TestFallbackPlanner_URLShortCircuit(t *testing.T) {
	p := FallbackPlanner{}
	plan, _, err := p.Plan(context.Background(), "https://example.com/x", nil, model.SearchGeneral, "en")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan) != 1 || plan[0].Query != "https://example.com/x" {
		t.Fatalf("expected synthetic one-entry plan, got %+v", plan)
	}
}

func TestFallbackPlanner_PassThroughPlusEmbeddedURLs(t *testing.T) {
	p := FallbackPlanner{}
	plan, _, err := p.Plan(context.Background(), "tell me about https://example.com/x please", nil, model.SearchNews, "en")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("expected pass-through + 1 embedded url, got %d: %+v", len(plan), plan)
	}
	if plan[0].Type != model.CategoryNews {
		t.Fatalf("expected pass-through type to follow requested search type, got %+v", plan[0])
	}
}

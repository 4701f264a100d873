package outline

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/corvid-labs/websearchd/internal/llm"
	"github.com/corvid-labs/websearchd/internal/model"
)

type fakeOutlineClient struct {
	content string
	usage   openai.Usage
	err     error
}

func (f *fakeOutlineClient) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.content}}},
		Usage:   f.usage,
	}, nil
}

func (f *fakeOutlineClient) CreateChatCompletionStream(_ context.Context, _ openai.ChatCompletionRequest) (llm.Stream, error) {
	return nil, errors.New("not implemented")
}

func TestLLMGenerator_Generate_ParsesSubTitles(t *testing.T) {
	client := &fakeOutlineClient{
		content: `{"sub_titles": ["Background", "Key findings", ""]}`,
		usage:   openai.Usage{PromptTokens: 50, CompletionTokens: 10},
	}
	g := &LLMGenerator{Client: client, Model: "gpt-test"}

	subTitles, usage, err := g.Generate(context.Background(), "merged query", "title: snippet\ntitle2: snippet2")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(subTitles) != 2 || subTitles[0] != "Background" || subTitles[1] != "Key findings" {
		t.Fatalf("unexpected subTitles (blank entries should be dropped): %+v", subTitles)
	}
	if usage.InputTokenCount != 50 || usage.OutputTokenCount != 10 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestLLMGenerator_Generate_LLMError_ReturnsEmptyNoError(t *testing.T) {
	client := &fakeOutlineClient{err: errors.New("boom")}
	g := &LLMGenerator{Client: client, Model: "gpt-test"}

	subTitles, usage, err := g.Generate(context.Background(), "q", "material")
	if err != nil {
		t.Fatalf("expected no error on LLM failure, got %v", err)
	}
	if subTitles != nil {
		t.Fatalf("expected nil subTitles on failure, got %+v", subTitles)
	}
	if usage != (model.Usage{}) {
		t.Fatalf("expected zero usage on failure, got %+v", usage)
	}
}

func TestLLMGenerator_Generate_MalformedJSON_ReturnsEmptyNoError(t *testing.T) {
	client := &fakeOutlineClient{content: "not json"}
	g := &LLMGenerator{Client: client, Model: "gpt-test"}

	subTitles, _, err := g.Generate(context.Background(), "q", "material")
	if err != nil {
		t.Fatalf("expected no error on malformed JSON, got %v", err)
	}
	if subTitles != nil {
		t.Fatalf("expected nil subTitles on malformed JSON, got %+v", subTitles)
	}
}

func TestLLMGenerator_Generate_NotConfigured_ReturnsEmptyNoError(t *testing.T) {
	g := &LLMGenerator{}
	subTitles, usage, err := g.Generate(context.Background(), "q", "material")
	if err != nil || subTitles != nil || usage != (model.Usage{}) {
		t.Fatalf("expected zero-value result when unconfigured, got subTitles=%+v usage=%+v err=%v", subTitles, usage, err)
	}
}

func TestMergeHits_JoinsQueriesAndSkipsEmptyHits(t *testing.T) {
	plan := []model.PlannedQuery{{Query: "a"}, {Query: "b"}}
	hits := []model.SearchHit{
		{Title: "T1", Snippet: "S1"},
		{},
		{Title: "T2", Snippet: "S2"},
	}
	mergedQuery, sourceMaterial := MergeHits(plan, hits)
	if mergedQuery != "a; b" {
		t.Fatalf("unexpected mergedQuery: %q", mergedQuery)
	}
	if sourceMaterial != "T1: S1\nT2: S2" {
		t.Fatalf("unexpected sourceMaterial: %q", sourceMaterial)
	}
}

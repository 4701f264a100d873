package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/corvid-labs/websearchd/internal/crawler"
	"github.com/corvid-labs/websearchd/internal/llm"
	"github.com/corvid-labs/websearchd/internal/model"
	"github.com/corvid-labs/websearchd/internal/search"
)

type fakePlanner struct {
	plan  []model.PlannedQuery
	usage model.Usage
	err   error
}

func (f fakePlanner) Plan(context.Context, string, []model.Message, model.SearchType, string) ([]model.PlannedQuery, model.Usage, error) {
	return f.plan, f.usage, f.err
}

type fakeSearchProvider struct {
	byQuery map[string][]model.SearchHit
}

func (p *fakeSearchProvider) Name() string { return "fake" }

func (p *fakeSearchProvider) Search(_ context.Context, q model.PlannedQuery, limit int, _ []string) ([]model.SearchHit, error) {
	hits := p.byQuery[q.Query]
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

type fakeFetcher struct{ content string }

func (f *fakeFetcher) Get(context.Context, string) ([]byte, string, error) {
	return []byte(f.content), "text/plain", nil
}

func (f *fakeFetcher) StreamGet(_ context.Context, _ string, fn func(string, int64, io.Reader) error) error {
	return fn("text/plain", int64(len(f.content)), strings.NewReader(f.content))
}

type fakeOutline struct {
	titles []string
	usage  model.Usage
}

func (f fakeOutline) Generate(context.Context, string, string) ([]string, model.Usage, error) {
	return f.titles, f.usage, nil
}

type fakeLLM struct {
	content     string
	usage       openai.Usage
	err         error
	streamChunk []string
}

func (f *fakeLLM) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.content}}},
		Usage:   f.usage,
	}, nil
}

func (f *fakeLLM) CreateChatCompletionStream(_ context.Context, _ openai.ChatCompletionRequest) (llm.Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	chunks := make([]openai.ChatCompletionStreamResponse, 0, len(f.streamChunk)+1)
	for _, c := range f.streamChunk {
		chunks = append(chunks, openai.ChatCompletionStreamResponse{
			Choices: []openai.ChatCompletionStreamChoice{{Delta: openai.ChatCompletionStreamChoiceDelta{Content: c}}},
		})
	}
	chunks = append(chunks, openai.ChatCompletionStreamResponse{Usage: &f.usage})
	return &fakeStream{chunks: chunks}, nil
}

type fakeStream struct {
	chunks []openai.ChatCompletionStreamResponse
	i      int
}

func (s *fakeStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if s.i >= len(s.chunks) {
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}

func (s *fakeStream) Close() error { return nil }

func collectEvents(events *[]model.Event) Emit {
	return func(e model.Event) error {
		*events = append(*events, e)
		return nil
	}
}

func baseOrchestrator() *Orchestrator {
	return &Orchestrator{
		Planner:         fakePlanner{plan: []model.PlannedQuery{{Query: "topic a", Type: model.CategorySearch, Language: "en", Period: model.PeriodAny}}},
		FallbackPlanner: fakePlanner{plan: []model.PlannedQuery{{Query: "topic a", Type: model.CategorySearch, Language: "en", Period: model.PeriodAny}}},
		Search: &search.Client{
			Provider:          &fakeSearchProvider{byQuery: map[string][]model.SearchHit{"topic a": {{URL: "https://x.com/1", Title: "one", Snippet: "s1"}}}},
			NumOutputPerQuery: 10,
		},
		CrawlerTemplate: &crawler.Crawler{},
		Fetcher:         func() (crawler.StreamFetcher, func()) { return &fakeFetcher{content: "crawled text"}, func() {} },
		Outline:         fakeOutline{titles: []string{"Background", "Details"}},
		LLM:             &fakeLLM{content: "the answer", usage: openai.Usage{PromptTokens: 50, CompletionTokens: 20}},
		QueryRewriteModel: model.ModelIdentity{ModelVendor: "openai", ModelType: model.ModelQueryRewrite, ModelName: "gpt-rewrite"},
		OutlineModel:      model.ModelIdentity{ModelVendor: "openai", ModelType: model.ModelOutline, ModelName: "gpt-outline"},
		AnswerModel:       model.ModelIdentity{ModelVendor: "openai", ModelType: model.ModelAnswer, ModelName: "gpt-answer"},
	}
}

func TestRun_NonStreaming_EmitsExactlyOneCompleteEvent(t *testing.T) {
	o := baseOrchestrator()
	var events []model.Event
	req := model.QueryRequest{Query: "what is topic a", Language: "en"}

	if err := o.Run(context.Background(), req, collectEvents(&events)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected exactly one terminal event with return_process=false, got %d: %+v", len(events), events)
	}
	ev := events[0]
	if ev.Status != model.StatusComplete {
		t.Fatalf("expected complete status, got %+v", ev)
	}
	if ev.Message.Content != "the answer" {
		t.Fatalf("unexpected content: %+v", ev.Message)
	}
	if len(ev.Message.Models) != 3 {
		t.Fatalf("expected three model usage buckets, got %d: %+v", len(ev.Message.Models), ev.Message.Models)
	}
}

func TestRun_ReturnProcess_EmitsProcessingEventsBeforeTerminal(t *testing.T) {
	o := baseOrchestrator()
	var events []model.Event
	req := model.QueryRequest{Query: "what is topic a", Language: "en", ReturnProcess: true}

	if err := o.Run(context.Background(), req, collectEvents(&events)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(events) < 2 {
		t.Fatalf("expected processing events plus a terminal event, got %d", len(events))
	}
	for _, e := range events[:len(events)-1] {
		if e.Status == model.StatusComplete || e.Status == model.StatusFailure {
			t.Fatalf("terminal event appeared before the end of the stream: %+v", events)
		}
	}
	last := events[len(events)-1]
	if last.Status != model.StatusComplete {
		t.Fatalf("expected stream to end with complete, got %+v", last)
	}
}

func TestRun_URLOnly_SkipsSearchAndUsesURLAsSoleHit(t *testing.T) {
	o := baseOrchestrator()
	o.Planner = fakePlanner{} // would return an empty plan if actually invoked for the wrong input
	const url = "https://example.com/x"
	var events []model.Event
	req := model.QueryRequest{Query: url, Language: "en"}

	// LLMPlanner.Plan's real short-circuit is exercised via the planner
	// package directly; here we simulate the Orchestrator wiring by using
	// a fake planner that mirrors the short-circuit's synthetic plan.
	o.Planner = fakePlanner{plan: []model.PlannedQuery{{Query: url, Type: model.CategorySearch, Language: "ko", Period: model.PeriodAny}}}

	if err := o.Run(context.Background(), req, collectEvents(&events)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 1 || events[0].Status != model.StatusComplete {
		t.Fatalf("expected single complete event, got %+v", events)
	}
	if len(events[0].Message.Metadata.Queries) != 1 || events[0].Message.Metadata.Queries[0] != url {
		t.Fatalf("expected metadata.queries == [url], got %+v", events[0].Message.Metadata)
	}
}

func TestRun_NoSearchResults_EmitsFailureWithExactTitle(t *testing.T) {
	o := baseOrchestrator()
	o.Search = &search.Client{Provider: &fakeSearchProvider{byQuery: map[string][]model.SearchHit{}}, NumOutputPerQuery: 10}
	var events []model.Event
	req := model.QueryRequest{Query: "what is topic a", Language: "en"}

	if err := o.Run(context.Background(), req, collectEvents(&events)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 1 || events[0].Status != model.StatusFailure {
		t.Fatalf("expected a single failure event, got %+v", events)
	}
	if events[0].Message.Title != "No web search results found." {
		t.Fatalf("unexpected failure title: %q", events[0].Message.Title)
	}
}

func TestRun_EmptyPlan_EmitsPlanningEmptyFailure(t *testing.T) {
	o := baseOrchestrator()
	o.Planner = fakePlanner{plan: nil}
	o.FallbackPlanner = fakePlanner{plan: nil}
	var events []model.Event
	req := model.QueryRequest{Query: "what is topic a", Language: "en"}

	if err := o.Run(context.Background(), req, collectEvents(&events)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 1 || events[0].Status != model.StatusFailure {
		t.Fatalf("expected a single failure event, got %+v", events)
	}
	if events[0].Message.Title != "I couldn't understand the question." {
		t.Fatalf("unexpected failure title: %q", events[0].Message.Title)
	}
}

func TestRun_PlannerError_DegradesToFallbackInsteadOfFailing(t *testing.T) {
	o := baseOrchestrator()
	o.Planner = fakePlanner{err: errors.New("planner backend down")}
	var events []model.Event
	req := model.QueryRequest{Query: "what is topic a", Language: "en"}

	if err := o.Run(context.Background(), req, collectEvents(&events)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 1 || events[0].Status != model.StatusComplete {
		t.Fatalf("expected planner error to degrade to the fallback plan and still complete, got %+v", events)
	}
}

func TestRun_UpstreamLLMError_DegradesToEmptyAnswerNotFailure(t *testing.T) {
	o := baseOrchestrator()
	o.LLM = &fakeLLM{err: errors.New("upstream unavailable")}
	var events []model.Event
	req := model.QueryRequest{Query: "what is topic a", Language: "en"}

	if err := o.Run(context.Background(), req, collectEvents(&events)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 1 || events[0].Status != model.StatusComplete {
		t.Fatalf("expected upstream_llm_error to degrade to a complete event with empty content, got %+v", events)
	}
	if events[0].Message.Content != "" {
		t.Fatalf("expected empty content on LLM degradation, got %q", events[0].Message.Content)
	}
	for _, mu := range events[0].Message.Models {
		if mu.Model.ModelType == model.ModelAnswer && (mu.Usage.InputTokenCount != 0 || mu.Usage.OutputTokenCount != 0) {
			t.Fatalf("expected zeroed answer usage on degradation, got %+v", mu)
		}
	}
}

func TestRun_Streaming_ConcatenatedDeltasEqualNonStreamingAnswer(t *testing.T) {
	o := baseOrchestrator()
	o.LLM = &fakeLLM{streamChunk: []string{"the ", "answer"}, usage: openai.Usage{PromptTokens: 100, CompletionTokens: 42}}
	var events []model.Event
	req := model.QueryRequest{Query: "what is topic a", Language: "en", Stream: true}

	if err := o.Run(context.Background(), req, collectEvents(&events)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(events) == 0 || events[len(events)-1].Status != model.StatusComplete {
		t.Fatalf("expected the stream to end with a complete event, got %+v", events)
	}
	var streamed string
	for _, e := range events[:len(events)-1] {
		if e.Status != model.StatusStreaming {
			t.Fatalf("unexpected non-streaming event before terminal: %+v", e)
		}
		streamed += e.Delta.Content
	}
	if streamed != "the answer" {
		t.Fatalf("concatenated streamed content mismatch: %q", streamed)
	}
	if events[len(events)-1].Message.Content != streamed {
		t.Fatalf("complete.content must equal the concatenation of streamed deltas: %q vs %q", events[len(events)-1].Message.Content, streamed)
	}
	for _, mu := range events[len(events)-1].Message.Models {
		if mu.Model.ModelType == model.ModelAnswer {
			if mu.Usage.InputTokenCount != 100 || mu.Usage.OutputTokenCount != 42 {
				t.Fatalf("expected streamed usage to be recorded from the terminal chunk, got %+v", mu.Usage)
			}
		}
	}
}

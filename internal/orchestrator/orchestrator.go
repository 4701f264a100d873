// Package orchestrator implements the request state machine described in
// spec.md §4.8: INIT → PLAN → SEARCH → (EXTRACT ∥ OUTLINE) → ANSWER →
// SUMMARY → DONE, with a FAIL branch from any fatal stage. It sequences the
// planner, search, crawler, outline and LLM packages into one streamed
// event sequence per request.
//
// Grounded on the teacher's App.Run (internal/app/app.go) for the overall
// "read input, plan, search, fetch, synthesize, write output" sequencing
// style — generalized here from "build one Markdown document" to "stream
// one event sequence" — and on original_source/main.py's webchat() async
// generator for the exact stage order, prompt assembly, and per-role usage
// accounting this package reproduces.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"

	"github.com/corvid-labs/websearchd/internal/crawler"
	"github.com/corvid-labs/websearchd/internal/language"
	"github.com/corvid-labs/websearchd/internal/llm"
	"github.com/corvid-labs/websearchd/internal/model"
	"github.com/corvid-labs/websearchd/internal/outline"
	"github.com/corvid-labs/websearchd/internal/planner"
	"github.com/corvid-labs/websearchd/internal/search"
	"github.com/corvid-labs/websearchd/internal/store"
)

// DefaultSemaphoreLimit is SEMAPHORE_LIMIT's default, per spec.md §4.8's
// closing line.
const DefaultSemaphoreLimit = 300

// DefaultAnswerMaxTokens bounds the ANSWER-stage completion, mirroring the
// reference AnswerGenerator's max_tokens=8000 default.
const DefaultAnswerMaxTokens = 8000

// Emit streams one event to the client. A non-nil error aborts the request
// (the connection is assumed gone) without attempting to emit a failure
// event over it.
type Emit func(model.Event) error

// FetcherFactory hands the Orchestrator a per-request StreamFetcher and a
// release function to call on every exit path, per spec.md §4.8 INIT's
// "acquire a fresh HTTPFetcher for the request (released on all exits)".
// The factory is expected to hand out a handle backed by the single
// process-wide pooled client from spec.md §4.1, not to dial a new
// connection pool per request.
type FetcherFactory func() (fetcher crawler.StreamFetcher, release func())

// Orchestrator wires together one instance of every pipeline stage and runs
// the spec.md §4.8 state machine once per request. All fields except the
// per-request usage map are process-wide and shared across concurrent
// requests, per spec.md §5.
type Orchestrator struct {
	Planner         planner.Planner
	FallbackPlanner planner.Planner
	Search          *search.Client
	CrawlerTemplate *crawler.Crawler
	Outline         outline.Generator
	LLM             llm.Client
	Store           store.DocumentStore
	Fetcher         FetcherFactory

	// ExcludeDomain is the process-wide, read-mostly exclude list spec.md
	// §5 permits to cross suspension boundaries. use_youtube_transcript
	// copy-on-writes a per-call extension of it inside internal/search;
	// the slice held here is never mutated.
	ExcludeDomain    []string
	SimhashThreshold int

	QueryRewriteModel model.ModelIdentity
	OutlineModel      model.ModelIdentity
	AnswerModel       model.ModelIdentity
	AnswerMaxTokens   int

	// Sem bounds the number of in-flight requests process-wide
	// (SEMAPHORE_LIMIT). Nil disables the bound.
	Sem *semaphore.Weighted
}

// NewSemaphore builds the process-wide SEMAPHORE_LIMIT bound, defaulting to
// DefaultSemaphoreLimit when limit is non-positive.
func NewSemaphore(limit int) *semaphore.Weighted {
	if limit <= 0 {
		limit = DefaultSemaphoreLimit
	}
	return semaphore.NewWeighted(int64(limit))
}

// Run executes one request end to end, emitting events via emit. It returns
// a non-nil error only when emit itself failed or the semaphore wait was
// cancelled; every other failure path is surfaced as a terminal `failure`
// event per spec.md §4.8's FAIL branch, and Run returns nil afterward.
func (o *Orchestrator) Run(ctx context.Context, req model.QueryRequest, emit Emit) error {
	requestID := uuid.New().String()
	start := time.Now()

	if o.Sem != nil {
		if err := o.Sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer o.Sem.Release(1)
	}

	log.Info().Str("request_id", requestID).Str("stage", "INIT").Msg("orchestrator: request started")

	var fetcher crawler.StreamFetcher
	release := func() {}
	if o.Fetcher != nil {
		fetcher, release = o.Fetcher()
	}
	defer release()

	query := req.NormalizedQuery()
	history := req.TrimmedHistory()
	lang := language.Resolve(req.Language)

	if query == "" {
		return o.fail(emit, requestID, "INIT", ErrPlanningEmpty)
	}

	if req.ReturnProcess {
		if err := emit(model.NewProcessing("Analyzing the question...")); err != nil {
			return err
		}
	}

	var usage usageAccumulator
	urlOnly := len(history) == 0 && planner.IsBareURL(query)

	log.Info().Str("request_id", requestID).Str("stage", "PLAN").Msg("orchestrator: planning")
	plan, planUsage, planErr := o.Planner.Plan(ctx, query, history, req.SearchType, lang.Code)
	if planErr != nil {
		log.Warn().Str("request_id", requestID).Err(planErr).Msg("orchestrator: planner failed, degrading to fallback")
		plan, planUsage, _ = o.FallbackPlanner.Plan(ctx, query, history, req.SearchType, lang.Code)
	}
	usage.add(o.QueryRewriteModel, planUsage)

	if len(plan) == 0 {
		return o.fail(emit, requestID, "PLAN", ErrPlanningEmpty)
	}

	hits, failErr := o.search(ctx, req, plan, query, urlOnly, emit)
	if failErr != nil {
		return o.fail(emit, requestID, "SEARCH", failErr)
	}

	if req.ReturnProcess {
		title := fmt.Sprintf("Searching %d search results...", len(hits))
		if err := emit(model.NewProcessing(title)); err != nil {
			return err
		}
	}

	log.Info().Str("request_id", requestID).Str("stage", "EXTRACT_OUTLINE").Int("hits", len(hits)).Msg("orchestrator: crawling and outlining")
	docs, subTitles, outlineUsage, crawlErr := o.extractAndOutline(ctx, fetcher, plan, hits, urlOnly)
	if crawlErr != nil {
		return o.fail(emit, requestID, "EXTRACT", classify(crawlErr))
	}
	usage.add(o.OutlineModel, outlineUsage)

	if req.ReturnProcess {
		if err := emit(model.NewProcessing("Web search completed")); err != nil {
			return err
		}
	}

	log.Info().Str("request_id", requestID).Str("stage", "ANSWER").Bool("stream", req.Stream).Msg("orchestrator: answering")
	content, answerUsage, answerErr := o.answer(ctx, req, lang, subTitles, docs, history, emit)
	if answerErr != nil {
		// upstream_llm_error degrades to an empty answer and zeroed usage
		// rather than a failure event, per spec.md §7.
		log.Warn().Str("request_id", requestID).Err(answerErr).Msg("orchestrator: answer degraded")
		content, answerUsage = "", model.Usage{}
	}
	usage.add(o.AnswerModel, answerUsage)

	queries := make([]string, 0, len(plan))
	for _, p := range plan {
		queries = append(queries, p.Query)
	}

	log.Info().Str("request_id", requestID).Str("stage", "SUMMARY").
		Int("num_contents", countNonEmpty(docs)).
		Dur("duration", time.Since(start)).
		Msg("orchestrator: summary")

	if err := emit(model.NewComplete(content, queries, subTitles, usage.snapshot())); err != nil {
		return err
	}

	if o.Store != nil {
		if err := o.Store.PutBulk(context.WithoutCancel(ctx), docs); err != nil {
			log.Warn().Str("request_id", requestID).Err(err).Msg("orchestrator: bulk persist failed")
		}
	}

	return nil
}

// search implements the SEARCH stage, including the URL-only short-circuit
// that synthesizes a single hit instead of calling the SearchEngineClient.
func (o *Orchestrator) search(ctx context.Context, req model.QueryRequest, plan []model.PlannedQuery, query string, urlOnly bool, emit Emit) ([]model.SearchHit, error) {
	if urlOnly {
		return []model.SearchHit{{URL: query, Title: query, Type: model.CategorySearch}}, nil
	}

	if req.ReturnProcess {
		if err := emit(model.NewProcessing("Searching for related questions...")); err != nil {
			return nil, err
		}
	}

	topK, _ := req.ParseTopK()
	hits, err := o.Search.MultipleSearch(ctx, plan, o.ExcludeDomain, o.SimhashThreshold, topK, req.UseYouTubeTranscript)
	if err != nil {
		return nil, classify(err)
	}
	if len(hits) == 0 {
		return nil, ErrNoResults
	}
	return hits, nil
}

// extractAndOutline implements the EXTRACT ∥ OUTLINE stage. In URL-only
// mode the outline is built from the single crawled document's content
// rather than merged search snippets, since there is no real snippet to
// merge, per spec.md §4.6/§4.8; the two steps run sequentially in that case
// instead of concurrently.
func (o *Orchestrator) extractAndOutline(ctx context.Context, fetcher crawler.StreamFetcher, plan []model.PlannedQuery, hits []model.SearchHit, urlOnly bool) ([]model.CrawledDoc, []string, model.Usage, error) {
	c := o.requestCrawler(fetcher)

	if urlOnly {
		docs, err := c.MultipleCrawl(ctx, hits)
		if err != nil {
			return nil, nil, model.Usage{}, err
		}
		mergedQuery, _ := outline.MergeHits(plan, hits)
		sourceMaterial := ""
		if len(docs) > 0 {
			sourceMaterial = docs[0].Content
		}
		subTitles, usage, _ := o.Outline.Generate(ctx, mergedQuery, sourceMaterial)
		return docs, subTitles, usage, nil
	}

	var docs []model.CrawledDoc
	var subTitles []string
	var outlineUsage model.Usage
	var crawlErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		docs, crawlErr = c.MultipleCrawl(ctx, hits)
	}()
	go func() {
		defer wg.Done()
		mergedQuery, sourceMaterial := outline.MergeHits(plan, hits)
		subTitles, outlineUsage, _ = o.Outline.Generate(ctx, mergedQuery, sourceMaterial)
	}()
	wg.Wait()

	if crawlErr != nil {
		return nil, nil, model.Usage{}, crawlErr
	}
	return docs, subTitles, outlineUsage, nil
}

// requestCrawler builds a per-request Crawler sharing the process-wide
// immutable registry and store but holding the per-request fetcher and a
// fresh NumContents counter, per spec.md §3's "extractor instances are
// immutable and shared" ownership note.
func (o *Orchestrator) requestCrawler(fetcher crawler.StreamFetcher) *crawler.Crawler {
	t := o.CrawlerTemplate
	if t == nil {
		return &crawler.Crawler{Fetcher: fetcher}
	}
	return &crawler.Crawler{
		Registry: t.Registry,
		Fetcher:  fetcher,
		Store:    t.Store,
		MaxLen:   t.MaxLen,
	}
}

// answer implements the ANSWER stage: build the prompt, prepend trimmed
// history, and invoke the LLM in streaming or non-streaming mode.
func (o *Orchestrator) answer(ctx context.Context, req model.QueryRequest, lang language.Entry, subTitles []string, docs []model.CrawledDoc, history []model.Message, emit Emit) (string, model.Usage, error) {
	prompt := buildAnswerPrompt(req, lang, subTitles, docs, time.Now())

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, h := range history {
		role := openai.ChatMessageRoleUser
		if h.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: h.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	maxTokens := o.AnswerMaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultAnswerMaxTokens
	}

	if !req.Stream {
		resp, err := o.LLM.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       o.AnswerModel.ModelName,
			Messages:    messages,
			MaxTokens:   maxTokens,
			Temperature: 1.0,
		})
		if err != nil {
			return "", model.Usage{}, fmt.Errorf("answer: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", model.Usage{}, fmt.Errorf("answer: no choices")
		}
		var u model.Usage
		u.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		return resp.Choices[0].Message.Content, u, nil
	}

	stream, err := o.LLM.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       o.AnswerModel.ModelName,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: 1.0,
	})
	if err != nil {
		return "", model.Usage{}, fmt.Errorf("answer: stream: %w", err)
	}

	var content string
	var usage model.Usage
	streamErr := llm.StreamAnswer(ctx, stream, func(chunk llm.StreamChunk) error {
		if chunk.Content != "" {
			content += chunk.Content
			return emit(model.NewStreaming(chunk.Content))
		}
		if chunk.Usage != nil {
			usage.Add(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
		}
		return nil
	})
	if streamErr != nil {
		return "", model.Usage{}, fmt.Errorf("answer: stream: %w", streamErr)
	}
	return content, usage, nil
}

// fail emits the terminal failure event for err and logs the FAIL
// transition. It returns emit's error, so it is nil whenever the failure
// event was delivered and Run's caller treats the request as cleanly
// finished (the stream already carries its terminal event).
func (o *Orchestrator) fail(emit Emit, requestID, stage string, err error) error {
	log.Warn().Str("request_id", requestID).Str("stage", stage).Err(err).Msg("orchestrator: request failed")
	return emit(model.NewFailure(failureTitle(err)))
}

func countNonEmpty(docs []model.CrawledDoc) int {
	n := 0
	for _, d := range docs {
		if d.Content != "" {
			n++
		}
	}
	return n
}

// usageAccumulator tracks per-role token usage for the final summary event.
type usageAccumulator struct {
	entries []model.ModelUsage
}

func (u *usageAccumulator) add(id model.ModelIdentity, usage model.Usage) {
	for i := range u.entries {
		if u.entries[i].Model == id {
			u.entries[i].Usage.Add(usage.InputTokenCount, usage.OutputTokenCount)
			return
		}
	}
	u.entries = append(u.entries, model.ModelUsage{Model: id, Usage: usage})
}

func (u *usageAccumulator) snapshot() []model.ModelUsage {
	out := make([]model.ModelUsage, len(u.entries))
	copy(out, u.entries)
	return out
}

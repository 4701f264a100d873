// Package llm adapts go-openai's chat-completion API to the streaming
// LLMClient contract spec.md §4.6 treats as an external black box: a single
// non-streaming call and a streaming call whose final chunk carries token
// usage instead of content.
//
// Grounded on the teacher's internal/llm/provider.go (the Client/ModelLister
// interfaces and the OpenAIProvider adapter around *openai.Client), extended
// with CreateChatCompletionStream and a fallback-model retry chain modeled
// on original_source/src/models/answer_generator.py's
// fallbacks=self.fallback_model list (the teacher never needed fallback
// since it only called one configured model).
package llm

import (
	"context"
	"encoding/json"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/corvid-labs/websearchd/internal/cache"
)

// Client is the minimal interface needed by core logic to call a chat
// model, extended with the streaming call spec.md's ANSWER stage requires.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (Stream, error)
}

// Stream is the narrow Recv/Close surface of *openai.ChatCompletionStream,
// pulled out as an interface so callers can drive StreamAnswer against a
// fake in tests instead of a live network stream.
type Stream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// ModelLister is an optional capability that allows listing available models.
// Providers that do not support this can omit it; callers should use a type
// assertion to detect availability.
type ModelLister interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// OpenAIProvider adapts *openai.Client to the Client/ModelLister interfaces.
type OpenAIProvider struct {
	Inner *openai.Client
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return p.Inner.CreateChatCompletion(ctx, request)
}

func (p *OpenAIProvider) CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (Stream, error) {
	request.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	return p.Inner.CreateChatCompletionStream(ctx, request)
}

func (p *OpenAIProvider) ListModels(ctx context.Context) (openai.ModelsList, error) {
	return p.Inner.ListModels(ctx)
}

// FallbackClient wraps a primary Client with an ordered list of fallback
// model names: if the primary model name fails (request or network error),
// the same request is retried with each fallback name in turn before giving
// up. This mirrors the reference's acompletion(..., fallbacks=[...]) call,
// reimplemented explicitly since go-openai has no built-in fallback concept.
type FallbackClient struct {
	Client    Client
	Fallbacks []string
}

func (f *FallbackClient) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	resp, err := f.Client.CreateChatCompletion(ctx, request)
	if err == nil {
		return resp, nil
	}
	lastErr := err
	for _, model := range f.Fallbacks {
		req := request
		req.Model = model
		resp, err = f.Client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return openai.ChatCompletionResponse{}, lastErr
}

func (f *FallbackClient) CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (Stream, error) {
	stream, err := f.Client.CreateChatCompletionStream(ctx, request)
	if err == nil {
		return stream, nil
	}
	lastErr := err
	for _, model := range f.Fallbacks {
		req := request
		req.Model = model
		stream, err = f.Client.CreateChatCompletionStream(ctx, req)
		if err == nil {
			return stream, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// CachingClient wraps a Client with the teacher's on-disk LLMCache, keyed on
// model name plus the marshaled message list. Only the non-streaming call is
// cached: a streamed answer is inherently a one-shot user-facing event, and
// caching it would mean buffering the whole response before the first byte
// reaches the client, defeating the point of streaming. Planner and outline
// calls, which are both non-streaming, benefit from this the most since the
// same question is often re-planned verbatim during interactive use.
type CachingClient struct {
	Client Client
	Cache  *cache.LLMCache
}

func (c *CachingClient) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	key, keyErr := cacheKey(request)
	if keyErr == nil {
		if raw, ok, err := c.Cache.Get(ctx, key); err == nil && ok {
			var resp openai.ChatCompletionResponse
			if json.Unmarshal(raw, &resp) == nil {
				return resp, nil
			}
		}
	}

	resp, err := c.Client.CreateChatCompletion(ctx, request)
	if err != nil {
		return resp, err
	}
	if keyErr == nil {
		if raw, err := json.Marshal(resp); err == nil {
			_ = c.Cache.Save(ctx, key, raw)
		}
	}
	return resp, nil
}

func (c *CachingClient) CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (Stream, error) {
	return c.Client.CreateChatCompletionStream(ctx, request)
}

func cacheKey(request openai.ChatCompletionRequest) (string, error) {
	raw, err := json.Marshal(request.Messages)
	if err != nil {
		return "", err
	}
	return cache.KeyFrom(request.Model, string(raw)), nil
}

// StreamChunk is one element of a drained chat-completion stream: either a
// content delta or, on the terminal element, a usage record. Exactly one of
// Content or Usage is meaningful per spec.md's "implementers should not
// interleave usage into content deltas" guidance.
type StreamChunk struct {
	Content string
	Usage   *openai.Usage
	Done    bool
}

// StreamAnswer invokes fn once per delta in arrival order, and once more
// with the terminal usage chunk when the provider includes one, per
// spec.md §4.7: "on the chunk that carries usage, record prompt/completion
// tokens and stop iterating."
func StreamAnswer(ctx context.Context, stream Stream, fn func(StreamChunk) error) error {
	defer stream.Close()
	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			// io.EOF and go-openai's internal stream-closed sentinel both
			// mean a clean end of stream with no trailing usage chunk.
			return fn(StreamChunk{Done: true})
		}
		if resp.Usage != nil {
			return fn(StreamChunk{Usage: resp.Usage, Done: true})
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := fn(StreamChunk{Content: delta}); err != nil {
			return err
		}
	}
}

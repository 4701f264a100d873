package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/corvid-labs/websearchd/internal/cache"
	"github.com/corvid-labs/websearchd/internal/crawler"
	"github.com/corvid-labs/websearchd/internal/extract"
	"github.com/corvid-labs/websearchd/internal/extract/site"
	"github.com/corvid-labs/websearchd/internal/extract/wikipedia"
	"github.com/corvid-labs/websearchd/internal/extract/youtube"
	"github.com/corvid-labs/websearchd/internal/fetch"
	"github.com/corvid-labs/websearchd/internal/llm"
	"github.com/corvid-labs/websearchd/internal/model"
	"github.com/corvid-labs/websearchd/internal/orchestrator"
	"github.com/corvid-labs/websearchd/internal/outline"
	"github.com/corvid-labs/websearchd/internal/planner"
	"github.com/corvid-labs/websearchd/internal/robots"
	"github.com/corvid-labs/websearchd/internal/search"
	"github.com/corvid-labs/websearchd/internal/store"
)

// App wires one instance of every pipeline package into a single
// Orchestrator and owns the process-wide resources (HTTP client, database
// pool) that outlive any individual request.
type App struct {
	cfg     Config
	Orch    *orchestrator.Orchestrator
	db      *store.Postgres
	fetcher *fetch.Client
}

// New builds the Orchestrator and its dependencies from cfg. Pass an empty
// cfg.DatabaseDSN to run without a DocumentStore.
func New(ctx context.Context, cfg Config) (*App, error) {
	a := &App{cfg: cfg}

	robotsManager := &robots.Manager{}
	a.fetcher = &fetch.Client{Robots: robotsManager}

	if cfg.DatabaseDSN != "" {
		db, err := store.Connect(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("app: connect store: %w", err)
		}
		a.db = db
	} else {
		log.Warn().Msg("app: no DATABASE_DSN set, running without a DocumentStore")
	}

	provider, err := buildSearchProvider(cfg)
	if err != nil {
		return nil, err
	}

	transportCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		transportCfg.BaseURL = cfg.LLMBaseURL
	}
	openaiClient := openai.NewClientWithConfig(transportCfg)

	var baseClient llm.Client = &llm.OpenAIProvider{Inner: openaiClient}
	if len(cfg.FallbackModels) > 0 {
		baseClient = &llm.FallbackClient{Client: baseClient, Fallbacks: cfg.FallbackModels}
	}

	var cachingClient llm.Client = baseClient
	if cfg.CacheDir != "" {
		cachingClient = &llm.CachingClient{
			Client: baseClient,
			Cache:  &cache.LLMCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms},
		}
	}

	registry := extract.NewRegistry()
	registry.Register(youtube.Extractor{})
	registry.Register(wikipedia.Extractor{})
	for _, e := range site.NewsExtractors() {
		registry.Register(e)
	}
	for _, e := range site.BlogExtractors() {
		registry.Register(e)
	}
	// Must come before the Crawler's content-type-sniffing fallback: an
	// arxiv.org/abs/<id> URL serves text/html for its abstract page, so the
	// /abs/ to /pdf/ rewrite only fires if this extractor claims the URL by
	// pattern instead of waiting to see the response Content-Type.
	registry.Register(extract.GenericPDFExtractor{})

	var documentStore store.DocumentStore
	if a.db != nil {
		documentStore = a.db
	}

	crawlerTemplate := &crawler.Crawler{Registry: registry, Store: documentStore}

	queryRewriteModel := model.ModelIdentity{ModelVendor: "openai", ModelType: model.ModelQueryRewrite, ModelName: cfg.QueryRewriteModel}
	outlineModel := model.ModelIdentity{ModelVendor: "openai", ModelType: model.ModelOutline, ModelName: cfg.OutlineModel}
	answerModel := model.ModelIdentity{ModelVendor: "openai", ModelType: model.ModelAnswer, ModelName: cfg.LLMModel}

	numOutputPerQuery := cfg.NumOutputPerQuery
	if numOutputPerQuery <= 0 {
		numOutputPerQuery = 10
	}

	a.Orch = &orchestrator.Orchestrator{
		Planner:         &planner.LLMPlanner{Client: cachingClient, Model: cfg.QueryRewriteModel},
		FallbackPlanner: planner.FallbackPlanner{},
		Search:          &search.Client{Provider: provider, NumOutputPerQuery: numOutputPerQuery},
		CrawlerTemplate: crawlerTemplate,
		Fetcher: func() (crawler.StreamFetcher, func()) {
			return a.fetcher, func() {}
		},
		Outline:           &outline.LLMGenerator{Client: cachingClient, Model: cfg.OutlineModel},
		LLM:               cachingClient,
		Store:             documentStore,
		ExcludeDomain:     cfg.ExcludeDomain,
		SimhashThreshold:  cfg.SimhashThreshold,
		QueryRewriteModel: queryRewriteModel,
		OutlineModel:      outlineModel,
		AnswerModel:       answerModel,
		Sem:               orchestrator.NewSemaphore(cfg.SemaphoreLimit),
	}

	return a, nil
}

// Close releases process-wide resources. Safe to call on a partially
// constructed App.
func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func buildSearchProvider(cfg Config) (search.Provider, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	switch cfg.SearchProvider {
	case "serpapi":
		if cfg.SerpAPIKey == "" {
			return nil, fmt.Errorf("app: SERPAPI_API_KEY is required for search_provider=serpapi")
		}
		return &search.SerpAPI{APIKey: cfg.SerpAPIKey, HTTPClient: httpClient}, nil
	case "brave":
		if cfg.BraveAPIKey == "" {
			return nil, fmt.Errorf("app: BRAVE_API_KEY is required for search_provider=brave")
		}
		return &search.Brave{APIKey: cfg.BraveAPIKey, HTTPClient: httpClient}, nil
	case "duckduckgo":
		return &search.DuckDuckGo{HTTPClient: httpClient}, nil
	case "", "serper":
		if cfg.SerperAPIKey == "" {
			return nil, fmt.Errorf("app: SERPER_API_KEY is required for search_provider=serper")
		}
		return &search.Serper{APIKey: cfg.SerperAPIKey, HTTPClient: httpClient}, nil
	default:
		return nil, fmt.Errorf("app: unknown search_provider %q", cfg.SearchProvider)
	}
}

// RequestTimeout returns the configured per-request deadline, defaulting to
// 120s when unset.
func (a *App) RequestTimeout() time.Duration {
	if a.cfg.RequestTimeout > 0 {
		return a.cfg.RequestTimeout
	}
	return 120 * time.Second
}

// Command websearchd is the ambient HTTP entrypoint for the streaming
// web-search answering service: it decodes a QueryRequest from
// POST /websearch, drives one Orchestrator.Run call, and streams the
// resulting events back as newline-delimited JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/corvid-labs/websearchd/internal/app"
	"github.com/corvid-labs/websearchd/internal/model"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		host           string
		port           string
		envFile        string
		searchProvider string
		llmBaseURL     string
		llmModel       string
		llmKey         string
		databaseDSN    string
		semaphoreLimit int
		cacheDir       string
		verbose        bool
	)

	flag.StringVar(&envFile, "env", ".env", "Path to an optional .env file")
	flag.StringVar(&host, "host", "", "Listen host (overrides APP_HOST)")
	flag.StringVar(&port, "port", "", "Listen port (overrides APP_PORT)")
	flag.StringVar(&searchProvider, "search.provider", os.Getenv("SEARCH_PROVIDER"), "Search provider: serper, serpapi, brave, duckduckgo")
	flag.StringVar(&llmBaseURL, "llm.base", os.Getenv("LLM_BASE_URL"), "OpenAI-compatible base URL")
	flag.StringVar(&llmModel, "llm.model", os.Getenv("LLM_MODEL"), "Answer model name")
	flag.StringVar(&llmKey, "llm.key", os.Getenv("LLM_API_KEY"), "API key for the OpenAI-compatible server")
	flag.StringVar(&databaseDSN, "db.dsn", os.Getenv("DATABASE_DSN"), "Postgres DSN for the DocumentStore (optional)")
	flag.IntVar(&semaphoreLimit, "semaphore.limit", 0, "Process-wide in-flight request bound (0 uses the default)")
	flag.StringVar(&cacheDir, "cache.dir", os.Getenv("CACHE_DIR"), "LLM response cache directory (optional)")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	app.LoadDotEnv(envFile)

	cfg := app.Config{
		Host:           host,
		Port:           port,
		SearchProvider: searchProvider,
		LLMBaseURL:     llmBaseURL,
		LLMModel:       llmModel,
		LLMAPIKey:      llmKey,
		DatabaseDSN:    databaseDSN,
		SemaphoreLimit: semaphoreLimit,
		CacheDir:       cacheDir,
		Verbose:        verbose,
	}
	app.ApplyEnvToConfig(&cfg)

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("websearchd: init failed")
	}
	defer a.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/websearch", handleWebsearch(a))

	addr := cfg.Host + ":" + cfg.Port
	log.Info().Str("addr", addr).Msg("websearchd: listening")
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("websearchd: server stopped")
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleWebsearch decodes one QueryRequest and streams the Orchestrator's
// events back as newline-delimited JSON, flushing after every line so a
// client sees processing/streaming events as they happen rather than only
// once the whole response buffers.
func handleWebsearch(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req model.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		flusher, canFlush := w.(http.Flusher)

		ctx, cancel := context.WithTimeout(r.Context(), a.RequestTimeout())
		defer cancel()

		enc := json.NewEncoder(w)
		emit := func(ev model.Event) error {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			if canFlush {
				flusher.Flush()
			}
			return nil
		}

		if err := a.Orch.Run(ctx, req, emit); err != nil {
			log.Warn().Err(err).Msg("websearchd: stream aborted")
		}
	}
}

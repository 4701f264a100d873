// Package app wires the model/language/fetch/extract/store/search/simhash/
// llm/planner/outline/crawler/orchestrator packages into one runnable
// server, the way the teacher's internal/app wires brief/search/select/
// synth/verify/validate into one CLI run.
package app

import "time"

// Config holds runtime configuration for the server.
type Config struct {
	// HTTP
	Host string
	Port string

	// Search provider selection and credentials.
	SearchProvider string // "serper", "serpapi", "brave", or "duckduckgo"
	SerperAPIKey   string
	SerpAPIKey     string
	BraveAPIKey    string

	// LLM
	LLMBaseURL          string
	LLMModel            string
	LLMAPIKey           string
	QueryRewriteModel   string
	OutlineModel        string
	FallbackModels      []string

	// Storage
	DatabaseDSN string

	// Behavior / budgeting
	SemaphoreLimit    int
	NumOutputPerQuery int
	SimhashThreshold  int
	ExcludeDomain     []string

	// Caching
	CacheDir        string
	CacheStrictPerms bool

	// Observability
	LogDir  string
	Verbose bool

	// RequestTimeout bounds one Orchestrator.Run call end to end, mapped to
	// the FAIL branch's "Web search timeout" title on expiry.
	RequestTimeout time.Duration
}

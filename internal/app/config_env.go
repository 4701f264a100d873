package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// LoadDotEnv loads a .env file into the process environment if present,
// ignoring a missing file and any keys os.Setenv already rejects. It never
// overrides a variable already set in the environment.
func LoadDotEnv(path string) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("app: .env load failed, continuing with process environment")
	}
}

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values (already set by flags) take precedence over env, the
// same "only fill unset fields" rule the teacher's ApplyEnvToConfig applies.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Host == "" {
		cfg.Host = envOr("APP_HOST", "0.0.0.0")
	}
	if cfg.Port == "" {
		cfg.Port = envOr("APP_PORT", "8080")
	}

	if cfg.SearchProvider == "" {
		cfg.SearchProvider = strings.ToLower(os.Getenv("SEARCH_PROVIDER"))
	}
	if cfg.SerperAPIKey == "" {
		cfg.SerperAPIKey = os.Getenv("SERPER_API_KEY")
	}
	if cfg.SerpAPIKey == "" {
		cfg.SerpAPIKey = os.Getenv("SERPAPI_API_KEY")
	}
	if cfg.BraveAPIKey == "" {
		cfg.BraveAPIKey = os.Getenv("BRAVE_API_KEY")
	}

	if cfg.LLMBaseURL == "" {
		cfg.LLMBaseURL = os.Getenv("LLM_BASE_URL")
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = os.Getenv("LLM_MODEL")
	}
	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	}
	if cfg.QueryRewriteModel == "" {
		cfg.QueryRewriteModel = envOr("QUERY_REWRITE_MODEL", cfg.LLMModel)
	}
	if cfg.OutlineModel == "" {
		cfg.OutlineModel = envOr("OUTLINE_MODEL", cfg.LLMModel)
	}
	if len(cfg.FallbackModels) == 0 {
		if v := strings.TrimSpace(os.Getenv("FALLBACK_MODELS")); v != "" {
			for _, m := range strings.Split(v, ",") {
				if m = strings.TrimSpace(m); m != "" {
					cfg.FallbackModels = append(cfg.FallbackModels, m)
				}
			}
		}
	}

	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = os.Getenv("DATABASE_DSN")
	}

	if cfg.SemaphoreLimit == 0 {
		if n, err := strconv.Atoi(os.Getenv("SEMAPHORE_LIMIT")); err == nil && n > 0 {
			cfg.SemaphoreLimit = n
		}
	}
	if cfg.NumOutputPerQuery == 0 {
		if n, err := strconv.Atoi(os.Getenv("NUM_OUTPUT_PER_QUERY")); err == nil && n > 0 {
			cfg.NumOutputPerQuery = n
		}
	}
	if cfg.SimhashThreshold == 0 {
		if n, err := strconv.Atoi(os.Getenv("SIMHASH_THRESHOLD")); err == nil && n > 0 {
			cfg.SimhashThreshold = n
		}
	}
	if len(cfg.ExcludeDomain) == 0 {
		if v := strings.TrimSpace(os.Getenv("EXCLUDE_DOMAIN")); v != "" {
			for _, d := range strings.Split(v, ",") {
				if d = strings.TrimSpace(d); d != "" {
					cfg.ExcludeDomain = append(cfg.ExcludeDomain, d)
				}
			}
		}
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = os.Getenv("CACHE_DIR")
	}
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")

	if cfg.LogDir == "" {
		cfg.LogDir = os.Getenv("LOG_DIR")
	}
	setBool(&cfg.Verbose, "VERBOSE")

	if cfg.RequestTimeout == 0 {
		if s := os.Getenv("REQUEST_TIMEOUT"); s != "" {
			if d, err := time.ParseDuration(s); err == nil {
				cfg.RequestTimeout = d
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setBool(dst *bool, envKey string) {
	if *dst {
		return
	}
	if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
		if s == "1" || s == "true" || s == "yes" || s == "on" {
			*dst = true
		}
	}
}

package app

import "testing"

func TestApplyEnvToConfig_OnlyFillsUnsetFields(t *testing.T) {
	t.Setenv("APP_HOST", "127.0.0.1")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("SEARCH_PROVIDER", "brave")
	t.Setenv("SEMAPHORE_LIMIT", "50")

	cfg := Config{Port: "8080"} // Port already set by a flag; must not be overridden
	ApplyEnvToConfig(&cfg)

	if cfg.Host != "127.0.0.1" {
		t.Fatalf("Host = %q, want 127.0.0.1", cfg.Host)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want the flag-set value 8080 to win over env", cfg.Port)
	}
	if cfg.SearchProvider != "brave" {
		t.Fatalf("SearchProvider = %q, want brave", cfg.SearchProvider)
	}
	if cfg.SemaphoreLimit != 50 {
		t.Fatalf("SemaphoreLimit = %d, want 50", cfg.SemaphoreLimit)
	}
}

func TestApplyEnvToConfig_DefaultsHostAndPortWhenUnset(t *testing.T) {
	t.Setenv("APP_HOST", "")
	t.Setenv("APP_PORT", "")

	var cfg Config
	ApplyEnvToConfig(&cfg)

	if cfg.Host != "0.0.0.0" {
		t.Fatalf("Host default = %q, want 0.0.0.0", cfg.Host)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port default = %q, want 8080", cfg.Port)
	}
}

func TestApplyEnvToConfig_ParsesCommaSeparatedLists(t *testing.T) {
	t.Setenv("FALLBACK_MODELS", "gpt-a, gpt-b ,gpt-c")
	t.Setenv("EXCLUDE_DOMAIN", "youtube.com, pinterest.com")

	var cfg Config
	ApplyEnvToConfig(&cfg)

	wantModels := []string{"gpt-a", "gpt-b", "gpt-c"}
	if len(cfg.FallbackModels) != len(wantModels) {
		t.Fatalf("FallbackModels = %v, want %v", cfg.FallbackModels, wantModels)
	}
	for i, m := range wantModels {
		if cfg.FallbackModels[i] != m {
			t.Fatalf("FallbackModels[%d] = %q, want %q", i, cfg.FallbackModels[i], m)
		}
	}

	wantDomains := []string{"youtube.com", "pinterest.com"}
	if len(cfg.ExcludeDomain) != len(wantDomains) {
		t.Fatalf("ExcludeDomain = %v, want %v", cfg.ExcludeDomain, wantDomains)
	}
}

func TestApplyEnvToConfig_QueryRewriteAndOutlineModelsDefaultToAnswerModel(t *testing.T) {
	t.Setenv("LLM_MODEL", "gpt-answer")
	t.Setenv("QUERY_REWRITE_MODEL", "")
	t.Setenv("OUTLINE_MODEL", "")

	var cfg Config
	ApplyEnvToConfig(&cfg)

	if cfg.QueryRewriteModel != "gpt-answer" {
		t.Fatalf("QueryRewriteModel = %q, want it to default to LLM_MODEL", cfg.QueryRewriteModel)
	}
	if cfg.OutlineModel != "gpt-answer" {
		t.Fatalf("OutlineModel = %q, want it to default to LLM_MODEL", cfg.OutlineModel)
	}
}

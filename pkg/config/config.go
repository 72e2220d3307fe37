package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/research"
)

type Config struct {
	LLMProvider string

	OpenAIApiKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	DeepSeekApiKey  string
	DeepSeekModel   string
	DeepSeekBaseURL string

	GoogleApiKey string
	GoogleModel  string

	SearchProvider   string
	SearchLimit      int
	FirecrawlKey     string
	FirecrawlBaseURL string
	TavilyApiKey     string
	BraveApiKey      string
	MistralApiKey    string
	FetchPages       bool

	Breadth       int
	Depth         int
	Concurrency   int
	SearchTimeout time.Duration
	LLMTimeout    time.Duration

	Port     string
	LogLevel string
}

func Load() *Config {
	defaults := research.DefaultConfig()

	return &Config{
		LLMProvider: strings.ToLower(getEnv("LLM_PROVIDER", "openai")),

		OpenAIApiKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		DeepSeekApiKey:  getEnv("DEEPSEEK_API_KEY", ""),
		DeepSeekModel:   getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
		DeepSeekBaseURL: getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),

		GoogleApiKey: getEnv("GOOGLE_API_KEY", getEnv("GEMINI_API_KEY", getEnv("GOOGLEAI_API_KEY", ""))),
		GoogleModel:  getEnv("GOOGLE_MODEL", "gemini-3-flash-preview"),

		SearchProvider:   strings.ToLower(getEnv("SEARCH_PROVIDER", "firecrawl")),
		SearchLimit:      getEnvAsInt("SEARCH_LIMIT", 5),
		FirecrawlKey:     getEnv("FIRECRAWL_KEY", getEnv("FIRECRAWL_API_KEY", "")),
		FirecrawlBaseURL: getEnv("FIRECRAWL_BASE_URL", "https://api.firecrawl.dev"),
		TavilyApiKey:     getEnv("TAVILY_API_KEY", ""),
		BraveApiKey:      getEnv("BRAVE_API_KEY", ""),
		MistralApiKey:    getEnv("MISTRAL_API_KEY", ""),
		FetchPages:       getEnvAsBool("FETCH_PAGES", false),

		Breadth:       getEnvAsInt("RESEARCH_BREADTH", defaults.Breadth),
		Depth:         getEnvAsInt("RESEARCH_DEPTH", defaults.Depth),
		Concurrency:   getEnvAsInt("RESEARCH_CONCURRENCY", defaults.Concurrency),
		SearchTimeout: getEnvAsDuration("SEARCH_TIMEOUT", defaults.SearchTimeout),
		LLMTimeout:    getEnvAsDuration("LLM_TIMEOUT", defaults.LLMTimeout),

		Port:     getEnv("PORT", "8081"),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

// Research returns the engine configuration derived from the environment.
func (c *Config) Research() research.Config {
	rc := research.DefaultConfig()
	rc.Breadth = c.Breadth
	rc.Depth = c.Depth
	rc.Concurrency = c.Concurrency
	rc.SearchTimeout = c.SearchTimeout
	rc.LLMTimeout = c.LLMTimeout
	return rc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s") or a plain number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

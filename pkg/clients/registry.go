package clients

import (
	"fmt"
	"sort"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// Factory builds a language model backend from the process configuration.
type Factory func(cfg *config.Config) (research.LanguageModel, error)

var registry = map[string]Factory{
	"openai": func(cfg *config.Config) (research.LanguageModel, error) {
		return NewOpenAI(cfg.OpenAIApiKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	},
	"deepseek": func(cfg *config.Config) (research.LanguageModel, error) {
		return NewDeepSeek(cfg.DeepSeekApiKey, cfg.DeepSeekBaseURL, cfg.DeepSeekModel)
	},
	"google": func(cfg *config.Config) (research.LanguageModel, error) {
		return NewGoogle(cfg.GoogleApiKey, cfg.GoogleModel)
	},
}

// Register adds or replaces a backend.
func Register(name string, f Factory) {
	registry[name] = f
}

// Providers lists the registered backend names.
func Providers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the backend named by cfg.LLMProvider.
func New(cfg *config.Config) (research.LanguageModel, error) {
	f, ok := registry[cfg.LLMProvider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q (available: %v)", cfg.LLMProvider, Providers())
	}
	return f(cfg)
}

func missingKey(provider, env string) error {
	return research.Unavailable(fmt.Errorf("%s: %s is not set", provider, env))
}

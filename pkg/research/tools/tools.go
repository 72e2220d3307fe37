package tools

import (
	"fmt"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// New builds the search backend named by cfg.SearchProvider, wrapped in a page
// fetcher when FETCH_PAGES is enabled.
func New(cfg *config.Config) (research.SearchEngine, error) {
	var engine research.SearchEngine
	switch cfg.SearchProvider {
	case "firecrawl", "":
		engine = NewFirecrawl(cfg.FirecrawlKey, cfg.FirecrawlBaseURL, cfg.SearchLimit)
	case "tavily":
		engine = NewTavily(cfg.TavilyApiKey, cfg.SearchLimit)
	case "brave":
		engine = NewBrave(cfg.BraveApiKey, cfg.SearchLimit)
	case "duckduckgo", "ddg":
		engine = NewDuckDuckGo(cfg.SearchLimit)
	case "arxiv":
		engine = NewArxiv(cfg.SearchLimit)
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.SearchProvider)
	}

	if cfg.FetchPages {
		engine = NewPageFetcher(engine, NewMistralOCR(cfg.MistralApiKey))
	}
	return engine, nil
}

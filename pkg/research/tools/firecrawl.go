package tools

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/research"
)

// Firecrawl searches the web and scrapes each hit to markdown in one call.
type Firecrawl struct {
	APIKey  string
	BaseURL string
	Limit   int
	Timeout time.Duration
	client  *http.Client
}

func NewFirecrawl(apiKey, baseURL string, limit int) *Firecrawl {
	if baseURL == "" {
		baseURL = "https://api.firecrawl.dev"
	}
	if limit <= 0 {
		limit = 5
	}
	return &Firecrawl{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Limit:   limit,
		Timeout: 15 * time.Second,
		client:  newHTTPClient(),
	}
}

type firecrawlScrapeOptions struct {
	Formats []string `json:"formats"`
}

type firecrawlRequest struct {
	Query         string                 `json:"query"`
	Limit         int                    `json:"limit"`
	Timeout       int64                  `json:"timeout,omitempty"`
	ScrapeOptions firecrawlScrapeOptions `json:"scrapeOptions"`
}

type firecrawlResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Markdown    string `json:"markdown"`
		Metadata    struct {
			Title     string `json:"title"`
			SourceURL string `json:"sourceURL"`
		} `json:"metadata"`
	} `json:"data"`
	Error string `json:"error"`
}

func (f *Firecrawl) Search(ctx context.Context, query string) ([]research.SearchResult, error) {
	if f.APIKey == "" {
		return nil, missingKey("firecrawl", "FIRECRAWL_KEY")
	}

	var resp firecrawlResponse
	err := postJSON(ctx, f.client, "firecrawl", f.BaseURL+"/v1/search",
		map[string]string{"Authorization": "Bearer " + f.APIKey},
		firecrawlRequest{
			Query:         query,
			Limit:         f.Limit,
			Timeout:       f.Timeout.Milliseconds(),
			ScrapeOptions: firecrawlScrapeOptions{Formats: []string{"markdown"}},
		}, &resp)
	if err != nil {
		return nil, err
	}

	results := make([]research.SearchResult, 0, len(resp.Data))
	for _, d := range resp.Data {
		url := firstNonEmpty(d.URL, d.Metadata.SourceURL)
		if url == "" {
			continue
		}
		results = append(results, research.SearchResult{
			URL:     url,
			Title:   firstNonEmpty(d.Title, d.Metadata.Title),
			Content: firstNonEmpty(d.Markdown, d.Description),
		})
	}
	return capResults(results, f.Limit), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func capResults(results []research.SearchResult, limit int) []research.SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

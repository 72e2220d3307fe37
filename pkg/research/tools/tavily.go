package tools

import (
	"context"
	"net/http"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
)

// Tavily is a search API built for LLM agents; it returns extracted page content.
type Tavily struct {
	APIKey  string
	BaseURL string
	Limit   int
	client  *http.Client
}

func NewTavily(apiKey string, limit int) *Tavily {
	if limit <= 0 {
		limit = 5
	}
	return &Tavily{APIKey: apiKey, BaseURL: "https://api.tavily.com", Limit: limit, client: newHTTPClient()}
}

type tavilyRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	SearchDepth       string `json:"search_depth"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type tavilyResponse struct {
	Results []struct {
		Title      string `json:"title"`
		URL        string `json:"url"`
		Content    string `json:"content"`
		RawContent string `json:"raw_content"`
	} `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, query string) ([]research.SearchResult, error) {
	if t.APIKey == "" {
		return nil, missingKey("tavily", "TAVILY_API_KEY")
	}

	var resp tavilyResponse
	err := postJSON(ctx, t.client, "tavily", strings.TrimRight(t.BaseURL, "/")+"/search",
		map[string]string{"Authorization": "Bearer " + t.APIKey},
		tavilyRequest{Query: query, MaxResults: t.Limit, SearchDepth: "advanced", IncludeRawContent: true}, &resp)
	if err != nil {
		return nil, err
	}

	results := make([]research.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, research.SearchResult{
			URL:     r.URL,
			Title:   r.Title,
			Content: firstNonEmpty(r.RawContent, r.Content),
		})
	}
	return capResults(results, t.Limit), nil
}

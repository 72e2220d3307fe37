package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-research/pkg/research"
)

// Brave queries the Brave web search API. The free tier allows one request per
// second, so calls wait on a shared limiter.
type Brave struct {
	APIKey  string
	BaseURL string
	Limit   int
	limiter *rate.Limiter
	client  *http.Client
}

func NewBrave(apiKey string, limit int) *Brave {
	if limit <= 0 {
		limit = 5
	}
	return &Brave{
		APIKey:  apiKey,
		BaseURL: "https://api.search.brave.com/res/v1/web/search",
		Limit:   limit,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		client:  newHTTPClient(),
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title         string   `json:"title"`
			URL           string   `json:"url"`
			Description   string   `json:"description"`
			ExtraSnippets []string `json:"extra_snippets"`
		} `json:"results"`
	} `json:"web"`
}

func (b *Brave) Search(ctx context.Context, query string) ([]research.SearchResult, error) {
	if b.APIKey == "" {
		return nil, missingKey("brave", "BRAVE_API_KEY")
	}
	if err := waitTurn(ctx, b.limiter, "brave"); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(b.Limit))
	params.Set("extra_snippets", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	body, err := do(b.client, "brave", req)
	if err != nil {
		return nil, err
	}
	var resp braveResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse brave response: %w", err)
	}

	results := make([]research.SearchResult, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		if r.URL == "" {
			continue
		}
		content := append([]string{r.Description}, r.ExtraSnippets...)
		results = append(results, research.SearchResult{
			URL:     r.URL,
			Title:   stripTags(r.Title),
			Content: stripTags(strings.Join(content, "\n")),
		})
	}
	return capResults(results, b.Limit), nil
}

// stripTags removes the <strong> highlighting Brave puts into snippets.
func stripTags(s string) string {
	r := strings.NewReplacer("<strong>", "", "</strong>", "", "<b>", "", "</b>", "")
	return strings.TrimSpace(r.Replace(s))
}

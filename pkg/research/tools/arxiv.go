package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-research/pkg/research"
)

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Arxiv searches preprints through the arXiv Atom API. The API asks clients to
// wait three seconds between requests.
type Arxiv struct {
	BaseURL string
	Limit   int
	limiter *rate.Limiter
	client  *http.Client
}

func NewArxiv(limit int) *Arxiv {
	if limit <= 0 {
		limit = 5
	}
	return &Arxiv{
		BaseURL: "https://export.arxiv.org/api/query",
		Limit:   limit,
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 1),
		client:  newHTTPClient(),
	}
}

// Search queries the arXiv API. Each entry becomes a result with its PDF link as URL
// and its abstract as content.
func (a *Arxiv) Search(ctx context.Context, query string) ([]research.SearchResult, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(a.Limit))
	params.Add("start", "0")
	apiURL := a.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	body, err := do(a.client, "arxiv", req)
	if err != nil {
		return nil, err
	}
	slog.Debug("arXiv response received", "query", query, "size", len(body))

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}
	return capResults(feed.results(), a.Limit), nil
}

func (f ArxivFeed) results() []research.SearchResult {
	results := make([]research.SearchResult, 0, len(f.Entry))
	for _, entry := range f.Entry {
		link := strings.TrimSpace(entry.ID)
		for _, l := range entry.Link {
			if l.Type == "application/pdf" {
				link = l.Href
				break
			}
		}
		if link == "" {
			continue
		}

		content := collapseSpace(entry.Summary)
		if entry.Published != "" {
			content = fmt.Sprintf("Published: %s\n%s", entry.Published, content)
		}
		results = append(results, research.SearchResult{
			URL:     strings.Replace(link, "http://", "https://", 1),
			Title:   collapseSpace(entry.Title),
			Content: content,
		})
	}
	return results
}

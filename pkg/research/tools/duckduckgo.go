package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-research/pkg/research"
)

// DuckDuckGo scrapes the keyless lite HTML endpoint. It only yields snippets, so it
// is best paired with the page fetcher.
type DuckDuckGo struct {
	BaseURL string
	Limit   int
	limiter *rate.Limiter
	client  *http.Client
}

func NewDuckDuckGo(limit int) *DuckDuckGo {
	if limit <= 0 {
		limit = 5
	}
	return &DuckDuckGo{
		BaseURL: "https://lite.duckduckgo.com/lite/",
		Limit:   limit,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		client:  newHTTPClient(),
	}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]research.SearchResult, error) {
	if err := waitTurn(ctx, d.limiter, "duckduckgo"); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := do(d.client, "duckduckgo", req)
	if err != nil {
		return nil, err
	}
	return parseDuckDuckGoLite(string(body), d.Limit)
}

func parseDuckDuckGoLite(html string, limit int) ([]research.SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse duckduckgo page: %w", err)
	}

	snippets := doc.Find("td.result-snippet").Map(func(_ int, s *goquery.Selection) string {
		return collapseSpace(s.Text())
	})

	var results []research.SearchResult
	doc.Find("a.result-link").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		target := resolveDuckDuckGoLink(href)
		if target == "" {
			return
		}
		r := research.SearchResult{URL: target, Title: collapseSpace(s.Text())}
		if i < len(snippets) {
			r.Content = snippets[i]
		}
		results = append(results, r)
	})
	return capResults(results, limit), nil
}

// resolveDuckDuckGoLink unwraps the /l/?uddg= redirect used for outbound links.
func resolveDuckDuckGoLink(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

// PageFetcher wraps a search backend and replaces short snippets with the text of
// the page they point to. A failed fetch keeps the original snippet.
type PageFetcher struct {
	Next      research.SearchEngine
	OCR       *MistralOCR
	MinChars  int // results with at least this much content are left alone
	MaxChars  int
	Workers   int
	PageLimit time.Duration
	Logger    *slog.Logger
	client    *http.Client
}

func NewPageFetcher(next research.SearchEngine, ocr *MistralOCR) *PageFetcher {
	return &PageFetcher{
		Next:      next,
		OCR:       ocr,
		MinChars:  1000,
		MaxChars:  20000,
		Workers:   4,
		PageLimit: 10 * time.Second,
		Logger:    slog.Default(),
		client:    newHTTPClient(),
	}
}

func (p *PageFetcher) Search(ctx context.Context, query string) ([]research.SearchResult, error) {
	results, err := p.Next.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.Workers))
	for i := range results {
		if utf8.RuneCountInString(results[i].Content) >= p.MinChars {
			continue
		}
		g.Go(func() error {
			text, err := p.fetch(gctx, results[i].URL)
			if err != nil {
				p.Logger.Debug("Page fetch failed, keeping snippet", "url", results[i].URL, "error", err)
				return nil
			}
			if utf8.RuneCountInString(text) > utf8.RuneCountInString(results[i].Content) {
				results[i].Content = text
			}
			return nil
		})
	}
	_ = g.Wait()
	// A deadline keeps the results in hand along with the pages that finished.
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}
	return results, nil
}

func (p *PageFetcher) fetch(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.PageLimit)
	defer cancel()

	var text string
	var err error
	if isPDF(pageURL) {
		if p.OCR == nil || p.OCR.APIKey == "" {
			return "", fmt.Errorf("no OCR configured for PDF")
		}
		text, err = p.OCR.ScrapePDF(ctx, pageURL)
	} else {
		text, err = p.fetchHTML(ctx, pageURL)
	}
	if err != nil {
		return "", err
	}
	return splitter.Leading(text, p.MaxChars)
}

func (p *PageFetcher) fetchHTML(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	body, err := do(p.client, "fetch", req)
	if err != nil {
		return "", err
	}
	return extractText(string(body))
}

// extractText returns the readable text of an HTML page, one block per line.
func extractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, nav, header, footer, aside, form, svg, iframe").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var blocks []string
	root.Find("h1, h2, h3, h4, p, li, pre, blockquote, td").Each(func(_ int, s *goquery.Selection) {
		if t := collapseSpace(s.Text()); t != "" {
			blocks = append(blocks, t)
		}
	})
	if len(blocks) == 0 {
		return collapseSpace(root.Text()), nil
	}
	return strings.Join(blocks, "\n\n"), nil
}

func isPDF(u string) bool {
	lower := strings.ToLower(u)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	return strings.HasSuffix(lower, ".pdf") || strings.Contains(lower, "arxiv.org/pdf/")
}

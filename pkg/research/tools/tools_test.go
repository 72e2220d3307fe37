package tools

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

func TestFirecrawlSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))

		var req firecrawlRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "go schedulers", req.Query)
		assert.Equal(t, []string{"markdown"}, req.ScrapeOptions.Formats)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"url":"https://a.example","title":"A","markdown":"# A\nbody"},
			{"url":"","metadata":{"sourceURL":"https://b.example","title":"B"},"description":"snippet"},
			{"title":"no url"}
		]}`))
	}))
	defer srv.Close()

	fc := NewFirecrawl("fc-key", srv.URL, 5)
	results, err := fc.Search(context.Background(), "go schedulers")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, research.SearchResult{URL: "https://a.example", Title: "A", Content: "# A\nbody"}, results[0])
	assert.Equal(t, research.SearchResult{URL: "https://b.example", Title: "B", Content: "snippet"}, results[1])
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name            string
		status          int
		wantTransient   bool
		wantUnavailable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true, false},
		{"server error", http.StatusBadGateway, true, false},
		{"unauthorized", http.StatusUnauthorized, false, true},
		{"forbidden", http.StatusForbidden, false, true},
		{"bad request", http.StatusBadRequest, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := NewFirecrawl("key", srv.URL, 5).Search(context.Background(), "q")
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, research.IsTransient(err))
			assert.Equal(t, tt.wantUnavailable, research.IsUnavailable(err))
		})
	}
}

func TestMissingKeysAreUnavailable(t *testing.T) {
	engines := map[string]research.SearchEngine{
		"firecrawl": NewFirecrawl("", "", 5),
		"tavily":    NewTavily("", 5),
		"brave":     NewBrave("", 5),
	}
	for name, engine := range engines {
		t.Run(name, func(t *testing.T) {
			_, err := engine.Search(context.Background(), "q")
			assert.True(t, research.IsUnavailable(err))
		})
	}
}

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tv-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"results":[
			{"title":"T","url":"https://t.example","content":"short","raw_content":"long body"},
			{"title":"U","url":"https://u.example","content":"only snippet"}
		]}`))
	}))
	defer srv.Close()

	tv := NewTavily("tv-key", 1)
	tv.BaseURL = srv.URL
	results, err := tv.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "long body", results[0].Content)
}

func TestBraveSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "br-key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "rust vs go", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"title":"<strong>Rust</strong> vs Go","url":"https://r.example","description":"Both are <strong>fast</strong>.","extra_snippets":["More detail."]}
		]}}`))
	}))
	defer srv.Close()

	br := NewBrave("br-key", 5)
	br.BaseURL = srv.URL
	results, err := br.Search(context.Background(), "rust vs go")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Rust vs Go", results[0].Title)
	assert.Equal(t, "Both are fast.\nMore detail.", results[0].Content)
}

const ddgLite = `<html><body><table>
<tr><td>1.</td><td><a rel="nofollow" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&rut=x" class='result-link'>Go docs</a></td></tr>
<tr><td></td><td class='result-snippet'>The   Go programming
 language documentation.</td></tr>
<tr><td>2.</td><td><a rel="nofollow" href="https://www.rust-lang.org/" class='result-link'>Rust</a></td></tr>
<tr><td></td><td class='result-snippet'>A language empowering everyone.</td></tr>
<tr><td>3.</td><td><a href="javascript:void(0)" class='result-link'>Broken</a></td></tr>
</table></body></html>`

func TestParseDuckDuckGoLite(t *testing.T) {
	results, err := parseDuckDuckGoLite(ddgLite, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://go.dev/doc/", results[0].URL)
	assert.Equal(t, "Go docs", results[0].Title)
	assert.Equal(t, "The Go programming language documentation.", results[0].Content)
	assert.Equal(t, "https://www.rust-lang.org/", results[1].URL)

	limited, err := parseDuckDuckGoLite(ddgLite, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestArxivFeedResults(t *testing.T) {
	const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <title>Work Stealing
      Schedulers</title>
    <summary>  We study schedulers.  </summary>
    <published>2024-01-01T00:00:00Z</published>
    <link href="http://arxiv.org/abs/2401.00001v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2401.00001v1" rel="related" type="application/pdf"/>
  </entry>
</feed>`

	var feed ArxivFeed
	require.NoError(t, xml.Unmarshal([]byte(feedXML), &feed))
	results := feed.results()
	require.Len(t, results, 1)
	assert.Equal(t, "https://arxiv.org/pdf/2401.00001v1", results[0].URL)
	assert.Equal(t, "Work Stealing Schedulers", results[0].Title)
	assert.Equal(t, "Published: 2024-01-01T00:00:00Z\nWe study schedulers.", results[0].Content)
}

func TestExtractText(t *testing.T) {
	html := `<html><head><style>p{}</style><script>var x=1;</script></head><body>
<nav><p>Menu</p></nav>
<article><h1>Title</h1><p>First   paragraph.</p><p>Second paragraph.</p></article>
<footer><p>Footer</p></footer></body></html>`

	text, err := extractText(html)
	require.NoError(t, err)
	assert.Equal(t, "Title\n\nFirst paragraph.\n\nSecond paragraph.", text)
}

type staticSearch []research.SearchResult

func (s staticSearch) Search(context.Context, string) ([]research.SearchResult, error) {
	out := make([]research.SearchResult, len(s))
	copy(out, s)
	return out, nil
}

func TestPageFetcherEnrichesSnippets(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><body><main><p>Full page text that is longer than the snippet.</p></main></body></html>`))
	}))
	defer page.Close()

	long := strings.Repeat("x", 50)
	pf := NewPageFetcher(staticSearch{
		{URL: page.URL + "/article", Content: "short"},
		{URL: page.URL + "/missing", Content: "kept"},
		{URL: page.URL + "/long", Content: long},
		{URL: "https://example.com/paper.pdf", Content: "abstract"},
	}, nil)
	pf.MinChars = 20

	results, err := pf.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "Full page text that is longer than the snippet.", results[0].Content)
	assert.Equal(t, "kept", results[1].Content)
	assert.Equal(t, long, results[2].Content)
	assert.Equal(t, "abstract", results[3].Content)
}

func TestPageFetcherKeepsSnippetsPastDeadline(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(3 * time.Second):
			_, _ = w.Write([]byte(`<html><body><p>Too late.</p></body></html>`))
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	pf := NewPageFetcher(staticSearch{{URL: slow.URL + "/page", Content: "snippet"}}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	results, err := pf.Search(ctx, "q")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "snippet", results[0].Content)

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	_, err = pf.Search(cancelled, "q")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateGateOutOfDeadlineIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"web":{"results":[]}}`))
	}))
	defer srv.Close()

	br := NewBrave("br-key", 5)
	br.BaseURL = srv.URL
	br.limiter = rate.NewLimiter(rate.Every(time.Minute), 1)

	_, err := br.Search(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = br.Search(ctx, "second")
	require.Error(t, err)
	assert.True(t, research.IsTransient(err), "got %v", err)

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	_, err = br.Search(cancelled, "third")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, research.IsTransient(err))

	ddg := NewDuckDuckGo(5)
	ddg.BaseURL = srv.URL
	ddg.limiter = rate.NewLimiter(rate.Every(time.Minute), 0)
	_, err = ddg.Search(ctx, "gated")
	assert.True(t, research.IsTransient(err), "got %v", err)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF("https://example.com/a.PDF?download=1"))
	assert.True(t, isPDF("https://arxiv.org/pdf/2401.00001v1"))
	assert.False(t, isPDF("https://example.com/pdf-guide.html"))
}

func TestNewSelectsBackend(t *testing.T) {
	tests := []struct {
		provider string
		fetch    bool
		want     any
	}{
		{"firecrawl", false, &Firecrawl{}},
		{"tavily", false, &Tavily{}},
		{"brave", false, &Brave{}},
		{"duckduckgo", false, &DuckDuckGo{}},
		{"arxiv", false, &Arxiv{}},
		{"duckduckgo", true, &PageFetcher{}},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			engine, err := New(&config.Config{SearchProvider: tt.provider, SearchLimit: 3, FetchPages: tt.fetch})
			require.NoError(t, err)
			assert.IsType(t, tt.want, engine)
		})
	}

	_, err := New(&config.Config{SearchProvider: "bing"})
	assert.Error(t, err)
}

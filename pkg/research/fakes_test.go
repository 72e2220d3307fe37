package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mikeboe/deep-research/pkg/splitter"
)

var (
	promptGoal     = regexp.MustCompile(`(?s)<prompt>(.*?)</prompt>`)
	promptQuery    = regexp.MustCompile(`(?s)<query>(.*?)</query>`)
	promptBreadth  = regexp.MustCompile(`at most (\d+) queries`)
	promptLearning = regexp.MustCompile(`Include up to (\d+) learnings`)
)

func match(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

func matchInt(re *regexp.Regexp, s string) int {
	n, _ := strconv.Atoi(match(re, s))
	return n
}

// fakeLLM answers by schema name. Unset handlers fall back to a deterministic script
// that derives queries, learnings and directions from the prompt.
type fakeLLM struct {
	mu       sync.Mutex
	calls    map[string]int
	prompts  map[string][]string
	handlers map[string]func(req CompletionRequest) (string, error)
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		calls:    make(map[string]int),
		prompts:  make(map[string][]string),
		handlers: make(map[string]func(req CompletionRequest) (string, error)),
	}
}

func (f *fakeLLM) on(schema string, fn func(req CompletionRequest) (string, error)) *fakeLLM {
	f.handlers[schema] = fn
	return f
}

func (f *fakeLLM) count(schema string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[schema]
}

func (f *fakeLLM) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	f.calls[req.SchemaName]++
	f.prompts[req.SchemaName] = append(f.prompts[req.SchemaName], req.Prompt)
	fn := f.handlers[req.SchemaName]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fn != nil {
		return fn(req)
	}
	return scripted(req)
}

func scripted(req CompletionRequest) (string, error) {
	switch req.SchemaName {
	case "serp_queries":
		goal := match(promptGoal, req.Prompt)
		var resp planResponse
		for i := 1; i <= matchInt(promptBreadth, req.Prompt); i++ {
			resp.Queries = append(resp.Queries, SerpQuery{
				Query:        fmt.Sprintf("%s / q%d", goal, i),
				ResearchGoal: "find facts",
			})
		}
		return marshal(resp)
	case "serp_learnings":
		q := match(promptQuery, req.Prompt)
		n := matchInt(promptLearning, req.Prompt)
		resp := map[string][]string{"learnings": {}, "follow_up_questions": {}}
		for i := 1; i <= n; i++ {
			resp["learnings"] = append(resp["learnings"], fmt.Sprintf("Fact %d about %s.", i, q))
			resp["follow_up_questions"] = append(resp["follow_up_questions"], fmt.Sprintf("follow up %d on %s", i, q))
		}
		return marshal(resp)
	case "final_report":
		return `{"report_markdown": "# Report\n\nSynthesis of the learnings."}`, nil
	case "feedback":
		return `{"questions": ["What scale?", {"question": "Which workloads?"}]}`, nil
	}
	return "", fmt.Errorf("unexpected schema %q", req.SchemaName)
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	return string(data), err
}

// fakeSearch returns one result per query whose URL is derived from the query text.
type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	fn      func(ctx context.Context, query string) ([]SearchResult, error)
}

func (f *fakeSearch) Search(ctx context.Context, query string) ([]SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	fn := f.fn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, query)
	}
	return []SearchResult{{URL: urlFor(query), Title: query, Content: "Content about " + query + "."}}, nil
}

func urlFor(query string) string {
	slug := strings.NewReplacer(" ", "-", "/", "_").Replace(strings.ToLower(query))
	return "https://src.example/" + slug
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Concurrency = 4
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestEngine(llm LanguageModel, search SearchEngine, cfg Config, opts ...Option) (*ResearchEngine, error) {
	opts = append([]Option{WithLogger(testLogger()), WithTokenizer(splitter.Estimate{})}, opts...)
	return NewEngine(llm, search, cfg, opts...)
}

func newTestCaller(limit int) *caller {
	return newCaller(limit, time.Millisecond, 2*time.Millisecond, testLogger())
}

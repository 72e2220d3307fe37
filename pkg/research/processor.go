package research

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/mikeboe/deep-research/pkg/metrics"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

// flexString accepts either a JSON string or an object carrying the text under a
// common key; models are not always consistent about list item shapes.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	for _, key := range []string{"text", "learning", "question", "content"} {
		if v, ok := obj[key].(string); ok {
			*f = flexString(v)
			return nil
		}
	}
	return nil
}

func (flexString) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string"}
}

func flexStrings(in []flexString) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(string(s)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

type extractResponse struct {
	Learnings         []flexString `json:"learnings" jsonschema:"description=Concrete information-dense learnings"`
	FollowUpQuestions []flexString `json:"follow_up_questions" jsonschema:"description=Novel follow-up research questions"`
}

// Processor extracts learnings and follow-up directions from one query's results.
type Processor struct {
	llm         LanguageModel
	calls       *caller
	timeout     time.Duration
	maxPerQuery int
	budget      int
	tokenizer   splitter.Tokenizer
	Logger      *slog.Logger
}

func newProcessor(llm LanguageModel, calls *caller, cfg Config, tok splitter.Tokenizer, logger *slog.Logger) *Processor {
	return &Processor{
		llm:         llm,
		calls:       calls,
		timeout:     cfg.LLMTimeout,
		maxPerQuery: cfg.MaxPerQuery,
		budget:      cfg.ResultTokenBudget,
		tokenizer:   tok,
		Logger:      logger,
	}
}

// Extract returns at most limit learnings and limit directions for q. Every learning
// is attributed to all URLs of the results passed in. A failed or empty extraction
// yields an empty Extraction; only fatal conditions are returned as errors.
func (p *Processor) Extract(ctx context.Context, q SerpQuery, results []SearchResult, limit int, openQuestions []string) (Extraction, error) {
	if p.maxPerQuery > 0 && limit > p.maxPerQuery {
		limit = p.maxPerQuery
	}
	if limit < 1 {
		limit = 1
	}

	var contents []string
	urls := make([]string, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		body := strings.TrimSpace(r.Content)
		if body == "" {
			continue
		}
		contents = append(contents, splitter.Slice(body, p.budget, p.tokenizer))
		if u := strings.TrimSpace(r.URL); u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	if len(contents) == 0 || len(urls) == 0 {
		p.Logger.Info("No attributable content to extract from", "query", q.Query)
		return Extraction{}, nil
	}

	text, err := p.calls.complete(ctx, p.llm, p.timeout, CompletionRequest{
		System:     systemPrompt(),
		Prompt:     buildExtractPrompt(q, contents, limit, openQuestions),
		SchemaName: "serp_learnings",
		Schema:     schemaFor[extractResponse](),
	})
	if err != nil {
		if isFatal(ctx, err) {
			return Extraction{}, fatalErr(ctx, err)
		}
		p.Logger.Warn("Extraction failed", "query", q.Query, "error", err)
		return Extraction{}, nil
	}

	var resp extractResponse
	if err := decodeJSON(text, &resp); err != nil {
		p.Logger.Warn("Extraction unparsable", "query", q.Query, "error", err)
		return Extraction{}, nil
	}

	learned := capStrings(flexStrings(resp.Learnings), limit)
	questions := capStrings(flexStrings(resp.FollowUpQuestions), limit)
	metrics.Learnings.Add(float64(len(learned)))

	var out Extraction
	for _, l := range learned {
		out.Learnings = append(out.Learnings, Learning{Text: l, Sources: append([]string(nil), urls...)})
	}
	for _, fq := range questions {
		out.Directions = append(out.Directions, Direction{Question: fq, Motivation: learned})
	}
	p.Logger.Info("Extracted learnings", "query", q.Query, "learnings", len(out.Learnings), "directions", len(out.Directions))
	return out, nil
}

func capStrings(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}

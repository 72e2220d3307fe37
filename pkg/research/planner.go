package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type planResponse struct {
	Queries []SerpQuery `json:"queries" jsonschema:"description=Distinct search queries"`
}

// Planner turns a research goal into a bounded list of distinct SERP queries.
type Planner struct {
	llm      LanguageModel
	calls    *caller
	timeout  time.Duration
	maxPrior int
	Logger   *slog.Logger
}

func newPlanner(llm LanguageModel, calls *caller, cfg Config, logger *slog.Logger) *Planner {
	return &Planner{llm: llm, calls: calls, timeout: cfg.LLMTimeout, maxPrior: cfg.MaxPriorLearnings, Logger: logger}
}

// Plan asks the model for at most breadth queries for goal. Model failures and
// unusable answers yield an empty plan; only an unavailable capability or a
// cancelled context is returned as an error.
func (p *Planner) Plan(ctx context.Context, goal Goal, breadth int, prior *Accumulator) ([]SerpQuery, error) {
	if breadth < 1 {
		return nil, nil
	}
	var sample []Learning
	if prior != nil {
		sample = prior.Recent(p.maxPrior)
	}

	text, err := p.calls.complete(ctx, p.llm, p.timeout, CompletionRequest{
		System:     systemPrompt(),
		Prompt:     buildPlanPrompt(goal, breadth, sample),
		SchemaName: "serp_queries",
		Schema:     schemaFor[planResponse](),
	})
	if err != nil {
		if isFatal(ctx, err) {
			return nil, fatalErr(ctx, err)
		}
		p.Logger.Warn("Query planning failed", "goal", truncate(goal.Text, 80), "error", err)
		return nil, nil
	}

	var resp planResponse
	if err := decodeJSON(text, &resp); err != nil {
		p.Logger.Warn("Query plan unparsable", "error", err)
		return nil, nil
	}

	queries := dedupeQueries(resp.Queries, breadth)
	p.Logger.Info("Generated queries", "count", len(queries), "breadth", breadth)
	return queries, nil
}

// dedupeQueries drops empty and repeated queries (case-insensitive, whitespace
// collapsed) and keeps at most limit of them, in model order.
func dedupeQueries(in []SerpQuery, limit int) []SerpQuery {
	seen := make(map[string]bool, len(in))
	out := make([]SerpQuery, 0, min(len(in), limit))
	for _, q := range in {
		q.Query = strings.TrimSpace(q.Query)
		q.ResearchGoal = strings.TrimSpace(q.ResearchGoal)
		key := strings.Join(strings.Fields(strings.ToLower(q.Query)), " ")
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == limit {
			break
		}
	}
	return out
}

// fatalErr prefers the context error when the caller cancelled.
func fatalErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("language model: %w", err)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

package research

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Executor dispatches SERP queries to the search capability concurrently. The
// number of in-flight calls is bounded by the engine-wide limiter.
type Executor struct {
	search  SearchEngine
	calls   *caller
	timeout time.Duration
	Logger  *slog.Logger
}

func newExecutor(search SearchEngine, calls *caller, cfg Config, logger *slog.Logger) *Executor {
	return &Executor{search: search, calls: calls, timeout: cfg.SearchTimeout, Logger: logger}
}

// Execute runs every query and returns an outcome per query. Failed queries are
// recorded in their outcome rather than returned; the error is reserved for an
// unavailable search capability or a cancelled context.
func (x *Executor) Execute(ctx context.Context, queries []SerpQuery) (map[SerpQuery]SearchOutcome, error) {
	outcomes := make([]SearchOutcome, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			var results []SearchResult
			err := x.calls.do(gctx, capabilitySearch, x.timeout, func(ctx context.Context) error {
				res, err := x.search.Search(ctx, q.Query)
				if err != nil {
					return err
				}
				results = res
				return nil
			})
			if err != nil {
				if isFatal(gctx, err) {
					return fatalSearchErr(gctx, err)
				}
				x.Logger.Warn("Search failed", "query", q.Query, "error", err)
				outcomes[i] = SearchOutcome{Err: err}
				return nil
			}
			x.Logger.Info("Search successful", "query", q.Query, "count", len(results))
			outcomes[i] = SearchOutcome{Results: results}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	byQuery := make(map[SerpQuery]SearchOutcome, len(queries))
	for i, q := range queries {
		byQuery[q] = outcomes[i]
	}
	return byQuery, nil
}

func fatalSearchErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !IsUnavailable(err) {
		return ctxErr
	}
	return fmt.Errorf("web search: %w", err)
}

package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mikeboe/deep-research/pkg/metrics"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

// ResearchEngine drives the recursive research tree. It is the only caller of the
// planner, executor, processor and composer.
type ResearchEngine struct {
	Config    Config
	Planner   *Planner
	Executor  *Executor
	Processor *Processor
	Composer  *Composer
	Clarifier *Clarifier
	Logger    *slog.Logger

	// OnProgress is called from concurrently running branches.
	OnProgress func(p Progress)
}

// Option customizes a ResearchEngine.
type Option func(*engineOptions)

type engineOptions struct {
	logger     *slog.Logger
	tokenizer  splitter.Tokenizer
	onProgress func(Progress)
}

// WithLogger sets the logger used by the engine and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// WithTokenizer overrides the tokenizer used for prompt budgets.
func WithTokenizer(tok splitter.Tokenizer) Option {
	return func(o *engineOptions) { o.tokenizer = tok }
}

// WithProgress registers a progress callback.
func WithProgress(fn func(Progress)) Option {
	return func(o *engineOptions) { o.onProgress = fn }
}

func NewEngine(llm LanguageModel, search SearchEngine, cfg Config, opts ...Option) (*ResearchEngine, error) {
	if llm == nil {
		return nil, fmt.Errorf("language model is required")
	}
	if search == nil {
		return nil, fmt.Errorf("search engine is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tokenizer == nil {
		o.tokenizer = splitter.Default()
	}

	calls := newCaller(cfg.Concurrency, cfg.RetryBackoff, cfg.MaxBackoff, o.logger)
	return &ResearchEngine{
		Config:     cfg,
		Planner:    newPlanner(llm, calls, cfg, o.logger),
		Executor:   newExecutor(search, calls, cfg, o.logger),
		Processor:  newProcessor(llm, calls, cfg, o.tokenizer, o.logger),
		Composer:   newComposer(llm, calls, cfg, o.tokenizer, o.logger),
		Clarifier:  newClarifier(llm, calls, cfg, o.logger),
		Logger:     o.logger,
		OnProgress: o.onProgress,
	}, nil
}

// Research runs the full tree for topic and returns the markdown report.
func (e *ResearchEngine) Research(ctx context.Context, topic string, breadth, depth int) (string, error) {
	report, err := e.Investigate(ctx, Goal{Text: topic}, breadth, depth)
	if err != nil {
		return "", err
	}
	return report.Markdown, nil
}

// Investigate is Research for a goal that already carries open questions, such as
// the answers to clarifying questions. It returns the report with its learnings,
// sources and coverage.
func (e *ResearchEngine) Investigate(ctx context.Context, goal Goal, breadth, depth int) (*Report, error) {
	if strings.TrimSpace(goal.Text) == "" {
		return nil, fmt.Errorf("research topic is empty")
	}
	e.Logger.Info("Starting research", "topic", truncate(goal.Text, 80), "breadth", breadth, "depth", depth)

	acc, err := e.Run(ctx, goal, breadth, depth)
	if err != nil {
		return nil, err
	}
	cov := acc.Coverage()
	e.Logger.Info("Research tree complete", "learnings", acc.Len(), "sources", len(acc.Sources()),
		"queries", cov.Queries, "failed", cov.Failed)

	return e.Report(ctx, goal, acc)
}

// Run executes the research tree rooted at goal and returns the merged accumulator.
func (e *ResearchEngine) Run(ctx context.Context, goal Goal, breadth, depth int) (*Accumulator, error) {
	if breadth < 1 {
		return nil, fmt.Errorf("breadth must be a positive integer, got %d", breadth)
	}
	if depth < 0 {
		return nil, fmt.Errorf("depth must be non-negative, got %d", depth)
	}
	return e.branch(ctx, goal, breadth, depth, NewAccumulator())
}

// Report composes the final report from an accumulator.
func (e *ResearchEngine) Report(ctx context.Context, goal Goal, acc *Accumulator) (*Report, error) {
	e.emit(Progress{Phase: PhaseReporting, Goal: goal.Text, Learnings: acc.Len()})
	md, err := e.Composer.Compose(ctx, goal, acc)
	if err != nil {
		return nil, err
	}
	return &Report{
		Markdown:  md,
		Learnings: acc.Learnings(),
		Sources:   acc.Sources(),
		Coverage:  acc.Coverage(),
	}, nil
}

// Clarify returns up to n questions that would sharpen the research topic.
func (e *ResearchEngine) Clarify(ctx context.Context, topic string, n int) ([]string, error) {
	return e.Clarifier.Clarify(ctx, topic, n)
}

// nextBreadth halves breadth, rounding up, with a floor of one.
func nextBreadth(breadth int) int {
	return max(1, (breadth+1)/2)
}

// branch is one orchestration call. prior holds the learnings known when the branch
// was spawned and is only read. The returned accumulator belongs to the caller.
func (e *ResearchEngine) branch(ctx context.Context, goal Goal, breadth, depth int, prior *Accumulator) (*Accumulator, error) {
	acc := NewAccumulator()
	logger := e.Logger.With("depth", depth, "breadth", breadth)
	progress := Progress{Goal: goal.Text, Depth: depth, Breadth: breadth}

	// Planning
	progress.Phase = PhasePlanning
	e.emit(progress)
	queries, err := e.Planner.Plan(ctx, goal, breadth, prior)
	if err != nil {
		return nil, e.abort(ctx, err)
	}
	if len(queries) == 0 {
		logger.Warn("No queries generated, branch ends here", "goal", truncate(goal.Text, 80))
		metrics.Branches.WithLabelValues(metrics.OutcomeEmpty).Inc()
		progress.Phase = PhaseDone
		e.emit(progress)
		return acc, nil
	}

	// Searching
	progress.Phase = PhaseSearching
	progress.Queries = len(queries)
	e.emit(progress)
	outcomes, err := e.Executor.Execute(ctx, queries)
	if err != nil {
		return nil, e.abort(ctx, err)
	}
	failed := 0
	for _, q := range queries {
		if outcomes[q].Failed() {
			failed++
		}
	}
	acc.RecordQueries(len(queries), failed)
	progress.Failed = failed

	// Extracting
	progress.Phase = PhaseExtracting
	e.emit(progress)
	extractions := make([]Extraction, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		outcome := outcomes[q]
		if outcome.Failed() || len(outcome.Results) == 0 {
			continue
		}
		g.Go(func() error {
			ex, err := e.Processor.Extract(gctx, q, outcome.Results, breadth, goal.OpenQuestions)
			if err != nil {
				return err
			}
			extractions[i] = ex
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, e.abort(ctx, err)
	}

	var directions []Direction
	var learned []string
	seen := make(map[string]bool)
	for _, ex := range extractions {
		for _, l := range ex.Learnings {
			if !acc.Add(l) {
				continue
			}
			if key := NormalizeText(l.Text); !seen[key] {
				seen[key] = true
				learned = append(learned, l.Text)
			}
		}
		directions = append(directions, ex.Directions...)
	}
	progress.Learnings = acc.Len()
	logger.Info("Level extracted", "queries", len(queries), "failed", failed,
		"learnings", acc.Len(), "directions", len(directions))

	if depth == 0 || len(directions) == 0 {
		e.finish(acc, failed == len(queries))
		progress.Phase = PhaseDone
		e.emit(progress)
		return acc, nil
	}

	// Recursing
	progress.Phase = PhaseRecursing
	e.emit(progress)
	if len(directions) > breadth {
		directions = directions[:breadth]
	}
	childBreadth := nextBreadth(breadth)
	childDepth := depth - 1
	carried := carryQuestions(goal.OpenQuestions, learned, e.Config.MaxOpenQuestions)

	known := NewAccumulator()
	known.Merge(prior)
	known.Merge(acc)
	known = known.Snapshot()

	children := make([]*Accumulator, len(directions))
	g, gctx = errgroup.WithContext(ctx)
	for i, d := range directions {
		child := Goal{Text: d.Question, OpenQuestions: carried}
		g.Go(func() error {
			res, err := e.branch(gctx, child, childBreadth, childDepth, known)
			if err != nil {
				return err
			}
			children[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, e.abort(ctx, err)
	}

	for _, c := range children {
		acc.Merge(c)
	}
	e.finish(acc, false)
	progress.Phase = PhaseDone
	progress.Learnings = acc.Len()
	e.emit(progress)
	return acc, nil
}

// carryQuestions appends this level's learnings to the parent's open questions and
// keeps the newest limit entries.
func carryQuestions(parent, learned []string, limit int) []string {
	out := make([]string, 0, len(parent)+len(learned))
	out = append(out, parent...)
	out = append(out, learned...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (e *ResearchEngine) finish(acc *Accumulator, allFailed bool) {
	switch {
	case allFailed:
		metrics.Branches.WithLabelValues(metrics.OutcomeFailed).Inc()
	case acc.Len() == 0:
		metrics.Branches.WithLabelValues(metrics.OutcomeEmpty).Inc()
	default:
		metrics.Branches.WithLabelValues(metrics.OutcomeSuccess).Inc()
	}
}

// abort turns a branch error into the error returned upward. Cancellation of the
// caller wins over whatever error a sibling produced first.
func (e *ResearchEngine) abort(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.Branches.WithLabelValues(metrics.OutcomeCancelled).Inc()
		return ctxErr
	}
	metrics.Branches.WithLabelValues(metrics.OutcomeFailed).Inc()
	return err
}

func (e *ResearchEngine) emit(p Progress) {
	if e.OnProgress != nil {
		e.OnProgress(p)
	}
}

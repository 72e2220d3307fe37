package research

import (
	"context"
	"fmt"
	"time"
)

// Config holds the per-run knobs of the research engine.
type Config struct {
	Breadth     int
	Depth       int
	Concurrency int

	SearchTimeout time.Duration
	LLMTimeout    time.Duration
	RetryBackoff  time.Duration // initial backoff before the single retry
	MaxBackoff    time.Duration

	MaxPerQuery       int // upper cap on learnings/directions per query, regardless of breadth
	MaxPriorLearnings int // learnings sampled into the planning prompt
	MaxOpenQuestions  int // open questions carried into a child goal
	ResultTokenBudget int // token budget for one search result body
	ReportTokenBudget int // token budget for the learnings block of the report prompt
}

// DefaultConfig returns the values used by the CLI and server when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Breadth:           4,
		Depth:             2,
		Concurrency:       1,
		SearchTimeout:     15 * time.Second,
		LLMTimeout:        2 * time.Minute,
		RetryBackoff:      time.Second,
		MaxBackoff:        5 * time.Second,
		MaxPerQuery:       5,
		MaxPriorLearnings: 20,
		MaxOpenQuestions:  20,
		ResultTokenBudget: 25000,
		ReportTokenBudget: 150000,
	}
}

// Validate checks the invariants the orchestrator relies on.
func (c Config) Validate() error {
	if c.Breadth < 1 {
		return fmt.Errorf("breadth must be a positive integer, got %d", c.Breadth)
	}
	if c.Depth < 0 {
		return fmt.Errorf("depth must be non-negative, got %d", c.Depth)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be a positive integer, got %d", c.Concurrency)
	}
	return nil
}

// Goal is the topic researched at one recursion level, plus the open questions
// carried down from the parent level. Treat it as immutable once built.
type Goal struct {
	Text          string   `json:"text"`
	OpenQuestions []string `json:"open_questions,omitempty"`
}

// SerpQuery is a search query paired with the intent it was planned for.
type SerpQuery struct {
	Query        string `json:"query" jsonschema:"description=The search engine query"`
	ResearchGoal string `json:"research_goal" jsonschema:"description=What this query should uncover and how to continue once results are in"`
}

// SearchResult represents a single search result
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Learning is a short factual statement attributed to the URLs it was derived from.
type Learning struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
}

// Direction is a follow-up research question and the learnings that motivated it.
type Direction struct {
	Question   string   `json:"question"`
	Motivation []string `json:"motivation,omitempty"`
}

// Extraction is what the ResultProcessor produces for one query.
type Extraction struct {
	Learnings  []Learning
	Directions []Direction
}

// SearchOutcome is the per-query result of the SearchExecutor: either results or a failure.
type SearchOutcome struct {
	Results []SearchResult
	Err     error
}

// Failed reports whether the query produced no usable result set.
func (o SearchOutcome) Failed() bool {
	return o.Err != nil
}

// CompletionRequest is one call to the language model. When Schema is set the model
// is expected to answer with a JSON document matching it.
type CompletionRequest struct {
	System     string
	Prompt     string
	SchemaName string
	Schema     any
}

// LanguageModel is the capability the core consumes to plan, extract and write.
// Implementations must be safe for concurrent use.
type LanguageModel interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// SearchEngine is the Web Search capability. Implementations must be safe for concurrent use.
type SearchEngine interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// Phase is a state of one orchestration call.
type Phase string

const (
	PhasePlanning   Phase = "planning"
	PhaseSearching  Phase = "searching"
	PhaseExtracting Phase = "extracting"
	PhaseRecursing  Phase = "recursing"
	PhaseDone       Phase = "done"
	PhaseReporting  Phase = "reporting"
)

// Progress is emitted by the engine as branches move through their phases.
type Progress struct {
	Phase     Phase  `json:"phase"`
	Goal      string `json:"goal"`
	Depth     int    `json:"depth"`
	Breadth   int    `json:"breadth"`
	Queries   int    `json:"queries"`
	Failed    int    `json:"failed"`
	Learnings int    `json:"learnings"`
}

// Report is the final output of a research run.
type Report struct {
	Markdown  string     `json:"markdown"`
	Learnings []Learning `json:"learnings"`
	Sources   []string   `json:"sources"`
	Coverage  Coverage   `json:"coverage"`
}

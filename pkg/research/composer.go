package research

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/splitter"
)

type reportResponse struct {
	ReportMarkdown string `json:"report_markdown" jsonschema:"description=Final report on the topic in Markdown"`
}

// Composer writes the final markdown report from an accumulator.
type Composer struct {
	llm       LanguageModel
	calls     *caller
	timeout   time.Duration
	budget    int
	tokenizer splitter.Tokenizer
	Logger    *slog.Logger
}

func newComposer(llm LanguageModel, calls *caller, cfg Config, tok splitter.Tokenizer, logger *slog.Logger) *Composer {
	return &Composer{
		llm:       llm,
		calls:     calls,
		timeout:   cfg.LLMTimeout,
		budget:    cfg.ReportTokenBudget,
		tokenizer: tok,
		Logger:    logger,
	}
}

// Compose returns the report for goal. The body comes from the language model; the
// sources section is always generated from the accumulator so that it lists every
// attributed URL and nothing else.
func (c *Composer) Compose(ctx context.Context, goal Goal, acc *Accumulator) (string, error) {
	if acc == nil {
		acc = NewAccumulator()
	}
	learnings := acc.Learnings()
	sources := acc.Sources()
	if len(learnings) == 0 {
		c.Logger.Warn("No learnings gathered, writing empty report", "goal", truncate(goal.Text, 80))
		return fallbackReport(goal, nil, sources), nil
	}

	blocks := make([]string, 0, len(learnings))
	for _, l := range learnings {
		blocks = append(blocks, fmt.Sprintf("<learning>\n%s\n</learning>", l.Text))
	}
	learningsBlock := splitter.Slice(strings.Join(blocks, "\n"), c.budget, c.tokenizer)

	c.Logger.Info("Compiling final report", "learnings", len(learnings), "sources", len(sources))
	text, err := c.calls.complete(ctx, c.llm, c.timeout, CompletionRequest{
		System:     systemPrompt(),
		Prompt:     buildReportPrompt(goal, learningsBlock),
		SchemaName: "final_report",
		Schema:     schemaFor[reportResponse](),
	})
	if err != nil {
		if isFatal(ctx, err) {
			return "", fatalErr(ctx, err)
		}
		c.Logger.Warn("Report generation failed, using learnings list", "error", err)
		return fallbackReport(goal, learnings, sources), nil
	}

	var body string
	var resp reportResponse
	if err := decodeJSON(text, &resp); err == nil {
		body = resp.ReportMarkdown
	} else {
		body = text
	}

	body = strings.TrimSpace(scrubCitations(body, sources))
	if body == "" {
		c.Logger.Warn("Report body empty, using learnings list")
		return fallbackReport(goal, learnings, sources), nil
	}

	c.Logger.Info("Final report generated", "length", len(body))
	return body + "\n\n" + sourcesSection(sources), nil
}

var (
	mdHeading    = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	sourceTitle  = regexp.MustCompile(`(?i)^\W*(sources|references|bibliography|citations|works cited)\W*$`)
	// URLs may contain one level of balanced parentheses, as in Wikipedia titles.
	markdownLink = regexp.MustCompile(`\[([^\]]*)\]\((https?://(?:[^()\s]|\([^()\s]*\))+)\)`)
	bareURL      = regexp.MustCompile(`https?://(?:[^\s<>()\[\]"']|\([^\s<>()\[\]"']*\))+`)
)

// scrubCitations drops model-written source sections and any link to a URL the
// research did not gather.
func scrubCitations(body string, allowed []string) string {
	ok := make(map[string]bool, len(allowed))
	for _, u := range allowed {
		ok[u] = true
	}

	var kept []string
	skipLevel := 0
	for _, line := range strings.Split(body, "\n") {
		if m := mdHeading.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			level := len(m[1])
			if skipLevel > 0 && level <= skipLevel {
				skipLevel = 0
			}
			if skipLevel == 0 && sourceTitle.MatchString(m[2]) {
				skipLevel = level
				continue
			}
		}
		if skipLevel == 0 {
			kept = append(kept, line)
		}
	}
	out := strings.Join(kept, "\n")

	out = markdownLink.ReplaceAllStringFunc(out, func(s string) string {
		m := markdownLink.FindStringSubmatch(s)
		if ok[m[2]] {
			return s
		}
		return m[1]
	})
	return bareURL.ReplaceAllStringFunc(out, func(s string) string {
		trimmed := strings.TrimRight(s, ".,;:!?")
		if ok[trimmed] {
			return s
		}
		return s[len(trimmed):]
	})
}

func sourcesSection(sources []string) string {
	var sb strings.Builder
	sb.WriteString("## Sources\n\n")
	if len(sources) == 0 {
		sb.WriteString("No sources were gathered.\n")
		return sb.String()
	}
	for _, u := range sources {
		fmt.Fprintf(&sb, "- %s\n", u)
	}
	return sb.String()
}

func fallbackReport(goal Goal, learnings []Learning, sources []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n## Learnings\n\n", strings.TrimSpace(goal.Text))
	if len(learnings) == 0 {
		sb.WriteString("No learnings were gathered.\n")
	}
	for _, l := range learnings {
		fmt.Fprintf(&sb, "- %s\n", l.Text)
	}
	sb.WriteString("\n")
	sb.WriteString(sourcesSection(sources))
	return sb.String()
}

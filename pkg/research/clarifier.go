package research

import (
	"context"
	"log/slog"
	"time"
)

type clarifyResponse struct {
	Questions []flexString `json:"questions" jsonschema:"description=Follow-up questions to clarify the research direction"`
}

// Clarifier asks the model what it would want to know before researching a topic.
type Clarifier struct {
	llm     LanguageModel
	calls   *caller
	timeout time.Duration
	Logger  *slog.Logger
}

func newClarifier(llm LanguageModel, calls *caller, cfg Config, logger *slog.Logger) *Clarifier {
	return &Clarifier{llm: llm, calls: calls, timeout: cfg.LLMTimeout, Logger: logger}
}

// Clarify returns at most n follow-up questions for topic. An unusable answer yields
// no questions.
func (c *Clarifier) Clarify(ctx context.Context, topic string, n int) ([]string, error) {
	if n < 1 {
		n = 5
	}
	text, err := c.calls.complete(ctx, c.llm, c.timeout, CompletionRequest{
		System:     systemPrompt(),
		Prompt:     buildClarifyPrompt(topic, n),
		SchemaName: "feedback",
		Schema:     schemaFor[clarifyResponse](),
	})
	if err != nil {
		if isFatal(ctx, err) {
			return nil, fatalErr(ctx, err)
		}
		c.Logger.Warn("Could not generate follow-up questions", "error", err)
		return nil, nil
	}

	var resp clarifyResponse
	if err := decodeJSON(text, &resp); err != nil {
		c.Logger.Warn("Follow-up questions unparsable", "error", err)
		return nil, nil
	}
	return capStrings(flexStrings(resp.Questions), n), nil
}

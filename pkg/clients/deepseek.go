package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"github.com/mikeboe/deep-research/pkg/research"
)

// DeepSeek talks to the OpenAI-compatible DeepSeek API through langchaingo. The
// API only offers a JSON mode, so the schema travels in the system prompt.
type DeepSeek struct {
	llm llms.Model
}

func NewDeepSeek(apiKey, baseURL, model string) (*DeepSeek, error) {
	if apiKey == "" {
		return nil, missingKey("deepseek", "DEEPSEEK_API_KEY")
	}
	if baseURL == "" {
		baseURL = "https://api.deepseek.com"
	}
	if model == "" {
		model = "deepseek-chat"
	}

	llm, err := lcopenai.New(
		lcopenai.WithToken(apiKey),
		lcopenai.WithModel(model),
		lcopenai.WithBaseURL(baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init deepseek client: %w", err)
	}
	return &DeepSeek{llm: llm}, nil
}

func (d *DeepSeek) Complete(ctx context.Context, req research.CompletionRequest) (string, error) {
	var opts []llms.CallOption
	system := req.System
	if req.Schema != nil {
		system += schemaInstructions(req.Schema)
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := d.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}, opts...)
	if err != nil {
		return "", classify(fmt.Errorf("deepseek generation failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("deepseek returned no choices: %w", research.ErrEmptyResult)
	}
	return resp.Choices[0].Content, nil
}

func schemaInstructions(schema any) string {
	return "\n\n# Response Format:\nReturn the JSON object directly without any formatting or additional text. " +
		"The JSON object must follow this schema and include all required properties:\n" + research.SchemaText(schema)
}

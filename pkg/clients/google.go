package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/mikeboe/deep-research/pkg/research"
)

// ModelType names a Gemini model.
type ModelType string

const (
	// DefaultModel is the default model to use if none is specified
	DefaultModel ModelType = "gemini-3-flash-preview"
	ProModel     ModelType = "gemini-3-pro-preview"
)

// Google answers through the Gemini API in JSON mode.
type Google struct {
	client *genai.Client
	model  string
}

func NewGoogle(apiKey, model string) (*Google, error) {
	if apiKey == "" {
		return nil, missingKey("google", "GOOGLE_API_KEY")
	}
	if model == "" {
		model = string(DefaultModel)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}
	return &Google{client: client, model: model}, nil
}

func (g *Google) Complete(ctx context.Context, req research.CompletionRequest) (string, error) {
	system := req.System
	config := &genai.GenerateContentConfig{}
	if req.Schema != nil {
		system += schemaInstructions(req.Schema)
		config.ResponseMIMEType = "application/json"
	}
	config.SystemInstruction = &genai.Content{
		Parts: []*genai.Part{{Text: system}},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}},
	}, config)
	if err != nil {
		return "", classifyGoogle(fmt.Errorf("gemini generation failed: %w", err))
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini returned no content: %w", research.ErrEmptyResult)
	}
	return sb.String(), nil
}

func classifyGoogle(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return classifyStatus(apiErrPtr.Code, err)
	}
	return classify(err)
}

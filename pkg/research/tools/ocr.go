package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type PdfScrapeResponsePage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type OcrResponse struct {
	Pages []PdfScrapeResponsePage `json:"pages"`
}

// MistralOCR extracts the text of PDF documents with the Mistral OCR API.
type MistralOCR struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

func NewMistralOCR(apiKey string) *MistralOCR {
	return &MistralOCR{APIKey: apiKey, BaseURL: "https://api.mistral.ai/v1/ocr", client: newHTTPClient()}
}

// ScrapePDF returns the markdown of every page of the PDF at pdfURL.
func (m *MistralOCR) ScrapePDF(ctx context.Context, pdfURL string) (string, error) {
	if m.APIKey == "" {
		return "", missingKey("mistral", "MISTRAL_API_KEY")
	}
	pdfURL = strings.Replace(pdfURL, "http://", "https://", 1)

	reqBody := map[string]any{
		"model": "mistral-ocr-latest",
		"document": map[string]string{
			"type":         "document_url",
			"document_url": pdfURL,
		},
		"include_image_base64": false,
	}

	var ocrResponse OcrResponse
	err := postJSON(ctx, m.client, "mistral", m.BaseURL,
		map[string]string{"Authorization": "Bearer " + m.APIKey}, reqBody, &ocrResponse)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, page := range ocrResponse.Pages {
		fmt.Fprintf(&sb, "- Page %d -\n", page.Index)
		sb.WriteString(page.Markdown)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

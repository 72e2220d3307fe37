package splitter

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// TextSplitter wraps the langchaingo text splitter
type TextSplitter struct {
	splitter textsplitter.TextSplitter
}

// NewRecursiveCharacterTextSplitter creates a new recursive character text splitter
func NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap int) *TextSplitter {
	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	return &TextSplitter{splitter: ts}
}

// SplitText splits text into chunks
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	return ts.splitter.SplitText(text)
}

// Leading keeps the leading chunks of text that fit in maxChars runes, cutting at
// paragraph, line or word boundaries where possible.
func Leading(text string, maxChars int) (string, error) {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text, nil
	}
	chunks, err := NewRecursiveCharacterTextSplitter(maxChars, 0).SplitText(text)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	used := 0
	for _, c := range chunks {
		n := utf8.RuneCountInString(c)
		sep := 0
		if sb.Len() > 0 {
			sep = 2
		}
		if used+sep+n > maxChars {
			break
		}
		if sep > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(c)
		used += sep + n
	}
	if sb.Len() == 0 {
		return string([]rune(text)[:maxChars]), nil
	}
	return sb.String(), nil
}

package splitter

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer measures text in model tokens.
type Tokenizer interface {
	Count(text string) int
	// Head returns the first n tokens of text.
	Head(text string, n int) string
}

// Tiktoken counts tokens with an OpenAI BPE encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding, e.g. "cl100k_base".
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

func (t *Tiktoken) Head(text string, n int) string {
	tokens := t.enc.Encode(text, nil, nil)
	if n >= len(tokens) {
		return text
	}
	return t.enc.Decode(tokens[:n])
}

// Estimate approximates tokens as a fixed number of characters each.
type Estimate struct {
	CharsPerToken int
}

func (e Estimate) per() int {
	if e.CharsPerToken <= 0 {
		return 4
	}
	return e.CharsPerToken
}

func (e Estimate) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + e.per() - 1) / e.per()
}

func (e Estimate) Head(text string, n int) string {
	r := []rune(text)
	limit := n * e.per()
	if limit >= len(r) {
		return text
	}
	return string(r[:limit])
}

var (
	defaultOnce sync.Once
	defaultTok  Tokenizer
)

// Default returns the cl100k_base tokenizer, or a character estimate when the
// encoding cannot be loaded (tiktoken fetches its ranks on first use).
func Default() Tokenizer {
	defaultOnce.Do(func() {
		tok, err := NewTiktoken("cl100k_base")
		if err != nil {
			slog.Warn("Falling back to estimated token counts", "error", err)
			defaultTok = Estimate{CharsPerToken: 4}
			return
		}
		defaultTok = tok
	})
	return defaultTok
}

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

func sentences(text string) []string {
	var out []string
	start := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = append(out, text[start:m[0]+1])
		start = m[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// Slice trims text to at most budget tokens, cutting only at sentence boundaries.
// When even the first sentence is over budget it falls back to a hard token cut.
func Slice(text string, budget int, tok Tokenizer) string {
	if budget <= 0 || tok == nil || tok.Count(text) <= budget {
		return text
	}

	var sb strings.Builder
	used := 0
	for _, s := range sentences(text) {
		n := tok.Count(s)
		sep := 0
		if sb.Len() > 0 {
			sep = 1
		}
		if used+sep+n > budget {
			break
		}
		if sep > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s)
		used += sep + n
	}
	if strings.TrimSpace(sb.String()) == "" {
		return strings.TrimSpace(tok.Head(text, budget))
	}
	return strings.TrimSpace(sb.String())
}

package research

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/invopop/jsonschema"
)

var (
	fencedJSON   = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")
	controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]+`)
)

// ExtractJSON pulls a JSON document out of a model answer: fenced ```json blocks are
// unwrapped, stray control characters removed, and leading prose before the first
// brace is skipped.
func ExtractJSON(text string) string {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.TrimSpace(controlChars.ReplaceAllString(text, ""))
	if start := strings.IndexAny(text, "{["); start > 0 {
		text = text[start:]
	}
	if end := strings.LastIndexAny(text, "}]"); end >= 0 && end < len(text)-1 {
		text = text[:end+1]
	}
	return text
}

// decodeJSON unmarshals a model answer into out.
func decodeJSON(text string, out any) error {
	payload := ExtractJSON(text)
	if payload == "" {
		return fmt.Errorf("%w: no JSON in model output", ErrEmptyResult)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("json parse error: %w", err)
	}
	return nil
}

// schemaFor reflects a strict JSON schema for T, suitable for structured output modes.
func schemaFor[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// SchemaText renders a schema as indented JSON for providers that only take it as
// prompt instructions.
func SchemaText(schema any) string {
	if schema == nil {
		return ""
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

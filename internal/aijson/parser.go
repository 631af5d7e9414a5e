// Package aijson extracts JSON values embedded in free-form model output.
// Text-generation providers routinely wrap JSON in prose or markdown code
// fences despite instructions not to, so decoding goes through a tolerant
// extraction step before json.Unmarshal.
package aijson

import (
	"encoding/json"
	"fmt"
	"strings"

	"shortreel/internal/domain"
)

// Extract locates the first balanced JSON object or array in text and
// returns the raw substring. Markdown fences are stripped first. Returns
// domain.ErrNoJSON when no opening bracket exists.
func Extract(text string) (string, error) {
	cleaned := stripFences(strings.TrimSpace(text))

	start := strings.IndexAny(cleaned, "{[")
	if start < 0 {
		return "", domain.ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		c := cleaned[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return cleaned[start : i+1], nil
			}
		}
	}
	// Unbalanced output: hand the tail to the JSON decoder and let it report
	// the syntax error with position information.
	return cleaned[start:], nil
}

// Decode extracts the first JSON value from text and unmarshals it into v.
// No semantic validation is performed; callers check shape themselves.
func Decode(text string, v any) error {
	if strings.TrimSpace(text) == "" {
		return domain.ErrNoJSON
	}
	candidate, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return fmt.Errorf("decode ai json: %w", err)
	}
	return nil
}

func stripFences(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

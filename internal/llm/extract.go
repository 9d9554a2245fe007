package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

// fencePattern matches a fenced block: ```lang\n body ```
var fencePattern = regexp.MustCompile("(?s)```([A-Za-z0-9_+.-]*)[ \\t]*\\r?\\n(.*?)```")

type fence struct {
	lang string
	body string
}

func fences(text string) []fence {
	var out []fence
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		out = append(out, fence{lang: strings.ToLower(m[1]), body: m[2]})
	}
	return out
}

// ExtractJSON recovers a JSON object or array from a model reply. A
// ```json fence wins, then any fence whose body parses, then the first
// balanced object or array in the raw text. Comments and trailing commas
// are tolerated.
func ExtractJSON(text string) (string, error) {
	blocks := fences(text)
	for _, f := range blocks {
		if f.lang == "json" || f.lang == "jsonc" {
			if s, ok := normalizeJSON(f.body); ok {
				return s, nil
			}
		}
	}
	for _, f := range blocks {
		if s, ok := normalizeJSON(f.body); ok {
			return s, nil
		}
	}
	if s, ok := normalizeJSON(text); ok {
		return s, nil
	}
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		end := balancedEnd(text, i)
		if end < 0 {
			continue
		}
		if s, ok := normalizeJSON(text[i:end]); ok {
			return s, nil
		}
	}
	return "", ErrNoJSON
}

// DecodeJSON extracts JSON from text and unmarshals it into v.
func DecodeJSON(text string, v interface{}) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode JSON: %w", err)
	}
	return nil
}

func normalizeJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return "", false
	}
	clean := strings.TrimSpace(string(jsonc.ToJSON([]byte(s))))
	if !json.Valid([]byte(clean)) {
		return "", false
	}
	return clean, true
}

// balancedEnd returns the index just past the bracket matching text[start],
// skipping string literals, or -1.
func balancedEnd(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
				return i + 1
			}
		}
	}
	return -1
}

// ExtractCode returns the body of the first fenced block tagged with one
// of langs, falling back to the first fenced block of any language.
func ExtractCode(text string, langs ...string) (string, error) {
	blocks := fences(text)
	for _, f := range blocks {
		for _, lang := range langs {
			if f.lang == strings.ToLower(lang) {
				if body := strings.TrimSpace(f.body); body != "" {
					return body + "\n", nil
				}
			}
		}
	}
	for _, f := range blocks {
		if body := strings.TrimSpace(f.body); body != "" {
			return body + "\n", nil
		}
	}
	return "", ErrNoCode
}

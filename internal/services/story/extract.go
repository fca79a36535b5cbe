package story

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSONObject is returned when the text holds no brace-delimited span
var ErrNoJSONObject = errors.New("no JSON found in response")

// ExtractJSONObject parses the span from the first '{' to the last '}' in text.
// Prose, markdown fences or thinking text around the object are ignored.
func ExtractJSONObject(text string) (map[string]interface{}, error) {
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first < 0 || last < first {
		return nil, ErrNoJSONObject
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(text[first:last+1]), &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON in response: %w", err)
	}
	return payload, nil
}

// truncateRunes returns at most limit runes of s
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

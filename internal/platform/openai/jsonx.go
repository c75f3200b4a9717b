package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
)

// StripFences removes a surrounding ``` or ```json code fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "json"), "JSON")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseJSONObject parses model output into an object, tolerating fences and
// leading or trailing prose around a single top-level object.
func ParseJSONObject(artifact, raw string) (map[string]any, error) {
	text := StripFences(raw)
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return obj, nil
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err == nil {
			return obj, nil
		}
	}
	if text == "" {
		return nil, &apperr.MalformedResponse{Artifact: artifact, Err: fmt.Errorf("empty response")}
	}
	return nil, &apperr.MalformedResponse{Artifact: artifact, Err: fmt.Errorf("not a JSON object")}
}

// EstimateTokens approximates token count at four characters per token.
func EstimateTokens(text string) int {
	n := len([]rune(strings.TrimSpace(text)))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

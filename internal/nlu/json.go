package nlu

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoIntent = errors.New("response carries no intent")

// intentPayload is the wire form of a model-produced classification.
// Entities arrive loosely typed; only string values are kept.
type intentPayload struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities"`
	Message    string         `json:"message"`
}

// parseIntentResponse turns a raw model completion into a Result. The text
// may be wrapped in markdown code fences and may surround the JSON object
// with prose; the first balanced object is extracted and parsed. A payload
// without an intent is an error so the attempt counts as failed.
func parseIntentResponse(content string) (Result, error) {
	raw := extractJSONObject(stripCodeFences(content))
	if raw == "" {
		return Result{}, fmt.Errorf("no JSON object in response: %q", truncate(content, 120))
	}

	var p intentPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Result{}, fmt.Errorf("parsing intent JSON: %w", err)
	}
	if p.Intent == "" {
		return Result{}, errNoIntent
	}

	res := Result{
		Intent:     p.Intent,
		Confidence: p.Confidence,
		Entities:   map[string]string{},
		Message:    p.Message,
	}
	for k, v := range p.Entities {
		if s, ok := v.(string); ok && s != "" {
			res.Entities[k] = s
		}
	}
	return res, nil
}

// stripCodeFences removes markdown fence markers (``` and ```json) while
// keeping the fenced content.
func stripCodeFences(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// extractJSONObject returns the first balanced {...} block, tracking string
// literals so braces inside values do not confuse the depth count.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

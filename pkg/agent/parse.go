package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// parsedResponse is the structured protocol the model is asked to emit:
// a single JSON object carrying a thought plus either a final answer or a
// tool request.
type parsedResponse struct {
	Thought string         `json:"thought"`
	Answer  *string        `json:"answer"`
	Tool    *string        `json:"tool"`
	Params  map[string]any `json:"params"`
}

// IsAnswer reports whether the model produced a final answer.
func (p *parsedResponse) IsAnswer() bool {
	return p.Answer != nil
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// parseResponse extracts the protocol object from model output. Models
// occasionally wrap the object in prose or a code fence, so parsing tries
// the first fenced block, then the first top-level {...} span. A decode
// failure or an object with neither an answer nor a tool string field is
// reported as unparseable, not as an error: the caller degrades to
// treating the raw text as a direct answer.
func parseResponse(content string) (*parsedResponse, bool) {
	candidate := ""
	if m := fencedBlockRe.FindStringSubmatch(content); m != nil {
		candidate = m[1]
	} else {
		candidate = firstObjectSpan(content)
	}
	if candidate == "" {
		return nil, false
	}

	var parsed parsedResponse
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return nil, false
	}
	if parsed.Answer == nil && parsed.Tool == nil {
		return nil, false
	}
	if parsed.Tool != nil && strings.TrimSpace(*parsed.Tool) == "" {
		return nil, false
	}
	return &parsed, true
}

// firstObjectSpan returns the first brace-balanced {...} span in s,
// ignoring braces inside JSON string literals.
func firstObjectSpan(s string) string {
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

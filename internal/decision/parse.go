package decision

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
)

// fencedBlockPattern matches a fenced code block, optionally tagged json.
var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")

// Parse extracts a Decision from raw leader output. The first fenced block
// wins when present; otherwise the first balanced JSON object in the text is
// used. Parse failures come back as malformed-output errors so the caller
// falls through to the next agent instead of retrying blindly.
func Parse(raw string) (*Decision, error) {
	candidate := extractCandidate(raw)
	if candidate == "" {
		return nil, errors.NewMalformedOutputError("no structured block found in response", nil)
	}

	var d Decision
	if err := json.Unmarshal([]byte(candidate), &d); err != nil {
		return nil, errors.NewMalformedOutputError("structured block is not valid JSON", err)
	}
	return &d, nil
}

func extractCandidate(raw string) string {
	if m := fencedBlockPattern.FindStringSubmatch(raw); m != nil {
		if obj := firstObject(m[1]); obj != "" {
			return obj
		}
		return strings.TrimSpace(m[1])
	}
	return firstObject(raw)
}

// firstObject returns the first balanced top-level JSON object, skipping
// braces inside string literals.
func firstObject(s string) string {
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

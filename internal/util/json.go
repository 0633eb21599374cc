package util

import (
	"regexp"
	"strings"
)

var jsonCodeBlockRegex = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// ExtractJSONObject pulls the first JSON object out of an LLM response.
// Markdown code fences and prose around the object are dropped; if no
// balanced object is found the trimmed input is returned unchanged so the
// decoder can report the syntax error.
func ExtractJSONObject(s string) string {
	if matches := jsonCodeBlockRegex.FindStringSubmatch(s); len(matches) > 1 {
		s = matches[1]
	}
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	if start == -1 {
		return s
	}
	if end := findMatchingBracket(s, start, '{', '}'); end != -1 {
		return s[start : end+1]
	}
	return s
}

// ExtractJSONObjects returns every top-level balanced JSON object in an LLM
// response, in order. A markdown code fence narrows the search to its body.
func ExtractJSONObjects(s string) []string {
	if matches := jsonCodeBlockRegex.FindStringSubmatch(s); len(matches) > 1 {
		s = matches[1]
	}

	var objects []string
	for pos := 0; pos < len(s); {
		start := strings.IndexByte(s[pos:], '{')
		if start == -1 {
			break
		}
		start += pos
		end := findMatchingBracket(s, start, '{', '}')
		if end == -1 {
			break
		}
		objects = append(objects, s[start:end+1])
		pos = end + 1
	}
	return objects
}

// findMatchingBracket finds the closing bracket for the one at startPos,
// ignoring brackets inside string literals. Returns -1 if unbalanced.
func findMatchingBracket(s string, startPos int, openChar, closeChar byte) int {
	count := 0
	inString := false
	escaped := false

	for i := startPos; i < len(s); i++ {
		ch := s[i]

		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case openChar:
			count++
		case closeChar:
			count--
			if count == 0 {
				return i
			}
		}
	}

	return -1
}

// SanitizeJSON escapes literal newlines that LLMs leave inside string values
func SanitizeJSON(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		switch {
		case escaped:
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString && (ch == '\n' || ch == '\r'):
			result.WriteString("\\n")
			if ch == '\r' && i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			continue
		}

		result.WriteByte(ch)
	}

	return result.String()
}

package llm

import (
	"regexp"
	"strings"
)

var (
	// fencePattern matches the body of a markdown code fence.
	fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON returns the first JSON object found in an LLM response, with
// comments and trailing commas removed. Fenced blocks are searched before the
// surrounding prose. Returns "" when the text holds no object.
func ExtractJSON(content string) string {
	for _, m := range fencePattern.FindAllStringSubmatch(content, -1) {
		if obj := firstObject(m[1]); obj != "" {
			return cleanJSON(obj)
		}
	}
	if obj := firstObject(content); obj != "" {
		return cleanJSON(obj)
	}
	return ""
}

// StripFences returns the body of the first markdown code fence, or the
// trimmed content when there is none.
func StripFences(content string) string {
	if m := fencePattern.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(content)
}

// firstObject returns the first balanced {...} span in s, honouring string
// literals so braces inside values do not count.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		depth := 0
		inString, escaped := false, false
		for i := start; i < len(s); i++ {
			ch := s[i]
			switch {
			case escaped:
				escaped = false
			case inString && ch == '\\':
				escaped = true
			case ch == '"':
				inString = !inString
			case inString:
			case ch == '{':
				depth++
			case ch == '}':
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
		// Unbalanced from here; try the next opening brace.
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			return ""
		}
		start += next + 1
	}
	return ""
}

// cleanJSON removes JavaScript-style comments and trailing commas from JSON.
// LLMs commonly produce these invalid JSON artifacts.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingCommaPattern.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment removes a // comment from a JSON line, respecting string values.
//
//	"url": "http://example.com" // comment  ->  "url": "http://example.com"
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}

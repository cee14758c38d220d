package llm

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON indicates that no JSON payload could be located in a response.
// Callers that fall back to a conservative default on parse failure can use
// this sentinel to distinguish "model returned nothing parseable" from a
// genuinely empty response.
var ErrNoJSON = errors.New("llm: no JSON payload found in response")

// Pre-compiled patterns for JSON extraction from LLM responses.
var (
	// fencedObjectPattern matches a JSON object inside a markdown code block.
	fencedObjectPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	// bareObjectPattern matches any JSON object (greedy fallback).
	bareObjectPattern = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	// fencedArrayPattern matches a JSON array inside a markdown code block.
	fencedArrayPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\[.*\\])\\s*```")
	// bareArrayPattern matches any JSON array (greedy fallback).
	bareArrayPattern = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractObject extracts a JSON object from an LLM response string.
// It tolerates markdown code fences, JavaScript-style line comments, and
// trailing commas. Returns ErrNoJSON when no object can be located.
func ExtractObject(content string) (string, error) {
	var raw string
	if m := fencedObjectPattern.FindStringSubmatch(content); len(m) > 1 {
		raw = m[1]
	} else {
		raw = bareObjectPattern.FindString(content)
	}
	if raw == "" {
		return "", ErrNoJSON
	}
	return cleanJSON(raw), nil
}

// ExtractArray extracts a JSON array from an LLM response string.
// Returns ErrNoJSON when no array can be located.
func ExtractArray(content string) (string, error) {
	var raw string
	if m := fencedArrayPattern.FindStringSubmatch(content); len(m) > 1 {
		raw = m[1]
	} else {
		raw = bareArrayPattern.FindString(content)
	}
	if raw == "" {
		return "", ErrNoJSON
	}
	return cleanJSON(raw), nil
}

// cleanJSON removes JavaScript-style comments and trailing commas.
// LLMs commonly produce these invalid JSON artifacts.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, stripLineComment(line))
	}
	result := strings.Join(cleaned, "\n")
	return trailingCommaPattern.ReplaceAllString(result, "$1")
}

// stripLineComment removes a // comment from a JSON line, respecting string
// values so URLs like "http://example.com" survive intact.
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

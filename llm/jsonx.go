package llm

import (
	"fmt"
	"regexp"
	"strings"
)

// codeBlockRe strips markdown code fences from LLM output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// trailingCommaRe removes commas that precede a closing bracket, a common
// LLM formatting error that breaks strict JSON parsing.
var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// extractJSONArray attempts to find a valid JSON array in the LLM response
// text. It handles common quirks: markdown code blocks, prose before/after
// the JSON, and trailing commas.
func extractJSONArray(raw string) (string, error) {
	raw = stripFences(raw)

	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		return fixCommas(raw), nil
	}

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		return fixCommas(raw[start : end+1]), nil
	}

	return "", fmt.Errorf("no JSON array found in response")
}

// extractJSONObject attempts to find a valid JSON object in the LLM
// response text.
func extractJSONObject(raw string) (string, error) {
	raw = stripFences(raw)

	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		return fixCommas(raw), nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return fixCommas(raw[start : end+1]), nil
	}

	return "", fmt.Errorf("no JSON object found in response")
}

func stripFences(raw string) string {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}
	return strings.TrimSpace(raw)
}

func fixCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

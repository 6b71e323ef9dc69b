package generator

import (
	"regexp"
	"strings"
)

var (
	fencePattern      = regexp.MustCompile("(?s)^```(?:sql|SQL)?\\s*\\n?(.*?)\\n?```$")
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// ExtractSQL cleans raw completion text into a candidate statement: one
// markdown code fence is unwrapped if the whole response is fenced, a single
// layer of surrounding quotes is stripped, and whitespace runs collapse to
// single spaces. It deliberately does no more than that; everything else is
// the validator's job.
func ExtractSQL(raw string) string {
	text := strings.TrimSpace(raw)

	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	text = stripMatchingQuotes(text)
	text = whitespacePattern.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// stripMatchingQuotes removes one layer of matching single or double quotes
// wrapping the entire text.
func stripMatchingQuotes(text string) string {
	if len(text) < 2 {
		return text
	}
	first, last := text[0], text[len(text)-1]
	if first == last && (first == '\'' || first == '"') {
		return strings.TrimSpace(text[1 : len(text)-1])
	}
	return text
}

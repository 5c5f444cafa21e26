package utils

import "strings"

// Prefix returns at most limit runes of s. Unlike TruncateForLog it neither trims
// nor marks the cut, so the result is safe to persist or embed into prompts.
func Prefix(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// WordCount counts whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

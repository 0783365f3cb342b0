// Package utils provides shared utilities for text and logging.
package utils

import "strings"

// Truncate returns s truncated to maxLen runes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// CollapseSpaces replaces runs of whitespace (including newlines) with a single space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TitleFromText derives a short single-line title from free text.
// Cuts on a word boundary when possible.
func TitleFromText(s string, maxLen int) string {
	s = CollapseSpaces(s)
	if maxLen <= 0 || len([]rune(s)) <= maxLen {
		return s
	}
	cut := string([]rune(s)[:maxLen])
	if i := strings.LastIndex(cut, " "); i > maxLen/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "..."
}

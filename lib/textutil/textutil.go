package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Compact collapses all runs of whitespace into a single space.
func Compact(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// Snippet returns a compacted prefix of s at most max runes long, used to
// attach a bit of unexpected page content to error messages.
func Snippet(s string, max int) string {
	s = Compact(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

// ContainsAny reports whether the lowercase form of s contains any of the markers,
// markers are expected to already be lowercase.
func ContainsAny(s string, markers []string) bool {
	s = strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

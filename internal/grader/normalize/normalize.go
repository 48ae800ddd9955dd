// Package normalize canonicalizes program output so comparisons ignore
// case, line-ending style, tabs, blank lines and surrounding whitespace.
package normalize

import (
	"regexp"
	"strings"
)

const tabReplacement = "    "

var (
	lineBreaks = regexp.MustCompile(`\r\n|\n\r|\n|\r`)
	// The text is upper-cased before the tab step, so the two-character
	// escape can appear as either \t or \T.
	escapedTab = regexp.MustCompile(`\\[tT]`)
)

// Normalize returns the canonical form of text. It is pure and idempotent.
func Normalize(text string) string {
	s := strings.TrimSpace(text)
	s = strings.ToUpper(s)
	s = lineBreaks.ReplaceAllString(s, "\n")
	s = escapedTab.ReplaceAllString(s, tabReplacement)
	s = strings.ReplaceAll(s, "\t", tabReplacement)

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// Equal reports whether two outputs are the same after normalization.
func Equal(actual, expected string) bool {
	return Normalize(actual) == Normalize(expected)
}

var escaper = strings.NewReplacer("\r", `\r`, "\n", `\n`, "\t", `\t`)

// Escape makes line-ending and tab characters visible for log output.
func Escape(text string) string {
	return escaper.Replace(text)
}

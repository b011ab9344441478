package normalize

import (
	"regexp"
	"strings"
)

var multiSpace = regexp.MustCompile(`\s+`)

// NormalizeName lowercases, collapses whitespace, and trims the input. The
// result is a matching key for names typed by different operators.
// Returns nil if the input is nil or the result is empty.
func NormalizeName(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.ToLower(DisplayName(*v))
	if s == "" {
		return nil
	}
	return &s
}

// DisplayName trims and collapses whitespace but keeps the case.
func DisplayName(s string) string {
	return multiSpace.ReplaceAllString(strings.TrimSpace(s), " ")
}

package normalize

import (
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)

// NormalizeCode trims whitespace, uppercases, and strips non-alphanumeric
// characters, so "03.05.01.010-7" and "0305010107" name the same procedure.
// Returns nil if the input is nil or the result is empty.
func NormalizeCode(v *string) *string {
	if v == nil {
		return nil
	}
	s := Code(*v)
	if s == "" {
		return nil
	}
	return &s
}

// Code is NormalizeCode for non-nullable input; it returns "" for blank codes.
func Code(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return nonAlphanumeric.ReplaceAllString(s, "")
}

package utils

import "strings"

// OptionalText trims s and returns nil when nothing is left, so optional free-text
// fields such as movement reasons are stored as NULL instead of blanks.
func OptionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

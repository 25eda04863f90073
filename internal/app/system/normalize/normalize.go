// Package normalize provides helper functions for consistent string normalization
// across the application. Use these helpers instead of scattered strings.ToLower
// and strings.TrimSpace calls to ensure consistent behavior.
package normalize

import "strings"

// Email normalizes an email address by trimming whitespace and converting to lowercase.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name normalizes a display name by trimming whitespace.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// Role normalizes a role value by trimming whitespace and converting to lowercase.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IdentityKey normalizes a user or session key that names a log scope.
// Keys are case-sensitive; only surrounding whitespace is dropped.
func IdentityKey(s string) string {
	return strings.TrimSpace(s)
}

// List splits a comma-separated config value, trimming entries and
// dropping empty ones.
func List(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

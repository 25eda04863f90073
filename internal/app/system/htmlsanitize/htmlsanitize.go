// Package htmlsanitize strips markup from client-submitted log messages
// before they are stored and fanned out to other browsers.
// It uses bluemonday's strict policy so no element survives; the text is
// then unescaped again because viewers escape on display.
package htmlsanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared strict policy, creating it on first use.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// StripTags removes every HTML element from s, dropping the contents of
// script and style elements, and returns plain text.
func StripTags(s string) string {
	if IsPlainText(s) {
		return s
	}
	return html.UnescapeString(getPolicy().Sanitize(s))
}

// IsPlainText checks if content appears to be plain text (no HTML tags).
func IsPlainText(content string) bool {
	if content == "" {
		return true
	}
	// Valid HTML tags require both characters.
	return !strings.Contains(content, "<") || !strings.Contains(content, ">")
}

// Package scrub strips sensitive and unencodable content from failure logs.
package scrub

import (
	"regexp"
	"strings"
)

// Redaction tokens.
const (
	RedactedEmail  = "[REDACTED_EMAIL]"
	RedactedSecret = "[REDACTED_SECRET]"
)

var (
	emailPattern  = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.\w+`)
	secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?key|token|secret|password|passwd)\s*[:=]\s*["']?[^\s"',;]+["']?`)
)

// Secrets redacts email addresses and key/token/secret style assignments. The
// assignment key is kept so readers can tell what was removed.
func Secrets(text string) string {
	if text == "" {
		return ""
	}
	text = emailPattern.ReplaceAllString(text, RedactedEmail)
	return secretPattern.ReplaceAllString(text, "${1}="+RedactedSecret)
}

// ASCII drops every rune outside 7-bit ASCII so downstream document encoders never
// see emoji or other multi-byte content.
func ASCII(text string) string {
	return strings.Map(func(r rune) rune {
		if r > 0x7f {
			return -1
		}
		return r
	}, text)
}

// Package grouping normalizes event messages and derives the stable
// fingerprint used to collapse duplicate events into one issue group.
package grouping

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Normalization regexes compiled once at package init. Order matters: each
// pass consumes the previous pass's output, so emails go first (they contain
// digits), then UUIDs, then hex literals, then bare integers.
var (
	reEmail  = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	reUUID   = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}\b`)
	reHex    = regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`)
	reNumber = regexp.MustCompile(`\b\d+\b`)
)

const (
	maxNormalized = 500
	maxTitle      = 120
)

// Normalize replaces volatile tokens in a message with placeholders and
// truncates the result to 500 characters. It is idempotent.
func Normalize(message string) string {
	if message == "" {
		return ""
	}
	m := strings.TrimSpace(message)
	m = reEmail.ReplaceAllString(m, "<email>")
	m = reUUID.ReplaceAllString(m, "<uuid>")
	m = reHex.ReplaceAllString(m, "<hex>")
	m = reNumber.ReplaceAllString(m, "<n>")
	return truncate(m, maxNormalized)
}

// Fingerprint computes the grouping key and display title for a message.
// The fingerprint is "{level}:{normalized message}". The title is the first
// 120 characters of the normalized message, falling back to the raw message,
// falling back to "event".
func Fingerprint(message, level string) (fingerprint, title string) {
	normalized := Normalize(message)
	fingerprint = level + ":" + normalized

	title = truncate(normalized, maxTitle)
	if title == "" {
		title = truncate(message, maxTitle)
	}
	if title == "" {
		title = "event"
	}
	return fingerprint, title
}

// truncate cuts after n characters, never mid-rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

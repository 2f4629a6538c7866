// Package security holds input sanitization and session tokens for the
// HTTP surface.
package security

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxDescriptionRunes bounds free-text stored in the ledger.
const MaxDescriptionRunes = 200

var htmlPolicy = bluemonday.StrictPolicy()

// SanitizeText strips markup and control bytes and truncates to max runes.
func SanitizeText(input string, max int) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(htmlPolicy.Sanitize(input))
	if max > 0 && utf8.RuneCountInString(input) > max {
		input = string([]rune(input)[:max])
	}
	return input
}

// SanitizeDescription cleans a ledger description supplied by a client.
func SanitizeDescription(input string) string {
	return SanitizeText(input, MaxDescriptionRunes)
}

// SanitizeNickname cleans a display name.
func SanitizeNickname(input string) string {
	return SanitizeText(input, 64)
}

package chat

import (
	"regexp"
	"strings"
)

var (
	markdownHeading  = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	markdownEmphasis = regexp.MustCompile(`[*_]{1,3}([^*_]+)[*_]{1,3}`)
	markdownCode     = regexp.MustCompile("`{1,3}[^`]*`{1,3}")
	markdownLink     = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	bulletPrefix     = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	multiSpace       = regexp.MustCompile(`[ \t]{2,}`)
)

// SanitizeForSpeech strips markdown decoration from model text so a speech
// synthesizer does not read asterisks and backticks aloud.
func SanitizeForSpeech(text string) string {
	out := markdownCode.ReplaceAllString(text, "")
	out = markdownLink.ReplaceAllString(out, "$1")
	out = markdownHeading.ReplaceAllString(out, "")
	out = markdownEmphasis.ReplaceAllString(out, "$1")
	out = bulletPrefix.ReplaceAllString(out, "")
	out = multiSpace.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

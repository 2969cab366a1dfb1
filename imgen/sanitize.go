package imgen

import (
	"regexp"
	"strings"
)

// Prompt sanitization is a best-effort filter applied before
// transmission, not a content-safety guarantee: matched denylist terms
// are redacted, everything else passes through unchanged.

var whitespaceRe = regexp.MustCompile(`\s+`)

// denylist groups unsafe-content keywords by category. Matching is
// case-insensitive on word boundaries.
var denylist = map[string][]string{
	"jailbreak": {
		"ignore previous instructions", "ignore all instructions",
		"system prompt", "jailbreak", "DAN mode",
	},
	"explicit": {
		"nsfw", "explicit nudity", "pornographic",
	},
	"violence": {
		"gore", "graphic violence", "dismemberment",
	},
	"illegal": {
		"how to make a bomb", "child abuse", "csam",
	},
}

var denylistRe = func() *regexp.Regexp {
	var terms []string
	for _, group := range denylist {
		for _, term := range group {
			terms = append(terms, regexp.QuoteMeta(term))
		}
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(terms, "|") + `)\b`)
}()

// SanitizePrompt collapses runs of whitespace and redacts denylisted
// terms before a prompt is sent upstream.
func SanitizePrompt(prompt string) string {
	out := whitespaceRe.ReplaceAllString(strings.TrimSpace(prompt), " ")
	return denylistRe.ReplaceAllString(out, "[redacted]")
}

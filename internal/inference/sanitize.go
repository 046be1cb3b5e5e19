package inference

import (
	"strings"
	"unicode"

	"github.com/samcharles93/charcomplete/internal/vocab"
)

// Sanitize rewrites characters the vocabulary cannot encode. A character is
// replaced by its other case when that is known, whitespace by a space, and
// anything else by pad.
func Sanitize(text string, v *vocab.Vocabulary, pad rune) string {
	if v == nil || v.Validate(text) == nil {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, c := range text {
		b.WriteRune(sanitizeRune(c, v, pad))
	}
	return b.String()
}

func sanitizeRune(c rune, v *vocab.Vocabulary, pad rune) rune {
	if v.Contains(c) {
		return c
	}
	for _, alt := range []rune{unicode.ToLower(c), unicode.ToUpper(c)} {
		if alt != c && v.Contains(alt) {
			return alt
		}
	}
	if unicode.IsSpace(c) && v.Contains(' ') {
		return ' '
	}
	return pad
}

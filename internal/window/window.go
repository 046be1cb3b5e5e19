// Package window keeps the fixed-length trailing character window fed to the
// model. Lengths are counted in characters (runes), not bytes.
package window

import (
	"strings"
	"unicode/utf8"
)

// DefaultPad fills the left side of short windows.
const DefaultPad = ' '

// Normalize returns exactly n characters: text left-padded with pad when it
// is shorter, or its trailing n characters when it is longer.
func Normalize(text string, n int, pad rune) string {
	if n <= 0 {
		return ""
	}
	count := utf8.RuneCountInString(text)
	switch {
	case count == n:
		return text
	case count < n:
		return strings.Repeat(string(pad), n-count) + text
	default:
		return Tail(text, n)
	}
}

// Tail returns the last n characters of text.
func Tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	i := len(text)
	for kept := 0; i > 0 && kept < n; kept++ {
		_, size := utf8.DecodeLastRuneInString(text[:i])
		i -= size
	}
	return text[i:]
}

// Shift drops the oldest character of w and appends c.
func Shift(w string, c rune) string {
	if w == "" {
		return ""
	}
	_, size := utf8.DecodeRuneInString(w)
	return w[size:] + string(c)
}

// NextWordEnd returns the caret position (in runes) reached by accepting a
// suggestion from pos: just before the next space, or past it to the end of
// the following word when the caret already sits on that space. Without a
// further space the end of text is returned.
func NextWordEnd(text []rune, pos int) int {
	pos = max(pos, 0)
	next := indexSpace(text, pos)
	if next == pos {
		next = indexSpace(text, pos+1)
	}
	if next < 0 {
		return len(text)
	}
	return next
}

func indexSpace(text []rune, from int) int {
	for i := from; i < len(text); i++ {
		if text[i] == ' ' {
			return i
		}
	}
	return -1
}

package main

import (
	"strings"
	"unicode/utf8"

	"github.com/samcharles93/charcomplete/internal/window"
)

type keyKind int

const (
	keyRune keyKind = iota
	keyEnter
	keyTab
	keyBackspace
	keyDelete
	keyLeft
	keyRight
	keyUp
	keyDown
	keyHome
	keyEnd
	keyWordLeft
	keyWordRight
	keyDeleteWordBack
	keyDeleteWordForward
	keyInterrupt
	keyEOF
)

type keyEvent struct {
	kind keyKind
	r    rune
}

// keyDecoder turns raw terminal bytes into key events. It understands UTF-8,
// the usual control characters and the CSI sequences xterm-like terminals
// send for arrows and word motion.
type keyDecoder struct {
	esc     int
	csi     strings.Builder
	pending []byte
}

func (d *keyDecoder) feed(b byte) (keyEvent, bool) {
	switch d.esc {
	case 1:
		d.esc = 0
		switch b {
		case '[', 'O':
			d.esc = 2
			d.csi.Reset()
		case 'b', 'B':
			return keyEvent{kind: keyWordLeft}, true
		case 'f', 'F':
			return keyEvent{kind: keyWordRight}, true
		case 127:
			return keyEvent{kind: keyDeleteWordBack}, true
		}
		return keyEvent{}, false
	case 2:
		d.csi.WriteByte(b)
		if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
			d.esc = 0
			return csiKey(d.csi.String())
		}
		return keyEvent{}, false
	}

	if len(d.pending) > 0 || b >= utf8.RuneSelf {
		d.pending = append(d.pending, b)
		if !utf8.FullRune(d.pending) {
			return keyEvent{}, false
		}
		r, _ := utf8.DecodeRune(d.pending)
		d.pending = d.pending[:0]
		if r == utf8.RuneError {
			return keyEvent{}, false
		}
		return keyEvent{kind: keyRune, r: r}, true
	}

	switch b {
	case 27:
		d.esc = 1
		return keyEvent{}, false
	case '\r', '\n':
		return keyEvent{kind: keyEnter}, true
	case '\t':
		return keyEvent{kind: keyTab}, true
	case 3:
		return keyEvent{kind: keyInterrupt}, true
	case 4:
		return keyEvent{kind: keyEOF}, true
	case 127, 8:
		return keyEvent{kind: keyBackspace}, true
	case 1:
		return keyEvent{kind: keyHome}, true
	case 5:
		return keyEvent{kind: keyEnd}, true
	case 23:
		return keyEvent{kind: keyDeleteWordBack}, true
	}
	if b < 32 {
		return keyEvent{}, false
	}
	return keyEvent{kind: keyRune, r: rune(b)}, true
}

func csiKey(seq string) (keyEvent, bool) {
	switch seq {
	case "A":
		return keyEvent{kind: keyUp}, true
	case "B":
		return keyEvent{kind: keyDown}, true
	case "C":
		return keyEvent{kind: keyRight}, true
	case "D":
		return keyEvent{kind: keyLeft}, true
	case "H", "1~", "7~":
		return keyEvent{kind: keyHome}, true
	case "F", "4~", "8~":
		return keyEvent{kind: keyEnd}, true
	case "3~":
		return keyEvent{kind: keyDelete}, true
	case "1;5D", "5D":
		return keyEvent{kind: keyWordLeft}, true
	case "1;5C", "5C":
		return keyEvent{kind: keyWordRight}, true
	case "3;5~":
		return keyEvent{kind: keyDeleteWordForward}, true
	}
	return keyEvent{}, false
}

type editAction int

const (
	actionNone editAction = iota
	actionRedraw
	// actionSuggest asks the caller for a completion of the line.
	actionSuggest
	actionSubmit
	actionQuit
)

// lineEditor is the state of one prompt line plus an optional ghost
// suggestion shown after the caret. The suggestion only exists while the
// caret is at the end of the line.
type lineEditor struct {
	line       []rune
	cursor     int
	suggestion []rune

	history  []string
	histPos  int
	browsing bool
	draft    string
}

func (e *lineEditor) reset() {
	e.line = e.line[:0]
	e.cursor = 0
	e.suggestion = nil
	e.browsing = false
	e.histPos = len(e.history)
}

func (e *lineEditor) text() string { return string(e.line) }

// setSuggestion shows s as ghost text, cut at the first line break. It is
// ignored unless the caret is at the end of the line.
func (e *lineEditor) setSuggestion(s string) {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	if e.cursor != len(e.line) || s == "" {
		e.suggestion = nil
		return
	}
	e.suggestion = []rune(s)
}

// acceptWord moves the suggestion into the line up to the next word end.
func (e *lineEditor) acceptWord() {
	if len(e.suggestion) == 0 {
		return
	}
	full := append(append([]rune{}, e.line...), e.suggestion...)
	end := window.NextWordEnd(full, len(e.line))
	n := end - len(e.line)
	e.line = full[:end]
	e.cursor = end
	e.suggestion = e.suggestion[n:]
	if len(e.suggestion) == 0 {
		e.suggestion = nil
	}
}

func (e *lineEditor) insert(r rune) {
	if e.cursor == len(e.line) {
		if len(e.suggestion) > 0 && e.suggestion[0] == r {
			e.suggestion = e.suggestion[1:]
		} else {
			e.suggestion = nil
		}
		e.line = append(e.line, r)
		e.cursor++
		return
	}
	e.suggestion = nil
	e.line = append(e.line, 0)
	copy(e.line[e.cursor+1:], e.line[e.cursor:])
	e.line[e.cursor] = r
	e.cursor++
}

func (e *lineEditor) handle(k keyEvent) editAction {
	switch k.kind {
	case keyRune:
		e.insert(k.r)
		return actionRedraw
	case keyTab:
		if e.cursor != len(e.line) {
			e.cursor = len(e.line)
			return actionRedraw
		}
		if len(e.suggestion) == 0 {
			return actionSuggest
		}
		e.acceptWord()
		return actionRedraw
	case keyEnter:
		e.suggestion = nil
		out := e.text()
		if strings.TrimSpace(out) != "" {
			e.history = append(e.history, out)
		}
		return actionSubmit
	case keyInterrupt:
		return actionQuit
	case keyEOF:
		if len(e.line) == 0 {
			return actionQuit
		}
		return actionNone
	}

	// every other key invalidates the suggestion
	e.suggestion = nil
	switch k.kind {
	case keyBackspace:
		if e.cursor > 0 {
			e.line = append(e.line[:e.cursor-1], e.line[e.cursor:]...)
			e.cursor--
		}
	case keyDelete:
		if e.cursor < len(e.line) {
			e.line = append(e.line[:e.cursor], e.line[e.cursor+1:]...)
		}
	case keyLeft:
		e.cursor = max(e.cursor-1, 0)
	case keyRight:
		e.cursor = min(e.cursor+1, len(e.line))
	case keyHome:
		e.cursor = 0
	case keyEnd:
		e.cursor = len(e.line)
	case keyWordLeft:
		e.cursor = e.wordStart(e.cursor)
	case keyWordRight:
		e.cursor = e.wordEnd(e.cursor)
	case keyDeleteWordBack:
		start := e.wordStart(e.cursor)
		e.line = append(e.line[:start], e.line[e.cursor:]...)
		e.cursor = start
	case keyDeleteWordForward:
		end := e.wordEnd(e.cursor)
		e.line = append(e.line[:e.cursor], e.line[end:]...)
	case keyUp:
		e.historyPrev()
	case keyDown:
		e.historyNext()
	default:
		return actionNone
	}
	return actionRedraw
}

func (e *lineEditor) wordStart(pos int) int {
	for pos > 0 && isBlank(e.line[pos-1]) {
		pos--
	}
	for pos > 0 && !isBlank(e.line[pos-1]) {
		pos--
	}
	return pos
}

func (e *lineEditor) wordEnd(pos int) int {
	for pos < len(e.line) && isBlank(e.line[pos]) {
		pos++
	}
	for pos < len(e.line) && !isBlank(e.line[pos]) {
		pos++
	}
	return pos
}

func isBlank(r rune) bool { return r == ' ' || r == '\t' }

func (e *lineEditor) historyPrev() {
	if len(e.history) == 0 {
		return
	}
	if !e.browsing {
		e.draft = e.text()
		e.browsing = true
		e.histPos = len(e.history)
	}
	if e.histPos > 0 {
		e.histPos--
		e.line = []rune(e.history[e.histPos])
		e.cursor = len(e.line)
	}
}

func (e *lineEditor) historyNext() {
	if !e.browsing {
		return
	}
	if e.histPos < len(e.history)-1 {
		e.histPos++
		e.line = []rune(e.history[e.histPos])
	} else {
		e.histPos = len(e.history)
		e.line = []rune(e.draft)
		e.browsing = false
	}
	e.cursor = len(e.line)
}

const (
	ansiDim   = "\x1b[2m"
	ansiReset = "\x1b[0m"
	ansiClear = "\x1b[K"
)

// render returns the escape sequence that redraws the prompt line with the
// ghost suggestion and leaves the terminal caret at the cursor.
func (e *lineEditor) render(prompt string) string {
	var b strings.Builder
	b.WriteString("\r")
	b.WriteString(prompt)
	b.WriteString(string(e.line))
	if len(e.suggestion) > 0 {
		b.WriteString(ansiDim)
		b.WriteString(printable(e.suggestion))
		b.WriteString(ansiReset)
	}
	b.WriteString(ansiClear)
	if e.cursor < len(e.line) || len(e.suggestion) > 0 {
		b.WriteString("\r")
		b.WriteString(prompt)
		b.WriteString(string(e.line[:e.cursor]))
	}
	return b.String()
}

// printable keeps ghost text on one terminal line.
func printable(rs []rune) string {
	out := make([]rune, len(rs))
	for i, r := range rs {
		if r == '\n' || r == '\r' || r == '\t' {
			r = ' '
		}
		out[i] = r
	}
	return string(out)
}

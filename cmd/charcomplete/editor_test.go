package main

import (
	"strings"
	"testing"
)

func decodeAll(t *testing.T, raw string) []keyEvent {
	t.Helper()
	var d keyDecoder
	var out []keyEvent
	for i := range len(raw) {
		if k, ok := d.feed(raw[i]); ok {
			out = append(out, k)
		}
	}
	return out
}

func TestKeyDecoder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want []keyEvent
	}{
		{"ascii", "ab", []keyEvent{{kind: keyRune, r: 'a'}, {kind: keyRune, r: 'b'}}},
		{"utf8", "é€", []keyEvent{{kind: keyRune, r: 'é'}, {kind: keyRune, r: '€'}}},
		{"arrows", "\x1b[D\x1b[C\x1b[A", []keyEvent{{kind: keyLeft}, {kind: keyRight}, {kind: keyUp}}},
		{"ctrl arrows", "\x1b[1;5D\x1b[1;5C", []keyEvent{{kind: keyWordLeft}, {kind: keyWordRight}}},
		{"alt word motion", "\x1bb\x1bf", []keyEvent{{kind: keyWordLeft}, {kind: keyWordRight}}},
		{"delete", "\x1b[3~", []keyEvent{{kind: keyDelete}}},
		{"controls", "\t\r\x7f\x03\x04", []keyEvent{{kind: keyTab}, {kind: keyEnter}, {kind: keyBackspace}, {kind: keyInterrupt}, {kind: keyEOF}}},
		{"unknown csi dropped", "\x1b[24~x", []keyEvent{{kind: keyRune, r: 'x'}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := decodeAll(t, tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("decoded %d keys (%v), want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("key %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func typeString(e *lineEditor, s string) {
	for _, r := range s {
		e.handle(keyEvent{kind: keyRune, r: r})
	}
}

func TestLineEditorSuggestionFlow(t *testing.T) {
	t.Parallel()

	e := &lineEditor{}
	typeString(e, "to b")
	if got := e.handle(keyEvent{kind: keyTab}); got != actionSuggest {
		t.Fatalf("Tab without suggestion = %v, want actionSuggest", got)
	}
	e.setSuggestion("e or not to be")

	// typing the predicted character keeps the rest of the suggestion
	typeString(e, "e")
	if got := string(e.suggestion); got != " or not to be" {
		t.Fatalf("suggestion after typing along = %q", got)
	}

	// caret sits on the space: accept jumps over it to the end of "or"
	e.handle(keyEvent{kind: keyTab})
	if got := e.text(); got != "to be or" {
		t.Fatalf("line after accept = %q, want %q", got, "to be or")
	}
	e.handle(keyEvent{kind: keyTab})
	if got := e.text(); got != "to be or not" {
		t.Fatalf("line after second accept = %q", got)
	}
	if got := string(e.suggestion); got != " to be" {
		t.Fatalf("remaining suggestion = %q", got)
	}

	// any other character discards it
	typeString(e, "x")
	if e.suggestion != nil {
		t.Fatalf("suggestion kept after diverging key: %q", string(e.suggestion))
	}
	if got := e.handle(keyEvent{kind: keyEnter}); got != actionSubmit {
		t.Fatalf("Enter = %v, want actionSubmit", got)
	}
	if got := e.text(); got != "to be or notx" {
		t.Fatalf("submitted %q", got)
	}
}

func TestLineEditorAcceptLastWord(t *testing.T) {
	t.Parallel()

	e := &lineEditor{}
	typeString(e, "hel")
	e.setSuggestion("lo")
	e.handle(keyEvent{kind: keyTab})
	if got := e.text(); got != "hello" {
		t.Fatalf("text = %q, want %q", got, "hello")
	}
	if e.suggestion != nil {
		t.Fatalf("suggestion should be used up, got %q", string(e.suggestion))
	}
}

func TestLineEditorSuggestionNeedsCaretAtEnd(t *testing.T) {
	t.Parallel()

	e := &lineEditor{}
	typeString(e, "abc")
	e.handle(keyEvent{kind: keyLeft})
	e.setSuggestion("def")
	if e.suggestion != nil {
		t.Fatal("suggestion shown with caret inside the line")
	}
	if got := e.handle(keyEvent{kind: keyTab}); got != actionRedraw || e.cursor != 3 {
		t.Fatalf("Tab mid-line = %v cursor %d, want redraw and cursor at end", got, e.cursor)
	}

	e.setSuggestion("d\nnext line")
	if got := string(e.suggestion); got != "d" {
		t.Fatalf("suggestion not cut at newline: %q", got)
	}
}

func TestLineEditorEditing(t *testing.T) {
	t.Parallel()

	e := &lineEditor{}
	typeString(e, "one two three")
	e.handle(keyEvent{kind: keyDeleteWordBack})
	if got := e.text(); got != "one two " {
		t.Fatalf("after delete word = %q", got)
	}
	e.handle(keyEvent{kind: keyWordLeft})
	if e.cursor != 4 {
		t.Fatalf("cursor after word left = %d, want 4", e.cursor)
	}
	typeString(e, "big ")
	if got := e.text(); got != "one big two " {
		t.Fatalf("insert mid-line = %q", got)
	}
	e.handle(keyEvent{kind: keyHome})
	e.handle(keyEvent{kind: keyDelete})
	if got := e.text(); got != "ne big two " {
		t.Fatalf("delete at home = %q", got)
	}
	if got := e.handle(keyEvent{kind: keyEOF}); got != actionNone {
		t.Fatalf("Ctrl+D on non-empty line = %v", got)
	}
}

func TestLineEditorHistory(t *testing.T) {
	t.Parallel()

	e := &lineEditor{}
	for _, s := range []string{"first", "second"} {
		e.reset()
		typeString(e, s)
		e.handle(keyEvent{kind: keyEnter})
	}
	e.reset()
	typeString(e, "draft")

	e.handle(keyEvent{kind: keyUp})
	if got := e.text(); got != "second" {
		t.Fatalf("up = %q", got)
	}
	e.handle(keyEvent{kind: keyUp})
	e.handle(keyEvent{kind: keyUp})
	if got := e.text(); got != "first" {
		t.Fatalf("up past start = %q", got)
	}
	e.handle(keyEvent{kind: keyDown})
	e.handle(keyEvent{kind: keyDown})
	if got := e.text(); got != "draft" {
		t.Fatalf("down back to draft = %q", got)
	}
}

func TestLineEditorRender(t *testing.T) {
	t.Parallel()

	e := &lineEditor{}
	typeString(e, "ab")
	e.setSuggestion("c\td")
	got := e.render("> ")
	want := "\r> ab" + ansiDim + "c d" + ansiReset + ansiClear + "\r> ab"
	if got != want {
		t.Fatalf("render = %q, want %q", got, want)
	}

	e.setSuggestion("")
	if got := e.render("> "); !strings.HasSuffix(got, "ab"+ansiClear) {
		t.Fatalf("render without suggestion = %q", got)
	}
}

package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/vocab"
)

// scriptEngine continues any text with the next characters of script after
// the longest suffix of the input that is a prefix of script.
type scriptEngine struct {
	script string

	mu    sync.Mutex
	temps []float64
}

func (e *scriptEngine) Complete(_ context.Context, req *inference.Request) (*inference.Result, error) {
	e.mu.Lock()
	e.temps = append(e.temps, req.Temperature)
	e.mu.Unlock()

	if strings.ContainsRune(req.Text, '#') {
		return nil, fmt.Errorf("%w: '#'", vocab.ErrUnknownCharacter)
	}
	pos := 0
	for i := len(req.Text); i > 0; i-- {
		if strings.HasPrefix(e.script, req.Text[len(req.Text)-i:]) {
			pos = i
			break
		}
	}
	end := min(pos+req.Steps, len(e.script))
	return &inference.Result{Text: e.script[pos:end]}, nil
}

func (e *scriptEngine) Vocabulary() *vocab.Vocabulary   { return nil }
func (e *scriptEngine) Signature() inference.Signature { return inference.Signature{} }
func (e *scriptEngine) Close() error                   { return nil }

func newTestTUI(t *testing.T, eng *scriptEngine, lookahead, steps int) *tuiModel {
	t.Helper()
	return newTUIModel(context.Background(), tuiConfig{
		Title:     "test",
		Engine:    eng,
		Base:      inference.Request{Steps: steps, Temperature: 1.0, Seed: 1},
		Lookahead: lookahead,
	}, nil)
}

// pump runs polls and applies their results until the lookahead is full or
// nothing more is issued.
func pump(t *testing.T, m *tuiModel) {
	t.Helper()
	for range 100 {
		cmd := m.poll()
		if cmd == nil {
			return
		}
		m.Update(cmd())
	}
	t.Fatal("lookahead never filled")
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTUIFillsLookahead(t *testing.T) {
	t.Parallel()

	m := newTestTUI(t, &scriptEngine{script: "to be or not to be"}, 6, 2)
	pump(t, m)
	if got := string(m.pred); got != "to be " {
		t.Fatalf("pred = %q, want %q", got, "to be ")
	}
	if m.poll() != nil {
		t.Fatal("poll issued a burst with a full lookahead")
	}
}

func TestTUITypingAlongConsumesPrediction(t *testing.T) {
	t.Parallel()

	m := newTestTUI(t, &scriptEngine{script: "to be or not to be"}, 4, 4)
	pump(t, m)

	m.Update(keyRunes("t"))
	cmd := m.poll()
	if got, want := string(m.text), "t"; got != want {
		t.Fatalf("text = %q, want %q", got, want)
	}
	if got := string(m.pred); got != "o b" {
		t.Fatalf("pred = %q, want %q", got, "o b")
	}
	if cmd == nil {
		t.Fatal("expected a burst to refill the lookahead")
	}
	// a burst started before typing along stays valid
	m.Update(keyRunes("o"))
	m.Update(cmd())
	if got := m.full(); got != "to be or" {
		t.Fatalf("full = %q, want %q", got, "to be or")
	}
}

func TestTUIDivergingKeyDropsPredictionAndBurst(t *testing.T) {
	t.Parallel()

	m := newTestTUI(t, &scriptEngine{script: "abcdef"}, 3, 3)
	pump(t, m)
	m.pred = m.pred[:1]
	cmd := m.poll()
	if cmd == nil {
		t.Fatal("expected a burst")
	}

	m.Update(keyRunes("z"))
	if m.pred != nil {
		t.Fatalf("pred kept after diverging key: %q", string(m.pred))
	}
	msg := cmd()
	if c, ok := msg.(burstMsg); !ok || !c.Stale {
		t.Fatalf("in-flight burst should be stale, got %#v", msg)
	}
	m.Update(msg)
	if m.pred != nil {
		t.Fatalf("stale burst applied: %q", string(m.pred))
	}
}

func TestTUITabAcceptsToWordEnd(t *testing.T) {
	t.Parallel()

	m := newTestTUI(t, &scriptEngine{script: "hello big world"}, 15, 15)
	pump(t, m)

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if got := string(m.text); got != "hello" {
		t.Fatalf("text after Tab = %q", got)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if got := string(m.text); got != "hello big" {
		t.Fatalf("text after second Tab = %q", got)
	}
	if got := string(m.pred); got != " world" {
		t.Fatalf("pred = %q", got)
	}
}

func TestTUITemperatureKeys(t *testing.T) {
	t.Parallel()

	eng := &scriptEngine{script: "abcdef"}
	m := newTestTUI(t, eng, 3, 3)
	pump(t, m)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlUp})
	if got := m.temp.Load(); got != 1.05 {
		t.Fatalf("temperature = %v, want 1.05", got)
	}
	if m.pred != nil {
		t.Fatal("temperature change must reset the prediction")
	}
	pump(t, m)
	if got := eng.temps[len(eng.temps)-1]; got != 1.05 {
		t.Fatalf("burst ran at temperature %v", got)
	}

	for range 30 {
		m.Update(tea.KeyMsg{Type: tea.KeyCtrlUp})
	}
	if got := m.temp.Load(); got != maxTemp {
		t.Fatalf("temperature = %v, want clamp at %v", got, maxTemp)
	}
	for range 60 {
		m.Update(tea.KeyMsg{Type: tea.KeyCtrlDown})
	}
	if got := m.temp.Load(); got != minTemp {
		t.Fatalf("temperature = %v, want clamp at %v", got, minTemp)
	}
}

func TestTUIBlocksOnUnknownCharacter(t *testing.T) {
	t.Parallel()

	m := newTestTUI(t, &scriptEngine{script: "abc"}, 3, 3)
	m.Update(keyRunes("#"))
	cmd := m.poll()
	if cmd == nil {
		t.Fatal("expected a burst")
	}
	m.Update(cmd())
	if !m.blocked || m.status != "cannot predict here" {
		t.Fatalf("blocked = %v status = %q", m.blocked, m.status)
	}
	if m.poll() != nil {
		t.Fatal("poll while blocked")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	if m.blocked {
		t.Fatal("edit should unblock")
	}
	if m.poll() == nil {
		t.Fatal("expected polling to resume")
	}
}

func TestTUIViewShowsPrediction(t *testing.T) {
	t.Parallel()

	m := newTestTUI(t, &scriptEngine{script: "abc"}, 3, 3)
	pump(t, m)
	m.Update(keyRunes("a"))
	view := m.View()
	for _, want := range []string{"charcomplete", "temperature 1.00", "a", "c"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

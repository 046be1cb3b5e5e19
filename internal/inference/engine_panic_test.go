package inference

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/samcharles93/charcomplete/internal/logits"
	"github.com/samcharles93/charcomplete/internal/vocab"
)

// scriptPort returns a distribution that puts all mass on the next code of
// its script, cycling. It counts calls and can fail on a chosen call.
type scriptPort struct {
	sig    Signature
	script []int
	calls  int
	failAt int
	inputs [][]float32
}

func (p *scriptPort) Signature() Signature { return p.sig }

func (p *scriptPort) Predict(ctx context.Context, in Tensor) (Tensor, error) {
	p.calls++
	p.inputs = append(p.inputs, append([]float32(nil), in.Data...))
	if p.failAt > 0 && p.calls == p.failAt {
		return Tensor{}, errors.New("forced backend failure")
	}
	out := make([]float32, p.sig.Width)
	out[p.script[(p.calls-1)%len(p.script)]] = 1
	return Tensor{Name: p.sig.Output, Data: out}, nil
}

func (p *scriptPort) Close() error { return nil }

type panicPort struct{ sig Signature }

func (p panicPort) Signature() Signature { return p.sig }

func (p panicPort) Predict(context.Context, Tensor) (Tensor, error) {
	panic("boom")
}

func (p panicPort) Close() error { return nil }

type slowPort struct{ sig Signature }

func (p slowPort) Signature() Signature { return p.sig }

func (p slowPort) Predict(ctx context.Context, in Tensor) (Tensor, error) {
	<-ctx.Done()
	return Tensor{}, ctx.Err()
}

func (p slowPort) Close() error { return nil }

func testVocab(t *testing.T, opts vocab.Options) *vocab.Vocabulary {
	t.Helper()
	v, err := vocab.FromChars([]rune(" abc"), opts)
	if err != nil {
		t.Fatalf("vocab: %v", err)
	}
	return v
}

func newGreedySampler(t *testing.T) *logits.Sampler {
	t.Helper()
	s, err := logits.NewSampler(logits.SamplerConfig{Seed: 1, Temperature: 0})
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	return s
}

func TestGenerateConvertsPredictPanicToError(t *testing.T) {
	t.Parallel()

	v := testVocab(t, vocab.Options{})
	g := &Generator{
		Vocab:   v,
		Port:    panicPort{sig: Signature{WindowLength: 3, Width: v.Width()}},
		Sampler: newGreedySampler(t),
	}
	res, err := g.Generate(context.Background(), "abc", 1)
	if err == nil {
		t.Fatalf("expected error")
	}
	if res != nil {
		t.Fatalf("expected no result on failure")
	}
	if !errors.Is(err, ErrInferenceFailure) || !strings.Contains(err.Error(), "panic in Predict") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGenerateFailureOnStepTwoReturnsNoText(t *testing.T) {
	t.Parallel()

	v := testVocab(t, vocab.Options{})
	port := &scriptPort{
		sig:    Signature{Input: "input", Output: "output", WindowLength: 3, Width: v.Width()},
		script: []int{1, 2, 3},
		failAt: 2,
	}
	g := &Generator{Vocab: v, Port: port, Sampler: newGreedySampler(t)}

	res, err := g.Generate(context.Background(), "abc", 5)
	if !errors.Is(err, ErrInferenceFailure) {
		t.Fatalf("expected ErrInferenceFailure, got %v", err)
	}
	if res != nil {
		t.Fatalf("partial result returned: %+v", res)
	}
	if !strings.Contains(err.Error(), "forced backend failure") {
		t.Fatalf("backend cause missing: %v", err)
	}
	if port.calls != 2 {
		t.Fatalf("loop should stop at the failing step, calls = %d", port.calls)
	}
}

func TestGenerateStepTimeout(t *testing.T) {
	t.Parallel()

	v := testVocab(t, vocab.Options{})
	g := &Generator{
		Vocab:       v,
		Port:        slowPort{sig: Signature{WindowLength: 3, Width: v.Width()}},
		Sampler:     newGreedySampler(t),
		StepTimeout: 10 * time.Millisecond,
	}
	_, err := g.Generate(context.Background(), "abc", 2)
	if !errors.Is(err, ErrInferenceFailure) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout inference failure, got %v", err)
	}
}

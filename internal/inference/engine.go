package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samcharles93/charcomplete/internal/logger"
	"github.com/samcharles93/charcomplete/internal/logits"
	"github.com/samcharles93/charcomplete/internal/vocab"
	"github.com/samcharles93/charcomplete/internal/window"
)

type Stats struct {
	Steps    int
	Duration time.Duration
	// CPS is generated characters per second.
	CPS float64
}

// Generator runs the autoregressive character loop for one burst. It holds
// no state between calls; the sliding window lives inside Generate.
type Generator struct {
	Vocab   *vocab.Vocabulary
	Port    Port
	Sampler *logits.Sampler
	// StepTimeout bounds each Predict call. Zero means no bound.
	StepTimeout time.Duration
	Log         logger.Logger
}

// burst is the loop state: Running(remaining) until remaining reaches zero,
// then Done.
type burst struct {
	remaining int
	window    string
	out       strings.Builder
	input     []float32
}

func (b *burst) done() bool { return b.remaining <= 0 }

// Generate extends w, which must already be exactly WindowLength characters,
// by steps characters. Any failure aborts the whole burst and no partial text
// is returned.
func (g *Generator) Generate(ctx context.Context, w string, steps int) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if g.Vocab == nil || g.Port == nil || g.Sampler == nil {
		return nil, fmt.Errorf("generator is not fully configured")
	}
	sig := g.Port.Signature()
	if n := utf8.RuneCountInString(w); n != sig.WindowLength {
		return nil, fmt.Errorf("%w: got %d characters, want %d", vocab.ErrWindowLength, n, sig.WindowLength)
	}
	if sig.Width != g.Vocab.Width() {
		return nil, fmt.Errorf("%w: model width %d does not match vocabulary width %d", ErrInferenceFailure, sig.Width, g.Vocab.Width())
	}

	start := time.Now()
	st := &burst{remaining: steps, window: w}
	st.out.Grow(max(steps, 0))
	for i := 0; !st.done(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := g.step(ctx, sig, st, i); err != nil {
			return nil, err
		}
	}

	res := &Result{
		Text:   st.out.String(),
		Window: st.window,
		Stats: Stats{
			Steps:    max(steps, 0),
			Duration: time.Since(start),
		},
	}
	if res.Stats.Duration.Seconds() > 0 {
		res.Stats.CPS = float64(res.Stats.Steps) / res.Stats.Duration.Seconds()
	}
	if g.Log != nil {
		g.Log.Debug("burst complete", "steps", res.Stats.Steps, "duration", res.Stats.Duration, "cps", res.Stats.CPS)
	}
	return res, nil
}

// step performs the Running(i) -> Running(i-1) transition.
func (g *Generator) step(ctx context.Context, sig Signature, st *burst, i int) error {
	input, err := g.Vocab.EncodeWindowInto(st.input, st.window, sig.WindowLength)
	if err != nil {
		return fmt.Errorf("step %d: %w", i, err)
	}
	st.input = input

	dist, err := g.predict(ctx, sig, input)
	if err != nil {
		// the caller gave up; that is not a model failure
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: step %d: %w", ErrInferenceFailure, i, err)
	}

	code, err := g.Sampler.Sample(dist)
	if err != nil {
		return fmt.Errorf("step %d: %w", i, err)
	}
	c, err := g.Vocab.Decode(code)
	if err != nil {
		return fmt.Errorf("step %d: %w", i, err)
	}

	st.out.WriteRune(c)
	st.window = window.Shift(st.window, c)
	st.remaining--
	return nil
}

func (g *Generator) predict(ctx context.Context, sig Signature, input []float32) ([]float32, error) {
	if g.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.StepTimeout)
		defer cancel()
	}
	out, err := safePredict(ctx, g.Port, Tensor{
		Name:  sig.Input,
		Shape: []int64{1, int64(sig.WindowLength), int64(sig.Width)},
		Data:  input,
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("step timeout after %s: %w", g.StepTimeout, err)
		}
		return nil, err
	}
	if out.Name != "" && sig.Output != "" && out.Name != sig.Output {
		return nil, fmt.Errorf("unexpected output tensor %q, want %q", out.Name, sig.Output)
	}
	return g.distribution(out.Data)
}

// distribution trims the model output to the vocabulary. The reserved
// unknown slot, when present, carries no mass.
func (g *Generator) distribution(out []float32) ([]float32, error) {
	size := g.Vocab.Size()
	switch len(out) {
	case size:
		return out, nil
	case size + 1:
		return out[:size], nil
	default:
		return nil, fmt.Errorf("output has %d entries, want %d or %d", len(out), size, size+1)
	}
}

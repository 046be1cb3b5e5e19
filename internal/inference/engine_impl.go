package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/charcomplete/internal/logger"
	"github.com/samcharles93/charcomplete/internal/logits"
	"github.com/samcharles93/charcomplete/internal/vocab"
	"github.com/samcharles93/charcomplete/internal/window"
)

type EngineImpl struct {
	vocab       *vocab.Vocabulary
	port        Port
	pad         rune
	stepTimeout time.Duration
	log         logger.Logger
}

// NewEngine wires a vocabulary to a port. The port signature must agree with
// the vocabulary width.
func NewEngine(v *vocab.Vocabulary, p Port, opts EngineOptions) (*EngineImpl, error) {
	if v == nil || p == nil {
		return nil, fmt.Errorf("vocabulary and port are required")
	}
	sig := p.Signature()
	if sig.WindowLength <= 0 {
		return nil, fmt.Errorf("model window length must be positive, got %d", sig.WindowLength)
	}
	if sig.Width != v.Width() {
		return nil, fmt.Errorf("model width %d does not match vocabulary width %d", sig.Width, v.Width())
	}
	pad := opts.Pad
	if pad == 0 {
		pad = window.DefaultPad
	}
	if !v.Contains(pad) {
		return nil, fmt.Errorf("%w: pad character %q", vocab.ErrUnknownCharacter, pad)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	return &EngineImpl{
		vocab:       v,
		port:        p,
		pad:         pad,
		stepTimeout: opts.StepTimeout,
		log:         log,
	}, nil
}

type EngineOptions struct {
	Pad         rune
	StepTimeout time.Duration
	Logger      logger.Logger
}

func (e *EngineImpl) Vocabulary() *vocab.Vocabulary { return e.vocab }

func (e *EngineImpl) Signature() Signature { return e.port.Signature() }

func (e *EngineImpl) Close() error {
	if e == nil || e.port == nil {
		return nil
	}
	err := e.port.Close()
	e.port = nil
	return err
}

// Complete fits req.Text into the model window and generates req.Steps
// characters after it.
func (e *EngineImpl) Complete(ctx context.Context, req *Request) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if e.port == nil {
		return nil, fmt.Errorf("engine is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Steps < 0 {
		return nil, fmt.Errorf("steps must not be negative, got %d", req.Steps)
	}

	sig := e.port.Signature()
	text := req.Text
	if req.Sanitize {
		text = Sanitize(text, e.vocab, e.pad)
	}
	w := window.Normalize(text, sig.WindowLength, e.pad)

	temp := req.Temperature
	if req.Greedy {
		temp = 0
	}
	sampler, err := logits.NewSampler(logits.SamplerConfig{
		Seed:        req.Seed,
		Temperature: temp,
		TopK:        req.TopK,
	})
	if err != nil {
		return nil, err
	}

	gen := &Generator{
		Vocab:       e.vocab,
		Port:        e.port,
		Sampler:     sampler,
		StepTimeout: e.stepTimeout,
		Log:         e.log,
	}
	res, err := gen.Generate(ctx, w, req.Steps)
	if err != nil {
		e.log.Debug("burst failed", "steps", req.Steps, "error", err)
		return nil, err
	}
	return res, nil
}

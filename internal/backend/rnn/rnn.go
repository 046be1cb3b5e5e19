// Package rnn runs a single-layer Elman RNN over a one-hot window:
//
//	h_t = tanh(Wxh x_t + Whh h_{t-1} + bh)
//	y   = softmax(Why h_T + by)
//
// Weights are read from a safetensors file.
package rnn

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/safetensors"
)

// Tensor names in the weights file.
const (
	TensorInputHidden  = "rnn.w_xh" // [H, W]
	TensorHiddenHidden = "rnn.w_hh" // [H, H]
	TensorHiddenBias   = "rnn.b_h"  // [H]
	TensorOutput       = "out.w"    // [W, H]
	TensorOutputBias   = "out.b"    // [W]
)

type Weights struct {
	Wxh *mat.Dense
	Whh *mat.Dense
	Bh  *mat.VecDense
	Why *mat.Dense
	By  *mat.VecDense
}

// Hidden is the hidden state size.
func (w Weights) Hidden() int {
	if w.Whh == nil {
		return 0
	}
	r, _ := w.Whh.Dims()
	return r
}

func (w Weights) check(width int) error {
	if w.Wxh == nil || w.Whh == nil || w.Bh == nil || w.Why == nil || w.By == nil {
		return fmt.Errorf("rnn: incomplete weights")
	}
	h := w.Hidden()
	if r, c := w.Whh.Dims(); r != c {
		return fmt.Errorf("rnn: %s is %dx%d, want square", TensorHiddenHidden, r, c)
	}
	if r, c := w.Wxh.Dims(); r != h || c != width {
		return fmt.Errorf("rnn: %s is %dx%d, want %dx%d", TensorInputHidden, r, c, h, width)
	}
	if n := w.Bh.Len(); n != h {
		return fmt.Errorf("rnn: %s has %d values, want %d", TensorHiddenBias, n, h)
	}
	if r, c := w.Why.Dims(); r != width || c != h {
		return fmt.Errorf("rnn: %s is %dx%d, want %dx%d", TensorOutput, r, c, width, h)
	}
	if n := w.By.Len(); n != width {
		return fmt.Errorf("rnn: %s has %d values, want %d", TensorOutputBias, n, width)
	}
	return nil
}

// Port is an inference.Port. Predict calls are serialized; the scratch
// vectors are reused between calls.
type Port struct {
	sig inference.Signature
	w   Weights

	mu  sync.Mutex
	x   *mat.VecDense
	h   *mat.VecDense
	pre *mat.VecDense
	rec *mat.VecDense
	y   *mat.VecDense
}

func New(w Weights, sig inference.Signature) (*Port, error) {
	if sig.WindowLength <= 0 || sig.Width <= 0 {
		return nil, fmt.Errorf("rnn: invalid signature %dx%d", sig.WindowLength, sig.Width)
	}
	if err := w.check(sig.Width); err != nil {
		return nil, err
	}
	h := w.Hidden()
	return &Port{
		sig: sig,
		w:   w,
		x:   mat.NewVecDense(sig.Width, nil),
		h:   mat.NewVecDense(h, nil),
		pre: mat.NewVecDense(h, nil),
		rec: mat.NewVecDense(h, nil),
		y:   mat.NewVecDense(sig.Width, nil),
	}, nil
}

// Load reads the weights from a safetensors file.
func Load(path string, sig inference.Signature) (*Port, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rnn: %w", err)
	}
	var w Weights
	if w.Wxh, err = readDense(f, TensorInputHidden); err != nil {
		return nil, err
	}
	if w.Whh, err = readDense(f, TensorHiddenHidden); err != nil {
		return nil, err
	}
	if w.Bh, err = readVec(f, TensorHiddenBias); err != nil {
		return nil, err
	}
	if w.Why, err = readDense(f, TensorOutput); err != nil {
		return nil, err
	}
	if w.By, err = readVec(f, TensorOutputBias); err != nil {
		return nil, err
	}
	return New(w, sig)
}

func (p *Port) Signature() inference.Signature { return p.sig }

func (p *Port) Weights() Weights { return p.w }

func (p *Port) Predict(ctx context.Context, in inference.Tensor) (inference.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return inference.Tensor{}, err
	}
	if in.Name != "" && p.sig.Input != "" && in.Name != p.sig.Input {
		return inference.Tensor{}, fmt.Errorf("rnn: unknown input %q", in.Name)
	}
	n, w := p.sig.WindowLength, p.sig.Width
	if len(in.Data) != n*w {
		return inference.Tensor{}, fmt.Errorf("rnn: input has %d values, want %dx%d", len(in.Data), n, w)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.h.Zero()
	xs := p.x.RawVector().Data
	for t := range n {
		for i, v := range in.Data[t*w : (t+1)*w] {
			xs[i] = float64(v)
		}
		p.pre.MulVec(p.w.Wxh, p.x)
		p.rec.MulVec(p.w.Whh, p.h)
		p.pre.AddVec(p.pre, p.rec)
		p.pre.AddVec(p.pre, p.w.Bh)
		for i := range p.h.Len() {
			p.h.SetVec(i, math.Tanh(p.pre.AtVec(i)))
		}
	}
	p.y.MulVec(p.w.Why, p.h)
	p.y.AddVec(p.y, p.w.By)

	return inference.Tensor{
		Name:  p.sig.Output,
		Shape: []int64{1, int64(w)},
		Data:  softmax(p.y.RawVector().Data),
	}, nil
}

func (p *Port) Close() error { return nil }

func softmax(z []float64) []float32 {
	maxv := math.Inf(-1)
	for _, v := range z {
		maxv = max(maxv, v)
	}
	out := make([]float32, len(z))
	var sum float64
	for _, v := range z {
		sum += math.Exp(v - maxv)
	}
	for i, v := range z {
		out[i] = float32(math.Exp(v-maxv) / sum)
	}
	return out
}

func readDense(f *safetensors.File, name string) (*mat.Dense, error) {
	data, info, err := f.ReadTensorF32(name)
	if err != nil {
		return nil, fmt.Errorf("rnn: %w", err)
	}
	if len(info.Shape) != 2 {
		return nil, fmt.Errorf("rnn: %s has shape %v, want rank 2", name, info.Shape)
	}
	return mat.NewDense(info.Shape[0], info.Shape[1], widen(data)), nil
}

func readVec(f *safetensors.File, name string) (*mat.VecDense, error) {
	data, info, err := f.ReadTensorF32(name)
	if err != nil {
		return nil, fmt.Errorf("rnn: %w", err)
	}
	if len(info.Shape) != 1 {
		return nil, fmt.Errorf("rnn: %s has shape %v, want rank 1", name, info.Shape)
	}
	return mat.NewVecDense(len(data), widen(data)), nil
}

func widen(src []float32) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}
	return out
}

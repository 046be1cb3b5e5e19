package rnn

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/logits"
	"github.com/samcharles93/charcomplete/internal/safetensors"
)

func eye(n int, scale float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := range n {
		m.Set(i, i, scale)
	}
	return m
}

// echoWeights predicts the last character of the window.
func echoWeights(width int, recurrent float64) Weights {
	return Weights{
		Wxh: eye(width, 1),
		Whh: eye(width, recurrent),
		Bh:  mat.NewVecDense(width, nil),
		Why: eye(width, 10),
		By:  mat.NewVecDense(width, nil),
	}
}

func oneHot(width int, codes ...int) []float32 {
	out := make([]float32, len(codes)*width)
	for i, c := range codes {
		out[i*width+c] = 1
	}
	return out
}

func sum(p []float32) float64 {
	var s float64
	for _, v := range p {
		s += float64(v)
	}
	return s
}

func TestPredictEchoesLastCharacter(t *testing.T) {
	t.Parallel()

	sig := inference.Signature{Input: "input", Output: "output", WindowLength: 3, Width: 3}
	p, err := New(echoWeights(3, 0), sig)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, codes := range [][]int{{0, 1, 2}, {2, 2, 0}, {1, 0, 1}} {
		out, err := p.Predict(context.Background(), inference.Tensor{Name: "input", Data: oneHot(3, codes...)})
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		if out.Name != "output" || len(out.Data) != 3 {
			t.Fatalf("unexpected output tensor %+v", out)
		}
		if math.Abs(sum(out.Data)-1) > 1e-5 {
			t.Fatalf("output not normalized: %v", out.Data)
		}
		if got := logits.Argmax(out.Data); got != codes[2] {
			t.Fatalf("argmax = %d, want %d (%v)", got, codes[2], out.Data)
		}
	}
}

func TestPredictCarriesHiddenState(t *testing.T) {
	t.Parallel()

	sig := inference.Signature{WindowLength: 2, Width: 3}
	p, err := New(echoWeights(3, 1), sig)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := p.Predict(context.Background(), inference.Tensor{Data: oneHot(3, 0, 1)})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	// the earlier character leaks into the state, the unseen one does not
	if out.Data[0] <= out.Data[2] {
		t.Fatalf("recurrent state ignored: %v", out.Data)
	}

	// state is reset between calls
	again, err := p.Predict(context.Background(), inference.Tensor{Data: oneHot(3, 0, 1)})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for i := range out.Data {
		if out.Data[i] != again.Data[i] {
			t.Fatalf("prediction not repeatable: %v vs %v", out.Data, again.Data)
		}
	}
}

func TestPredictValidatesInput(t *testing.T) {
	t.Parallel()

	p, err := New(echoWeights(3, 0), inference.Signature{Input: "input", WindowLength: 2, Width: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Predict(context.Background(), inference.Tensor{Data: make([]float32, 5)}); err == nil {
		t.Fatalf("expected size error")
	}
	if _, err := p.Predict(context.Background(), inference.Tensor{Name: "other", Data: oneHot(3, 0, 0)}); err == nil {
		t.Fatalf("expected input name error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Predict(ctx, inference.Tensor{Data: oneHot(3, 0, 0)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRejectsMismatchedWeights(t *testing.T) {
	t.Parallel()

	w := echoWeights(3, 0)
	if _, err := New(w, inference.Signature{WindowLength: 2, Width: 4}); err == nil {
		t.Fatalf("expected width mismatch error")
	}
	w.By = mat.NewVecDense(2, nil)
	if _, err := New(w, inference.Signature{WindowLength: 2, Width: 3}); err == nil {
		t.Fatalf("expected bias length error")
	}
	if _, err := New(Weights{}, inference.Signature{WindowLength: 2, Width: 3}); err == nil {
		t.Fatalf("expected incomplete weights error")
	}
}

func writeWeights(t *testing.T, width, hidden int, drop string) string {
	t.Helper()
	fill := func(n int) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = float32(i%5) / 10
		}
		return out
	}
	tensors := map[string]safetensors.F32Tensor{
		TensorInputHidden:  {Shape: []int{hidden, width}, Data: fill(hidden * width)},
		TensorHiddenHidden: {Shape: []int{hidden, hidden}, Data: fill(hidden * hidden)},
		TensorHiddenBias:   {Shape: []int{hidden}, Data: fill(hidden)},
		TensorOutput:       {Shape: []int{width, hidden}, Data: fill(width * hidden)},
		TensorOutputBias:   {Shape: []int{width}, Data: fill(width)},
	}
	delete(tensors, drop)
	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := safetensors.WriteF32(path, tensors, nil); err != nil {
		t.Fatalf("WriteF32: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	sig := inference.Signature{Input: "input", Output: "output", WindowLength: 4, Width: 5}
	p, err := Load(writeWeights(t, 5, 8, ""), sig)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Weights().Hidden() != 8 {
		t.Fatalf("hidden = %d, want 8", p.Weights().Hidden())
	}
	out, err := p.Predict(context.Background(), inference.Tensor{Data: oneHot(5, 0, 1, 2, 3)})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if math.Abs(sum(out.Data)-1) > 1e-5 {
		t.Fatalf("output not normalized: %v", out.Data)
	}

	if _, err := Load(writeWeights(t, 5, 8, TensorOutputBias), sig); !errors.Is(err, safetensors.ErrTensorNotFound) {
		t.Fatalf("expected missing tensor error, got %v", err)
	}
	if _, err := Load(writeWeights(t, 6, 8, ""), sig); err == nil {
		t.Fatalf("expected width mismatch error")
	}
}

func TestSoftmaxStable(t *testing.T) {
	t.Parallel()
	out := softmax([]float64{1000, 1000, -1000})
	if math.Abs(float64(out[0])-0.5) > 1e-6 || out[2] != 0 {
		t.Fatalf("softmax = %v", out)
	}
}

package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/samcharles93/charcomplete/internal/vocab"
)

// ErrInferenceFailure wraps every failure of the model call itself:
// backend errors, panics, malformed outputs and step timeouts.
var ErrInferenceFailure = errors.New("inference failure")

// Tensor is a named, flat float32 buffer with its logical shape.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Signature describes the model behind a Port.
type Signature struct {
	Input        string
	Output       string
	WindowLength int
	// Width is the one-hot row width: V, or V+1 with a reserved unknown slot.
	Width int
}

// Port runs one forward pass: an encoded window in, a next-character
// distribution out. Implementations need not be safe for concurrent use.
type Port interface {
	Signature() Signature
	Predict(ctx context.Context, in Tensor) (Tensor, error)
	Close() error
}

// Engine completes text with one loaded model.
type Engine interface {
	Complete(ctx context.Context, req *Request) (*Result, error)
	Vocabulary() *vocab.Vocabulary
	Signature() Signature
	Close() error
}

type Request struct {
	Text        string
	Steps       int
	Seed        int64
	Temperature float64
	TopK        int
	// Greedy forces argmax decoding regardless of Temperature.
	Greedy bool
	// Sanitize maps characters outside the vocabulary instead of failing.
	Sanitize bool
}

type Result struct {
	// Text holds only the generated characters, in order.
	Text string
	// Window is the final sliding window.
	Window string
	Stats  Stats
}

// Full returns prefix followed by the generated text.
func (r *Result) Full(prefix string) string {
	if r == nil {
		return prefix
	}
	return prefix + r.Text
}

func safePredict(ctx context.Context, p Port, in Tensor) (out Tensor, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Predict: %v", rec)
		}
	}()
	return p.Predict(ctx, in)
}

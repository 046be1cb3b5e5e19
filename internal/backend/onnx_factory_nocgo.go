//go:build !cgo

package backend

import (
	"errors"

	"github.com/samcharles93/charcomplete/internal/inference"
)

const onnxEnabled = false

var errONNXUnavailable = errors.New("onnx backend requires a cgo build")

func newONNX(string, inference.Signature, string) (inference.Port, error) {
	return nil, errONNXUnavailable
}

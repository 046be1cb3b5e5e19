//go:build cgo

package backend

import (
	"github.com/samcharles93/charcomplete/internal/backend/onnx"
	"github.com/samcharles93/charcomplete/internal/inference"
)

const onnxEnabled = true

func newONNX(modelPath string, sig inference.Signature, library string) (inference.Port, error) {
	return onnx.Open(modelPath, sig, library)
}

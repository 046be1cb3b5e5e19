// Package backend opens the inference port named by a model manifest.
package backend

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samcharles93/charcomplete/internal/backend/rnn"
	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/vocab"
)

const (
	RNN  = "rnn"
	ONNX = "onnx"
	Auto = "auto"
)

func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	if backend == "" {
		return Auto, nil
	}
	switch backend {
	case RNN, ONNX, Auto:
		return backend, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, rnn, or onnx)", backend)
	}
}

// Resolve picks a concrete backend for the manifest. Auto chooses onnx for
// .onnx weights and rnn otherwise.
func Resolve(m inference.Manifest) (string, error) {
	name, err := Normalize(m.Backend)
	if err != nil {
		return "", err
	}
	if name != Auto {
		return name, nil
	}
	if strings.EqualFold(filepath.Ext(m.Weights), ".onnx") {
		return ONNX, nil
	}
	return RNN, nil
}

// Open implements inference.PortOpener.
func Open(m inference.Manifest, v *vocab.Vocabulary) (inference.Port, error) {
	name, err := Resolve(m)
	if err != nil {
		return nil, err
	}
	if m.Weights == "" {
		return nil, fmt.Errorf("manifest %s has no weights", m.Name)
	}
	sig := inference.Signature{
		Input:        m.Input,
		Output:       m.Output,
		WindowLength: m.WindowLength,
		Width:        v.Width(),
	}
	switch name {
	case ONNX:
		return newONNX(m.Path(m.Weights), sig, m.ONNXLibrary)
	default:
		return rnn.Load(m.Path(m.Weights), sig)
	}
}

package backend

import "strings"

// Available returns a comma-separated list of available backends.
func Available() string {
	entries := []string{RNN}
	if Has(ONNX) {
		entries = append(entries, ONNX)
	}
	return strings.Join(entries, ",")
}

func Has(name string) bool {
	switch name {
	case ONNX:
		return onnxEnabled
	default:
		return name == RNN
	}
}

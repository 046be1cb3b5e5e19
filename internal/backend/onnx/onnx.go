//go:build cgo

// Package onnx runs an exported character model through ONNX Runtime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/samcharles93/charcomplete/internal/inference"
)

// LibraryEnv names the shared library when neither the manifest nor the
// config does.
const LibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var ErrLibraryNotFound = errors.New("onnxruntime shared library not found")

var (
	envMu      sync.Mutex
	envReady   bool
	envLibrary string
)

// Init loads the runtime library and creates the global environment. Only
// the first successful call has an effect.
func Init(library string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envReady {
		return nil
	}
	path, err := ResolveLibrary(library)
	if err != nil {
		return err
	}
	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime (%s): %w", path, err)
	}
	envReady = true
	envLibrary = path
	return nil
}

// Library is the path the environment was initialized with, if any.
func Library() string {
	envMu.Lock()
	defer envMu.Unlock()
	return envLibrary
}

// ResolveLibrary returns the explicit path, then $ONNXRUNTIME_SHARED_LIBRARY_PATH,
// then the first default library name found next to the executable or in
// the working directory.
func ResolveLibrary(explicit string) (string, error) {
	if p := strings.TrimSpace(explicit); p != "" {
		return p, nil
	}
	if p := strings.TrimSpace(os.Getenv(LibraryEnv)); p != "" {
		return p, nil
	}
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	dirs = append(dirs, ".")
	for _, dir := range dirs {
		for _, name := range defaultLibraryNames() {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("%w: set %s or onnx_library", ErrLibraryNotFound, LibraryEnv)
}

func defaultLibraryNames() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"libonnxruntime.dylib"}
	case "windows":
		return []string{"onnxruntime.dll"}
	default:
		return []string{"libonnxruntime.so"}
	}
}

// Port is an inference.Port backed by a DynamicAdvancedSession. The session
// is not safe for concurrent Run calls, so Predict holds a mutex.
type Port struct {
	sig     inference.Signature
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// Open creates a session for the model. Declared tensor names that the
// model does not have fall back to the model's only input or output.
func Open(modelPath string, sig inference.Signature, library string) (*Port, error) {
	if err := Init(library); err != nil {
		return nil, err
	}
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read model info: %w", err)
	}

	inName, err := pickName("input", sig.Input, infoNames(inputs))
	if err != nil {
		return nil, err
	}
	outName, err := pickName("output", sig.Output, infoNames(outputs))
	if err != nil {
		return nil, err
	}
	for _, info := range inputs {
		if info.Name == inName {
			if err := checkInputDims(info.Dimensions, sig); err != nil {
				return nil, err
			}
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer func() { _ = opts.Destroy() }()
	if err := opts.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{inName}, []string{outName}, opts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	sig.Input, sig.Output = inName, outName
	return &Port{sig: sig, session: session}, nil
}

func (p *Port) Signature() inference.Signature { return p.sig }

func (p *Port) Predict(ctx context.Context, in inference.Tensor) (inference.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return inference.Tensor{}, err
	}
	want := p.sig.WindowLength * p.sig.Width
	if len(in.Data) != want {
		return inference.Tensor{}, fmt.Errorf("input has %d values, want %d", len(in.Data), want)
	}

	input, err := ort.NewTensor(ort.NewShape(1, int64(p.sig.WindowLength), int64(p.sig.Width)), in.Data)
	if err != nil {
		return inference.Tensor{}, fmt.Errorf("input tensor: %w", err)
	}
	defer func() { _ = input.Destroy() }()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return inference.Tensor{}, errors.New("session closed")
	}

	outputs := []ort.Value{nil}
	if err := p.session.Run([]ort.Value{input}, outputs); err != nil {
		return inference.Tensor{}, fmt.Errorf("run: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				_ = out.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return inference.Tensor{}, fmt.Errorf("output %s is %T, want float32 tensor", p.sig.Output, outputs[0])
	}
	data := lastRow(out.GetData(), p.sig.Width)
	return inference.Tensor{
		Name:  p.sig.Output,
		Shape: []int64{1, int64(len(data))},
		Data:  slices.Clone(data),
	}, nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	err := p.session.Destroy()
	p.session = nil
	return err
}

func infoNames(infos []ort.InputOutputInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

func pickName(kind, declared string, available []string) (string, error) {
	if slices.Contains(available, declared) {
		return declared, nil
	}
	if len(available) == 1 {
		return available[0], nil
	}
	return "", fmt.Errorf("model has no %s named %q (have %s)", kind, declared, strings.Join(available, ", "))
}

// checkInputDims accepts dynamic (non-positive) dimensions.
func checkInputDims(dims ort.Shape, sig inference.Signature) error {
	if len(dims) != 3 {
		return fmt.Errorf("input has rank %d, want [1, window, width]", len(dims))
	}
	if d := dims[1]; d > 0 && d != int64(sig.WindowLength) {
		return fmt.Errorf("model window is %d, manifest says %d", d, sig.WindowLength)
	}
	if d := dims[2]; d > 0 && d != int64(sig.Width) {
		return fmt.Errorf("model width is %d, vocabulary width is %d", d, sig.Width)
	}
	return nil
}

// lastRow keeps the final timestep of a per-step [1, N, width] output.
func lastRow(data []float32, width int) []float32 {
	if width > 0 && len(data) > width && len(data)%width == 0 {
		return data[len(data)-width:]
	}
	return data
}

package inference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/charcomplete/internal/logger"
	"github.com/samcharles93/charcomplete/internal/vocab"
)

// ManifestName is the file describing a model directory.
const ManifestName = "model.yaml"

// Manifest is the parsed model.yaml of a model directory.
type Manifest struct {
	Name           string        `yaml:"name"`
	Backend        string        `yaml:"backend"`
	Weights        string        `yaml:"weights"`
	Vocabulary     string        `yaml:"vocabulary"`
	WindowLength   int           `yaml:"window_length"`
	Input          string        `yaml:"input"`
	Output         string        `yaml:"output"`
	ReserveUnknown bool          `yaml:"reserve_unknown"`
	Pad            string        `yaml:"pad"`
	StepTimeout    time.Duration `yaml:"step_timeout"`
	ONNXLibrary    string        `yaml:"onnx_library"`

	Temperature *float64 `yaml:"temperature"`
	Steps       *int     `yaml:"steps"`
	TopK        *int     `yaml:"top_k"`

	// Dir is the directory the manifest was read from.
	Dir string `yaml:"-"`
}

// Path resolves a manifest-relative file name.
func (m Manifest) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.Dir, name)
}

func (m Manifest) PadRune() (rune, error) {
	if m.Pad == "" {
		return 0, nil
	}
	c, size := utf8.DecodeRuneInString(m.Pad)
	if size != len(m.Pad) {
		return 0, fmt.Errorf("pad must be a single character, got %q", m.Pad)
	}
	return c, nil
}

// PortOpener builds the port for a manifest. The vocabulary is already
// loaded so the opener can check the model width.
type PortOpener func(m Manifest, v *vocab.Vocabulary) (Port, error)

type Loader struct {
	Open PortOpener
	// ONNXLibrary is used when the manifest does not name one.
	ONNXLibrary string
	// StepTimeout is used when the manifest does not set one.
	StepTimeout time.Duration
	Logger      logger.Logger
}

type LoadResult struct {
	Engine             Engine
	Manifest           Manifest
	Vocabulary         *vocab.Vocabulary
	GenerationDefaults GenDefaults
}

// ReadManifest reads model.yaml from a model directory, or the given file.
func ReadManifest(path string) (Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return Manifest{}, fmt.Errorf("model path is required")
	}
	file := path
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		file = filepath.Join(path, ManifestName)
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: read manifest: %w", vocab.ErrAssetLoad, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: parse %s: %w", vocab.ErrAssetLoad, file, err)
	}
	m.Dir = filepath.Dir(file)
	if m.Name == "" {
		m.Name = filepath.Base(m.Dir)
	}
	if m.Vocabulary == "" {
		m.Vocabulary = "dict.json"
	}
	if m.Input == "" {
		m.Input = "input"
	}
	if m.Output == "" {
		m.Output = "output"
	}
	if m.WindowLength <= 0 {
		return Manifest{}, fmt.Errorf("%w: %s: window_length must be positive", vocab.ErrAssetLoad, file)
	}
	return m, nil
}

// Load reads the manifest and vocabulary and opens the port. Any failure is
// fatal for the model; nothing is retried.
func (l Loader) Load(path string) (*LoadResult, error) {
	if l.Open == nil {
		return nil, fmt.Errorf("loader has no port opener")
	}
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	if m.ONNXLibrary == "" {
		m.ONNXLibrary = l.ONNXLibrary
	}
	pad, err := m.PadRune()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vocab.ErrAssetLoad, err)
	}

	v, err := vocab.Load(m.Path(m.Vocabulary), vocab.Options{ReserveUnknown: m.ReserveUnknown})
	if err != nil {
		return nil, err
	}

	port, err := l.Open(m, v)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", m.Backend, err)
	}

	log := l.Logger
	if log == nil {
		log = logger.Default()
	}
	timeout := m.StepTimeout
	if timeout == 0 {
		timeout = l.StepTimeout
	}
	engine, err := NewEngine(v, port, EngineOptions{
		Pad:         pad,
		StepTimeout: timeout,
		Logger:      log.With("model", m.Name),
	})
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	log.Info("model loaded",
		"model", m.Name,
		"backend", m.Backend,
		"vocab", v.Size(),
		"window", m.WindowLength,
	)

	return &LoadResult{
		Engine:     engine,
		Manifest:   m,
		Vocabulary: v,
		GenerationDefaults: GenDefaults{
			Temperature: m.Temperature,
			Steps:       m.Steps,
			TopK:        m.TopK,
		},
	}, nil
}

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samcharles93/charcomplete/internal/api"
	"github.com/samcharles93/charcomplete/internal/backend"
	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/logger"
	"github.com/samcharles93/charcomplete/internal/vocab"
)

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

// modelsDirectory is --models-path, falling back to $CHARCOMPLETE_MODELS_DIR.
func modelsDirectory(flag string) string {
	if dir := strings.TrimSpace(flag); dir != "" {
		return dir
	}
	return strings.TrimSpace(os.Getenv(api.EnvModelsDir))
}

func resolveModelPath(modelFlag string, modelsPath string, stdin io.Reader, stderr io.Writer) (string, error) {
	modelFlag = strings.TrimSpace(modelFlag)
	modelsDir := modelsDirectory(modelsPath)
	if modelFlag != "" {
		// a bare name is looked up in the models directory
		if modelsDir != "" && !strings.ContainsRune(modelFlag, filepath.Separator) {
			cand := filepath.Join(modelsDir, modelFlag)
			if _, err := os.Stat(filepath.Join(cand, inference.ManifestName)); err == nil {
				return cand, nil
			}
		}
		return filepath.Clean(modelFlag), nil
	}

	if modelsDir == "" {
		return "", fmt.Errorf("--model or --models-path is required unless %s is set", api.EnvModelsDir)
	}
	models, err := api.DiscoverModels(modelsDir)
	if err != nil {
		return "", err
	}
	switch len(models) {
	case 0:
		return "", fmt.Errorf("no models found in %s", modelsDir)
	case 1:
		_, _ = fmt.Fprintf(stderr, "using model %s\n", models[0])
		return models[0], nil
	default:
		if !stdinIsTTY() {
			return "", fmt.Errorf("multiple models found in %s but stdin is not interactive; set --model", modelsDir)
		}
		return selectModelInteractively(modelsDir, models, stdin, stderr)
	}
}

func selectModelInteractively(modelsDir string, models []string, stdin io.Reader, stderr io.Writer) (string, error) {
	_, _ = fmt.Fprintf(stderr, "select a model from %s\n", modelsDir)
	for i, m := range models {
		_, _ = fmt.Fprintf(stderr, "%d. %s\n", i+1, filepath.Base(m))
	}

	reader := bufio.NewReader(stdin)
	for {
		_, _ = fmt.Fprintf(stderr, "enter selection [1-%d]: ", len(models))
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if errors.Is(err, io.EOF) {
				return "", errors.New("no selection provided on stdin; set --model")
			}
			continue
		}
		idx, convErr := strconv.Atoi(line)
		if convErr != nil || idx < 1 || idx > len(models) {
			_, _ = fmt.Fprintf(stderr, "invalid selection %q\n", line)
			if errors.Is(err, io.EOF) {
				return "", errors.New("invalid selection provided on stdin; set --model")
			}
			continue
		}
		return models[idx-1], nil
	}
}

// newLoader builds a loader from the shared model flags.
func newLoader(log logger.Logger) (inference.Loader, error) {
	override, err := backend.Normalize(backendName)
	if err != nil {
		return inference.Loader{}, err
	}
	open := backend.Open
	if override != backend.Auto {
		open = func(m inference.Manifest, v *vocab.Vocabulary) (inference.Port, error) {
			m.Backend = override
			return backend.Open(m, v)
		}
	}
	return inference.Loader{
		Open:        open,
		ONNXLibrary: onnxLibrary,
		StepTimeout: stepTimeout,
		Logger:      log,
	}, nil
}

// loadModel resolves and loads the model named by the shared flags.
func loadModel(log logger.Logger) (*inference.LoadResult, error) {
	path, err := resolveModelPath(modelPath, modelsPath, os.Stdin, os.Stderr)
	if err != nil {
		return nil, err
	}
	loader, err := newLoader(log)
	if err != nil {
		return nil, err
	}
	return loader.Load(path)
}

func isTTY() bool {
	st, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}

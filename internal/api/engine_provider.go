package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/samcharles93/charcomplete/internal/inference"
)

type EngineProvider interface {
	WithEngine(ctx context.Context, modelID string, fn func(engine inference.Engine, defaults inference.GenDefaults) error) error
}

type EngineProviderConfig struct {
	// DefaultModelPath is used when a request names no model.
	DefaultModelPath string
	// ModelsPath holds one sub-directory per model.
	ModelsPath string
	Loader     inference.Loader
}

// CachedEngineProvider loads each model once and serializes generation per
// model. Distinct models run concurrently.
type CachedEngineProvider struct {
	cfg   EngineProviderConfig
	mu    sync.Mutex
	cache map[string]*engineEntry
}

type engineEntry struct {
	engine   inference.Engine
	defaults inference.GenDefaults
	mu       sync.Mutex
}

const EnvModelsDir = "CHARCOMPLETE_MODELS_DIR"

func NewCachedEngineProvider(cfg EngineProviderConfig) *CachedEngineProvider {
	return &CachedEngineProvider{
		cfg:   cfg,
		cache: make(map[string]*engineEntry),
	}
}

func (p *CachedEngineProvider) WithEngine(ctx context.Context, modelID string, fn func(engine inference.Engine, defaults inference.GenDefaults) error) error {
	path, err := p.resolveModelPath(modelID)
	if err != nil {
		return err
	}
	entry, err := p.getOrLoad(path)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(entry.engine, entry.defaults)
}

// Warm loads a model ahead of the first request so asset errors surface at
// startup.
func (p *CachedEngineProvider) Warm(modelID string) error {
	path, err := p.resolveModelPath(modelID)
	if err != nil {
		return err
	}
	_, err = p.getOrLoad(path)
	return err
}

func (p *CachedEngineProvider) getOrLoad(path string) (*engineEntry, error) {
	p.mu.Lock()
	entry, ok := p.cache[path]
	p.mu.Unlock()
	if ok {
		return entry, nil
	}

	result, err := p.cfg.Loader.Load(path)
	if err != nil {
		return nil, err
	}
	newEntry := &engineEntry{
		engine:   result.Engine,
		defaults: result.GenerationDefaults,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.cache[path]; ok {
		// lost a concurrent load
		_ = newEntry.engine.Close()
		return existing, nil
	}
	p.cache[path] = newEntry
	return newEntry, nil
}

// Close releases every loaded engine.
func (p *CachedEngineProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for path, entry := range p.cache {
		entry.mu.Lock()
		if err := entry.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
		entry.mu.Unlock()
		delete(p.cache, path)
	}
	return errors.Join(errs...)
}

// ListModels returns the ids a request may name, sorted.
func (p *CachedEngineProvider) ListModels() ([]string, error) {
	var ids []string
	if dir := p.modelsDir(); dir != "" {
		models, err := DiscoverModels(dir)
		if err != nil {
			return nil, err
		}
		for _, m := range models {
			ids = append(ids, filepath.Base(m))
		}
	}
	if p.cfg.DefaultModelPath != "" {
		id := modelID(p.cfg.DefaultModelPath)
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (p *CachedEngineProvider) resolveModelPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		if looksLikePath(id) {
			return filepath.Clean(id), nil
		}
		if p.cfg.DefaultModelPath != "" && modelID(p.cfg.DefaultModelPath) == id {
			return filepath.Clean(p.cfg.DefaultModelPath), nil
		}
		modelsDir := p.modelsDir()
		if modelsDir == "" {
			return "", fmt.Errorf("%w: %q (no models directory configured)", ErrModelNotFound, id)
		}
		if resolved := resolveInDir(modelsDir, id); resolved != "" {
			return resolved, nil
		}
		return "", fmt.Errorf("%w: %q in %s", ErrModelNotFound, id, modelsDir)
	}

	if p.cfg.DefaultModelPath != "" {
		return filepath.Clean(p.cfg.DefaultModelPath), nil
	}
	modelsDir := p.modelsDir()
	if modelsDir == "" {
		return "", newInvalidRequest("model", "model is required")
	}
	models, err := DiscoverModels(modelsDir)
	if err != nil {
		return "", err
	}
	switch len(models) {
	case 1:
		return models[0], nil
	case 0:
		return "", fmt.Errorf("%w: no models found in %s", ErrModelNotFound, modelsDir)
	default:
		return "", newInvalidRequest("model", fmt.Sprintf("multiple models found in %s; specify model", modelsDir))
	}
}

func (p *CachedEngineProvider) modelsDir() string {
	if dir := strings.TrimSpace(p.cfg.ModelsPath); dir != "" {
		return dir
	}
	return strings.TrimSpace(os.Getenv(EnvModelsDir))
}

// modelID names a model by its directory.
func modelID(path string) string {
	path = filepath.Clean(path)
	if filepath.Base(path) == inference.ManifestName {
		path = filepath.Dir(path)
	}
	return filepath.Base(path)
}

func looksLikePath(v string) bool {
	return strings.ContainsRune(v, filepath.Separator) || strings.HasSuffix(strings.ToLower(v), ".yaml")
}

func resolveInDir(dir, name string) string {
	cand := filepath.Join(dir, name)
	if fileExists(filepath.Join(cand, inference.ManifestName)) {
		return cand
	}
	return ""
}

// DiscoverModels lists the sub-directories of dir that hold a model.yaml.
func DiscoverModels(dir string) ([]string, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	models := make([]string, 0, len(ents))
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if fileExists(filepath.Join(path, inference.ManifestName)) {
			models = append(models, path)
		}
	}
	return models, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

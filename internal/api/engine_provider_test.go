package api

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/logger"
	"github.com/samcharles93/charcomplete/internal/vocab"
)

// constPort always predicts code 1 and tracks how many calls overlap.
type constPort struct {
	sig     inference.Signature
	active  *atomic.Int32
	overlap *atomic.Bool
	closed  *atomic.Int32
}

func (p constPort) Signature() inference.Signature { return p.sig }

func (p constPort) Predict(ctx context.Context, in inference.Tensor) (inference.Tensor, error) {
	if p.active.Add(1) > 1 {
		p.overlap.Store(true)
	}
	defer p.active.Add(-1)
	time.Sleep(time.Millisecond)
	out := make([]float32, p.sig.Width)
	out[1] = 1
	return inference.Tensor{Name: p.sig.Output, Data: out}, nil
}

func (p constPort) Close() error {
	p.closed.Add(1)
	return nil
}

type portStats struct {
	active  atomic.Int32
	overlap atomic.Bool
	closed  atomic.Int32
	opened  atomic.Int32
}

func (s *portStats) opener() inference.PortOpener {
	return func(m inference.Manifest, v *vocab.Vocabulary) (inference.Port, error) {
		s.opened.Add(1)
		return constPort{
			sig: inference.Signature{
				Input:        m.Input,
				Output:       m.Output,
				WindowLength: m.WindowLength,
				Width:        v.Width(),
			},
			active:  &s.active,
			overlap: &s.overlap,
			closed:  &s.closed,
		}, nil
	}
}

func writeModelDir(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	mustWriteFile(t, filepath.Join(dir, "dict.json"), `{" ": 0, "a": 1, "b": 2}`)
	mustWriteFile(t, filepath.Join(dir, inference.ManifestName), "weights: w.bin\nwindow_length: 3\nsteps: 4\n")
	return dir
}

func TestCachedEngineProviderListModelsFromDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeModelDir(t, dir, "beta")
	writeModelDir(t, dir, "alpha")
	mustWriteFile(t, filepath.Join(dir, "notes.txt"), "x")
	if err := os.Mkdir(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	provider := NewCachedEngineProvider(EngineProviderConfig{ModelsPath: dir})
	models, err := provider.ListModels()
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	want := []string{"alpha", "beta"}
	if !reflect.DeepEqual(models, want) {
		t.Fatalf("ListModels() = %v, want %v", models, want)
	}
}

func TestCachedEngineProviderListModelsIncludesDefaultModel(t *testing.T) {
	t.Parallel()

	provider := NewCachedEngineProvider(EngineProviderConfig{DefaultModelPath: "/models/custom-model/model.yaml"})
	models, err := provider.ListModels()
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	want := []string{"custom-model"}
	if !reflect.DeepEqual(models, want) {
		t.Fatalf("ListModels() = %v, want %v", models, want)
	}
}

func TestCachedEngineProviderLoadsOnceAndSerializes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeModelDir(t, root, "tiny")
	var stats portStats
	provider := NewCachedEngineProvider(EngineProviderConfig{
		ModelsPath: root,
		Loader:     inference.Loader{Open: stats.opener(), Logger: logger.Discard()},
	})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Go(func() {
			errs <- provider.WithEngine(context.Background(), "tiny", func(engine inference.Engine, defaults inference.GenDefaults) error {
				req := inference.ResolveRequest(inference.RequestOptions{Text: "ab"}, defaults)
				res, err := engine.Complete(context.Background(), &req)
				if err != nil {
					return err
				}
				if res.Text != "aaaa" {
					return errors.New("unexpected completion " + res.Text)
				}
				return nil
			})
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("WithEngine: %v", err)
		}
	}

	if stats.overlap.Load() {
		t.Fatalf("generations overlapped on one model")
	}
	// racing first loads may open more than once, but only one survives
	if opened, closed := stats.opened.Load(), stats.closed.Load(); opened-closed != 1 {
		t.Fatalf("opened %d, closed %d: want exactly one live engine", opened, closed)
	}

	if err := provider.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if stats.opened.Load() != stats.closed.Load() {
		t.Fatalf("engines leaked after Close")
	}
}

func TestCachedEngineProviderResolveErrors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	provider := NewCachedEngineProvider(EngineProviderConfig{ModelsPath: root})
	err := provider.WithEngine(context.Background(), "missing", func(inference.Engine, inference.GenDefaults) error { return nil })
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if err := provider.Warm(""); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound for empty models dir, got %v", err)
	}

	writeModelDir(t, root, "one")
	writeModelDir(t, root, "two")
	if err := provider.Warm(""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ambiguity to be an invalid request, got %v", err)
	}
}

func TestCachedEngineProviderAssetFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := writeModelDir(t, root, "broken")
	if err := os.Remove(filepath.Join(dir, "dict.json")); err != nil {
		t.Fatal(err)
	}
	var stats portStats
	provider := NewCachedEngineProvider(EngineProviderConfig{
		DefaultModelPath: dir,
		Loader:           inference.Loader{Open: stats.opener(), Logger: logger.Discard()},
	})
	if err := provider.Warm(""); !errors.Is(err, vocab.ErrAssetLoad) {
		t.Fatalf("expected ErrAssetLoad, got %v", err)
	}
	if stats.opened.Load() != 0 {
		t.Fatalf("port opened despite missing vocabulary")
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

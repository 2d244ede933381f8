package assets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"scriptreel/internal/services"
)

func TestSaveAssetWritesDurably(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "clips"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	path, err := store.SaveAsset(context.Background(), []byte("video"), "000-Lighthouse: Dusk.mp4")
	if err != nil {
		t.Fatalf("SaveAsset: %v", err)
	}
	if filepath.Base(path) != "000-Lighthouse- Dusk.mp4" {
		t.Fatalf("name = %q", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "video" {
		t.Fatalf("read back = %q, %v", data, err)
	}
}

func TestSaveAssetAvoidsCollisions(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	ctx := context.Background()
	first, _ := store.SaveAsset(ctx, []byte("a"), "clip.mp4")
	second, err := store.SaveAsset(ctx, []byte("b"), "clip.mp4")
	if err != nil {
		t.Fatalf("SaveAsset: %v", err)
	}
	if first == second || filepath.Base(second) != "clip-1.mp4" {
		t.Fatalf("first=%q second=%q", first, second)
	}
	data, _ := os.ReadFile(first)
	if string(data) != "a" {
		t.Fatal("first clip was overwritten")
	}
}

func TestSaveAssetConcurrentSameName(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		paths = map[string]bool{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path, err := store.SaveAsset(context.Background(), []byte("x"), "same")
			if err != nil {
				t.Errorf("SaveAsset: %v", err)
				return
			}
			mu.Lock()
			paths[path] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(paths) != 8 {
		t.Fatalf("distinct paths = %d, want 8", len(paths))
	}
}

func TestSaveAssetDefaults(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	path, err := store.SaveAsset(context.Background(), []byte("x"), "  ")
	if err != nil {
		t.Fatalf("SaveAsset: %v", err)
	}
	if filepath.Base(path) != "clip.mp4" {
		t.Fatalf("name = %q", filepath.Base(path))
	}
	path, _ = store.SaveAsset(context.Background(), []byte("x"), "../../escape")
	if filepath.Dir(path) != store.Dir() {
		t.Fatalf("asset escaped output dir: %q", path)
	}
}

func TestSaveAssetRejectsEmptyData(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	_, err := store.SaveAsset(context.Background(), nil, "x.mp4")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	entries, _ := os.ReadDir(store.Dir())
	if len(entries) != 0 {
		t.Fatalf("unexpected files: %v", entries)
	}
}

func TestSaveAssetHonoursCancellation(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.SaveAsset(ctx, []byte("x"), "x.mp4"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestExportCopiesInOrder(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	ctx := context.Background()
	a, _ := store.SaveAsset(ctx, []byte("first"), "a.mp4")
	b, _ := store.SaveAsset(ctx, []byte("second"), "b.mp4")

	dest := filepath.Join(t.TempDir(), "export")
	out, err := Export([]string{a, b}, dest)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(out) != 2 || filepath.Base(out[0]) != "000-a.mp4" || filepath.Base(out[1]) != "001-b.mp4" {
		t.Fatalf("exported = %v", out)
	}
	data, _ := os.ReadFile(out[1])
	if string(data) != "second" {
		t.Fatalf("content = %q", data)
	}
}

func TestExportMissingSource(t *testing.T) {
	if _, err := Export([]string{filepath.Join(t.TempDir(), "missing.mp4")}, t.TempDir()); err == nil {
		t.Fatal("expected error for missing source")
	}
}

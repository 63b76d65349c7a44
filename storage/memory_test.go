package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMemoryBackendSaveAndLoad(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	payload := []byte("snapshot")
	if err := backend.Save(ctx, "test-session", payload); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	payload[0] = 'X'

	loaded, found, err := backend.Load(ctx, "test-session")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !found {
		t.Fatal("expected snapshot")
	}
	if string(loaded) != "snapshot" {
		t.Errorf("backend kept caller's buffer: %q", loaded)
	}
}

func TestMemoryBackendLoadNonexistent(t *testing.T) {
	backend := NewMemoryBackend()

	_, found, err := backend.Load(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if found {
		t.Error("expected no snapshot")
	}
}

func TestFileBackendEscapesIDs(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}

	for _, id := range []string{"../escape", "a/b", `c\d`, "..", "plain"} {
		path, err := backend.Path(id)
		if err != nil {
			t.Fatalf("Path(%q) failed: %v", id, err)
		}
		if filepath.Dir(path) != dir {
			t.Errorf("Path(%q) = %q, outside %q", id, path, dir)
		}
		if err := backend.Save(context.Background(), id, []byte(id)); err != nil {
			t.Fatalf("Save(%q) failed: %v", id, err)
		}
		data, found, err := backend.Load(context.Background(), id)
		if err != nil || !found || string(data) != id {
			t.Errorf("Load(%q) = %q, %v, %v", id, data, found, err)
		}
	}

	ids, err := backend.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 5 {
		t.Errorf("expected 5 ids, got %v", ids)
	}

	if _, err := backend.Path(""); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestFileBackendLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := backend.Save(ctx, "conv", []byte(strings.Repeat("x", i+1))); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "conv.bin" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only conv.bin, got %v", names)
	}
}

func TestNewFileBackendRequiresDir(t *testing.T) {
	if _, err := NewFileBackend("  "); err == nil {
		t.Error("expected error for blank directory")
	}
}

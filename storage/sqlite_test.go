package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/richinex/counsel/model"
)

func TestSqliteBackendSaveAndLoad(t *testing.T) {
	backend, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()

	if err := backend.Save(ctx, "test-session", []byte("v1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := backend.Save(ctx, "test-session", []byte("v2")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, found, err := backend.Load(ctx, "test-session")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !found {
		t.Fatal("expected snapshot to exist")
	}
	if string(data) != "v2" {
		t.Errorf("expected 'v2', got %q", data)
	}

	ids, err := backend.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("expected one row per conversation, got %d", len(ids))
	}
}

func TestSqliteBackendLoadMissing(t *testing.T) {
	backend, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	defer backend.Close()

	data, found, err := backend.Load(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if found || data != nil {
		t.Errorf("expected no snapshot, got %q", data)
	}
}

func TestSqliteBackendDelete(t *testing.T) {
	backend, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()
	if err := backend.Save(ctx, "test-session", []byte("x")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := backend.Delete(ctx, "test-session"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := backend.Delete(ctx, "test-session"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}

	_, found, err := backend.Load(ctx, "test-session")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if found {
		t.Error("expected snapshot to be deleted")
	}
}

func TestSqliteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "counsel.db")

	first, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("OpenSqlite failed: %v", err)
	}
	store := NewStore(first, nil, nil)
	want := model.History{model.UserMessage("Hello"), model.AssistantMessage("Hi there", nil)}
	if err := store.Append(ctx, "conv", want...); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	first.Close()

	second, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	got, err := NewStore(second, nil, nil).Read(ctx, "conv", 10)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Text != "Hello" || got[1].Text != "Hi there" {
		t.Errorf("unexpected history: %+v", got)
	}
}

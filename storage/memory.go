// Package storage provides in-memory snapshot storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"slices"
	"sync"
)

// MemoryBackend implements SnapshotBackend using an in-memory map.
// Data is lost when process terminates.
type MemoryBackend struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		snapshots: make(map[string][]byte),
	}
}

// Load returns a copy of the snapshot for id.
func (b *MemoryBackend) Load(_ context.Context, id string) ([]byte, bool, error) {
	if id == "" {
		return nil, false, ErrInvalidID
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.snapshots[id]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(data), true, nil
}

// Save stores a copy of data for id.
func (b *MemoryBackend) Save(_ context.Context, id string, data []byte) error {
	if id == "" {
		return ErrInvalidID
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.snapshots[id] = slices.Clone(data)
	return nil
}

// Delete removes the snapshot for id.
func (b *MemoryBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.snapshots, id)
	return nil
}

// List returns stored ids in sorted order.
func (b *MemoryBackend) List(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.snapshots))
	for id := range b.snapshots {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

var _ SnapshotBackend = (*MemoryBackend)(nil)

// Package storage provides conversation storage abstraction.
//
// Information Hiding:
// - Snapshot backend implementation details hidden behind SnapshotBackend
// - Allows swapping between memory, filesystem, SQLite without API changes
// - Cache, per-conversation locking and encoding hidden inside Store

package storage

import (
	"context"
	"errors"

	"github.com/richinex/counsel/model"
)

// ErrInvalidID is returned for conversation ids that cannot name a snapshot.
var ErrInvalidID = errors.New("storage: invalid conversation id")

// ConversationStore holds the message history of every conversation.
type ConversationStore interface {
	// Append extends the history of id with msgs, in order, and persists
	// the full updated history before returning.
	Append(ctx context.Context, id model.ConversationID, msgs ...model.Message) error

	// Read returns the last lastN messages of id in original order.
	// lastN <= 0 or lastN >= len(history) returns the entire history.
	// The returned slice is a copy.
	Read(ctx context.Context, id model.ConversationID, lastN int) (model.History, error)

	// Clear removes the cached and durable history of id.
	// Clearing an unknown id is a no-op.
	Clear(ctx context.Context, id model.ConversationID) error

	// Conversations lists ids that have a durable snapshot.
	Conversations(ctx context.Context) ([]model.ConversationID, error)
}

// SnapshotBackend persists one opaque snapshot per conversation id.
// Implementations must replace a snapshot atomically: a reader sees either
// the previous or the new payload, never a mix.
type SnapshotBackend interface {
	// Load returns the snapshot for id. found is false when none exists.
	Load(ctx context.Context, id string) (data []byte, found bool, err error)

	// Save replaces the snapshot for id.
	Save(ctx context.Context, id string, data []byte) error

	// Delete removes the snapshot for id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// List returns ids that have a snapshot.
	List(ctx context.Context) ([]string, error)
}

// Cached conversation store over a snapshot backend.
//
// Information Hiding:
// - In-memory cache and its copy-on-write discipline hidden
// - Per-conversation serialization of mutations hidden
// - Snapshot encoding (codec pool) hidden
// - Soft degradation of unreadable snapshots hidden

package storage

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/richinex/counsel/internal/codec"
	"github.com/richinex/counsel/model"
)

// Store implements ConversationStore with a write-through cache.
//
// Every Append rewrites the complete snapshot of the conversation, so the
// durable copy always equals the cached history once Append returns nil.
// Mutations of one conversation are serialized by a per-id lock; different
// conversations proceed in parallel.
type Store struct {
	backend SnapshotBackend
	codecs  *codec.Pool
	logger  *zap.Logger
	locks   *keyLocks

	mu    sync.RWMutex
	cache map[model.ConversationID]model.History
}

// NewStore creates a store over backend. A nil pool gets the default size;
// a nil logger discards output.
func NewStore(backend SnapshotBackend, pool *codec.Pool, logger *zap.Logger) *Store {
	if pool == nil {
		pool = codec.NewPool(codec.DefaultPoolSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend: backend,
		codecs:  pool,
		logger:  logger.Named("store"),
		locks:   newKeyLocks(),
		cache:   make(map[model.ConversationID]model.History),
	}
}

// Append extends the history of id and rewrites its snapshot.
//
// If the snapshot write fails the cached history still holds msgs and stays
// authoritative for the life of the process; the error is returned so the
// caller can report it.
func (s *Store) Append(ctx context.Context, id model.ConversationID, msgs ...model.Message) error {
	if id == "" {
		return ErrInvalidID
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("append message %d: invalid role %q", i, m.Role)
		}
	}

	unlock := s.locks.lock(string(id))
	defer unlock()

	current, ok := s.cached(id)
	if !ok {
		current = s.load(ctx, id)
	}

	// Full slice expression forces a new backing array, so readers holding
	// the previous history never observe the extension.
	next := append(current[:len(current):len(current)], model.History(msgs).Clone()...)

	s.mu.Lock()
	s.cache[id] = next
	s.mu.Unlock()

	data, err := s.codecs.Encode(ctx, next)
	if err != nil {
		s.logger.Error("encode snapshot failed", zap.String("conversation", string(id)), zap.Error(err))
		return fmt.Errorf("encode snapshot for %q: %w", id, err)
	}
	if err := s.backend.Save(ctx, string(id), data); err != nil {
		s.logger.Error("write snapshot failed",
			zap.String("conversation", string(id)),
			zap.Int("messages", len(next)),
			zap.Error(err))
		return fmt.Errorf("write snapshot for %q: %w", id, err)
	}

	s.logger.Debug("snapshot written",
		zap.String("conversation", string(id)),
		zap.Int("messages", len(next)),
		zap.Int("bytes", len(data)))
	return nil
}

// Read returns the last lastN messages of id.
func (s *Store) Read(ctx context.Context, id model.ConversationID, lastN int) (model.History, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if h, ok := s.cached(id); ok {
		return h.Last(lastN), nil
	}

	unlock := s.locks.lock(string(id))
	defer unlock()

	h, ok := s.cached(id)
	if !ok {
		h = s.load(ctx, id)
		s.mu.Lock()
		s.cache[id] = h
		s.mu.Unlock()
	}
	return h.Last(lastN), nil
}

// Clear drops the cache entry and the snapshot of id.
func (s *Store) Clear(ctx context.Context, id model.ConversationID) error {
	if id == "" {
		return ErrInvalidID
	}
	unlock := s.locks.lock(string(id))
	defer unlock()

	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()

	if err := s.backend.Delete(ctx, string(id)); err != nil {
		s.logger.Error("delete snapshot failed", zap.String("conversation", string(id)), zap.Error(err))
		return fmt.Errorf("delete snapshot for %q: %w", id, err)
	}
	s.logger.Info("conversation cleared", zap.String("conversation", string(id)))
	return nil
}

// Conversations lists ids with a durable snapshot.
func (s *Store) Conversations(ctx context.Context) ([]model.ConversationID, error) {
	ids, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]model.ConversationID, len(ids))
	for i, id := range ids {
		out[i] = model.ConversationID(id)
	}
	return out, nil
}

func (s *Store) cached(id model.ConversationID) (model.History, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.cache[id]
	return h, ok
}

// load reads the snapshot of id. Missing, unreadable and undecodable
// snapshots all yield an empty history.
func (s *Store) load(ctx context.Context, id model.ConversationID) model.History {
	data, found, err := s.backend.Load(ctx, string(id))
	if err != nil {
		s.logger.Warn("read snapshot failed, starting empty",
			zap.String("conversation", string(id)), zap.Error(err))
		return model.History{}
	}
	if !found {
		return model.History{}
	}

	h, err := s.codecs.Decode(ctx, data)
	if err != nil {
		s.logger.Warn("decode snapshot failed, starting empty",
			zap.String("conversation", string(id)),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		return model.History{}
	}
	return h
}

var _ ConversationStore = (*Store)(nil)

package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// WorkflowStore persists encoded workflows keyed by session ID. Implementations must treat Put as all-or-nothing and
// return [ErrNotFound] from Get when nothing is stored for the session.
type WorkflowStore interface {
	Put(ctx context.Context, sessionID string, payload []byte, expiresAt time.Time) error
	Get(ctx context.Context, sessionID string) ([]byte, error)
	Delete(ctx context.Context, sessionID string) error
	// DeleteExpired removes entries expiring before the given time and returns how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// WorkflowCache stores the latest generated workflow of every session in a [WorkflowStore].
type WorkflowCache struct {
	store WorkflowStore
}

// NewWorkflowCache creates a cache on top of store.
func NewWorkflowCache(store WorkflowStore) *WorkflowCache {
	return &WorkflowCache{store: store}
}

// Put replaces the cached workflow of the session. The workflow is encoded before the store is touched so a failed
// encode leaves the previous entry in place.
func (c *WorkflowCache) Put(ctx context.Context, w GeneratedWorkflow) error {
	payload, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode workflow %s: %w", w.ID, err)
	}
	if err = c.store.Put(ctx, w.SessionID, payload, w.ValidUntil); err != nil {
		return fmt.Errorf("store workflow %s: %w", w.ID, err)
	}
	return nil
}

// Get returns the cached workflow of the session. It returns [ErrNotFound] on a miss and [ErrCacheCorrupted] when the
// stored payload cannot be decoded. Expired workflows are returned as is; callers decide whether to regenerate.
func (c *WorkflowCache) Get(ctx context.Context, sessionID string) (GeneratedWorkflow, error) {
	payload, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return GeneratedWorkflow{}, fmt.Errorf("load workflow: %w", err)
	}
	var w GeneratedWorkflow
	if err = json.Unmarshal(payload, &w); err != nil {
		return GeneratedWorkflow{}, fmt.Errorf("%w: session %s: %w", ErrCacheCorrupted, sessionID, err)
	}
	if w.SessionID != sessionID {
		return GeneratedWorkflow{}, fmt.Errorf("%w: session %s holds workflow of %s",
			ErrCacheCorrupted, sessionID, w.SessionID)
	}
	return w, nil
}

// Delete removes the cached workflow of the session. Deleting a missing entry is not an error.
func (c *WorkflowCache) Delete(ctx context.Context, sessionID string) error {
	if err := c.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	return nil
}

// Prune removes workflows that expired before now.
func (c *WorkflowCache) Prune(ctx context.Context, now time.Time) (int, error) {
	n, err := c.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("prune workflows: %w", err)
	}
	return n, nil
}

// MemoryWorkflowStore is an in-process [WorkflowStore].
type MemoryWorkflowStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewMemoryWorkflowStore creates an empty in-process store.
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{mu: sync.Mutex{}, entries: make(map[string]memoryEntry)}
}

func (s *MemoryWorkflowStore) Put(_ context.Context, sessionID string, payload []byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = memoryEntry{payload: append([]byte(nil), payload...), expiresAt: expiresAt}
	return nil
}

func (s *MemoryWorkflowStore) Get(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.payload...), nil
}

func (s *MemoryWorkflowStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

func (s *MemoryWorkflowStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if e.expiresAt.Before(before) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

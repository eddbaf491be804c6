package store

import (
	"context"
	"fmt"
	"sync"
)

// Compile-time interface assertion.
var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store] used in tests and database-less setups.
// Safe for concurrent use.
type MemStore struct {
	mu     sync.RWMutex
	sounds map[string][]Sound // keyed by guild ID, insertion order preserved
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{sounds: make(map[string][]Sound)}
}

// ListSounds implements [Store].
func (m *MemStore) ListSounds(_ context.Context, guildID string) ([]Sound, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Sound(nil), m.sounds[guildID]...), nil
}

// AddSound implements [Store].
func (m *MemStore) AddSound(_ context.Context, s Sound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sounds[s.GuildID] {
		if existing.Prompt == s.Prompt {
			return fmt.Errorf("store: sound %q already exists", s.Prompt)
		}
	}
	m.sounds[s.GuildID] = append(m.sounds[s.GuildID], s)
	return nil
}

// RemoveSound implements [Store].
func (m *MemStore) RemoveSound(_ context.Context, guildID, prompt string) (Sound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.sounds[guildID]
	for i, s := range list {
		if s.Prompt == prompt {
			m.sounds[guildID] = append(list[:i:i], list[i+1:]...)
			return s, nil
		}
	}
	return Sound{}, ErrNotFound
}

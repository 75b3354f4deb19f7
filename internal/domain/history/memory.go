package history

import (
	"context"
	"sync"
)

type memoryStore struct {
	mutex      sync.RWMutex
	sessions   map[string][]Entry
	maxEntries int
}

// NewMemory 创建内存存储，进程退出即丢
func NewMemory(cfg Config) Store {
	max := cfg.MaxEntries
	if max <= 0 {
		max = defaultMaxEntries
	}
	return &memoryStore{
		sessions:   make(map[string][]Entry),
		maxEntries: max,
	}
}

func (s *memoryStore) Append(ctx context.Context, sessionID string, entry Entry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries := append(s.sessions[sessionID], entry)
	if len(entries) > s.maxEntries {
		entries = entries[len(entries)-s.maxEntries:]
	}
	s.sessions[sessionID] = entries
	return nil
}

func (s *memoryStore) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entries := s.sessions[sessionID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *memoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *memoryStore) Close(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sessions = make(map[string][]Entry)
	return nil
}

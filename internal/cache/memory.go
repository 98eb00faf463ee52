package cache

import (
	"context"
	"sync"
)

// MemorySessionCache keeps sessions in process. Used when no Redis server
// is configured.
type MemorySessionCache struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{sessions: make(map[string]Session)}
}

func (m *MemorySessionCache) SetSession(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = *session
	return nil
}

func (m *MemorySessionCache) GetSession(_ context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (m *MemorySessionCache) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

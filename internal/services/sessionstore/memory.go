package sessionstore

import (
	"context"
	"sync"

	"partyflow/models"
)

type Memory struct {
	mu       sync.RWMutex
	sessions map[string]models.ConversationSession
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]models.ConversationSession)}
}

func (m *Memory) Get(_ context.Context, key string) (*models.ConversationSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) Put(_ context.Context, s *models.ConversationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.Key] = *s
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, key)
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

package inmemory

import (
	"context"
	"sync"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/pkg/errno"
)

// SessionStore is an in-memory implementation of repo.EngineSessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*entity.EngineSession
}

// NewSessionStore creates a new SessionStore instance.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*entity.EngineSession),
	}
}

func (s *SessionStore) Create(_ context.Context, session *entity.EngineSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (*entity.EngineSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, errno.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) Update(_ context.Context, session *entity.EngineSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return errno.ErrSessionNotFound
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return errno.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *SessionStore) ListByApp(_ context.Context, appName string) ([]*entity.EngineSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*entity.EngineSession, 0)
	for _, session := range s.sessions {
		if session.AppName == appName {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

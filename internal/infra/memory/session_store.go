package memory

import (
	"context"

	"code-exam-service/internal/domain"
	"github.com/puzpuzpuz/xsync/v3"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Sessions are immutable snapshots, so no copying is needed on reads.
type SessionStore struct {
	sessions *xsync.MapOf[string, *domain.Session]
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: xsync.NewMapOf[string, *domain.Session](),
	}
}

func (s *SessionStore) Save(_ context.Context, session *domain.Session) error {
	s.sessions.Store(session.ID, session)
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	session, ok := s.sessions.Load(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

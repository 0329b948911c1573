package cache

import (
	"sync"

	"auction-engine/internal/domain"
)

// Session holds the identity a client acts as. It is shared by every view of
// that client and changes only through SetIdentity.
type Session struct {
	mutex    sync.RWMutex
	identity string
}

func NewSession(identity string) *Session {
	return &Session{identity: identity}
}

func (s *Session) Identity() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.identity
}

// SetIdentity switches the session to identity and returns the previous one.
func (s *Session) SetIdentity(identity string) string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	previous := s.identity
	s.identity = identity
	return previous
}

func (s *Session) IsModerator() bool {
	return s.Identity() == domain.ModeratorEmail
}

// internal/services/session_service.go
package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tsegaye16/BookCompanion/internal/models"
)

// SessionService tracks anonymous sessions. Anonymous turns are buffered
// in memory only and disappear with the session.
type SessionService struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	ttl         time.Duration
	sweepTicker *time.Ticker
}

type Session struct {
	ID        string
	CreatedAt time.Time
	LastSeen  time.Time
	Turns     []models.ConversationTurn
}

// NewSessionService creates the service with a 2 hour idle TTL and starts
// the background sweep.
func NewSessionService() *SessionService {
	s := &SessionService{
		sessions: make(map[string]*Session),
		ttl:      2 * time.Hour,
	}
	s.startSweeper(30 * time.Minute)
	return s
}

func (s *SessionService) startSweeper(interval time.Duration) {
	s.sweepTicker = time.NewTicker(interval)
	go func() {
		for range s.sweepTicker.C {
			s.Cleanup()
		}
	}()
}

// CreateSession allocates a new anonymous session id.
func (s *SessionService) CreateSession() string {
	id := uuid.NewString()
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[id] = &Session{
		ID:        id,
		CreatedAt: now,
		LastSeen:  now,
	}
	return id
}

// BufferTurn records a turn against an anonymous session. Unknown session
// ids are created on the fly so a restarted server does not drop a client.
func (s *SessionService) BufferTurn(sessionID, role, content string) {
	if sessionID == "" {
		return
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		session = &Session{ID: sessionID, CreatedAt: now}
		s.sessions[sessionID] = session
	}
	session.LastSeen = now
	session.Turns = append(session.Turns, models.ConversationTurn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
}

// Turns returns a copy of the session's buffered turns, oldest-first.
func (s *SessionService) Turns(sessionID string) []models.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	turns := make([]models.ConversationTurn, len(session.Turns))
	copy(turns, session.Turns)
	return turns
}

// Cleanup drops sessions idle past the TTL and reports how many went.
func (s *SessionService) Cleanup() int {
	cutoff := time.Now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if session.LastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

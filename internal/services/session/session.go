package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/klyra-ai/klyra-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// TurnStore is the slice of the storage layer sessions depend on
type TurnStore interface {
	SaveTurn(ctx context.Context, userID, domain string, turn models.Turn) error
	RecentTurns(ctx context.Context, userID, domain string, limit int) ([]models.Turn, error)
}

// Session holds the bounded rolling conversation window for one
// (user, domain) pair. All mutation goes through the session's own mutex, so
// concurrent requests for the same user serialize their appends.
type Session struct {
	UserID string
	Domain string

	mu         sync.Mutex
	turns      []models.Turn // chronological order
	lastActive time.Time

	maxHistory int
	store      TurnStore
}

// History returns a copy of the chronological (query, response) window
func (s *Session) History() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// LastActive returns the time of the session's most recent append
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Append persists the turn, then appends it to the in-memory window and
// truncates the window to the most recent maxHistory entries, oldest dropped
// first. The in-memory window is a cache; durable storage is authoritative.
func (s *Session) Append(ctx context.Context, query, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn := models.Turn{
		Query:     query,
		Response:  response,
		Timestamp: time.Now(),
	}

	if err := s.store.SaveTurn(ctx, s.UserID, s.Domain, turn); err != nil {
		return fmt.Errorf("failed to persist turn: %w", err)
	}

	s.turns = append(s.turns, turn)
	if len(s.turns) > s.maxHistory {
		s.turns = s.turns[len(s.turns)-s.maxHistory:]
	}
	s.lastActive = turn.Timestamp

	return nil
}

// Store is the process-wide session registry. Sessions are created on first
// use and live until process restart.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	store      TurnStore
	maxHistory int
	logger     *logrus.Logger
}

// NewStore creates a session registry backed by the given turn store
func NewStore(store TurnStore, maxHistory int, logger *logrus.Logger) *Store {
	return &Store{
		sessions:   make(map[string]*Session),
		store:      store,
		maxHistory: maxHistory,
		logger:     logger,
	}
}

func sessionKey(userID, domain string) string {
	return userID + "\x00" + domain
}

// GetOrCreate returns the session for (userID, domain), creating and seeding
// it from persisted history on first use. A user switching domains gets a
// fresh session instead of the old domain's conversation chain. The call is
// idempotent: repeat lookups do not re-query storage.
func (s *Store) GetOrCreate(ctx context.Context, userID, domain string) (*Session, error) {
	key := sessionKey(userID, domain)

	s.mu.RLock()
	sess, exists := s.sessions[key]
	s.mu.RUnlock()
	if exists {
		return sess, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if sess, exists := s.sessions[key]; exists {
		return sess, nil
	}

	// Storage returns newest-first; reverse into chronological order before
	// seeding the window
	recent, err := s.store.RecentTurns(ctx, userID, domain, s.maxHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	turns := make([]models.Turn, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		turns = append(turns, recent[i])
	}

	sess = &Session{
		UserID:     userID,
		Domain:     domain,
		turns:      turns,
		lastActive: time.Now(),
		maxHistory: s.maxHistory,
		store:      s.store,
	}
	s.sessions[key] = sess

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"domain":  domain,
		"seeded":  len(turns),
	}).Info("Session created")

	return sess, nil
}

// Count returns the number of live sessions
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

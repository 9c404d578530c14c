// internal/session/registry.go
package session

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/junglefunkyman/loveletter/internal/engine"
)

// DefaultEmptyGrace is how long an abandoned session survives with zero
// subscribers before the registry drops it.
const DefaultEmptyGrace = 2 * time.Minute

// Registry maps game ids to sessions. GetOrCreate holds one mutex across
// lookup and insert, so concurrent first joins for the same id always land
// on a single session.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*GameSession

	cfg    engine.Config
	grace  time.Duration
	logger *logrus.Logger

	// History and OnResult are optional hooks wired before serving traffic.
	History  HistoryFunc
	OnResult ResultFunc
}

// NewRegistry builds a registry whose sessions share the given engine
// configuration template.
func NewRegistry(logger *logrus.Logger, cfg engine.Config) *Registry {
	return &Registry{
		sessions: make(map[string]*GameSession),
		cfg:      cfg,
		grace:    DefaultEmptyGrace,
		logger:   logger,
	}
}

// SetEmptyGrace overrides the abandoned-session grace period.
func (r *Registry) SetEmptyGrace(d time.Duration) { r.grace = d }

// GetOrCreate returns the session for gameID, creating it on first join.
func (r *Registry) GetOrCreate(gameID string) *GameSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[gameID]; ok {
		return s
	}
	s := newGameSession(gameID, r.cfg, r.logger)
	s.grace = r.grace
	s.history = r.History
	s.onResult = r.OnResult
	s.onEmpty = r.remove
	r.sessions[gameID] = s
	r.logger.WithField("game", gameID).Info("created game session")
	return s
}

// Get returns an existing session without creating one.
func (r *Registry) Get(gameID string) (*GameSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[gameID]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) remove(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, gameID)
}

// internal/session/player.go
package session

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/junglefunkyman/loveletter/internal/engine"
	"github.com/junglefunkyman/loveletter/internal/protocol"
)

// PlayerSession is the per-connection actor: it holds the authenticated user
// id, the bound game session (absent until a join succeeds), and the outbound
// stream of encoded board states the transport layer writes to the wire.
type PlayerSession struct {
	UserID string

	registry *Registry
	logger   *logrus.Logger
	out      chan protocol.BoardStateMessage

	mu      sync.Mutex
	session *GameSession
}

// NewPlayerSession binds a connection's user id to the registry.
func NewPlayerSession(userID string, registry *Registry, logger *logrus.Logger) *PlayerSession {
	return &PlayerSession{
		UserID:   userID,
		registry: registry,
		logger:   logger,
		out:      make(chan protocol.BoardStateMessage, 16),
	}
}

// Out is the stream of per-recipient board states ready to be written to the
// connection. It is never closed while the actor lives; the transport stops
// reading it when the connection goes away.
func (ps *PlayerSession) Out() <-chan protocol.BoardStateMessage {
	return ps.out
}

// HandleMessage dispatches one decoded inbound message.
func (ps *PlayerSession) HandleMessage(msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.JoinMessage:
		return ps.HandleJoin(m.GameID)
	case protocol.PlayCardMessage:
		ps.mu.Lock()
		s := ps.session
		ps.mu.Unlock()
		if s == nil {
			return fmt.Errorf("%w: join a game before playing", ErrNotJoined)
		}
		return s.Submit(ps.UserID, actionFromMessage(m))
	default:
		return fmt.Errorf("unhandled message type %T", msg)
	}
}

// HandleJoin resolves the game via the registry, seats the user, and binds
// the session. Rejoining the bound game just resends the current snapshot.
func (ps *PlayerSession) HandleJoin(gameID string) error {
	ps.mu.Lock()
	bound := ps.session
	ps.mu.Unlock()

	if bound != nil && bound.ID == gameID {
		ps.deliver(bound.Snapshot(ps.UserID))
		return nil
	}
	if bound != nil {
		bound.Unsubscribe(ps.UserID)
	}

	s := ps.registry.GetOrCreate(gameID)
	if err := s.Join(ps.UserID); err != nil {
		return err
	}
	states, err := s.Subscribe(ps.UserID)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	ps.session = s
	ps.mu.Unlock()

	go ps.pump(states)
	return nil
}

// Close unsubscribes from the bound session, if any. Called when the
// connection's read loop exits.
func (ps *PlayerSession) Close() {
	ps.mu.Lock()
	s := ps.session
	ps.session = nil
	ps.mu.Unlock()
	if s != nil {
		s.Unsubscribe(ps.UserID)
	}
}

// pump forwards one subscription's states onto the actor's outbound channel
// until the session closes the subscription.
func (ps *PlayerSession) pump(states <-chan protocol.BoardStateMessage) {
	for snap := range states {
		ps.deliver(snap)
	}
}

func (ps *PlayerSession) deliver(snap protocol.BoardStateMessage) {
	select {
	case ps.out <- snap:
	default:
		ps.logger.WithField("user", ps.UserID).Warn("outbound state queue full, dropping update")
	}
}

// actionFromMessage converts a validated protocol message into an
// engine-ready action.
func actionFromMessage(m protocol.PlayCardMessage) engine.Action {
	a := engine.Action{Card: engine.Card(m.Card), Target: engine.NoTarget}
	if m.Target != nil {
		a.Target = *m.Target
	}
	if m.Guess != nil {
		a.Guess = engine.Card(*m.Guess)
	}
	return a
}

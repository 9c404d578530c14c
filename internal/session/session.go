// internal/session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/junglefunkyman/loveletter/internal/engine"
	"github.com/junglefunkyman/loveletter/internal/protocol"
)

// Lookup and membership errors surfaced at join/submit time.
var (
	ErrGameNotFound   = errors.New("game not found")
	ErrGamePreexisted = errors.New("game already running")
	ErrGameFull       = errors.New("game is full")
	ErrNotJoined      = errors.New("no game joined")
)

// HistoryFunc receives every applied event batch, e.g. for the Redis
// historian queue. It is invoked outside the session lock and must not block
// game progress.
type HistoryFunc func(gameID string, seq int, events []engine.Event)

// ResultFunc is invoked once when a match ends, with scores keyed by user id.
type ResultFunc func(gameID, winnerID string, scores map[string]int)

// GameSession owns one engine instance and the roster of subscribed
// connections for a game id. All engine access goes through the session
// mutex, so engine transitions never interleave.
type GameSession struct {
	ID string

	mu         sync.Mutex
	game       *engine.Game
	subs       map[string]chan protocol.BoardStateMessage
	seq        int
	closed     bool
	resultSent bool
	emptyTimer *time.Timer

	logger   *logrus.Logger
	grace    time.Duration
	history  HistoryFunc
	onResult ResultFunc
	onEmpty  func(gameID string)
}

func newGameSession(id string, cfg engine.Config, logger *logrus.Logger) *GameSession {
	return &GameSession{
		ID:     id,
		game:   engine.NewGame(id, cfg),
		subs:   make(map[string]chan protocol.BoardStateMessage),
		logger: logger,
	}
}

// Join seats a user. Joining a running game one is not part of yields
// ErrGamePreexisted; a full waiting game yields ErrGameFull. Rejoining as an
// existing member is a no-op.
func (s *GameSession) Join(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrGameNotFound
	}
	events, err := s.game.AddPlayer(userID)
	switch {
	case errors.Is(err, engine.ErrGameStarted):
		return ErrGamePreexisted
	case errors.Is(err, engine.ErrGameFull):
		return ErrGameFull
	case err != nil:
		return err
	}
	s.fanOutLocked(events)
	return nil
}

// Subscribe registers a joined user's outbound stream and immediately queues
// a consistent point-in-time snapshot. The channel is closed on Unsubscribe.
func (s *GameSession) Subscribe(userID string) (<-chan protocol.BoardStateMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrGameNotFound
	}
	if s.game.PlayerByID(userID) == nil {
		return nil, ErrNotJoined
	}
	if old, ok := s.subs[userID]; ok {
		delete(s.subs, userID)
		close(old)
	}
	if s.emptyTimer != nil {
		s.emptyTimer.Stop()
		s.emptyTimer = nil
	}
	ch := make(chan protocol.BoardStateMessage, 16)
	s.subs[userID] = ch
	ch <- s.snapshotLocked(userID, nil)
	return ch, nil
}

// Unsubscribe drops a user's stream. A disconnect from a running match folds
// the player out of the current round. When the last subscriber leaves, a
// grace timer schedules removal of the whole session.
func (s *GameSession) Unsubscribe(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.subs[userID]
	if !ok {
		return
	}
	delete(s.subs, userID)
	close(ch)

	events, err := s.game.Forfeit(userID)
	if err == nil && len(events) > 0 {
		s.logger.WithFields(logrus.Fields{
			"game": s.ID,
			"user": userID,
		}).Info("player folded out of round on disconnect")
		s.fanOutLocked(events)
	}

	if len(s.subs) == 0 && s.grace >= 0 && s.onEmpty != nil {
		s.scheduleRemovalLocked()
	}
}

func (s *GameSession) scheduleRemovalLocked() {
	if s.emptyTimer != nil {
		s.emptyTimer.Stop()
	}
	s.emptyTimer = time.AfterFunc(s.grace, func() {
		s.mu.Lock()
		abandoned := len(s.subs) == 0 && !s.closed
		if abandoned {
			s.closed = true
		}
		s.mu.Unlock()
		if abandoned {
			s.logger.WithField("game", s.ID).Info("removing abandoned game session")
			s.onEmpty(s.ID)
		}
	})
}

// Submit applies one action for the user. Errors leave the engine untouched
// and are reported only to the submitter; successful event batches fan out
// to every subscriber.
func (s *GameSession) Submit(userID string, a engine.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrGameNotFound
	}
	events, err := s.game.Apply(userID, a)
	if err != nil {
		return err
	}
	s.fanOutLocked(events)
	return nil
}

// Snapshot returns the current board state as seen by userID.
func (s *GameSession) Snapshot(userID string) protocol.BoardStateMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(userID, nil)
}

// fanOutLocked delivers per-recipient snapshots for one event batch. Sends
// never block: a subscriber that cannot keep up loses intermediate states
// and catches up from the next snapshot.
func (s *GameSession) fanOutLocked(events []engine.Event) {
	if len(events) == 0 {
		return
	}
	s.seq++
	for userID, ch := range s.subs {
		snap := s.snapshotLocked(userID, events)
		select {
		case ch <- snap:
		default:
			s.logger.WithFields(logrus.Fields{
				"game": s.ID,
				"user": userID,
			}).Warn("subscriber stream full, dropping state update")
		}
	}
	if s.history != nil {
		batch := make([]engine.Event, len(events))
		copy(batch, events)
		go s.history(s.ID, s.seq, batch)
	}
	if s.game.Phase == engine.PhaseMatchEnd && !s.resultSent {
		s.resultSent = true
		if s.onResult != nil {
			scores := make(map[string]int, len(s.game.Players))
			winnerID := ""
			for _, p := range s.game.Players {
				scores[p.ID] = p.Score
				if p.Seat == s.game.Winner {
					winnerID = p.ID
				}
			}
			go s.onResult(s.ID, winnerID, scores)
		}
	}
}

// snapshotLocked builds the board state visible to userID, filtering the
// event batch and private section down to what that player may see.
func (s *GameSession) snapshotLocked(userID string, events []engine.Event) protocol.BoardStateMessage {
	g := s.game
	viewer := g.PlayerByID(userID)
	seat := engine.NoTarget
	if viewer != nil {
		seat = viewer.Seat
	}

	msg := protocol.BoardStateMessage{
		Type:    protocol.TypeBoardState,
		Players: make([]protocol.BoardPlayer, 0, len(g.Players)),
		Turn:    g.Turn,
		Phase:   string(g.Phase),
		Events:  []engine.Event{},
	}
	for _, p := range g.Players {
		discard := make([]int, 0, len(p.Discards))
		for _, c := range p.Discards {
			discard = append(discard, int(c))
		}
		msg.Players = append(msg.Players, protocol.BoardPlayer{
			ID:       p.ID,
			Seat:     p.Seat,
			Alive:    p.Alive,
			HandSize: len(p.Hand),
			Score:    p.Score,
			Discard:  discard,
		})
	}
	for _, ev := range events {
		if !ev.VisibleTo(seat) {
			continue
		}
		msg.Events = append(msg.Events, ev)
		if ev.Type == engine.EventCardRevealed && ev.To == seat {
			msg.Private.Revealed = append(msg.Private.Revealed, protocol.RevealedCard{
				Seat: ev.Seat,
				Card: int(ev.Card),
			})
		}
	}
	if viewer != nil {
		msg.Private.YourHand = make([]int, 0, len(viewer.Hand))
		for _, c := range viewer.Hand {
			msg.Private.YourHand = append(msg.Private.YourHand, int(c))
		}
	}
	return msg
}

// CodeFor maps engine and session errors onto the protocol error code
// enumeration for the error envelope.
func CodeFor(err error) protocol.ErrorCode {
	switch {
	case errors.Is(err, engine.ErrNotYourTurn):
		return protocol.CodeNotYourTurn
	case errors.Is(err, engine.ErrGameOver):
		return protocol.CodeGameOver
	case errors.Is(err, ErrGameFull), errors.Is(err, engine.ErrGameFull):
		return protocol.CodeGameFull
	case errors.Is(err, ErrGamePreexisted), errors.Is(err, engine.ErrGameStarted):
		return protocol.CodeGameFull
	case errors.Is(err, ErrGameNotFound):
		return protocol.CodeGameNotFound
	default:
		return protocol.CodeIllegalAction
	}
}

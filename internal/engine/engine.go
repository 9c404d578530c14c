// internal/engine/engine.go
package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Rule and lifecycle errors. Rule violations wrap ErrIllegalAction with a
// reason; callers map these onto protocol error codes with errors.Is.
var (
	ErrGameFull      = errors.New("game is full")
	ErrGameStarted   = errors.New("game already started")
	ErrGameOver      = errors.New("game is over")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrIllegalAction = errors.New("illegal action")
	ErrUnknownPlayer = errors.New("player not in game")
)

// Config fixes a game's shape at creation. Zero values are normalized by
// NewGame: Players defaults to 4, WinThreshold to the standard token count
// for the seat count, Seed to the current time.
type Config struct {
	Players      int
	WinThreshold int
	Seed         int64
}

// Game is the pure rules state for one match. It performs no I/O and is not
// safe for concurrent use; the owning session serializes access.
type Game struct {
	ID      string
	Players []*Player

	Deck     []Card
	SetAside Card   // face-down set-aside, unseen unless drawn via Prince
	FaceUp   []Card // extra face-up set-asides in the 2-player variant

	Turn   int // seat of the current player while Phase == PhaseAwaitingAction
	Round  int
	Phase  Phase
	Winner int // seat of the match winner once Phase == PhaseMatchEnd

	setAsideDrawn bool
	cfg           Config
	rng           *rand.Rand
}

// NewGame builds an empty game in the waiting phase.
func NewGame(id string, cfg Config) *Game {
	if cfg.Players < 2 {
		cfg.Players = 4
	}
	if cfg.Players > 4 {
		cfg.Players = 4
	}
	if cfg.WinThreshold <= 0 {
		cfg.WinThreshold = defaultWinThreshold(cfg.Players)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Game{
		ID:     id,
		Phase:  PhaseWaitingForPlayers,
		Turn:   NoTarget,
		Winner: NoTarget,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// defaultWinThreshold is the standard rounds-to-win count per seat count.
func defaultWinThreshold(players int) int {
	switch players {
	case 2:
		return 7
	case 3:
		return 5
	default:
		return 4
	}
}

// Seats returns the configured seat count.
func (g *Game) Seats() int { return g.cfg.Players }

// PlayerByID returns the seated player with the given id, or nil.
func (g *Game) PlayerByID(id string) *Player {
	for _, p := range g.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// AliveCount returns the number of players still in the current round.
func (g *Game) AliveCount() int {
	n := 0
	for _, p := range g.Players {
		if p.Alive {
			n++
		}
	}
	return n
}

// SetAsideCount returns how many set-aside cards are currently out of play,
// for the deck conservation invariant.
func (g *Game) SetAsideCount() int {
	n := len(g.FaceUp)
	if !g.setAsideDrawn {
		n++
	}
	return n
}

// AddPlayer seats a new player. Joining an already running game yields
// ErrGameStarted; a full waiting game yields ErrGameFull. Seating the final
// player starts the first round, and the returned events describe it.
// Re-adding a seated player is a no-op.
func (g *Game) AddPlayer(userID string) ([]Event, error) {
	if g.PlayerByID(userID) != nil {
		return nil, nil
	}
	if g.Phase != PhaseWaitingForPlayers {
		return nil, ErrGameStarted
	}
	if len(g.Players) >= g.cfg.Players {
		return nil, ErrGameFull
	}
	g.Players = append(g.Players, &Player{
		ID:   userID,
		Seat: len(g.Players),
	})
	if len(g.Players) < g.cfg.Players {
		return nil, nil
	}
	var events []Event
	g.startRound(&events)
	return events, nil
}

// Apply plays one action for the given user. It either mutates the state and
// returns the resulting events, or returns an error leaving the state
// untouched.
func (g *Game) Apply(userID string, a Action) ([]Event, error) {
	switch g.Phase {
	case PhaseMatchEnd:
		return nil, ErrGameOver
	case PhaseWaitingForPlayers:
		return nil, fmt.Errorf("%w: game has not started", ErrIllegalAction)
	}
	p := g.PlayerByID(userID)
	if p == nil {
		return nil, ErrUnknownPlayer
	}
	if p.Seat != g.Turn {
		return nil, ErrNotYourTurn
	}
	target, err := g.validate(p, a)
	if err != nil {
		return nil, err
	}

	p.removeFromHand(a.Card)
	p.Discards = append(p.Discards, a.Card)
	events := []Event{{
		Type:   EventCardPlayed,
		Seat:   p.Seat,
		Target: a.Target,
		Card:   a.Card,
		Guess:  a.Guess,
		To:     Broadcast,
	}}
	g.resolveEffect(p, target, a, &events)
	if g.Phase == PhaseMatchEnd {
		return events, nil
	}
	if g.AliveCount() == 1 {
		g.endRound(ReasonLastStanding, &events)
		return events, nil
	}
	if len(g.Deck) == 0 {
		g.endRound(ReasonDeckExhausted, &events)
		return events, nil
	}
	g.advanceTurn(&events)
	return events, nil
}

// Forfeit removes a player from the current round, as on disconnection.
// Before the match starts, or for an already eliminated player, it is a
// no-op. If the forfeiting player held the turn, play moves on.
func (g *Game) Forfeit(userID string) ([]Event, error) {
	p := g.PlayerByID(userID)
	if p == nil {
		return nil, ErrUnknownPlayer
	}
	if g.Phase != PhaseAwaitingAction || !p.Alive {
		return nil, nil
	}
	hadTurn := p.Seat == g.Turn
	var events []Event
	g.eliminate(p, ReasonForfeit, &events)
	if g.AliveCount() == 1 {
		g.endRound(ReasonLastStanding, &events)
		return events, nil
	}
	if hadTurn {
		g.advanceTurn(&events)
	}
	return events, nil
}

// validate checks an action against the rules without mutating anything.
// It resolves the target player, which is nil for untargeted plays and for
// targeting cards legally played with no effect because no target exists.
func (g *Game) validate(p *Player, a Action) (*Player, error) {
	if !a.Card.Valid() {
		return nil, fmt.Errorf("%w: unknown card %d", ErrIllegalAction, int(a.Card))
	}
	if !p.holds(a.Card) {
		return nil, fmt.Errorf("%w: %s is not in hand", ErrIllegalAction, a.Card)
	}
	if (a.Card == King || a.Card == Prince) && p.holds(Countess) {
		return nil, fmt.Errorf("%w: the Countess must be played alongside the %s", ErrIllegalAction, a.Card)
	}
	if a.Card == Guard {
		if a.Guess == Guard {
			return nil, fmt.Errorf("%w: a Guard guess may not name the Guard", ErrIllegalAction)
		}
		if a.Target != NoTarget && !a.Guess.Valid() {
			return nil, fmt.Errorf("%w: the Guard requires a guess", ErrIllegalAction)
		}
	} else if a.Guess != 0 {
		return nil, fmt.Errorf("%w: only the Guard takes a guess", ErrIllegalAction)
	}
	if !a.Card.needsTarget() {
		if a.Target != NoTarget {
			return nil, fmt.Errorf("%w: %s takes no target", ErrIllegalAction, a.Card)
		}
		return nil, nil
	}
	if a.Target == NoTarget {
		// Targeting cards may be played without effect only when no legal
		// target exists (everyone else protected or eliminated).
		if g.hasLegalTarget(p, a.Card) {
			return nil, fmt.Errorf("%w: %s requires a target", ErrIllegalAction, a.Card)
		}
		return nil, nil
	}
	if a.Target < 0 || a.Target >= len(g.Players) {
		return nil, fmt.Errorf("%w: no seat %d", ErrIllegalAction, a.Target)
	}
	t := g.Players[a.Target]
	if t.Seat == p.Seat && a.Card != Prince {
		return nil, fmt.Errorf("%w: %s may not target yourself", ErrIllegalAction, a.Card)
	}
	if !t.Alive {
		return nil, fmt.Errorf("%w: seat %d is eliminated", ErrIllegalAction, t.Seat)
	}
	if t.Protected && t.Seat != p.Seat {
		return nil, fmt.Errorf("%w: seat %d is protected", ErrIllegalAction, t.Seat)
	}
	return t, nil
}

// hasLegalTarget reports whether any seat could legally be named for card c.
func (g *Game) hasLegalTarget(p *Player, c Card) bool {
	for _, t := range g.Players {
		if !t.Alive {
			continue
		}
		if t.Seat == p.Seat {
			if c == Prince {
				return true
			}
			continue
		}
		if !t.Protected {
			return true
		}
	}
	return false
}

// resolveEffect applies the card effect. The played card has already moved to
// the discard pile. t is nil for no-effect plays.
func (g *Game) resolveEffect(p, t *Player, a Action, events *[]Event) {
	switch a.Card {
	case Guard:
		if t != nil && t.holds(a.Guess) {
			g.eliminate(t, "guard_guess", events)
		}
	case Priest:
		if t != nil {
			*events = append(*events, Event{
				Type: EventCardRevealed, Seat: t.Seat, Target: p.Seat,
				Card: t.topCard(), To: p.Seat,
			})
		}
	case Baron:
		if t == nil {
			return
		}
		mine, theirs := p.topCard(), t.topCard()
		*events = append(*events,
			Event{Type: EventHandsCompared, Seat: p.Seat, Target: t.Seat, To: Broadcast},
			Event{Type: EventCardRevealed, Seat: t.Seat, Target: p.Seat, Card: theirs, To: p.Seat},
			Event{Type: EventCardRevealed, Seat: p.Seat, Target: t.Seat, Card: mine, To: t.Seat},
		)
		if mine > theirs {
			g.eliminate(t, "baron_compare", events)
		} else if theirs > mine {
			g.eliminate(p, "baron_compare", events)
		}
	case Handmaid:
		p.Protected = true
		*events = append(*events, publicEvent(EventPlayerProtected, p.Seat))
	case Prince:
		if t == nil {
			return
		}
		discarded := t.topCard()
		t.Hand = nil
		t.Discards = append(t.Discards, discarded)
		*events = append(*events, Event{
			Type: EventCardDiscarded, Seat: t.Seat, Target: NoTarget,
			Card: discarded, To: Broadcast,
		})
		if discarded == Princess {
			g.eliminate(t, "princess_discarded", events)
			return
		}
		var replacement Card
		switch {
		case len(g.Deck) > 0:
			replacement = g.draw()
		case !g.setAsideDrawn:
			replacement = g.SetAside
			g.setAsideDrawn = true
		default:
			return
		}
		t.Hand = []Card{replacement}
		*events = append(*events, Event{
			Type: EventCardDrawn, Seat: t.Seat, Target: NoTarget,
			Card: replacement, To: t.Seat,
		})
	case King:
		if t == nil {
			return
		}
		p.Hand, t.Hand = t.Hand, p.Hand
		*events = append(*events,
			Event{Type: EventHandsSwapped, Seat: p.Seat, Target: t.Seat, To: Broadcast},
			Event{Type: EventCardDrawn, Seat: p.Seat, Target: NoTarget, Card: p.topCard(), To: p.Seat},
			Event{Type: EventCardDrawn, Seat: t.Seat, Target: NoTarget, Card: t.topCard(), To: t.Seat},
		)
	case Countess:
		// No effect; its weight is the forced-play constraint in validate.
	case Princess:
		g.eliminate(p, "princess_played", events)
	}
}

// eliminate removes a player from the round, revealing any held card into
// their discard pile.
func (g *Game) eliminate(p *Player, reason string, events *[]Event) {
	p.Alive = false
	p.Protected = false
	var revealed Card
	if len(p.Hand) > 0 {
		revealed = p.Hand[0]
		p.Discards = append(p.Discards, p.Hand...)
		p.Hand = nil
	}
	*events = append(*events, Event{
		Type: EventPlayerEliminated, Seat: p.Seat, Target: NoTarget,
		Card: revealed, Reason: reason, To: Broadcast,
	})
}

// startRound rebuilds and shuffles the deck, sets cards aside, deals, and
// begins the first turn.
func (g *Game) startRound(events *[]Event) {
	g.Round++
	deck := newDeck()
	g.rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	g.Deck = deck
	g.SetAside = g.draw()
	g.setAsideDrawn = false
	g.FaceUp = nil
	if len(g.Players) == 2 {
		// Two-player variant: three additional cards set aside face up.
		g.FaceUp = []Card{g.draw(), g.draw(), g.draw()}
	}
	for _, p := range g.Players {
		p.Alive = true
		p.Protected = false
		p.Discards = nil
		p.Hand = []Card{g.draw()}
	}
	g.Turn = (g.Round - 1) % len(g.Players)
	g.Phase = PhaseAwaitingAction
	*events = append(*events, publicEvent(EventRoundStarted, g.Turn))
	for _, p := range g.Players {
		*events = append(*events, Event{
			Type: EventCardDrawn, Seat: p.Seat, Target: NoTarget,
			Card: p.Hand[0], To: p.Seat,
		})
	}
	g.beginTurn(events)
}

// beginTurn clears the current player's protection and draws their turn
// card. An exhausted deck at the draw step ends the round immediately.
func (g *Game) beginTurn(events *[]Event) {
	p := g.Players[g.Turn]
	p.Protected = false
	if len(g.Deck) == 0 {
		g.endRound(ReasonDeckExhausted, events)
		return
	}
	c := g.draw()
	p.Hand = append(p.Hand, c)
	*events = append(*events,
		publicEvent(EventTurnStarted, p.Seat),
		Event{Type: EventCardDrawn, Seat: p.Seat, Target: NoTarget, Card: c, To: p.Seat},
	)
}

// advanceTurn moves the turn pointer to the next alive seat and begins that
// turn. Callers guarantee at least two players remain.
func (g *Game) advanceTurn(events *[]Event) {
	next := g.Turn
	for {
		next = (next + 1) % len(g.Players)
		if g.Players[next].Alive {
			break
		}
	}
	g.Turn = next
	g.beginTurn(events)
}

// endRound awards the round, then either starts the next round or ends the
// match once the winner reaches the score threshold.
func (g *Game) endRound(reason string, events *[]Event) {
	winner := g.roundWinner()
	winner.Score++
	*events = append(*events, Event{
		Type: EventRoundEnded, Seat: winner.Seat, Target: NoTarget,
		Card: winner.topCard(), Reason: reason, To: Broadcast,
	})
	if winner.Score >= g.cfg.WinThreshold {
		g.Phase = PhaseMatchEnd
		g.Winner = winner.Seat
		g.Turn = NoTarget
		*events = append(*events, publicEvent(EventMatchEnded, winner.Seat))
		return
	}
	g.startRound(events)
}

// roundWinner picks the surviving player, or on deck exhaustion the alive
// player with the strongest hand, ties broken by summed discard strength,
// then by seat order.
func (g *Game) roundWinner() *Player {
	var best *Player
	for _, p := range g.Players {
		if !p.Alive {
			continue
		}
		if best == nil {
			best = p
			continue
		}
		if p.topCard() > best.topCard() {
			best = p
		} else if p.topCard() == best.topCard() && p.discardSum() > best.discardSum() {
			best = p
		}
	}
	return best
}

// draw removes and returns the top card. Callers must check the deck first.
func (g *Game) draw() Card {
	c := g.Deck[0]
	g.Deck = g.Deck[1:]
	return c
}

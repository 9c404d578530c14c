// internal/engine/state.go
package engine

// Phase is the engine's state machine position. RoundStart and the effect
// resolution step are synchronous: they never persist between calls, so the
// observable phases are the three below plus MatchEnd.
type Phase string

const (
	PhaseWaitingForPlayers Phase = "waitingForPlayers"
	PhaseAwaitingAction    Phase = "awaitingAction"
	PhaseMatchEnd          Phase = "matchEnd"
)

// NoTarget marks an action or event without a target seat.
const NoTarget = -1

// Player is one seat in a game. Hand holds one card normally, two between
// the turn draw and the discard. Discards is ordered oldest-first; the last
// entry is the publicly visible top of the player's discard pile.
type Player struct {
	ID        string
	Seat      int
	Hand      []Card
	Discards  []Card
	Alive     bool
	Protected bool
	Score     int
}

func (p *Player) holds(c Card) bool {
	for _, h := range p.Hand {
		if h == c {
			return true
		}
	}
	return false
}

// removeFromHand removes one copy of c. Callers must check holds first.
func (p *Player) removeFromHand(c Card) {
	for i, h := range p.Hand {
		if h == c {
			p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
			return
		}
	}
}

// topCard returns the single card a settled (post-discard) hand holds.
func (p *Player) topCard() Card {
	if len(p.Hand) == 0 {
		return 0
	}
	return p.Hand[0]
}

// discardSum is the summed strength of the discard pile, the first
// deck-exhaustion tiebreak.
func (p *Player) discardSum() int {
	sum := 0
	for _, c := range p.Discards {
		sum += int(c)
	}
	return sum
}

// Action is a validated, engine-ready move: play Card, optionally against
// Target (a seat index), with Guess set only for the Guard.
type Action struct {
	Card   Card
	Target int
	Guess  Card
}

// PlayCard builds an untargeted action.
func PlayCard(c Card) Action {
	return Action{Card: c, Target: NoTarget}
}

// PlayCardAt builds a targeted action.
func PlayCardAt(c Card, target int) Action {
	return Action{Card: c, Target: target}
}

// PlayGuard builds a Guard action with a guess.
func PlayGuard(target int, guess Card) Action {
	return Action{Card: Guard, Target: target, Guess: guess}
}

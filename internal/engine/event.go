// internal/engine/event.go
package engine

// EventType enumerates the outcomes the engine can emit after applying an
// action. Events prefixed "private" in intent carry a recipient seat in To
// and must never be fanned out beyond it.
type EventType string

const (
	EventRoundStarted     EventType = "round_started"
	EventTurnStarted      EventType = "turn_started"
	EventCardDrawn        EventType = "card_drawn"     // private: the drawer's new card
	EventCardPlayed       EventType = "card_played"    // public: card moved to discard
	EventCardRevealed     EventType = "card_revealed"  // private: Priest peek / Baron compare
	EventHandsCompared    EventType = "hands_compared" // public: a Baron comparison happened
	EventPlayerProtected  EventType = "player_protected"
	EventCardDiscarded    EventType = "card_discarded" // public: Prince forced discard
	EventHandsSwapped     EventType = "hands_swapped"
	EventPlayerEliminated EventType = "player_eliminated"
	EventRoundEnded       EventType = "round_ended"
	EventMatchEnded       EventType = "match_ended"
)

// Round end reasons.
const (
	ReasonLastStanding  = "last_player_standing"
	ReasonDeckExhausted = "deck_exhausted"
	ReasonForfeit       = "forfeit"
)

// Broadcast marks an event visible to every player in the game.
const Broadcast = -1

// Event is a single outcome of applying an Action. Seat is the acting or
// affected player, Target the other party where one exists (NoTarget
// otherwise). To restricts visibility: Broadcast for public events, a seat
// index for private ones. Card and Guess are zero when not meaningful.
type Event struct {
	Type   EventType `json:"type"`
	Seat   int       `json:"seat"`
	Target int       `json:"target"`
	Card   Card      `json:"card,omitempty"`
	Guess  Card      `json:"guess,omitempty"`
	Reason string    `json:"reason,omitempty"`

	To int `json:"-"`
}

// VisibleTo reports whether a player seated at seat is entitled to see the event.
func (e Event) VisibleTo(seat int) bool {
	return e.To == Broadcast || e.To == seat
}

func publicEvent(t EventType, seat int) Event {
	return Event{Type: t, Seat: seat, Target: NoTarget, To: Broadcast}
}

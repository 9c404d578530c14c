// internal/engine/card.go
package engine

import "fmt"

// Card is one of the eight ranks in the deck. The numeric value is the
// card's strength, used for Baron comparisons and end-of-round tiebreaks.
type Card int

const (
	Guard Card = iota + 1
	Priest
	Baron
	Handmaid
	Prince
	King
	Countess
	Princess
)

var cardNames = map[Card]string{
	Guard:    "Guard",
	Priest:   "Priest",
	Baron:    "Baron",
	Handmaid: "Handmaid",
	Prince:   "Prince",
	King:     "King",
	Countess: "Countess",
	Princess: "Princess",
}

// deckCounts is the fixed multiplicity of each rank in a full 16-card deck.
var deckCounts = map[Card]int{
	Guard:    5,
	Priest:   2,
	Baron:    2,
	Handmaid: 2,
	Prince:   2,
	King:     1,
	Countess: 1,
	Princess: 1,
}

// DeckSize is the total number of cards in a freshly built deck.
const DeckSize = 16

func (c Card) String() string {
	if name, ok := cardNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Card(%d)", int(c))
}

// Valid reports whether c names a real rank.
func (c Card) Valid() bool {
	return c >= Guard && c <= Princess
}

// needsTarget reports whether playing c requires another player to be named
// (or self, in the Prince's case).
func (c Card) needsTarget() bool {
	switch c {
	case Guard, Priest, Baron, Prince, King:
		return true
	}
	return false
}

// newDeck returns a full, unshuffled 16-card deck in rank order.
func newDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for c := Guard; c <= Princess; c++ {
		for i := 0; i < deckCounts[c]; i++ {
			deck = append(deck, c)
		}
	}
	return deck
}

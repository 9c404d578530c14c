// internal/engine/engine_test.go
package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStartedGame seats players player-0..player-N and returns the game with
// its first round underway.
func newStartedGame(t *testing.T, seats int, seed int64) *Game {
	t.Helper()
	g := NewGame("test-game", Config{Players: seats, Seed: seed})
	for i := 0; i < seats; i++ {
		events, err := g.AddPlayer(fmt.Sprintf("player-%d", i))
		require.NoError(t, err)
		if i < seats-1 {
			require.Empty(t, events)
		} else {
			require.NotEmpty(t, events)
		}
	}
	require.Equal(t, PhaseAwaitingAction, g.Phase)
	return g
}

// force rewrites the live round into a known position: hands[i] is seat i's
// hand (empty => eliminated), deck is the remaining draw pile. The seat at
// turn should hold two cards, everyone else one.
func force(g *Game, turn int, hands [][]Card, deck []Card, setAside Card) {
	g.Turn = turn
	g.Deck = append([]Card{}, deck...)
	g.SetAside = setAside
	g.setAsideDrawn = false
	g.FaceUp = nil
	for i, p := range g.Players {
		p.Hand = append([]Card{}, hands[i]...)
		p.Discards = nil
		p.Alive = len(hands[i]) > 0
		p.Protected = false
	}
}

func totalCards(g *Game) int {
	n := len(g.Deck) + g.SetAsideCount()
	for _, p := range g.Players {
		n += len(p.Hand) + len(p.Discards)
	}
	return n
}

func findEvent(events []Event, et EventType) *Event {
	for i := range events {
		if events[i].Type == et {
			return &events[i]
		}
	}
	return nil
}

func TestGameStartsWhenFull(t *testing.T) {
	g := newStartedGame(t, 3, 1)

	assert.Equal(t, 1, g.Round)
	assert.Equal(t, 0, g.Turn)
	assert.Len(t, g.Players[0].Hand, 2, "turn holder draws a second card")
	assert.Len(t, g.Players[1].Hand, 1)
	assert.Len(t, g.Players[2].Hand, 1)
	assert.Empty(t, g.FaceUp, "face-up set-asides are a two-player rule")
	assert.Equal(t, DeckSize, totalCards(g))
}

func TestTwoPlayerVariantSetsThreeCardsFaceUp(t *testing.T) {
	g := newStartedGame(t, 2, 1)

	assert.Len(t, g.FaceUp, 3)
	assert.Equal(t, 4, g.SetAsideCount())
	assert.Equal(t, DeckSize, totalCards(g))
}

func TestSeededShuffleIsDeterministic(t *testing.T) {
	g1 := newStartedGame(t, 3, 99)
	g2 := newStartedGame(t, 3, 99)

	assert.Equal(t, g1.Deck, g2.Deck)
	for i := range g1.Players {
		assert.Equal(t, g1.Players[i].Hand, g2.Players[i].Hand)
	}
}

func TestAddPlayerAfterStart(t *testing.T) {
	g := newStartedGame(t, 2, 1)

	_, err := g.AddPlayer("latecomer")
	assert.ErrorIs(t, err, ErrGameStarted)

	// Re-adding a seated player is a no-op, not an error.
	events, err := g.AddPlayer("player-0")
	assert.NoError(t, err)
	assert.Empty(t, events)
	assert.Len(t, g.Players, 2)
}

func TestTurnExclusivity(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Guard, Priest}, {Priest}, {Baron}},
		[]Card{Guard, Guard, Guard}, Princess)

	_, err := g.Apply("player-1", PlayCard(Priest))
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = g.Apply("stranger", PlayCard(Guard))
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestRejectedActionLeavesStateUntouched(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Guard, Priest}, {Priest}, {Baron}},
		[]Card{Guard, Guard}, Princess)

	_, err := g.Apply("player-0", PlayCard(Baron)) // not in hand
	require.ErrorIs(t, err, ErrIllegalAction)

	assert.Equal(t, 0, g.Turn)
	assert.Equal(t, []Card{Guard, Priest}, g.Players[0].Hand)
	assert.Empty(t, g.Players[0].Discards)
	assert.Len(t, g.Deck, 2)
}

func TestGuardGuessRules(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Guard, Priest}, {Priest}, {Baron}},
		[]Card{Guard, Guard}, Princess)

	_, err := g.Apply("player-0", PlayGuard(1, Guard))
	assert.ErrorIs(t, err, ErrIllegalAction, "guessing Guard is never legal")

	_, err = g.Apply("player-0", PlayCardAt(Guard, 1))
	assert.ErrorIs(t, err, ErrIllegalAction, "a targeted Guard needs a guess")

	_, err = g.Apply("player-0", Action{Card: Priest, Target: 1, Guess: Baron})
	assert.ErrorIs(t, err, ErrIllegalAction, "only the Guard takes a guess")
}

func TestGuardEliminatesOnCorrectGuess(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Guard, Priest}, {Priest}, {Baron}},
		[]Card{Guard, Guard}, Princess)

	events, err := g.Apply("player-0", PlayGuard(1, Priest))
	require.NoError(t, err)

	assert.False(t, g.Players[1].Alive)
	assert.Contains(t, g.Players[1].Discards, Priest, "elimination reveals the held card")
	elim := findEvent(events, EventPlayerEliminated)
	require.NotNil(t, elim)
	assert.Equal(t, 1, elim.Seat)
	assert.Equal(t, Priest, elim.Card)

	// Seat 1 is skipped; play moves to seat 2.
	assert.Equal(t, 2, g.Turn)
	assert.Len(t, g.Players[2].Hand, 2)
}

func TestGuardWrongGuessHasNoEffect(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Guard, Priest}, {Priest}, {Baron}},
		[]Card{Guard, Guard}, Princess)

	events, err := g.Apply("player-0", PlayGuard(1, King))
	require.NoError(t, err)

	assert.True(t, g.Players[1].Alive)
	assert.Contains(t, g.Players[1].Hand, Priest)
	assert.Nil(t, findEvent(events, EventPlayerEliminated))
}

func TestBaronComparison(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Baron, King}, {Priest}, {Guard}},
		[]Card{Guard, Guard}, Princess)

	events, err := g.Apply("player-0", PlayCardAt(Baron, 1))
	require.NoError(t, err)

	assert.False(t, g.Players[1].Alive, "lower card loses the comparison")
	assert.True(t, g.Players[0].Alive)
	require.NotNil(t, findEvent(events, EventHandsCompared))

	// Both parties privately learn the other's card; nobody else does.
	var reveals []Event
	for _, ev := range events {
		if ev.Type == EventCardRevealed {
			reveals = append(reveals, ev)
		}
	}
	require.Len(t, reveals, 2)
	for _, ev := range reveals {
		assert.NotEqual(t, Broadcast, ev.To)
		assert.False(t, ev.VisibleTo(2))
	}
}

func TestBaronTieEliminatesNobody(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Baron, Priest}, {Priest}, {Guard}},
		[]Card{Guard, Guard}, Princess)

	_, err := g.Apply("player-0", PlayCardAt(Baron, 1))
	require.NoError(t, err)

	assert.True(t, g.Players[0].Alive)
	assert.True(t, g.Players[1].Alive)
}

func TestPriestRevealIsPrivate(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Priest, Guard}, {Countess}, {Guard}},
		[]Card{Guard, Guard}, Princess)

	events, err := g.Apply("player-0", PlayCardAt(Priest, 1))
	require.NoError(t, err)

	reveal := findEvent(events, EventCardRevealed)
	require.NotNil(t, reveal)
	assert.Equal(t, Countess, reveal.Card)
	assert.Equal(t, 0, reveal.To)
	assert.True(t, reveal.VisibleTo(0))
	assert.False(t, reveal.VisibleTo(1))
	assert.False(t, reveal.VisibleTo(2))
	assert.Contains(t, g.Players[1].Hand, Countess, "the peeked hand stays put")
}

func TestHandmaidProtection(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Handmaid, Guard}, {Priest}, {Baron}},
		[]Card{Guard, Guard, Guard}, Princess)

	events, err := g.Apply("player-0", PlayCard(Handmaid))
	require.NoError(t, err)
	assert.True(t, g.Players[0].Protected)
	require.NotNil(t, findEvent(events, EventPlayerProtected))

	// Seat 1 cannot target the protected player.
	_, err = g.Apply("player-1", PlayGuard(0, Baron))
	assert.ErrorIs(t, err, ErrIllegalAction)

	// Protection expires when seat 0's own turn begins, not before.
	_, err = g.Apply("player-1", PlayGuard(2, King))
	require.NoError(t, err)
	assert.True(t, g.Players[0].Protected)
	_, err = g.Apply("player-2", PlayGuard(1, King))
	require.NoError(t, err)
	assert.False(t, g.Players[0].Protected, "cleared at the start of the owner's turn")
}

func TestTargetingCardWithNoLegalTargetPlaysWithoutEffect(t *testing.T) {
	g := newStartedGame(t, 2, 5)
	force(g, 0,
		[][]Card{{Guard, Priest}, {Priest}},
		[]Card{Guard, Guard}, Princess)
	g.Players[1].Protected = true

	_, err := g.Apply("player-0", PlayGuard(1, Baron))
	require.ErrorIs(t, err, ErrIllegalAction)

	// With every opponent protected the Guard may be discarded untargeted.
	_, err = g.Apply("player-0", PlayCard(Guard))
	require.NoError(t, err)
	assert.True(t, g.Players[1].Alive)
	assert.Contains(t, g.Players[1].Hand, Priest)

	// But not when a legal target exists.
	g2 := newStartedGame(t, 3, 5)
	force(g2, 0,
		[][]Card{{Guard, Priest}, {Priest}, {Baron}},
		[]Card{Guard, Guard}, Princess)
	_, err = g2.Apply("player-0", PlayCard(Guard))
	assert.ErrorIs(t, err, ErrIllegalAction)
}

func TestCountessForcedWithRoyalty(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Countess, King}, {Priest}, {Baron}},
		[]Card{Guard, Guard}, Princess)

	_, err := g.Apply("player-0", PlayCardAt(King, 1))
	assert.ErrorIs(t, err, ErrIllegalAction)

	events, err := g.Apply("player-0", PlayCard(Countess))
	require.NoError(t, err)
	assert.Nil(t, findEvent(events, EventPlayerEliminated), "the Countess itself does nothing")
	assert.Equal(t, []Card{King}, g.Players[0].Hand)
}

func TestPrinceForcesDiscardAndRedraw(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Prince, Guard}, {Priest}, {Baron}},
		[]Card{King, Guard, Guard}, Princess)

	events, err := g.Apply("player-0", PlayCardAt(Prince, 1))
	require.NoError(t, err)

	discarded := findEvent(events, EventCardDiscarded)
	require.NotNil(t, discarded)
	assert.Equal(t, Priest, discarded.Card)
	assert.Equal(t, Broadcast, discarded.To, "the forced discard is public")
	assert.Contains(t, g.Players[1].Hand, King)
}

func TestPrinceOnPrincessEliminates(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Prince, Guard}, {Princess}, {Baron}},
		[]Card{Guard, Guard}, King)

	_, err := g.Apply("player-0", PlayCardAt(Prince, 1))
	require.NoError(t, err)

	assert.False(t, g.Players[1].Alive)
	assert.Contains(t, g.Players[1].Discards, Princess)
}

func TestPrinceDrawsSetAsideWhenDeckIsEmpty(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Prince, Guard}, {Priest}, {Baron}},
		nil, King)

	events, err := g.Apply("player-0", PlayCardAt(Prince, 1))
	require.NoError(t, err)

	drawn := findEvent(events, EventCardDrawn)
	require.NotNil(t, drawn)
	assert.Equal(t, 1, drawn.Seat)
	assert.Equal(t, King, drawn.Card, "replacement comes from the set-aside card")

	// The deck is spent, so the round ends and the King takes it.
	ended := findEvent(events, EventRoundEnded)
	require.NotNil(t, ended)
	assert.Equal(t, ReasonDeckExhausted, ended.Reason)
	assert.Equal(t, 1, ended.Seat)
	assert.Equal(t, 1, g.Players[1].Score)
}

func TestPrinceMayTargetSelf(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Prince, Guard}, {Priest}, {Baron}},
		[]Card{Handmaid, Guard, Guard}, Princess)

	_, err := g.Apply("player-0", PlayCardAt(Prince, 0))
	require.NoError(t, err)
	assert.Contains(t, g.Players[0].Discards, Guard)

	g2 := newStartedGame(t, 3, 1)
	force(g2, 0,
		[][]Card{{Guard, Priest}, {Priest}, {Baron}},
		[]Card{Guard, Guard}, Princess)
	_, err = g2.Apply("player-0", PlayGuard(0, Baron))
	assert.ErrorIs(t, err, ErrIllegalAction, "only the Prince may self-target")
}

func TestKingSwapsHands(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{King, Guard}, {Princess}, {Baron}},
		[]Card{Guard, Guard}, Priest)

	events, err := g.Apply("player-0", PlayCardAt(King, 1))
	require.NoError(t, err)

	assert.Equal(t, []Card{Princess}, g.Players[0].Hand)
	assert.Equal(t, Guard, g.Players[1].Hand[0])
	require.NotNil(t, findEvent(events, EventHandsSwapped))

	// Each side privately learns their new card.
	seen := map[int]Card{}
	for _, ev := range events {
		if ev.Type == EventCardDrawn {
			seen[ev.To] = ev.Card
		}
	}
	assert.Equal(t, Princess, seen[0])
	assert.Equal(t, Guard, seen[1])
}

func TestPrincessSelfEliminates(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Princess, Guard}, {Priest}, {Baron}},
		[]Card{Guard, Guard}, King)

	_, err := g.Apply("player-0", PlayCard(Princess))
	require.NoError(t, err)

	assert.False(t, g.Players[0].Alive)
	assert.Equal(t, 1, g.Turn)
}

func TestLastStandingEndsRoundAndStartsNext(t *testing.T) {
	g := newStartedGame(t, 2, 3)
	force(g, 0,
		[][]Card{{Guard, Priest}, {Priest}},
		[]Card{Guard, Guard}, Princess)

	events, err := g.Apply("player-0", PlayGuard(1, Priest))
	require.NoError(t, err)

	ended := findEvent(events, EventRoundEnded)
	require.NotNil(t, ended)
	assert.Equal(t, ReasonLastStanding, ended.Reason)
	assert.Equal(t, 0, ended.Seat)
	assert.Equal(t, 1, g.Players[0].Score)

	// A fresh round follows immediately.
	require.NotNil(t, findEvent(events, EventRoundStarted))
	assert.Equal(t, 2, g.Round)
	assert.Equal(t, PhaseAwaitingAction, g.Phase)
	assert.True(t, g.Players[1].Alive)
	assert.Equal(t, 1, g.Turn, "the round opener rotates")
	assert.Equal(t, DeckSize, totalCards(g))
}

func TestDeckExhaustionTiebreaks(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Handmaid, Priest}, {Priest}, {Guard}},
		nil, Princess)
	g.Players[1].Discards = []Card{Prince}

	events, err := g.Apply("player-0", PlayCard(Handmaid))
	require.NoError(t, err)

	// Seats 0 and 1 both hold a Priest; seat 1's heavier discard pile wins.
	ended := findEvent(events, EventRoundEnded)
	require.NotNil(t, ended)
	assert.Equal(t, ReasonDeckExhausted, ended.Reason)
	assert.Equal(t, 1, ended.Seat)
	assert.Equal(t, 1, g.Players[1].Score)
}

func TestMatchEndsAtThreshold(t *testing.T) {
	g := newStartedGame(t, 2, 3)
	g.Players[0].Score = 6 // one round from the 7-token two-player threshold
	force(g, 0,
		[][]Card{{Guard, Priest}, {Priest}},
		[]Card{Guard, Guard}, Princess)

	events, err := g.Apply("player-0", PlayGuard(1, Priest))
	require.NoError(t, err)

	require.NotNil(t, findEvent(events, EventMatchEnded))
	assert.Equal(t, PhaseMatchEnd, g.Phase)
	assert.Equal(t, 0, g.Winner)
	assert.Equal(t, 7, g.Players[0].Score)

	_, err = g.Apply("player-1", PlayCard(Priest))
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestForfeit(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Guard, Priest}, {Priest}, {Baron}},
		[]Card{Guard, Guard, Guard}, Princess)

	events, err := g.Forfeit("player-0")
	require.NoError(t, err)
	assert.False(t, g.Players[0].Alive)
	elim := findEvent(events, EventPlayerEliminated)
	require.NotNil(t, elim)
	assert.Equal(t, ReasonForfeit, elim.Reason)
	assert.Equal(t, 1, g.Turn, "the turn moves on from the forfeiting seat")

	// The next forfeit leaves one player standing and ends the round.
	events, err = g.Forfeit("player-1")
	require.NoError(t, err)
	ended := findEvent(events, EventRoundEnded)
	require.NotNil(t, ended)
	assert.Equal(t, 2, ended.Seat)
	assert.Equal(t, 1, g.Players[2].Score)
	assert.Equal(t, 2, g.Round)

	_, err = g.Forfeit("stranger")
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestForfeitBeforeStartIsNoOp(t *testing.T) {
	g := NewGame("test-game", Config{Players: 3, Seed: 1})
	_, err := g.AddPlayer("player-0")
	require.NoError(t, err)

	events, err := g.Forfeit("player-0")
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestDeckConservationThroughPlay(t *testing.T) {
	g := newStartedGame(t, 3, 1)
	force(g, 0,
		[][]Card{{Guard, Priest}, {Baron}, {Handmaid}},
		[]Card{Guard, Guard, Guard, Guard, Priest, Baron, Handmaid, Prince, Prince, King, Countess},
		Princess)
	require.Equal(t, DeckSize, totalCards(g))

	_, err := g.Apply("player-0", PlayGuard(1, Handmaid))
	require.NoError(t, err)
	assert.Equal(t, DeckSize, totalCards(g))

	// Seat 1 drew a Guard; losing the Baron comparison reveals everything.
	_, err = g.Apply("player-1", PlayCardAt(Baron, 2))
	require.NoError(t, err)
	assert.False(t, g.Players[1].Alive)
	assert.Equal(t, DeckSize, totalCards(g))

	_, err = g.Apply("player-2", PlayCard(Guard))
	require.ErrorIs(t, err, ErrIllegalAction, "a legal target still exists")
	_, err = g.Apply("player-2", PlayGuard(0, King))
	require.NoError(t, err)
	assert.Equal(t, DeckSize, totalCards(g))
}

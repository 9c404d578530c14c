// internal/protocol/message.go
package protocol

import "github.com/junglefunkyman/loveletter/internal/engine"

// ErrorCode is the fixed enumeration carried by error envelopes.
type ErrorCode string

const (
	CodeInvalidMessage ErrorCode = "INVALID_MESSAGE"
	CodeIllegalAction  ErrorCode = "ILLEGAL_ACTION"
	CodeNotYourTurn    ErrorCode = "NOT_YOUR_TURN"
	CodeGameNotFound   ErrorCode = "GAME_NOT_FOUND"
	CodeGameFull       ErrorCode = "GAME_FULL"
	CodeGameOver       ErrorCode = "GAME_OVER"
)

// Message is a decoded, well-typed inbound frame.
type Message interface {
	messageType() string
}

// JoinMessage asks to join (or create) the game with the given id.
type JoinMessage struct {
	GameID string `json:"gameId"`
}

func (JoinMessage) messageType() string { return TypeJoin }

// PlayCardMessage plays a card, optionally naming a target seat and, for the
// Guard, a guessed card.
type PlayCardMessage struct {
	Card   int  `json:"card"`
	Target *int `json:"targetPlayer,omitempty"`
	Guess  *int `json:"guess,omitempty"`
}

func (PlayCardMessage) messageType() string { return TypePlayCard }

// Inbound message type tags.
const (
	TypeJoin     = "join"
	TypePlayCard = "playCard"
)

// ErrorMessage is the outbound error envelope.
type ErrorMessage struct {
	ErrorCode ErrorCode `json:"errorCode"`
	Message   string    `json:"message"`
}

// BoardPlayer is one seat in a board-state snapshot. Discard is ordered
// oldest-first; only sizes of hands are public.
type BoardPlayer struct {
	ID       string `json:"id"`
	Seat     int    `json:"seat"`
	Alive    bool   `json:"alive"`
	HandSize int    `json:"handSize"`
	Score    int    `json:"score"`
	Discard  []int  `json:"discard"`
}

// PrivateState carries the recipient's own hand and any cards revealed to
// them by the latest event batch (Priest peeks, Baron comparisons).
type PrivateState struct {
	YourHand []int          `json:"yourHand"`
	Revealed []RevealedCard `json:"revealed,omitempty"`
}

// RevealedCard is a card shown privately to the snapshot's recipient.
type RevealedCard struct {
	Seat int `json:"seat"`
	Card int `json:"card"`
}

// BoardStateMessage is the full per-recipient snapshot broadcast after every
// applied action. Events are already filtered to what the recipient may see.
type BoardStateMessage struct {
	Type    string         `json:"type"`
	Players []BoardPlayer  `json:"players"`
	Turn    int            `json:"turn"`
	Phase   string         `json:"phase"`
	Events  []engine.Event `json:"events"`
	Private PrivateState   `json:"private"`
}

// TypeBoardState tags outbound snapshots.
const TypeBoardState = "boardState"

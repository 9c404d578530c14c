// internal/protocol/codec.go
package protocol

import (
	"encoding/json"
	"fmt"
	"math"
)

// DecodeErrorKind separates frames that are not JSON at all from frames that
// parse but violate the message schema.
type DecodeErrorKind int

const (
	InvalidJSON DecodeErrorKind = iota
	SchemaViolation
)

// DecodeError is the typed failure returned by Decode. It maps onto the
// INVALID_MESSAGE error envelope; decoding never panics on bad input.
type DecodeError struct {
	Kind   DecodeErrorKind
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Kind == InvalidJSON {
		return "invalid JSON: " + e.Reason
	}
	return "schema violation: " + e.Reason
}

// Envelope converts the decode failure into the outbound error envelope.
func (e *DecodeError) Envelope() ErrorMessage {
	return ErrorMessage{ErrorCode: CodeInvalidMessage, Message: e.Error()}
}

func invalidJSON(err error) *DecodeError {
	return &DecodeError{Kind: InvalidJSON, Reason: err.Error()}
}

func schemaViolation(format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: SchemaViolation, Reason: fmt.Sprintf(format, args...)}
}

// Decode parses a raw frame into a typed Message. Every failure mode is a
// typed DecodeError; malformed input never reaches game logic.
func Decode(raw []byte) (Message, *DecodeError) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, invalidJSON(err)
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, schemaViolation("frame must be a JSON object")
	}
	typ, ok := obj["type"].(string)
	if !ok {
		return nil, schemaViolation("missing or mistyped 'type' field")
	}
	switch typ {
	case TypeJoin:
		return decodeJoin(obj)
	case TypePlayCard:
		return decodePlayCard(obj)
	default:
		return nil, schemaViolation("unrecognized message type %q", typ)
	}
}

func decodeJoin(obj map[string]interface{}) (Message, *DecodeError) {
	gameID, ok := obj["gameId"].(string)
	if !ok || gameID == "" {
		return nil, schemaViolation("join requires a non-empty string 'gameId'")
	}
	return JoinMessage{GameID: gameID}, nil
}

func decodePlayCard(obj map[string]interface{}) (Message, *DecodeError) {
	card, err := intField(obj, "card", true)
	if err != nil {
		return nil, err
	}
	if *card < 1 || *card > 8 {
		return nil, schemaViolation("'card' must be in 1..8, got %d", *card)
	}
	msg := PlayCardMessage{Card: *card}

	target, err := intField(obj, "targetPlayer", false)
	if err != nil {
		return nil, err
	}
	if target != nil {
		if *target < 0 {
			return nil, schemaViolation("'targetPlayer' must be a seat index, got %d", *target)
		}
		msg.Target = target
	}

	guess, err := intField(obj, "guess", false)
	if err != nil {
		return nil, err
	}
	if guess != nil {
		if *guess < 2 || *guess > 8 {
			return nil, schemaViolation("'guess' must be in 2..8, got %d", *guess)
		}
		msg.Guess = guess
	}
	return msg, nil
}

// intField extracts an integral JSON number. JSON numbers arrive as float64;
// fractional values are schema violations, not truncated.
func intField(obj map[string]interface{}, key string, required bool) (*int, *DecodeError) {
	v, exists := obj[key]
	if !exists || v == nil {
		if required {
			return nil, schemaViolation("missing required field %q", key)
		}
		return nil, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return nil, schemaViolation("field %q must be an integer", key)
	}
	n := int(f)
	return &n, nil
}

// Encode is the mirror of Decode: it serializes a typed inbound message back
// to its wire form, so decode/encode round-trips are testable.
func Encode(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case JoinMessage:
		return json.Marshal(struct {
			Type string `json:"type"`
			JoinMessage
		}{TypeJoin, msg})
	case PlayCardMessage:
		return json.Marshal(struct {
			Type string `json:"type"`
			PlayCardMessage
		}{TypePlayCard, msg})
	default:
		return nil, fmt.Errorf("unencodable message type %T", m)
	}
}

// EncodeError serializes an error envelope. It cannot fail for the fixed
// envelope shape, so it returns bytes directly.
func EncodeError(code ErrorCode, message string) []byte {
	data, err := json.Marshal(ErrorMessage{ErrorCode: code, Message: message})
	if err != nil {
		return []byte(`{"errorCode":"INVALID_MESSAGE","message":"internal encoding error"}`)
	}
	return data
}

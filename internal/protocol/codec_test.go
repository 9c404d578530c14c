// internal/protocol/codec_test.go
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJoin(t *testing.T) {
	msg, decErr := Decode([]byte(`{"type":"join","gameId":"room-42"}`))
	require.Nil(t, decErr)

	join, ok := msg.(JoinMessage)
	require.True(t, ok)
	assert.Equal(t, "room-42", join.GameID)
}

func TestDecodePlayCard(t *testing.T) {
	msg, decErr := Decode([]byte(`{"type":"playCard","card":1,"targetPlayer":2,"guess":5}`))
	require.Nil(t, decErr)

	play, ok := msg.(PlayCardMessage)
	require.True(t, ok)
	assert.Equal(t, 1, play.Card)
	require.NotNil(t, play.Target)
	assert.Equal(t, 2, *play.Target)
	require.NotNil(t, play.Guess)
	assert.Equal(t, 5, *play.Guess)
}

func TestDecodePlayCardWithoutOptionals(t *testing.T) {
	msg, decErr := Decode([]byte(`{"type":"playCard","card":4}`))
	require.Nil(t, decErr)

	play, ok := msg.(PlayCardMessage)
	require.True(t, ok)
	assert.Equal(t, 4, play.Card)
	assert.Nil(t, play.Target)
	assert.Nil(t, play.Guess)
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	for _, raw := range []string{``, `{`, `not json`, `{"type":`} {
		_, decErr := Decode([]byte(raw))
		require.NotNil(t, decErr, "input %q", raw)
		assert.Equal(t, InvalidJSON, decErr.Kind, "input %q", raw)
		assert.Equal(t, CodeInvalidMessage, decErr.Envelope().ErrorCode)
	}
}

func TestDecodeRejectsSchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"non-object frame", `[1,2,3]`},
		{"missing type", `{"gameId":"x"}`},
		{"mistyped type", `{"type":7}`},
		{"unknown type", `{"type":"resign"}`},
		{"join without gameId", `{"type":"join"}`},
		{"join with empty gameId", `{"type":"join","gameId":""}`},
		{"join with numeric gameId", `{"type":"join","gameId":12}`},
		{"playCard without card", `{"type":"playCard"}`},
		{"card out of range", `{"type":"playCard","card":9}`},
		{"card zero", `{"type":"playCard","card":0}`},
		{"fractional card", `{"type":"playCard","card":3.5}`},
		{"string card", `{"type":"playCard","card":"Guard"}`},
		{"negative target", `{"type":"playCard","card":1,"targetPlayer":-1}`},
		{"guess names the Guard rank", `{"type":"playCard","card":1,"targetPlayer":0,"guess":1}`},
		{"guess out of range", `{"type":"playCard","card":1,"targetPlayer":0,"guess":9}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, decErr := Decode([]byte(tc.raw))
			require.NotNil(t, decErr)
			assert.Equal(t, SchemaViolation, decErr.Kind)
			assert.Equal(t, CodeInvalidMessage, decErr.Envelope().ErrorCode)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	target, guess := 2, 5
	inputs := []Message{
		JoinMessage{GameID: "room-7"},
		PlayCardMessage{Card: 1, Target: &target, Guess: &guess},
		PlayCardMessage{Card: 4},
	}
	for _, in := range inputs {
		data, err := Encode(in)
		require.NoError(t, err)
		out, decErr := Decode(data)
		require.Nil(t, decErr)
		assert.Equal(t, in, out)
	}
}

func TestEncodeError(t *testing.T) {
	data := EncodeError(CodeNotYourTurn, "wait for your turn")

	var env ErrorMessage
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, CodeNotYourTurn, env.ErrorCode)
	assert.Equal(t, "wait for your turn", env.Message)
}

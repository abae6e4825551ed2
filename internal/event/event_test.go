package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJoinPayload(t *testing.T) {
	var msg Message
	raw := `{"type":"join-room","payload":{"roomId":"abc123","userData":{"username":"alice"}}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, TypeJoinRoom, msg.Type)

	var p JoinRoomPayload
	require.NoError(t, Decode(msg.Payload, &p))
	assert.Equal(t, "abc123", p.RoomID)
	assert.Equal(t, "alice", p.UserData.Username)
}

func TestDecodeTolerantOfExtraFields(t *testing.T) {
	payload := map[string]any{"roomId": "abc123", "junk": 42}

	var p JoinRoomPayload
	require.NoError(t, Decode(payload, &p))
	assert.Equal(t, "abc123", p.RoomID)
	assert.Empty(t, p.UserData.Username)
}

func TestMessageOmitsEmptyPayload(t *testing.T) {
	b, err := json.Marshal(Message{Type: TypeClearCanvas})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"clear-canvas"}`, string(b))
}

package event

import "encoding/json"

// Client -> server events.
const (
	TypeJoinRoom       = "join-room"
	TypeLeaveRoom      = "leave-room"
	TypeCursorMove     = "cursor-move"
	TypeDrawStart      = "draw-start"
	TypeDrawMove       = "draw-move"
	TypeDrawEnd        = "draw-end"
	TypeClearCanvas    = "clear-canvas"
	TypeUpdateUsername = "update-username"
	TypeGetRoomUsers   = "get-room-users"
)

// Server -> client events.
const (
	TypeRoomUsersCount  = "room-users-count"
	TypeRoomUsersList   = "room-users-list"
	TypeUserConnected   = "user-connected"
	TypeUserJoined      = "user-joined"
	TypeUserLeft        = "user-left"
	TypeUserDisconnect  = "user-disconnected"
	TypeCursorUpdate    = "cursor-update"
	TypeLoadDrawingData = "load-drawing-data"
	TypeRoomError       = "room-error"
	TypeUsernameChanged = "username-changed"
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type JoinRoomPayload struct {
	RoomID   string   `json:"roomId"`
	UserData UserData `json:"userData"`
}

type UserData struct {
	Username string `json:"username,omitempty"`
	Color    string `json:"color,omitempty"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

type UserEventPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type UserConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
	Color        string `json:"color"`
}

type DisconnectedPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

type UsernameChangedPayload struct {
	UserID      string `json:"userId"`
	OldUsername string `json:"oldUsername"`
	NewUsername string `json:"newUsername"`
}

// Sender is one connection's outbound stream. Send must not block on a slow
// peer; delivery is best-effort.
type Sender interface {
	Send(msg Message) error
}

// Decode re-marshals a loosely typed payload into dst.
func Decode(payload any, dst any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return json.Unmarshal(b, dst)
}

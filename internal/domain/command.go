package domain

import "time"

type CommandKind string

const (
	CommandStroke CommandKind = "stroke"
	CommandClear  CommandKind = "clear"
)

// DrawingCommand is one entry of a room's append-only history. Data carries
// the client payload as-is after coercion; Timestamp is assigned by the store
// at append time.
type DrawingCommand struct {
	Kind      CommandKind    `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

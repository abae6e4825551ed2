package domain

import "time"

// Participant is connection-scoped and never persisted.
type Participant struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Color    string    `json:"color"`
	JoinedAt time.Time `json:"joinedAt"`
}

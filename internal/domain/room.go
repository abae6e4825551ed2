package domain

import "time"

type Room struct {
	ID           string           `json:"roomId"`
	CreatedAt    time.Time        `json:"createdAt"`
	LastActivity time.Time        `json:"lastActivity"`
	DrawingData  []DrawingCommand `json:"drawingData"`
}

package domain

import "errors"

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrInvalidRoom  = errors.New("invalid room ID")
)

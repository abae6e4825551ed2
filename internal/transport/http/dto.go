package http

type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
}

type JoinRoomResponse struct {
	Success bool   `json:"success"`
	RoomID  string `json:"roomId"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

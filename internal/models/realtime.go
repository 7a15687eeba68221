package models

import "encoding/json"

// Event is a push notification addressed to every connection of one user.
type Event struct {
	UserID  string          `json:"userId"`
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ClientFrame is what a connected client may send over its socket.
type ClientFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

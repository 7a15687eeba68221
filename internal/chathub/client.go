package chathub

import "topicchat/backend/internal/models"

// Client is one live connection of a user. A user may hold several at once
// (tabs, devices); the hub delivers every event to all of them.
type Client interface {
	// GetUserID returns the anonymous id the connection was authenticated as.
	GetUserID() string

	// GetSendChannel returns the channel the hub writes events to. The hub
	// never blocks on it: a full channel gets the client dropped.
	GetSendChannel() chan<- models.Event

	// Run starts the client's read and write pumps.
	Run()
	// Close releases the connection. It must be safe to call more than once.
	Close()
}

package models

import "time"

// MaxMessageLength is the upper bound, in runes, of a chat message.
const MaxMessageLength = 1000

// ChatMessage is one entry of a session's append-only message log.
// Messages are stored apart from the session row and read page by page.
type ChatMessage struct {
	// ID is assigned by the store and increases with every append; it doubles as the page cursor.
	ID        uint   `gorm:"primaryKey" json:"id"`
	SessionID string `gorm:"size:64;not null;index:idx_session_messages,priority:1" json:"sessionId"`
	// SenderID is nil for system messages.
	SenderID  *string   `gorm:"size:64" json:"senderId"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	IsSystem  bool      `gorm:"not null;default:false" json:"isSystem"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

// SystemMessage builds an unattributed status message.
func SystemMessage(sessionID, content string, at time.Time) ChatMessage {
	return ChatMessage{
		SessionID: sessionID,
		Content:   content,
		IsSystem:  true,
		Timestamp: at,
	}
}

// UserMessage builds a message sent by a participant.
func UserMessage(sessionID, senderID, content string, at time.Time) ChatMessage {
	sender := senderID
	return ChatMessage{
		SessionID: sessionID,
		SenderID:  &sender,
		Content:   content,
		Timestamp: at,
	}
}

package randomchat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"topicchat/backend/internal/models"
	"topicchat/backend/internal/storage"

	"go.uber.org/zap"
)

// Relay stores messages of active sessions and forwards them to the partner.
type Relay struct {
	deps *Deps
}

// loadForParticipant returns the session if it exists and userID belongs to it.
func loadForParticipant(ctx context.Context, d *Deps, sessionID, userID string) (*models.ChatSession, error) {
	if sessionID == "" {
		return nil, validationf("session id is required")
	}
	s, err := d.Store.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound(sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if !s.HasParticipant(userID) {
		return nil, forbidden(sessionID)
	}
	return s, nil
}

// SendMessage appends content from senderID and pushes it to the partner.
// Content is trimmed and must hold 1 to models.MaxMessageLength characters.
func (r *Relay) SendMessage(ctx context.Context, sessionID, senderID, content string) (models.ChatMessage, error) {
	d := r.deps
	s, err := loadForParticipant(ctx, d, sessionID, senderID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	if s.Status != models.StatusActive {
		return models.ChatMessage{}, invalidState(sessionID, "chat session is not active")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return models.ChatMessage{}, validationf("message content is required")
	}
	if n := utf8.RuneCountInString(content); n > models.MaxMessageLength {
		return models.ChatMessage{}, validationf("message is too long: %d characters, max %d", n, models.MaxMessageLength)
	}

	msg := models.UserMessage(sessionID, senderID, content, d.Now())
	err = d.Store.AppendMessage(ctx, &msg)
	if errors.Is(err, storage.ErrConditionFailed) {
		// ended between the read and the write
		return models.ChatMessage{}, invalidState(sessionID, "chat session is not active")
	}
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("append message to %s: %w", sessionID, err)
	}

	d.notifyOthers(ctx, s, senderID, EventMessage, MessagePayload{SessionID: sessionID, Message: msg})
	d.Metrics.message(ctx)
	d.Log.Debug("Message relayed", zap.String("session_id", sessionID), zap.Uint("message_id", msg.ID))
	return msg, nil
}

// GetSession returns a page of the session history to one of its participants.
func (r *Relay) GetSession(ctx context.Context, sessionID, userID string, page storage.MessagePage) (SessionView, error) {
	d := r.deps
	s, err := loadForParticipant(ctx, d, sessionID, userID)
	if err != nil {
		return SessionView{}, err
	}

	page = page.Normalize()
	messages, err := d.Store.ListMessages(ctx, sessionID, page)
	if err != nil {
		return SessionView{}, fmt.Errorf("list messages of %s: %w", sessionID, err)
	}

	view := SessionView{
		SessionID:   s.SessionID,
		Status:      s.Status,
		Topic:       s.Topic,
		IsAnonymous: s.IsAnonymous,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		Messages:    messages,
	}
	if s.Status != models.StatusSearching {
		view.Partner = partnerView(s.Partner(userID))
	}
	if len(messages) == page.Limit {
		view.NextCursor = messages[len(messages)-1].ID
	}
	return view, nil
}

// SetTyping forwards a typing indicator to the partner. Nothing is stored.
func (r *Relay) SetTyping(ctx context.Context, sessionID, userID string, typing bool) error {
	d := r.deps
	s, err := loadForParticipant(ctx, d, sessionID, userID)
	if err != nil {
		return err
	}
	if s.Status != models.StatusActive {
		return invalidState(sessionID, "chat session is not active")
	}

	event := EventStoppedTyping
	if typing {
		event = EventTyping
	}
	d.notifyOthers(ctx, s, userID, event, TypingPayload{SessionID: sessionID})
	return nil
}

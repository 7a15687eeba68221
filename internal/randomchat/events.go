package randomchat

import "topicchat/backend/internal/models"

// Names of the events pushed to connected clients.
const (
	EventPartnerFound  = "partnerFound"
	EventMessage       = "random_chat_message"
	EventEnded         = "random_chat_ended"
	EventTyping        = "random_chat_typing"
	EventStoppedTyping = "random_chat_stopped_typing"
)

// Reasons carried by EventEnded.
const (
	EndReasonLeft     = "ended"
	EndReasonSkipped  = "skipped"
	EndReasonInactive = "inactive"
)

// PartnerView is the only thing a user learns about the person on the other side.
type PartnerView struct {
	// ID is empty when the partner searched anonymously.
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	IsAnonymous bool   `json:"isAnonymous"`
}

const anonymousName = "Anonymous"

func partnerView(p *models.Participant) *PartnerView {
	if p == nil {
		return nil
	}
	view := &PartnerView{Name: anonymousName, IsAnonymous: p.IsAnonymous}
	if !p.IsAnonymous {
		view.ID = p.UserID
	}
	return view
}

type PartnerFoundPayload struct {
	SessionID string       `json:"sessionId"`
	Topic     models.Topic `json:"topic"`
	Fallback  bool         `json:"fallback"`
	Partner   *PartnerView `json:"partner"`
}

type MessagePayload struct {
	SessionID string             `json:"sessionId"`
	Message   models.ChatMessage `json:"message"`
}

type EndedPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

type TypingPayload struct {
	SessionID string `json:"sessionId"`
}

package randomchat

import (
	"time"

	"topicchat/backend/internal/models"
)

// SessionSummary is what StartSearch and SkipPartner hand back to the caller.
type SessionSummary struct {
	SessionID string               `json:"sessionId"`
	Status    models.SessionStatus `json:"status"`
	Topic     models.Topic         `json:"topic"`
	// Fallback is true when the partner came from a different topic.
	Fallback bool         `json:"fallback"`
	Partner  *PartnerView `json:"partner,omitempty"`
}

func summarize(s *models.ChatSession, userID string, fallback bool) SessionSummary {
	sum := SessionSummary{
		SessionID: s.SessionID,
		Status:    s.Status,
		Topic:     s.Topic,
		Fallback:  fallback,
	}
	if s.Status != models.StatusSearching {
		sum.Partner = partnerView(s.Partner(userID))
	}
	return sum
}

// SessionView is a participant's read of a session with one page of history.
type SessionView struct {
	SessionID   string               `json:"sessionId"`
	Status      models.SessionStatus `json:"status"`
	Topic       models.Topic         `json:"topic"`
	IsAnonymous bool                 `json:"isAnonymous"`
	StartedAt   time.Time            `json:"startedAt"`
	EndedAt     *time.Time           `json:"endedAt,omitempty"`
	Partner     *PartnerView         `json:"partner,omitempty"`
	Messages    []models.ChatMessage `json:"messages"`
	// NextCursor is the afterId of the next page, zero when there is none.
	NextCursor uint `json:"nextCursor,omitempty"`
}

package models

import "time"

// SessionStatus is the lifecycle state of a ChatSession.
type SessionStatus string

const (
	StatusSearching SessionStatus = "searching"
	StatusActive    SessionStatus = "active"
	StatusEnded     SessionStatus = "ended"
)

// CanTransition reports whether a session may move from s to next.
// The only allowed edges are searching→active, searching→ended and active→ended.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case StatusSearching:
		return next == StatusActive || next == StatusEnded
	case StatusActive:
		return next == StatusEnded
	default:
		return false
	}
}

// Open reports whether the session still takes part in matching or chatting.
func (s SessionStatus) Open() bool {
	return s == StatusSearching || s == StatusActive
}

// MaxParticipants is the size of a fully matched session.
const MaxParticipants = 2

// ChatSession is the unit of pairing between two anonymous users.
// The session row is the source of truth; notifications are derived from it.
type ChatSession struct {
	// SessionID is the opaque identifier handed to clients.
	SessionID string `gorm:"primaryKey;size:64" json:"sessionId"`
	// Topic is what the original searcher wanted to talk about.
	Topic Topic `gorm:"size:32;not null;index:idx_session_match,priority:2" json:"topic"`
	// Status drives every state transition, see SessionStatus.CanTransition.
	Status SessionStatus `gorm:"size:16;not null;index:idx_session_match,priority:1" json:"status"`
	// IsAnonymous mirrors the original searcher's choice.
	IsAnonymous bool `json:"isAnonymous"`
	// ParticipantCount guards the conditional "join" update. It always equals len(Participants).
	ParticipantCount int `gorm:"not null;default:0" json:"-"`
	// StartedAt is when the session was created; fallback matching ages from here.
	StartedAt time.Time `gorm:"not null;index" json:"startedAt"`
	// EndedAt is set once, when the session becomes ended.
	EndedAt *time.Time `json:"endedAt,omitempty"`
	// UpdatedAt is bumped by every mutation and drives staleness checks.
	UpdatedAt time.Time `gorm:"autoUpdateTime:false;not null" json:"updatedAt"`

	Participants []Participant `gorm:"foreignKey:SessionID;references:SessionID" json:"participants"`
	// Messages is only populated on creation and on paginated reads.
	Messages []ChatMessage `gorm:"foreignKey:SessionID;references:SessionID" json:"messages,omitempty"`
}

// Participant is a user's membership record inside a session.
type Participant struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	SessionID string `gorm:"size:64;not null;index" json:"-"`
	UserID    string `gorm:"size:64;not null;index" json:"userId"`
	// Position 0 is the original searcher.
	Position    int        `gorm:"not null" json:"-"`
	IsAnonymous bool       `json:"isAnonymous"`
	JoinedAt    time.Time  `gorm:"not null" json:"joinedAt"`
	LeftAt      *time.Time `json:"leftAt,omitempty"`
}

// HasParticipant reports whether userID is a member of the session.
func (s *ChatSession) HasParticipant(userID string) bool {
	return s.Participant(userID) != nil
}

// Participant returns the membership record of userID, or nil.
func (s *ChatSession) Participant(userID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// OtherParticipants returns everyone in the session except userID.
func (s *ChatSession) OtherParticipants(userID string) []Participant {
	others := make([]Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.UserID != userID {
			others = append(others, p)
		}
	}
	return others
}

// Partner returns the first participant that is not userID, or nil.
func (s *ChatSession) Partner(userID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID != userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// Owner returns the original searcher.
func (s *ChatSession) Owner() *Participant {
	if len(s.Participants) == 0 {
		return nil
	}
	return &s.Participants[0]
}

// OlderThan orders sessions by (StartedAt, SessionID). It is the tie-break used
// when two waiting sessions have to be merged.
func (s *ChatSession) OlderThan(other *ChatSession) bool {
	if !s.StartedAt.Equal(other.StartedAt) {
		return s.StartedAt.Before(other.StartedAt)
	}
	return s.SessionID < other.SessionID
}

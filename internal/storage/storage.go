// Package storage persists chat sessions, their messages and complaints.
//
// Every mutation that other actors may race on is expressed as a single
// conditional update: the store either applies it atomically or reports
// ErrConditionFailed, it never reads and then writes unconditionally.
package storage

import (
	"context"
	"errors"
	"time"

	"topicchat/backend/internal/models"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("storage: record not found")
	// ErrConditionFailed is returned when a conditional update found the
	// document in a state other than the one it was guarded on.
	ErrConditionFailed = errors.New("storage: condition failed")
)

const (
	DefaultMessagePageSize = 50
	MaxMessagePageSize     = 200
)

// WaitingFilter narrows FindWaitingSession. Zero values mean "any".
type WaitingFilter struct {
	Topic            models.Topic
	StartedBefore    time.Time
	ExcludeUserID    string
	ExcludeSessionID string
}

// JoinParams adds a second participant to a searching session.
type JoinParams struct {
	SessionID     string
	Participant   models.Participant
	SystemMessage models.ChatMessage
	At            time.Time
}

// MergeParams ends the searching session From and moves its only
// participant into the searching session Into, activating it.
type MergeParams struct {
	FromSessionID string
	IntoSessionID string
	Joiner        models.Participant
	SystemMessage models.ChatMessage
	At            time.Time
}

// EndParams ends a session if its status is one of RequireStatus.
type EndParams struct {
	SessionID     string
	RequireStatus []models.SessionStatus
	// IdleSince, when set, additionally requires no activity since that time.
	IdleSince time.Time
	// LeavingUserID, when set, gets its LeftAt stamped.
	LeavingUserID string
	SystemMessage *models.ChatMessage
	At            time.Time
}

// MessagePage selects messages with ID greater than AfterID.
type MessagePage struct {
	AfterID uint
	Limit   int
}

// Normalize clamps the page size into the allowed range.
func (p MessagePage) Normalize() MessagePage {
	if p.Limit <= 0 {
		p.Limit = DefaultMessagePageSize
	}
	if p.Limit > MaxMessagePageSize {
		p.Limit = MaxMessagePageSize
	}
	return p
}

// SessionStore is the document store behind the random chat core.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.ChatSession) error
	GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error)
	FindOpenSessionForUser(ctx context.Context, userID string) (*models.ChatSession, error)
	FindWaitingSession(ctx context.Context, filter WaitingFilter) (*models.ChatSession, error)

	JoinWaitingSession(ctx context.Context, params JoinParams) (*models.ChatSession, error)
	MergeWaitingSessions(ctx context.Context, params MergeParams) (*models.ChatSession, error)
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	EndSession(ctx context.Context, params EndParams) (*models.ChatSession, error)

	ListMessages(ctx context.Context, sessionID string, page MessagePage) ([]models.ChatMessage, error)
	ListLatestMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
	ListStaleSessions(ctx context.Context, idleSince time.Time, limit int) ([]models.ChatSession, error)
}

// ComplaintStore keeps moderation reports.
type ComplaintStore interface {
	SaveComplaint(ctx context.Context, complaint *models.Complaint) error
	ListComplaints(ctx context.Context, status string, limit int) ([]models.Complaint, error)
}

// Storage is everything the service persists.
type Storage interface {
	SessionStore
	ComplaintStore
}

func statusStrings(statuses []models.SessionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func containsStatus(statuses []models.SessionStatus, s models.SessionStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

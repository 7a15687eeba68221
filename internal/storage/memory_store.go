package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"topicchat/backend/internal/models"
)

// MemoryStore is an in-process Storage for development mode and tests.
// The mutex stands in for the single-document atomicity a real store gives;
// every read hands out a deep copy.
type MemoryStore struct {
	mu         sync.Mutex
	sessions   map[string]*models.ChatSession
	messages   map[string][]models.ChatMessage
	complaints []models.Complaint
	nextMsgID  uint
	nextPartID uint
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.ChatSession),
		messages: make(map[string][]models.ChatMessage),
	}
}

func cloneSession(s *models.ChatSession) *models.ChatSession {
	out := *s
	out.Participants = make([]models.Participant, len(s.Participants))
	for i, p := range s.Participants {
		if p.LeftAt != nil {
			left := *p.LeftAt
			p.LeftAt = &left
		}
		out.Participants[i] = p
	}
	if s.EndedAt != nil {
		ended := *s.EndedAt
		out.EndedAt = &ended
	}
	out.Messages = nil
	return &out
}

func cloneMessage(m models.ChatMessage) models.ChatMessage {
	if m.SenderID != nil {
		sender := *m.SenderID
		m.SenderID = &sender
	}
	return m
}

func (m *MemoryStore) appendLocked(msg *models.ChatMessage) {
	m.nextMsgID++
	msg.ID = m.nextMsgID
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], cloneMessage(*msg))
}

func (m *MemoryStore) addParticipantLocked(s *models.ChatSession, p models.Participant) {
	m.nextPartID++
	p.ID = m.nextPartID
	p.SessionID = s.SessionID
	p.Position = len(s.Participants)
	s.Participants = append(s.Participants, p)
	s.ParticipantCount = len(s.Participants)
}

func (m *MemoryStore) CreateSession(_ context.Context, session *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := cloneSession(session)
	stored.Participants = nil
	for _, p := range session.Participants {
		m.addParticipantLocked(stored, p)
	}
	m.sessions[stored.SessionID] = stored

	for i := range session.Messages {
		session.Messages[i].SessionID = session.SessionID
		m.appendLocked(&session.Messages[i])
	}
	session.Participants = cloneSession(stored).Participants
	session.ParticipantCount = stored.ParticipantCount
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) FindOpenSessionForUser(_ context.Context, userID string) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *models.ChatSession
	for _, s := range m.sessions {
		if !s.Status.Open() || !s.HasParticipant(userID) {
			continue
		}
		if found == nil || found.OlderThan(s) {
			found = s
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return cloneSession(found), nil
}

func (m *MemoryStore) FindWaitingSession(_ context.Context, filter WaitingFilter) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *models.ChatSession
	for _, s := range m.sessions {
		if s.Status != models.StatusSearching || len(s.Participants) != 1 {
			continue
		}
		if filter.Topic != "" && s.Topic != filter.Topic {
			continue
		}
		if !filter.StartedBefore.IsZero() && !s.StartedAt.Before(filter.StartedBefore) {
			continue
		}
		if filter.ExcludeSessionID != "" && s.SessionID == filter.ExcludeSessionID {
			continue
		}
		if filter.ExcludeUserID != "" && s.HasParticipant(filter.ExcludeUserID) {
			continue
		}
		if found == nil || s.OlderThan(found) {
			found = s
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return cloneSession(found), nil
}

func waitingLocked(s *models.ChatSession) bool {
	return s.Status == models.StatusSearching && len(s.Participants) == 1
}

func (m *MemoryStore) JoinWaitingSession(_ context.Context, params JoinParams) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[params.SessionID]
	if !ok || !waitingLocked(s) {
		return nil, ErrConditionFailed
	}
	m.activateLocked(s, params.Participant, params.SystemMessage, params.At)
	return cloneSession(s), nil
}

func (m *MemoryStore) activateLocked(s *models.ChatSession, p models.Participant, msg models.ChatMessage, at time.Time) {
	p.LeftAt = nil
	m.addParticipantLocked(s, p)
	s.Status = models.StatusActive
	s.UpdatedAt = at
	msg.SessionID = s.SessionID
	m.appendLocked(&msg)
}

func (m *MemoryStore) MergeWaitingSessions(_ context.Context, params MergeParams) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from, ok := m.sessions[params.FromSessionID]
	if !ok || !waitingLocked(from) {
		return nil, ErrConditionFailed
	}
	into, ok := m.sessions[params.IntoSessionID]
	if !ok || !waitingLocked(into) {
		return nil, ErrConditionFailed
	}

	at := params.At
	from.Status = models.StatusEnded
	from.EndedAt = &at
	from.UpdatedAt = at
	m.activateLocked(into, params.Joiner, params.SystemMessage, at)
	return cloneSession(into), nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[msg.SessionID]
	if !ok || s.Status != models.StatusActive {
		return ErrConditionFailed
	}
	s.UpdatedAt = msg.Timestamp
	m.appendLocked(msg)
	return nil
}

func (m *MemoryStore) EndSession(_ context.Context, params EndParams) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[params.SessionID]
	if !ok || !containsStatus(params.RequireStatus, s.Status) {
		return nil, ErrConditionFailed
	}
	if !params.IdleSince.IsZero() && !s.UpdatedAt.Before(params.IdleSince) {
		return nil, ErrConditionFailed
	}

	at := params.At
	s.Status = models.StatusEnded
	s.EndedAt = &at
	s.UpdatedAt = at
	if params.LeavingUserID != "" {
		if p := s.Participant(params.LeavingUserID); p != nil && p.LeftAt == nil {
			left := at
			p.LeftAt = &left
		}
	}
	if params.SystemMessage != nil {
		msg := *params.SystemMessage
		msg.SessionID = s.SessionID
		m.appendLocked(&msg)
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) ListMessages(_ context.Context, sessionID string, page MessagePage) ([]models.ChatMessage, error) {
	page = page.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.ChatMessage, 0, page.Limit)
	for _, msg := range m.messages[sessionID] {
		if msg.ID <= page.AfterID {
			continue
		}
		out = append(out, cloneMessage(msg))
		if len(out) == page.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) ListLatestMessages(_ context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.messages[sessionID]
	start := len(all) - limit
	if start < 0 {
		start = 0
	}
	out := make([]models.ChatMessage, 0, len(all)-start)
	for _, msg := range all[start:] {
		out = append(out, cloneMessage(msg))
	}
	return out, nil
}

func (m *MemoryStore) ListStaleSessions(_ context.Context, idleSince time.Time, limit int) ([]models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ChatSession
	for _, s := range m.sessions {
		if s.Status == models.StatusActive && s.UpdatedAt.Before(idleSince) {
			out = append(out, *cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SaveComplaint(_ context.Context, complaint *models.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if complaint.Status == "" {
		complaint.Status = models.ComplaintStatusPending
	}
	if complaint.CreatedAt.IsZero() {
		complaint.CreatedAt = time.Now().UTC()
	}
	m.complaints = append(m.complaints, *complaint)
	return nil
}

func (m *MemoryStore) ListComplaints(_ context.Context, status string, limit int) ([]models.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Complaint
	for i := len(m.complaints) - 1; i >= 0; i-- {
		if m.complaints[i].Status != status {
			continue
		}
		out = append(out, m.complaints[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

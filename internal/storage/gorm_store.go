package storage

import (
	"context"
	"errors"
	"time"

	"topicchat/backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the gorm-backed Storage. The SQL is kept portable so the same
// code runs against PostgreSQL in production and SQLite in tests.
type Service struct {
	DB  *gorm.DB
	Log *zap.Logger
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{DB: db, Log: logger}
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ChatSession{},
		&models.Participant{},
		&models.ChatMessage{},
		&models.Complaint{},
	)
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position asc")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// CreateSession inserts the session together with its participants and initial messages.
func (s *Service) CreateSession(ctx context.Context, session *models.ChatSession) error {
	session.ParticipantCount = len(session.Participants)
	for i := range session.Participants {
		session.Participants[i].Position = i
	}
	if err := s.DB.WithContext(ctx).Create(session).Error; err != nil {
		s.Log.Error("failed to create session", zap.String("session_id", session.SessionID), zap.Error(err))
		return err
	}
	return nil
}

// GetSession loads a session and its participants. Messages are read separately.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.DB.WithContext(ctx).
		Preload("Participants", byPosition).
		Where("session_id = ?", sessionID).
		First(&session).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

// FindOpenSessionForUser returns the newest searching or active session the user belongs to.
func (s *Service) FindOpenSessionForUser(ctx context.Context, userID string) (*models.ChatSession, error) {
	db := s.DB.WithContext(ctx)
	membership := db.Model(&models.Participant{}).Select("session_id").Where("user_id = ?", userID)

	var session models.ChatSession
	err := db.Preload("Participants", byPosition).
		Where("status IN ?", statusStrings([]models.SessionStatus{models.StatusSearching, models.StatusActive})).
		Where("session_id IN (?)", membership).
		Order("started_at desc").
		First(&session).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

// FindWaitingSession returns the oldest searching session with exactly one
// participant that satisfies the filter.
func (s *Service) FindWaitingSession(ctx context.Context, filter WaitingFilter) (*models.ChatSession, error) {
	db := s.DB.WithContext(ctx)
	q := db.Preload("Participants", byPosition).
		Where("status = ? AND participant_count = ?", models.StatusSearching, 1)
	if filter.Topic != "" {
		q = q.Where("topic = ?", filter.Topic)
	}
	if !filter.StartedBefore.IsZero() {
		q = q.Where("started_at < ?", filter.StartedBefore)
	}
	if filter.ExcludeSessionID != "" {
		q = q.Where("session_id <> ?", filter.ExcludeSessionID)
	}
	if filter.ExcludeUserID != "" {
		membership := db.Model(&models.Participant{}).Select("session_id").Where("user_id = ?", filter.ExcludeUserID)
		q = q.Where("session_id NOT IN (?)", membership)
	}

	var session models.ChatSession
	if err := q.Order("started_at asc").Order("session_id asc").First(&session).Error; err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

// activate flips a searching single-participant session to active. It is the
// compare-and-swap every match goes through.
func activate(tx *gorm.DB, sessionID string, at time.Time) error {
	res := tx.Model(&models.ChatSession{}).
		Where("session_id = ? AND status = ? AND participant_count = ?", sessionID, models.StatusSearching, 1).
		Updates(map[string]interface{}{
			"status":            models.StatusActive,
			"participant_count": 2,
			"updated_at":        at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

func addSecondParticipant(tx *gorm.DB, sessionID string, p models.Participant, msg models.ChatMessage) error {
	p.ID = 0
	p.SessionID = sessionID
	p.Position = 1
	p.LeftAt = nil
	if err := tx.Create(&p).Error; err != nil {
		return err
	}
	msg.ID = 0
	msg.SessionID = sessionID
	return tx.Create(&msg).Error
}

// JoinWaitingSession appends the second participant only if the session still has exactly one.
func (s *Service) JoinWaitingSession(ctx context.Context, params JoinParams) (*models.ChatSession, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := activate(tx, params.SessionID, params.At); err != nil {
			return err
		}
		return addSecondParticipant(tx, params.SessionID, params.Participant, params.SystemMessage)
	})
	if err != nil {
		return nil, err
	}
	return s.GetSession(ctx, params.SessionID)
}

// MergeWaitingSessions ends From and joins its owner into Into in one transaction.
func (s *Service) MergeWaitingSessions(ctx context.Context, params MergeParams) (*models.ChatSession, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ChatSession{}).
			Where("session_id = ? AND status = ? AND participant_count = ?", params.FromSessionID, models.StatusSearching, 1).
			Updates(map[string]interface{}{
				"status":     models.StatusEnded,
				"ended_at":   params.At,
				"updated_at": params.At,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConditionFailed
		}
		if err := activate(tx, params.IntoSessionID, params.At); err != nil {
			return err
		}
		return addSecondParticipant(tx, params.IntoSessionID, params.Joiner, params.SystemMessage)
	})
	if err != nil {
		return nil, err
	}
	return s.GetSession(ctx, params.IntoSessionID)
}

// AppendMessage stores msg if the session is still active and assigns its ID.
func (s *Service) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ChatSession{}).
			Where("session_id = ? AND status = ?", msg.SessionID, models.StatusActive).
			Update("updated_at", msg.Timestamp)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConditionFailed
		}
		msg.ID = 0
		return tx.Create(msg).Error
	})
}

// EndSession moves the session to ended when its current status is allowed.
func (s *Service) EndSession(ctx context.Context, params EndParams) (*models.ChatSession, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.ChatSession{}).
			Where("session_id = ? AND status IN ?", params.SessionID, statusStrings(params.RequireStatus))
		if !params.IdleSince.IsZero() {
			q = q.Where("updated_at < ?", params.IdleSince)
		}
		res := q.Updates(map[string]interface{}{
			"status":     models.StatusEnded,
			"ended_at":   params.At,
			"updated_at": params.At,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConditionFailed
		}
		if params.LeavingUserID != "" {
			err := tx.Model(&models.Participant{}).
				Where("session_id = ? AND user_id = ? AND left_at IS NULL", params.SessionID, params.LeavingUserID).
				Update("left_at", params.At).Error
			if err != nil {
				return err
			}
		}
		if params.SystemMessage != nil {
			msg := *params.SystemMessage
			msg.ID = 0
			msg.SessionID = params.SessionID
			return tx.Create(&msg).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetSession(ctx, params.SessionID)
}

// ListMessages returns one page of messages in chronological order.
func (s *Service) ListMessages(ctx context.Context, sessionID string, page MessagePage) ([]models.ChatMessage, error) {
	page = page.Normalize()
	var messages []models.ChatMessage
	err := s.DB.WithContext(ctx).
		Where("session_id = ? AND id > ?", sessionID, page.AfterID).
		Order("id asc").
		Limit(page.Limit).
		Find(&messages).Error
	if err != nil {
		s.Log.Error("failed to list messages", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	return messages, nil
}

// ListLatestMessages returns the last limit messages, oldest first.
func (s *Service) ListLatestMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := s.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id desc").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListStaleSessions lists active sessions without activity since idleSince.
func (s *Service) ListStaleSessions(ctx context.Context, idleSince time.Time, limit int) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	err := s.DB.WithContext(ctx).
		Preload("Participants", byPosition).
		Where("status = ? AND updated_at < ?", models.StatusActive, idleSince).
		Order("updated_at asc").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// SaveComplaint stores a moderation report.
func (s *Service) SaveComplaint(ctx context.Context, complaint *models.Complaint) error {
	if complaint.Status == "" {
		complaint.Status = models.ComplaintStatusPending
	}

	if err := s.DB.WithContext(ctx).Create(complaint).Error; err != nil {
		s.Log.Error("failed to save complaint", zap.String("session_id", complaint.SessionID), zap.Error(err))
		return err
	}
	return nil
}

// ListComplaints returns the newest complaints with the given status.
func (s *Service) ListComplaints(ctx context.Context, status string, limit int) ([]models.Complaint, error) {
	var complaints []models.Complaint
	err := s.DB.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at desc").
		Limit(limit).
		Find(&complaints).Error
	return complaints, err
}

// Package complaint records reports filed from random chat sessions so that
// moderators can review them later.
package complaint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"topicchat/backend/internal/models"
	"topicchat/backend/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service handles the business logic for complaints.
type Service struct {
	Storage storage.ComplaintStore
	Log     *zap.Logger
	Now     func() time.Time
}

// NewService creates a new complaint service.
func NewService(s storage.ComplaintStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Storage: s,
		Log:     logger.Named("complaint"),
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

// transcriptLine is how a logged message is kept in the complaint record.
type transcriptLine struct {
	SenderID  string    `json:"senderId,omitempty"`
	Content   string    `json:"content"`
	IsSystem  bool      `json:"isSystem,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FileReport stores the report as a pending complaint.
// It implements randomchat.Reporter.
func (s *Service) FileReport(ctx context.Context, report models.ReportRequest) error {
	lines := make([]transcriptLine, 0, len(report.Transcript))
	for _, m := range report.Transcript {
		line := transcriptLine{Content: m.Content, IsSystem: m.IsSystem, Timestamp: m.Timestamp}
		if m.SenderID != nil {
			line.SenderID = *m.SenderID
		}
		lines = append(lines, line)
	}
	logged, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	complaint := &models.Complaint{
		ComplaintID:    uuid.NewString(),
		ReporterID:     report.ReporterID,
		ReportedUserID: report.ReportedUserID,
		SessionID:      report.SessionID,
		Reason:         report.Reason,
		Description:    report.Description,
		LoggedMessages: string(logged),
		Status:         models.ComplaintStatusPending,
		CreatedAt:      s.Now(),
	}
	if err := s.Storage.SaveComplaint(ctx, complaint); err != nil {
		return fmt.Errorf("save complaint: %w", err)
	}

	s.Log.Info("Complaint filed",
		zap.String("complaint_id", complaint.ComplaintID),
		zap.String("session_id", complaint.SessionID),
		zap.String("reported_user_id", complaint.ReportedUserID),
		zap.String("reason", string(complaint.Reason)),
		zap.Int("logged_messages", len(lines)))
	return nil
}

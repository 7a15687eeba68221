package randomchat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"topicchat/backend/internal/localization"
	"topicchat/backend/internal/models"
	"topicchat/backend/internal/storage"

	"go.uber.org/zap"
)

const (
	MinReportDescription = 10
	MaxReportDescription = 500

	// endAttempts bounds EndChat retries when the session changes underneath it.
	endAttempts = 3
)

// Lifecycle ends, skips and reports sessions.
type Lifecycle struct {
	deps    *Deps
	matcher *Matcher
}

// EndChat ends the session on behalf of userID. Ending an unknown or already
// ended session is a no-op, so clients may retry freely.
func (l *Lifecycle) EndChat(ctx context.Context, sessionID, userID string) error {
	d := l.deps
	if sessionID == "" {
		return validationf("session id is required")
	}

	for attempt := 0; attempt < endAttempts; attempt++ {
		s, err := d.Store.GetSession(ctx, sessionID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get session %s: %w", sessionID, err)
		}
		if !s.HasParticipant(userID) {
			return forbidden(sessionID)
		}
		if s.Status == models.StatusEnded {
			return nil
		}

		// A session nobody joined ends quietly.
		var msg *models.ChatMessage
		if s.Status == models.StatusActive {
			m := d.systemMessage(sessionID, localization.KeyChatEnded)
			msg = &m
		}
		ended, err := d.Store.EndSession(ctx, storage.EndParams{
			SessionID:     sessionID,
			RequireStatus: []models.SessionStatus{s.Status},
			LeavingUserID: userID,
			SystemMessage: msg,
			At:            d.Now(),
		})
		if errors.Is(err, storage.ErrConditionFailed) {
			continue
		}
		if err != nil {
			return fmt.Errorf("end session %s: %w", sessionID, err)
		}

		if s.Status == models.StatusActive {
			d.notifyOthers(ctx, ended, userID, EventEnded, EndedPayload{
				SessionID: sessionID,
				Reason:    EndReasonLeft,
				Message:   d.text(localization.KeyPartnerLeft),
			})
		}
		d.Metrics.end(ctx, EndReasonLeft)
		d.Log.Info("Chat ended", zap.String("session_id", sessionID), zap.String("user_id", userID))
		return nil
	}
	return fmt.Errorf("end session %s: status kept changing", sessionID)
}

// SkipPartner ends the active session and immediately starts waiting for
// someone new on the same topic. The new session is created directly; the
// skipped partner is never offered again by this call.
func (l *Lifecycle) SkipPartner(ctx context.Context, sessionID, userID string) (SessionSummary, error) {
	d := l.deps
	s, err := loadForParticipant(ctx, d, sessionID, userID)
	if err != nil {
		return SessionSummary{}, err
	}
	if s.Status != models.StatusActive {
		return SessionSummary{}, invalidState(sessionID, "only an active chat can be skipped")
	}

	msg := d.systemMessage(sessionID, localization.KeyChatSkipped)
	ended, err := d.Store.EndSession(ctx, storage.EndParams{
		SessionID:     sessionID,
		RequireStatus: []models.SessionStatus{models.StatusActive},
		LeavingUserID: userID,
		SystemMessage: &msg,
		At:            d.Now(),
	})
	if errors.Is(err, storage.ErrConditionFailed) {
		return SessionSummary{}, invalidState(sessionID, "only an active chat can be skipped")
	}
	if err != nil {
		return SessionSummary{}, fmt.Errorf("end session %s: %w", sessionID, err)
	}
	d.notifyOthers(ctx, ended, userID, EventEnded, EndedPayload{
		SessionID: sessionID,
		Reason:    EndReasonSkipped,
		Message:   d.text(localization.KeyPartnerLeft),
	})
	d.Metrics.end(ctx, EndReasonSkipped)

	me := *s.Participant(userID)
	next, err := l.matcher.createWaitingSession(ctx, me, s.Topic, localization.KeyLookingForNewPartner)
	if err != nil {
		return SessionSummary{}, err
	}
	d.Log.Info("Partner skipped",
		zap.String("session_id", sessionID),
		zap.String("next_session_id", next.SessionID),
		zap.String("user_id", userID))
	return summarize(next, userID, false), nil
}

// ReportSession files a complaint against the other participant, attaching the
// latest messages. Ended sessions can be reported too.
func (l *Lifecycle) ReportSession(ctx context.Context, sessionID, reporterID string, reason models.ReportReason, description string) error {
	d := l.deps
	if !reason.Valid() {
		return validationf("invalid report reason %q", reason)
	}
	description = strings.TrimSpace(description)
	if n := utf8.RuneCountInString(description); n < MinReportDescription || n > MaxReportDescription {
		return validationf("description must be between %d and %d characters", MinReportDescription, MaxReportDescription)
	}

	s, err := loadForParticipant(ctx, d, sessionID, reporterID)
	if err != nil {
		return err
	}
	reported := s.Partner(reporterID)
	if reported == nil {
		return invalidState(sessionID, "there is nobody to report in this chat")
	}

	transcript, err := d.Store.ListLatestMessages(ctx, sessionID, d.Settings.TranscriptSize)
	if err != nil {
		// a report without context is still worth filing
		d.Log.Warn("Failed to load report transcript", zap.String("session_id", sessionID), zap.Error(err))
		transcript = nil
	}

	err = d.Reporter.FileReport(ctx, models.ReportRequest{
		SessionID:      sessionID,
		ReporterID:     reporterID,
		ReportedUserID: reported.UserID,
		Reason:         reason,
		Description:    description,
		Transcript:     transcript,
	})
	if err != nil {
		return fmt.Errorf("file report for %s: %w", sessionID, err)
	}
	d.Metrics.report(ctx, string(reason))
	d.Log.Info("Session reported",
		zap.String("session_id", sessionID),
		zap.String("reporter_id", reporterID),
		zap.String("reason", string(reason)))
	return nil
}

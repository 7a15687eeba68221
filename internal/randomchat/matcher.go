package randomchat

import (
	"context"
	"errors"
	"fmt"

	"topicchat/backend/internal/localization"
	"topicchat/backend/internal/models"
	"topicchat/backend/internal/storage"

	"go.uber.org/zap"
)

// Matcher pairs searchers. There is no in-memory queue: waiting users are
// searching sessions in the store, and every pairing is a conditional update
// that only one caller can win.
type Matcher struct {
	deps *Deps
}

// StartSearch puts userID into a session about topic.
//
// An open searching session is returned as is. An active session is a conflict
// unless it has been idle for longer than StaleAfter, in which case it is ended
// and the partner is told. Otherwise the user joins the oldest searcher on the
// same topic, or, failing that, anyone who has waited longer than
// FallbackAfter. When nobody is waiting a new searching session is created.
func (m *Matcher) StartSearch(ctx context.Context, userID string, topic models.Topic, isAnonymous bool) (SessionSummary, error) {
	d := m.deps
	if userID == "" {
		return SessionSummary{}, validationf("user id is required")
	}
	if !topic.Valid() {
		return SessionSummary{}, validationf("invalid topic %q", topic)
	}
	d.Metrics.search(ctx, string(topic))

	// 1. Already searching or chatting?
	existing, err := d.Store.FindOpenSessionForUser(ctx, userID)
	switch {
	case err == nil:
		if existing.Status == models.StatusSearching {
			return summarize(existing, userID, false), nil
		}
		if err := m.reapStale(ctx, existing, userID); err != nil {
			return SessionSummary{}, err
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return SessionSummary{}, fmt.Errorf("find open session: %w", err)
	}

	me := models.Participant{UserID: userID, IsAnonymous: isAnonymous}

	// 2. Someone waiting on the same topic.
	joined, fallback, err := m.tryJoin(ctx, topic, storage.WaitingFilter{Topic: topic, ExcludeUserID: userID}, me)
	if err != nil {
		return SessionSummary{}, err
	}
	if joined != nil {
		return summarize(joined, userID, fallback), nil
	}

	// 3. Someone who has waited long enough to accept any topic.
	filter := storage.WaitingFilter{
		StartedBefore: d.Now().Add(-d.Settings.FallbackAfter),
		ExcludeUserID: userID,
	}
	joined, fallback, err = m.tryJoin(ctx, topic, filter, me)
	if err != nil {
		return SessionSummary{}, err
	}
	if joined != nil {
		return summarize(joined, userID, fallback), nil
	}

	// 4. Nobody. Wait for a partner.
	created, err := m.createWaitingSession(ctx, me, topic, localization.KeyLookingForPartner)
	if err != nil {
		return SessionSummary{}, err
	}
	settled, err := m.settle(ctx, created, userID)
	if err != nil {
		return SessionSummary{}, err
	}
	return summarize(settled, userID, false), nil
}

// reapStale ends an idle active session of userID or reports a conflict.
func (m *Matcher) reapStale(ctx context.Context, s *models.ChatSession, userID string) error {
	d := m.deps
	now := d.Now()
	idleSince := now.Add(-d.Settings.StaleAfter)
	if !s.UpdatedAt.Before(idleSince) {
		return &Error{Kind: KindConflict, Message: "you are already in an active chat", SessionID: s.SessionID}
	}

	msg := d.systemMessage(s.SessionID, localization.KeyChatInactive)
	ended, err := d.Store.EndSession(ctx, storage.EndParams{
		SessionID:     s.SessionID,
		RequireStatus: []models.SessionStatus{models.StatusActive},
		IdleSince:     idleSince,
		SystemMessage: &msg,
		At:            now,
	})
	if errors.Is(err, storage.ErrConditionFailed) {
		// Someone else touched it first. Ended is fine, fresh activity is not.
		current, getErr := d.Store.GetSession(ctx, s.SessionID)
		if getErr != nil {
			return fmt.Errorf("reload session %s: %w", s.SessionID, getErr)
		}
		if current.Status == models.StatusEnded {
			return nil
		}
		return &Error{Kind: KindConflict, Message: "you are already in an active chat", SessionID: s.SessionID}
	}
	if err != nil {
		return fmt.Errorf("end stale session %s: %w", s.SessionID, err)
	}

	d.Log.Info("Ended stale session",
		zap.String("session_id", s.SessionID),
		zap.String("user_id", userID),
		zap.Time("last_activity", s.UpdatedAt))
	d.Metrics.end(ctx, EndReasonInactive)
	d.notifyOthers(ctx, ended, userID, EventEnded, EndedPayload{
		SessionID: ended.SessionID,
		Reason:    EndReasonInactive,
		Message:   d.text(localization.KeyChatInactive),
	})
	return nil
}

// tryJoin joins the oldest waiting session matching filter. A lost race is
// reported as no match.
func (m *Matcher) tryJoin(ctx context.Context, topic models.Topic, filter storage.WaitingFilter, me models.Participant) (*models.ChatSession, bool, error) {
	d := m.deps
	candidate, err := d.Store.FindWaitingSession(ctx, filter)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find waiting session: %w", err)
	}

	fallback := candidate.Topic != topic
	msg := d.systemMessage(candidate.SessionID, localization.KeyPartnerFound)
	if fallback {
		msg = d.systemMessage(candidate.SessionID, localization.KeyPartnerFoundFallback, candidate.Topic)
	}

	now := d.Now()
	me.JoinedAt = now
	joined, err := d.Store.JoinWaitingSession(ctx, storage.JoinParams{
		SessionID:     candidate.SessionID,
		Participant:   me,
		SystemMessage: msg,
		At:            now,
	})
	if errors.Is(err, storage.ErrConditionFailed) {
		d.Log.Debug("Lost the race for a waiting session",
			zap.String("session_id", candidate.SessionID),
			zap.String("user_id", me.UserID))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("join session %s: %w", candidate.SessionID, err)
	}

	how := "topic"
	if fallback {
		how = "fallback"
	}
	m.announceMatch(ctx, joined, fallback, how)
	return joined, fallback, nil
}

// createWaitingSession stores a new searching session owned by me.
func (m *Matcher) createWaitingSession(ctx context.Context, me models.Participant, topic models.Topic, greetingKey string) (*models.ChatSession, error) {
	d := m.deps
	now := d.Now()
	id := d.NewID()
	me.JoinedAt = now
	me.LeftAt = nil

	session := &models.ChatSession{
		SessionID:    id,
		Topic:        topic,
		Status:       models.StatusSearching,
		IsAnonymous:  me.IsAnonymous,
		StartedAt:    now,
		UpdatedAt:    now,
		Participants: []models.Participant{me},
		Messages:     []models.ChatMessage{d.systemMessage(id, greetingKey, topic)},
	}
	if err := d.Store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	d.Log.Info("Created waiting session",
		zap.String("session_id", id),
		zap.String("user_id", me.UserID),
		zap.String("topic", string(topic)))
	return session, nil
}

// settle closes the window where two searchers on the same topic both found
// nobody and both created a session. The younger session is folded into the
// older one, so whoever runs this first pairs them and the other caller finds
// itself already matched.
func (m *Matcher) settle(ctx context.Context, mine *models.ChatSession, userID string) (*models.ChatSession, error) {
	d := m.deps
	for attempt := 0; attempt < d.Settings.SettleAttempts; attempt++ {
		other, err := d.Store.FindWaitingSession(ctx, storage.WaitingFilter{
			Topic:            mine.Topic,
			ExcludeUserID:    userID,
			ExcludeSessionID: mine.SessionID,
		})
		if errors.Is(err, storage.ErrNotFound) {
			return mine, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find concurrent searcher: %w", err)
		}

		from, into := mine, other
		if mine.OlderThan(other) {
			from, into = other, mine
		}
		joiner := *from.Owner()
		now := d.Now()
		joiner.JoinedAt = now

		merged, err := d.Store.MergeWaitingSessions(ctx, storage.MergeParams{
			FromSessionID: from.SessionID,
			IntoSessionID: into.SessionID,
			Joiner:        joiner,
			SystemMessage: d.systemMessage(into.SessionID, localization.KeyPartnerFound),
			At:            now,
		})
		if err == nil {
			m.announceMatch(ctx, merged, false, "settle")
			return merged, nil
		}
		if !errors.Is(err, storage.ErrConditionFailed) {
			return nil, fmt.Errorf("merge sessions %s into %s: %w", from.SessionID, into.SessionID, err)
		}

		// Somebody moved first. Find out where that left us.
		current, err := d.Store.FindOpenSessionForUser(ctx, userID)
		if errors.Is(err, storage.ErrNotFound) {
			// our session was ended under us, e.g. from another tab
			return d.Store.GetSession(ctx, mine.SessionID)
		}
		if err != nil {
			return nil, fmt.Errorf("reload open session: %w", err)
		}
		if current.Status == models.StatusActive {
			return current, nil
		}
		mine = current
	}
	d.Log.Warn("Gave up settling waiting session",
		zap.String("session_id", mine.SessionID),
		zap.Int("attempts", d.Settings.SettleAttempts))
	return mine, nil
}

// announceMatch tells both sides who they are talking to.
func (m *Matcher) announceMatch(ctx context.Context, s *models.ChatSession, fallback bool, how string) {
	d := m.deps
	for _, p := range s.Participants {
		d.Notifier.Emit(ctx, p.UserID, EventPartnerFound, PartnerFoundPayload{
			SessionID: s.SessionID,
			Topic:     s.Topic,
			Fallback:  fallback,
			Partner:   partnerView(s.Partner(p.UserID)),
		})
	}
	d.Metrics.match(ctx, how)
	d.Log.Info("Match found",
		zap.String("session_id", s.SessionID),
		zap.String("topic", string(s.Topic)),
		zap.String("kind", how))
}

package storage_test

import (
	"context"
	"testing"
	"time"

	"topicchat/backend/internal/models"
	"topicchat/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newSQLiteStore(t *testing.T) storage.Storage {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, storage.AutoMigrate(db))
	return storage.NewStorageService(db, zap.NewNop())
}

func newMemoryStore(t *testing.T) storage.Storage {
	return storage.NewMemoryStore()
}

func forEachStore(t *testing.T, fn func(t *testing.T, s storage.Storage)) {
	stores := map[string]func(*testing.T) storage.Storage{
		"memory": newMemoryStore,
		"gorm":   newSQLiteStore,
	}
	for name, factory := range stores {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func waitingSession(id, userID string, topic models.Topic, startedAt time.Time) *models.ChatSession {
	return &models.ChatSession{
		SessionID:   id,
		Topic:       topic,
		Status:      models.StatusSearching,
		IsAnonymous: true,
		StartedAt:   startedAt,
		UpdatedAt:   startedAt,
		Participants: []models.Participant{
			{UserID: userID, IsAnonymous: true, JoinedAt: startedAt},
		},
		Messages: []models.ChatMessage{
			models.SystemMessage(id, "Looking for someone interested in "+string(topic)+"...", startedAt),
		},
	}
}

func join(t *testing.T, s storage.Storage, sessionID, userID string, at time.Time) *models.ChatSession {
	t.Helper()
	session, err := s.JoinWaitingSession(context.Background(), storage.JoinParams{
		SessionID:     sessionID,
		Participant:   models.Participant{UserID: userID, IsAnonymous: true, JoinedAt: at},
		SystemMessage: models.SystemMessage(sessionID, "Partner found!", at),
		At:            at,
	})
	require.NoError(t, err)
	return session
}

func TestStore_CreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		session := waitingSession("chat_1", "user_A", models.TopicBooks, t0)
		require.NoError(t, s.CreateSession(ctx, session))

		got, err := s.GetSession(ctx, "chat_1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusSearching, got.Status)
		assert.Equal(t, models.TopicBooks, got.Topic)
		require.Len(t, got.Participants, 1)
		assert.Equal(t, "user_A", got.Participants[0].UserID)
		assert.Nil(t, got.EndedAt)

		messages, err := s.ListMessages(ctx, "chat_1", storage.MessagePage{})
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.True(t, messages[0].IsSystem)
		assert.Nil(t, messages[0].SenderID)

		_, err = s.GetSession(ctx, "chat_missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestStore_FindOpenSessionForUser(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_1", "user_A", models.TopicBooks, t0)))

		got, err := s.FindOpenSessionForUser(ctx, "user_A")
		require.NoError(t, err)
		assert.Equal(t, "chat_1", got.SessionID)

		_, err = s.FindOpenSessionForUser(ctx, "user_B")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = s.EndSession(ctx, storage.EndParams{
			SessionID:     "chat_1",
			RequireStatus: []models.SessionStatus{models.StatusSearching},
			LeavingUserID: "user_A",
			At:            t0.Add(time.Second),
		})
		require.NoError(t, err)

		_, err = s.FindOpenSessionForUser(ctx, "user_A")
		assert.ErrorIs(t, err, storage.ErrNotFound, "ended sessions are not open")
	})
}

func TestStore_FindWaitingSession(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_movies", "user_A", models.TopicMovies, t0)))
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_books_new", "user_B", models.TopicBooks, t0.Add(20*time.Second))))
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_books_old", "user_C", models.TopicBooks, t0.Add(10*time.Second))))

		got, err := s.FindWaitingSession(ctx, storage.WaitingFilter{Topic: models.TopicBooks, ExcludeUserID: "user_X"})
		require.NoError(t, err)
		assert.Equal(t, "chat_books_old", got.SessionID, "oldest waiting session first")

		got, err = s.FindWaitingSession(ctx, storage.WaitingFilter{Topic: models.TopicBooks, ExcludeUserID: "user_C"})
		require.NoError(t, err)
		assert.Equal(t, "chat_books_new", got.SessionID, "own session is excluded")

		got, err = s.FindWaitingSession(ctx, storage.WaitingFilter{Topic: models.TopicBooks, ExcludeSessionID: "chat_books_old"})
		require.NoError(t, err)
		assert.Equal(t, "chat_books_new", got.SessionID)

		got, err = s.FindWaitingSession(ctx, storage.WaitingFilter{StartedBefore: t0.Add(5 * time.Second)})
		require.NoError(t, err)
		assert.Equal(t, "chat_movies", got.SessionID)

		_, err = s.FindWaitingSession(ctx, storage.WaitingFilter{Topic: models.TopicArt})
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = s.FindWaitingSession(ctx, storage.WaitingFilter{StartedBefore: t0})
		assert.ErrorIs(t, err, storage.ErrNotFound, "StartedBefore is strict")
	})
}

// TestStore_JoinIsConditional checks the compare-and-swap guard: only the first joiner wins.
func TestStore_JoinIsConditional(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_1", "user_A", models.TopicBooks, t0)))

		session := join(t, s, "chat_1", "user_B", t0.Add(time.Second))
		assert.Equal(t, models.StatusActive, session.Status)
		require.Len(t, session.Participants, 2)
		assert.Equal(t, "user_A", session.Participants[0].UserID)
		assert.Equal(t, "user_B", session.Participants[1].UserID)

		_, err := s.JoinWaitingSession(ctx, storage.JoinParams{
			SessionID:     "chat_1",
			Participant:   models.Participant{UserID: "user_C", JoinedAt: t0},
			SystemMessage: models.SystemMessage("chat_1", "Partner found!", t0),
			At:            t0.Add(2 * time.Second),
		})
		assert.ErrorIs(t, err, storage.ErrConditionFailed)

		got, err := s.GetSession(ctx, "chat_1")
		require.NoError(t, err)
		assert.Len(t, got.Participants, 2, "a lost race never adds a third participant")

		_, err = s.JoinWaitingSession(ctx, storage.JoinParams{SessionID: "chat_missing", At: t0})
		assert.ErrorIs(t, err, storage.ErrConditionFailed)
	})
}

func TestStore_MergeWaitingSessions(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_old", "user_A", models.TopicBooks, t0)))
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_new", "user_B", models.TopicBooks, t0.Add(time.Second))))

		merged, err := s.MergeWaitingSessions(ctx, storage.MergeParams{
			FromSessionID: "chat_new",
			IntoSessionID: "chat_old",
			Joiner:        models.Participant{UserID: "user_B", IsAnonymous: true, JoinedAt: t0.Add(2 * time.Second)},
			SystemMessage: models.SystemMessage("chat_old", "Partner found!", t0.Add(2*time.Second)),
			At:            t0.Add(2 * time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, merged.Status)
		require.Len(t, merged.Participants, 2)
		assert.Equal(t, "user_B", merged.Participants[1].UserID)

		from, err := s.GetSession(ctx, "chat_new")
		require.NoError(t, err)
		assert.Equal(t, models.StatusEnded, from.Status)
		assert.NotNil(t, from.EndedAt)

		open, err := s.FindOpenSessionForUser(ctx, "user_B")
		require.NoError(t, err)
		assert.Equal(t, "chat_old", open.SessionID)

		_, err = s.MergeWaitingSessions(ctx, storage.MergeParams{
			FromSessionID: "chat_new",
			IntoSessionID: "chat_old",
			Joiner:        models.Participant{UserID: "user_B"},
			At:            t0.Add(3 * time.Second),
		})
		assert.ErrorIs(t, err, storage.ErrConditionFailed)
	})
}

// TestStore_MergeRollsBackWhenTargetTaken makes sure a failed merge leaves the source session waiting.
func TestStore_MergeRollsBackWhenTargetTaken(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_old", "user_A", models.TopicBooks, t0)))
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_new", "user_B", models.TopicBooks, t0.Add(time.Second))))
		join(t, s, "chat_old", "user_C", t0.Add(time.Second))

		_, err := s.MergeWaitingSessions(ctx, storage.MergeParams{
			FromSessionID: "chat_new",
			IntoSessionID: "chat_old",
			Joiner:        models.Participant{UserID: "user_B", JoinedAt: t0},
			SystemMessage: models.SystemMessage("chat_old", "Partner found!", t0),
			At:            t0.Add(2 * time.Second),
		})
		assert.ErrorIs(t, err, storage.ErrConditionFailed)

		from, err := s.GetSession(ctx, "chat_new")
		require.NoError(t, err)
		assert.Equal(t, models.StatusSearching, from.Status)
	})
}

func TestStore_AppendMessage(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_1", "user_A", models.TopicBooks, t0)))

		early := models.UserMessage("chat_1", "user_A", "anyone?", t0.Add(time.Second))
		assert.ErrorIs(t, s.AppendMessage(ctx, &early), storage.ErrConditionFailed, "searching sessions take no messages")

		join(t, s, "chat_1", "user_B", t0.Add(time.Second))

		first := models.UserMessage("chat_1", "user_A", "hi", t0.Add(2*time.Second))
		second := models.UserMessage("chat_1", "user_B", "hello", t0.Add(3*time.Second))
		require.NoError(t, s.AppendMessage(ctx, &first))
		require.NoError(t, s.AppendMessage(ctx, &second))
		assert.Greater(t, second.ID, first.ID)

		got, err := s.GetSession(ctx, "chat_1")
		require.NoError(t, err)
		assert.WithinDuration(t, t0.Add(3*time.Second), got.UpdatedAt, time.Millisecond)

		messages, err := s.ListMessages(ctx, "chat_1", storage.MessagePage{})
		require.NoError(t, err)
		require.Len(t, messages, 4)
		assert.Equal(t, "hi", messages[2].Content)
		assert.Equal(t, "hello", messages[3].Content)
		require.NotNil(t, messages[3].SenderID)
		assert.Equal(t, "user_B", *messages[3].SenderID)
	})
}

func TestStore_EndSession(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_1", "user_A", models.TopicBooks, t0)))
		join(t, s, "chat_1", "user_B", t0.Add(time.Second))

		_, err := s.EndSession(ctx, storage.EndParams{
			SessionID:     "chat_1",
			RequireStatus: []models.SessionStatus{models.StatusSearching},
			At:            t0.Add(2 * time.Second),
		})
		assert.ErrorIs(t, err, storage.ErrConditionFailed, "guard on status")

		msg := models.SystemMessage("chat_1", "Chat ended.", t0.Add(2*time.Second))
		ended, err := s.EndSession(ctx, storage.EndParams{
			SessionID:     "chat_1",
			RequireStatus: []models.SessionStatus{models.StatusSearching, models.StatusActive},
			LeavingUserID: "user_B",
			SystemMessage: &msg,
			At:            t0.Add(2 * time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusEnded, ended.Status)
		require.NotNil(t, ended.EndedAt)
		assert.Nil(t, ended.Participant("user_A").LeftAt)
		assert.NotNil(t, ended.Participant("user_B").LeftAt)

		_, err = s.EndSession(ctx, storage.EndParams{
			SessionID:     "chat_1",
			RequireStatus: []models.SessionStatus{models.StatusSearching, models.StatusActive},
			At:            t0.Add(3 * time.Second),
		})
		assert.ErrorIs(t, err, storage.ErrConditionFailed, "ended is terminal")

		latest, err := s.ListLatestMessages(ctx, "chat_1", 1)
		require.NoError(t, err)
		require.Len(t, latest, 1)
		assert.Equal(t, "Chat ended.", latest[0].Content)
	})
}

func TestStore_MessagePagination(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_1", "user_A", models.TopicBooks, t0)))
		join(t, s, "chat_1", "user_B", t0)
		for i := 0; i < 5; i++ {
			msg := models.UserMessage("chat_1", "user_A", string(rune('a'+i)), t0.Add(time.Duration(i)*time.Second))
			require.NoError(t, s.AppendMessage(ctx, &msg))
		}

		page, err := s.ListMessages(ctx, "chat_1", storage.MessagePage{Limit: 3})
		require.NoError(t, err)
		require.Len(t, page, 3)

		rest, err := s.ListMessages(ctx, "chat_1", storage.MessagePage{AfterID: page[2].ID, Limit: 10})
		require.NoError(t, err)
		require.Len(t, rest, 4)
		assert.Equal(t, "e", rest[3].Content)

		latest, err := s.ListLatestMessages(ctx, "chat_1", 2)
		require.NoError(t, err)
		require.Len(t, latest, 2)
		assert.Equal(t, "d", latest[0].Content)
		assert.Equal(t, "e", latest[1].Content)
	})
}

func TestStore_ListStaleSessions(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_idle", "user_A", models.TopicBooks, t0)))
		join(t, s, "chat_idle", "user_B", t0)
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_busy", "user_C", models.TopicBooks, t0)))
		join(t, s, "chat_busy", "user_D", t0.Add(10*time.Minute))
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_waiting", "user_E", models.TopicBooks, t0)))

		stale, err := s.ListStaleSessions(ctx, t0.Add(5*time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, "chat_idle", stale[0].SessionID)
	})
}

func TestStore_Complaints(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		c := &models.Complaint{
			ComplaintID:    "complaint_1",
			ReporterID:     "user_A",
			ReportedUserID: "user_B",
			SessionID:      "chat_1",
			Reason:         models.ReasonSpam,
			Description:    "keeps sending links",
		}
		require.NoError(t, s.SaveComplaint(ctx, c))
		assert.Equal(t, models.ComplaintStatusPending, c.Status)

		pending, err := s.ListComplaints(ctx, models.ComplaintStatusPending, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "user_B", pending[0].ReportedUserID)

		reviewed, err := s.ListComplaints(ctx, models.ComplaintStatusReviewed, 10)
		require.NoError(t, err)
		assert.Empty(t, reviewed)
	})
}

func TestStore_EndSessionRespectsIdleSince(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, waitingSession("chat_idle", "user_A", models.TopicArt, t0)))
		join(t, s, "chat_idle", "user_B", t0)

		msg := models.UserMessage("chat_idle", "user_B", "still here", t0.Add(3*time.Minute))
		require.NoError(t, s.AppendMessage(ctx, &msg))

		// the message is newer than the idle cutoff, so the reap must not win
		_, err := s.EndSession(ctx, storage.EndParams{
			SessionID:     "chat_idle",
			RequireStatus: []models.SessionStatus{models.StatusActive},
			IdleSince:     t0.Add(2 * time.Minute),
			At:            t0.Add(4 * time.Minute),
		})
		assert.ErrorIs(t, err, storage.ErrConditionFailed)

		ended, err := s.EndSession(ctx, storage.EndParams{
			SessionID:     "chat_idle",
			RequireStatus: []models.SessionStatus{models.StatusActive},
			IdleSince:     t0.Add(5 * time.Minute),
			At:            t0.Add(6 * time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusEnded, ended.Status)
	})
}

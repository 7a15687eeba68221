package randomchat_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"topicchat/backend/internal/models"
	"topicchat/backend/internal/randomchat"
	"topicchat/backend/internal/storage"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordedEvent struct {
	UserID  string
	Name    string
	Payload any
}

// recordingNotifier keeps every emitted event for later inspection.
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Emit(_ context.Context, userID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{UserID: userID, Name: event, Payload: payload})
}

func (n *recordingNotifier) For(userID string) []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recordedEvent
	for _, e := range n.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) Named(userID, name string) []recordedEvent {
	var out []recordedEvent
	for _, e := range n.For(userID) {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockReporter is a mock implementation of randomchat.Reporter
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) FileReport(ctx context.Context, report models.ReportRequest) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

type fixture struct {
	svc      *randomchat.Service
	store    storage.Storage
	notifier *recordingNotifier
	clock    *fakeClock
	reporter *MockReporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, storage.NewMemoryStore())
}

// newSQLiteStore opens the gorm store over an in-memory SQLite database.
func newSQLiteStore(t *testing.T) storage.Storage {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection, otherwise every new one sees an empty database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, storage.AutoMigrate(db))
	return storage.NewStorageService(db, zap.NewNop())
}

func newFixtureWithStore(t *testing.T, store storage.Storage) *fixture {
	t.Helper()
	f := &fixture{
		store:    store,
		notifier: &recordingNotifier{},
		clock:    &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		reporter: new(MockReporter),
	}
	var seq atomic.Int64
	f.svc = randomchat.NewService(randomchat.Deps{
		Store:    f.store,
		Notifier: f.notifier,
		Reporter: f.reporter,
		Now:      f.clock.Now,
		NewID: func() string {
			return fmt.Sprintf("chat_%03d", seq.Add(1))
		},
	})
	return f
}

// pair matches a and b on technology and returns the session id.
func (f *fixture) pair(t *testing.T, a, b string) string {
	t.Helper()
	ctx := context.Background()
	first, err := f.svc.StartSearch(ctx, a, models.TopicTechnology, true)
	require.NoError(t, err)
	require.Equal(t, models.StatusSearching, first.Status)

	second, err := f.svc.StartSearch(ctx, b, models.TopicTechnology, false)
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, second.Status)
	require.Equal(t, first.SessionID, second.SessionID)
	return second.SessionID
}

func (f *fixture) messages(t *testing.T, sessionID string) []models.ChatMessage {
	t.Helper()
	msgs, err := f.store.ListMessages(context.Background(), sessionID, storage.MessagePage{Limit: storage.MaxMessagePageSize})
	require.NoError(t, err)
	return msgs
}

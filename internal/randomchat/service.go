// Package randomchat pairs users who want to talk about the same topic, relays
// their messages and ends, skips and reports sessions. The session store is the
// source of truth; connected clients learn about changes through a Notifier.
package randomchat

import (
	"context"
	"time"

	"topicchat/backend/internal/config"
	"topicchat/backend/internal/localization"
	"topicchat/backend/internal/models"
	"topicchat/backend/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier pushes a named event to every live connection of a user.
// Delivery is best effort: Emit never blocks on slow clients and never fails
// the operation that triggered it.
type Notifier interface {
	Emit(ctx context.Context, userID, event string, payload any)
}

// Reporter files a moderation report built from a chat session.
type Reporter interface {
	FileReport(ctx context.Context, report models.ReportRequest) error
}

// Settings tunes matching and reporting.
type Settings struct {
	// StaleAfter is how long an active session may stay idle before a new
	// search by one of its participants ends it.
	StaleAfter time.Duration
	// FallbackAfter is how long a searcher waits before anyone may join regardless of topic.
	FallbackAfter time.Duration
	// SettleAttempts bounds the merge loop after a waiting session is created.
	SettleAttempts int
	// TranscriptSize is the number of trailing messages attached to a report.
	TranscriptSize int
	// Locale picks the language of system messages.
	Locale string
}

// Deps are the collaborators shared by the Matcher, Relay and Lifecycle.
type Deps struct {
	Store    storage.SessionStore
	Notifier Notifier
	Reporter Reporter
	Texts    *localization.Localizer
	Metrics  *Metrics
	Log      *zap.Logger
	Settings Settings

	// Now and NewID are replaced in tests.
	Now   func() time.Time
	NewID func() string
}

// NewSessionID returns an opaque session identifier.
func NewSessionID() string {
	return "chat_" + uuid.NewString()
}

func (d Deps) withDefaults() *Deps {
	if d.Notifier == nil {
		d.Notifier = discardNotifier{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = noopMetrics()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = NewSessionID
	}
	if d.Texts == nil {
		texts, err := localization.Default()
		if err != nil {
			// the catalogs are embedded, so this only fires on a broken build
			panic(err)
		}
		d.Texts = texts
	}
	if d.Reporter == nil {
		d.Reporter = logReporter{log: d.Log}
	}
	if d.Settings.StaleAfter <= 0 {
		d.Settings.StaleAfter = config.DefaultStaleAfter
	}
	if d.Settings.FallbackAfter <= 0 {
		d.Settings.FallbackAfter = config.DefaultFallbackAfter
	}
	if d.Settings.SettleAttempts <= 0 {
		d.Settings.SettleAttempts = config.DefaultSettleAttempts
	}
	if d.Settings.TranscriptSize <= 0 {
		d.Settings.TranscriptSize = config.ReportTranscriptSize
	}
	if d.Settings.Locale == "" {
		d.Settings.Locale = localization.DefaultLanguage
	}
	return &d
}

func (d *Deps) text(key string, args ...any) string {
	if len(args) == 0 {
		return d.Texts.GetString(d.Settings.Locale, key)
	}
	return d.Texts.Format(d.Settings.Locale, key, args...)
}

func (d *Deps) systemMessage(sessionID, key string, args ...any) models.ChatMessage {
	return models.SystemMessage(sessionID, d.text(key, args...), d.Now())
}

// notifyOthers emits event to every participant except userID.
func (d *Deps) notifyOthers(ctx context.Context, s *models.ChatSession, userID, event string, payload any) {
	for _, p := range s.OtherParticipants(userID) {
		d.Notifier.Emit(ctx, p.UserID, event, payload)
	}
}

type discardNotifier struct{}

func (discardNotifier) Emit(context.Context, string, string, any) {}

type logReporter struct{ log *zap.Logger }

func (r logReporter) FileReport(_ context.Context, report models.ReportRequest) error {
	r.log.Warn("no reporter configured, report dropped",
		zap.String("session_id", report.SessionID),
		zap.String("reason", string(report.Reason)))
	return nil
}

// Service bundles the three halves of the random chat.
type Service struct {
	*Matcher
	*Relay
	*Lifecycle
}

// NewService wires a Matcher, Relay and Lifecycle over the same dependencies.
func NewService(deps Deps) *Service {
	d := deps.withDefaults()
	matcher := &Matcher{deps: d}
	return &Service{
		Matcher:   matcher,
		Relay:     &Relay{deps: d},
		Lifecycle: &Lifecycle{deps: d, matcher: matcher},
	}
}

package randomchat_test

import (
	"context"
	"strings"
	"testing"

	"topicchat/backend/internal/models"
	"topicchat/backend/internal/randomchat"
	"topicchat/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage_DeliversToPartner(t *testing.T) {
	f := newFixture(t)
	sessionID := f.pair(t, "user_A", "user_B")

	msg, err := f.svc.SendMessage(context.Background(), sessionID, "user_A", "  hi there  ")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, "hi there", msg.Content)
	require.NotNil(t, msg.SenderID)
	assert.Equal(t, "user_A", *msg.SenderID)
	assert.False(t, msg.IsSystem)

	got := f.notifier.Named("user_B", randomchat.EventMessage)
	require.Len(t, got, 1)
	payload := got[0].Payload.(randomchat.MessagePayload)
	assert.Equal(t, sessionID, payload.SessionID)
	assert.Equal(t, "hi there", payload.Message.Content)
	assert.Empty(t, f.notifier.Named("user_A", randomchat.EventMessage))

	msgs := f.messages(t, sessionID)
	assert.Equal(t, "hi there", msgs[len(msgs)-1].Content)
}

func TestSendMessage_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	active := f.pair(t, "user_A", "user_B")
	waiting, err := f.svc.StartSearch(ctx, "user_C", models.TopicFood, true)
	require.NoError(t, err)

	tests := []struct {
		name      string
		sessionID string
		sender    string
		content   string
		want      error
	}{
		{"empty content", active, "user_A", "", randomchat.ErrValidation},
		{"whitespace only", active, "user_A", " \n\t ", randomchat.ErrValidation},
		{"too long", active, "user_A", strings.Repeat("я", models.MaxMessageLength+1), randomchat.ErrValidation},
		{"unknown session", "chat_missing", "user_A", "hello", randomchat.ErrNotFound},
		{"unknown session with empty content", "chat_missing", "user_A", "", randomchat.ErrNotFound},
		{"not a participant", active, "user_C", "hello", randomchat.ErrForbidden},
		{"not a participant with empty content", active, "user_C", "  ", randomchat.ErrForbidden},
		{"still searching", waiting.SessionID, "user_C", "hello", randomchat.ErrInvalidState},
		{"still searching with empty content", waiting.SessionID, "user_C", "", randomchat.ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(ctx, tt.sessionID, tt.sender, tt.content)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSendMessage_MaxLengthCountsCharacters(t *testing.T) {
	f := newFixture(t)
	sessionID := f.pair(t, "user_A", "user_B")

	_, err := f.svc.SendMessage(context.Background(), sessionID, "user_A", strings.Repeat("я", models.MaxMessageLength))
	assert.NoError(t, err)
}

func TestSendMessage_AfterEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.pair(t, "user_A", "user_B")
	require.NoError(t, f.svc.EndChat(ctx, sessionID, "user_B"))

	_, err := f.svc.SendMessage(ctx, sessionID, "user_A", "anyone?")
	assert.ErrorIs(t, err, randomchat.ErrInvalidState)
}

func TestGetSession_Pages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.pair(t, "user_A", "user_B")
	for _, text := range []string{"one", "two", "three"} {
		_, err := f.svc.SendMessage(ctx, sessionID, "user_A", text)
		require.NoError(t, err)
	}

	// 2 system messages + 3 user messages
	first, err := f.svc.GetSession(ctx, sessionID, "user_B", storage.MessagePage{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, first.Status)
	require.Len(t, first.Messages, 3)
	require.NotZero(t, first.NextCursor)
	require.NotNil(t, first.Partner)
	assert.True(t, first.Partner.IsAnonymous)

	second, err := f.svc.GetSession(ctx, sessionID, "user_B", storage.MessagePage{AfterID: first.NextCursor, Limit: 3})
	require.NoError(t, err)
	require.Len(t, second.Messages, 2)
	assert.Equal(t, "two", second.Messages[0].Content)
	assert.Equal(t, "three", second.Messages[1].Content)
	assert.Zero(t, second.NextCursor)

	_, err = f.svc.GetSession(ctx, sessionID, "user_C", storage.MessagePage{})
	assert.ErrorIs(t, err, randomchat.ErrForbidden)
	_, err = f.svc.GetSession(ctx, "chat_missing", "user_A", storage.MessagePage{})
	assert.ErrorIs(t, err, randomchat.ErrNotFound)
}

func TestSetTyping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.pair(t, "user_A", "user_B")

	require.NoError(t, f.svc.SetTyping(ctx, sessionID, "user_A", true))
	require.NoError(t, f.svc.SetTyping(ctx, sessionID, "user_A", false))

	events := f.notifier.For("user_B")
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, randomchat.EventTyping, events[len(events)-2].Name)
	assert.Equal(t, randomchat.EventStoppedTyping, events[len(events)-1].Name)

	assert.ErrorIs(t, f.svc.SetTyping(ctx, sessionID, "user_C", true), randomchat.ErrForbidden)
}

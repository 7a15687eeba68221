package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"topicchat/backend/internal/chathub"
	"topicchat/backend/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Frame types a client may send over the socket.
const (
	frameTyping        = "typing"
	frameStoppedTyping = "stopped_typing"
)

// originChecker allows any origin when allowed is empty. Requests without an
// Origin header (non-browser clients) are always accepted.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket
func (h *Handler) ServeWebSocket(c *gin.Context) {
	anonID := c.GetString(userIDKey)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.Log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := chathub.NewWebSocketClient(anonID, conn, h.Hub, h.handleFrame, h.Log)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}
	client.Run()
}

// handleFrame maps socket frames to relay operations. Failures are only
// logged: the socket has no request/response pairing to report them on.
func (h *Handler) handleFrame(ctx context.Context, userID string, frame models.ClientFrame) {
	var err error
	switch frame.Type {
	case frameTyping:
		err = h.Chat.SetTyping(ctx, frame.SessionID, userID, true)
	case frameStoppedTyping:
		err = h.Chat.SetTyping(ctx, frame.SessionID, userID, false)
	default:
		h.Log.Debug("unknown frame type", zap.String("type", frame.Type), zap.String("user_id", userID))
		return
	}
	if err != nil {
		h.Log.Debug("frame rejected",
			zap.String("type", frame.Type),
			zap.String("session_id", frame.SessionID),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

package chathub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"topicchat/backend/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// SendBuffer is the per-connection event buffer. A client that falls
	// this far behind is disconnected.
	SendBuffer = 64
)

// FrameHandler processes a frame a client sent over its socket.
type FrameHandler func(ctx context.Context, userID string, frame models.ClientFrame)

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	UserID string
	Conn   *websocket.Conn
	Hub    *ManagerService
	Send   chan models.Event
	// OnFrame may be nil, in which case client frames are ignored.
	OnFrame FrameHandler
	Log     *zap.Logger

	closeOnce sync.Once
}

// NewWebSocketClient wraps conn for userID.
func NewWebSocketClient(userID string, conn *websocket.Conn, hub *ManagerService, onFrame FrameHandler, logger *zap.Logger) *WebSocketClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketClient{
		UserID:  userID,
		Conn:    conn,
		Hub:     hub,
		Send:    make(chan models.Event, SendBuffer),
		OnFrame: onFrame,
		Log:     logger.With(zap.String("user_id", userID)),
	}
}

func (c *WebSocketClient) GetUserID() string                   { return c.UserID }
func (c *WebSocketClient) GetSendChannel() chan<- models.Event { return c.Send }

// Run запускає 'pumps' для WebSocket
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close закриває Send канал (що зупинить writePump)
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.Log.Debug("invalid client frame", zap.Error(err))
			continue // Пропускаємо невірне повідомлення
		}
		if c.OnFrame != nil {
			c.OnFrame(context.Background(), c.UserID, frame)
		}
	}
}

// writePump пише події з каналу Send у WebSocket, по одній на кадр.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Канал закрито хабом, закриваємо з'єднання WS
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(evt); err != nil {
				c.Log.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package handler

import (
	"net/http"

	"topicchat/backend/internal/chathub"
	"topicchat/backend/internal/config"
	"topicchat/backend/internal/logger"
	"topicchat/backend/internal/randomchat"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// userIDKey is the gin context key holding the authenticated anonymous id.
const userIDKey = "userID"

// Handler містить посилання на ChatHub та сервіс випадкового чату
type Handler struct {
	Hub  *chathub.ManagerService
	Chat *randomchat.Service
	Auth config.AuthConfig
	Log  *zap.Logger

	upgrader websocket.Upgrader
}

func NewHandler(hub *chathub.ManagerService, chat *randomchat.Service, auth config.AuthConfig, allowedOrigins []string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Hub:  hub,
		Chat: chat,
		Auth: auth,
		Log:  log.Named("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Router builds the gin engine with every route of the service.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(h.Log))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/anonid", h.GetAnonID) // Отримання JWT для AnonID
	r.GET("/ws", h.AuthMiddleware(), h.ServeWebSocket)

	api := r.Group("/api/random-chat", h.AuthMiddleware())
	{
		api.POST("/search", h.StartSearch)
		api.GET("/session/:sessionId", h.GetSession)
		api.POST("/message", h.SendMessage)
		api.POST("/end", h.EndChat)
		api.POST("/skip", h.SkipPartner)
		api.POST("/report", h.ReportSession)
	}
	return r
}

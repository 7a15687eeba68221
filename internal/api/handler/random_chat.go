package handler

import (
	"errors"
	"net/http"
	"strconv"

	"topicchat/backend/internal/models"
	"topicchat/backend/internal/randomchat"
	"topicchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type searchRequest struct {
	Topic models.Topic `json:"topic" binding:"required"`
	// IsAnonymous defaults to true when omitted.
	IsAnonymous *bool `json:"isAnonymous"`
}

type messageRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Content   string `json:"content"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

type reportRequest struct {
	SessionID   string              `json:"sessionId" binding:"required"`
	Reason      models.ReportReason `json:"reason" binding:"required"`
	Description string              `json:"description"`
}

func statusFor(kind randomchat.Kind) int {
	switch kind {
	case randomchat.KindValidation:
		return http.StatusBadRequest
	case randomchat.KindConflict:
		return http.StatusConflict
	case randomchat.KindNotFound:
		return http.StatusNotFound
	case randomchat.KindForbidden:
		return http.StatusForbidden
	case randomchat.KindInvalidState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var rcErr *randomchat.Error
	if errors.As(err, &rcErr) {
		body := gin.H{"message": rcErr.Error()}
		if rcErr.Kind == randomchat.KindConflict && rcErr.SessionID != "" {
			body["sessionId"] = rcErr.SessionID
		}
		c.JSON(statusFor(rcErr.Kind), body)
		return
	}
	h.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
}

// StartSearch handles POST /api/random-chat/search.
func (h *Handler) StartSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	anonymous := true
	if req.IsAnonymous != nil {
		anonymous = *req.IsAnonymous
	}

	sum, err := h.Chat.StartSearch(c.Request.Context(), c.GetString(userIDKey), req.Topic, anonymous)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// GetSession handles GET /api/random-chat/session/:sessionId?afterId=&limit=.
func (h *Handler) GetSession(c *gin.Context) {
	var page storage.MessagePage
	if v := c.Query("afterId"); v != "" {
		afterID, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "afterId must be a non-negative integer"})
			return
		}
		page.AfterID = uint(afterID)
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "limit must be a positive integer"})
			return
		}
		page.Limit = limit
	}

	view, err := h.Chat.GetSession(c.Request.Context(), c.Param("sessionId"), c.GetString(userIDKey), page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SendMessage handles POST /api/random-chat/message.
func (h *Handler) SendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	msg, err := h.Chat.SendMessage(c.Request.Context(), req.SessionID, c.GetString(userIDKey), req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// EndChat handles POST /api/random-chat/end.
func (h *Handler) EndChat(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.Chat.EndChat(c.Request.Context(), req.SessionID, c.GetString(userIDKey)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat ended"})
}

// SkipPartner handles POST /api/random-chat/skip.
func (h *Handler) SkipPartner(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sum, err := h.Chat.SkipPartner(c.Request.Context(), req.SessionID, c.GetString(userIDKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// ReportSession handles POST /api/random-chat/report.
func (h *Handler) ReportSession(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	err := h.Chat.ReportSession(c.Request.Context(), req.SessionID, c.GetString(userIDKey), req.Reason, req.Description)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Report submitted"})
}

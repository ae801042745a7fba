package message

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/app/domain"
	"github.com/parlorchat/parlor/internal/app/middleware"
)

type SendRequest struct {
	ChatroomID uuid.UUID `json:"chatroom_id" binding:"required"`
	Text       string    `json:"text"`
}

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Create handles POST /messages.
func (h *Handler) Create(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chatroom_id is required"})
		return
	}

	msg, err := h.service.Send(c.Request.Context(), userID, req.ChatroomID, req.Text)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// List handles GET /messages with since/chatroom_id/limit/wait query
// parameters. wait=true turns the call into a long poll.
func (h *Handler) List(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var q Query
	var err error
	if raw := c.Query("since"); raw != "" {
		q.Since, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
	}
	if raw := c.Query("chatroom_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chatroom_id"})
			return
		}
		q.ChatroomID = &id
	}
	if raw := c.Query("limit"); raw != "" {
		q.Limit, err = strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
	}
	q.Wait = c.Query("wait") == "true"

	messages, err := h.service.List(c.Request.Context(), userID, q)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

package updates

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/app/middleware"
	"github.com/parlorchat/parlor/internal/app/models"
)

type Handler struct {
	hub             *Hub
	longPollTimeout time.Duration
	logger          *zap.Logger
}

func NewHandler(hub *Hub, longPollTimeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		hub:             hub,
		longPollTimeout: longPollTimeout,
		logger:          logger,
	}
}

// Poll handles GET /updates: returns buffered updates immediately, otherwise
// waits up to the long-poll timeout for the next one. Timeouts answer with
// an empty array.
func (h *Handler) Poll(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	out := h.hub.Next(c.Request.Context(), userID, h.longPollTimeout)
	if out == nil {
		out = []models.Update{}
	}
	c.JSON(http.StatusOK, out)
}

// Clear handles DELETE /updates: drops the caller's buffered updates.
func (h *Handler) Clear(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	h.hub.Drain(userID)
	c.Status(http.StatusNoContent)
}

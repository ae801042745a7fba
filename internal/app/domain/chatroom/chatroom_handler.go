package chatroom

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/app/domain"
	"github.com/parlorchat/parlor/internal/app/middleware"
)

type CreateRequest struct {
	Name string `json:"name" binding:"required"`
}

type RenameRequest struct {
	Name string `json:"name" binding:"required"`
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

// Create handles POST /chatrooms.
func (h *Handler) Create(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	room, err := h.service.Create(c.Request.Context(), userID, req.Name)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// List handles GET /chatrooms: the rooms the caller belongs to.
func (h *Handler) List(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	rooms, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// Get handles GET /chatrooms/:id.
func (h *Handler) Get(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	roomID, ok := domain.ParseID(c, "id")
	if !ok {
		return
	}

	room, err := h.service.Get(c.Request.Context(), userID, roomID)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// Update handles PATCH /chatrooms/:id (rename).
func (h *Handler) Update(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	roomID, ok := domain.ParseID(c, "id")
	if !ok {
		return
	}

	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	room, err := h.service.Rename(c.Request.Context(), userID, roomID, req.Name)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// Delete handles DELETE /chatrooms/:id.
func (h *Handler) Delete(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	roomID, ok := domain.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, roomID); err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

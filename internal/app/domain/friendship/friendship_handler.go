package friendship

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/app/domain"
	"github.com/parlorchat/parlor/internal/app/middleware"
	"github.com/parlorchat/parlor/internal/app/models"
)

type UpdateFriendshipRequest struct {
	Nickname  *string      `json:"nickname"`
	Important *bool        `json:"important"`
	GroupIDs  *[]uuid.UUID `json:"group_ids"`
}

type GroupRequest struct {
	Name string `json:"name" binding:"required"`
}

type BefriendRequest struct {
	TargetID uuid.UUID `json:"target_id" binding:"required"`
	Message  string    `json:"message"`
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

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
	return userID, ok
}

// List handles GET /friendships.
func (h *Handler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	friendships, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, friendships)
}

// Get handles GET /friendships/:id.
func (h *Handler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	friendshipID, ok := domain.ParseID(c, "id")
	if !ok {
		return
	}

	f, err := h.service.Get(c.Request.Context(), userID, friendshipID)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// Update handles PATCH /friendships/:id (nickname, important, group_ids).
func (h *Handler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	friendshipID, ok := domain.ParseID(c, "id")
	if !ok {
		return
	}

	var req UpdateFriendshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	var groupIDs []uuid.UUID
	if req.GroupIDs != nil {
		groupIDs = *req.GroupIDs
		if groupIDs == nil {
			groupIDs = []uuid.UUID{}
		}
	}

	f, err := h.service.Update(c.Request.Context(), userID, friendshipID, req.Nickname, req.Important, groupIDs)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// Delete handles DELETE /friendships/:id.
func (h *Handler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	friendshipID, ok := domain.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, friendshipID); err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateGroup handles POST /friendship-groups.
func (h *Handler) CreateGroup(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	g, err := h.service.CreateGroup(c.Request.Context(), userID, req.Name)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

// ListGroups handles GET /friendship-groups.
func (h *Handler) ListGroups(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	groups, err := h.service.ListGroups(c.Request.Context(), userID)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

// UpdateGroup handles PATCH /friendship-groups/:id (rename).
func (h *Handler) UpdateGroup(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	groupID, ok := domain.ParseID(c, "id")
	if !ok {
		return
	}

	var req GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	g, err := h.service.RenameGroup(c.Request.Context(), userID, groupID, req.Name)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// DeleteGroup handles DELETE /friendship-groups/:id.
func (h *Handler) DeleteGroup(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	groupID, ok := domain.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteGroup(c.Request.Context(), userID, groupID); err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateRequest handles POST /friendship-requests.
func (h *Handler) CreateRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req BefriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_id is required"})
		return
	}

	r, err := h.service.CreateRequest(c.Request.Context(), userID, req.TargetID, req.Message)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// ListRequests handles GET /friendship-requests.
func (h *Handler) ListRequests(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	reqs, err := h.service.ListRequests(c.Request.Context(), userID)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

// AcceptRequest handles POST /friendship-requests/:id/accept.
func (h *Handler) AcceptRequest(c *gin.Context) {
	h.resolveRequest(c, h.service.Accept)
}

// RejectRequest handles POST /friendship-requests/:id/reject.
func (h *Handler) RejectRequest(c *gin.Context) {
	h.resolveRequest(c, h.service.Reject)
}

func (h *Handler) resolveRequest(c *gin.Context, resolve func(ctx context.Context, callerID, requestID uuid.UUID) (*models.FriendshipRequest, error)) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, ok := domain.ParseID(c, "id")
	if !ok {
		return
	}

	req, err := resolve(c.Request.Context(), userID, requestID)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// DeleteRequest handles DELETE /friendship-requests/:id (cancel).
func (h *Handler) DeleteRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, ok := domain.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Cancel(c.Request.Context(), userID, requestID); err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

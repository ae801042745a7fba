package membership

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/app/domain"
	"github.com/parlorchat/parlor/internal/app/middleware"
	"github.com/parlorchat/parlor/internal/app/models"
)

type UpdateRequest struct {
	LastRead *time.Time   `json:"last_read"`
	GroupIDs *[]uuid.UUID `json:"group_ids"`
}

type GroupRequest struct {
	Name string `json:"name" binding:"required"`
}

type JoinRequest struct {
	ChatroomID uuid.UUID `json:"chatroom_id" binding:"required"`
	Message    string    `json:"message"`
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

// List handles GET /memberships, optionally filtered by chatroom_id.
func (h *Handler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var chatroomID *uuid.UUID
	if raw := c.Query("chatroom_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chatroom_id"})
			return
		}
		chatroomID = &id
	}

	memberships, err := h.service.List(c.Request.Context(), userID, chatroomID)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, memberships)
}

// Get handles GET /memberships/:id.
func (h *Handler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	membershipID, ok := domain.ParseID(c, "id")
	if !ok {
		return
	}

	m, err := h.service.Get(c.Request.Context(), userID, membershipID)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Update handles PATCH /memberships/:id (last_read, group_ids).
func (h *Handler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	membershipID, ok := domain.ParseID(c, "id")
	if !ok {
		return
	}

	var req UpdateRequest
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

	m, err := h.service.Update(c.Request.Context(), userID, membershipID, req.LastRead, groupIDs)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Promote handles POST /memberships/:id/promote.
func (h *Handler) Promote(c *gin.Context) {
	h.setManager(c, true)
}

// Demote handles POST /memberships/:id/demote.
func (h *Handler) Demote(c *gin.Context) {
	h.setManager(c, false)
}

func (h *Handler) setManager(c *gin.Context, isManager bool) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	membershipID, ok := domain.ParseID(c, "id")
	if !ok {
		return
	}

	m, err := h.service.SetManager(c.Request.Context(), userID, membershipID, isManager)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Delete handles DELETE /memberships/:id (leave or kick).
func (h *Handler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	membershipID, ok := domain.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, membershipID); err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateGroup handles POST /membership-groups.
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

// ListGroups handles GET /membership-groups.
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

// UpdateGroup handles PATCH /membership-groups/:id (rename).
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

// DeleteGroup handles DELETE /membership-groups/:id.
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

// CreateRequest handles POST /membership-requests.
func (h *Handler) CreateRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chatroom_id is required"})
		return
	}

	r, err := h.service.CreateRequest(c.Request.Context(), userID, req.ChatroomID, req.Message)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// ListRequests handles GET /membership-requests.
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

// AcceptRequest handles POST /membership-requests/:id/accept.
func (h *Handler) AcceptRequest(c *gin.Context) {
	h.resolveRequest(c, h.service.Accept)
}

// RejectRequest handles POST /membership-requests/:id/reject.
func (h *Handler) RejectRequest(c *gin.Context) {
	h.resolveRequest(c, h.service.Reject)
}

func (h *Handler) resolveRequest(c *gin.Context, resolve func(ctx context.Context, callerID, requestID uuid.UUID) (*models.MembershipRequest, error)) {
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

// DeleteRequest handles DELETE /membership-requests/:id (cancel).
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

package user

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/app/domain"
	"github.com/parlorchat/parlor/internal/app/domain/auth"
	"github.com/parlorchat/parlor/internal/app/middleware"
)

type UpdateProfileRequest struct {
	Bio             *string `json:"bio"`
	Sex             *string `json:"sex"`
	CurrentPassword *string `json:"current_password"`
	NewPassword     *string `json:"new_password"`
}

type Handler struct {
	service     Service
	authService auth.Service
	logger      *zap.Logger
}

func NewHandler(service Service, authService auth.Service, logger *zap.Logger) *Handler {
	return &Handler{
		service:     service,
		authService: authService,
		logger:      logger,
	}
}

// List handles GET /users with search and pagination.
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))

	result, err := h.service.List(c.Request.Context(), c.Query("search"), page, pageSize)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get handles GET /users/:username.
func (h *Handler) Get(c *gin.Context) {
	u, err := h.service.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// Update handles PATCH /users/:username. Only the profile owner may patch,
// and a password change requires the current password.
func (h *Handler) Update(c *gin.Context) {
	callerID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	u, err := h.service.UpdateProfile(c.Request.Context(), callerID, c.Param("username"), req.Bio, req.Sex)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}

	if req.NewPassword != nil {
		current := ""
		if req.CurrentPassword != nil {
			current = *req.CurrentPassword
		}
		if err := h.authService.ChangePassword(c.Request.Context(), callerID, current, *req.NewPassword); err != nil {
			domain.WriteError(c, h.logger, err)
			return
		}
	}

	c.JSON(http.StatusOK, u)
}

package auth

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/app/domain"
	"github.com/parlorchat/parlor/internal/app/models"
	"github.com/parlorchat/parlor/internal/app/observability/metrics"
)

// Session value keys written on login and read by the auth middleware.
const (
	SessionUserKey     = "user_id"
	SessionUsernameKey = "username"
)

type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SessionResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
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

// Register handles POST /auth/register. Open to anonymous callers.
func (h *Handler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, token, err := h.service.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}

	if m := metrics.Get(); m != nil {
		m.AuthRequestsTotal.Add(c.Request.Context(), 1)
	}
	c.JSON(http.StatusCreated, SessionResponse{User: user, Token: token})
}

// CurrentSession handles GET /auth/session.
func (h *Handler) CurrentSession(c *gin.Context) {
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	user, err := h.service.GetUser(c.Request.Context(), userID)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Login handles POST /auth/login. Open to anonymous callers; on success
// the session cookie identifies the user and a bearer token is returned for
// non-browser clients.
func (h *Handler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	if m := metrics.Get(); m != nil {
		m.AuthRequestsTotal.Add(c.Request.Context(), 1)
	}

	user, token, err := h.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		domain.WriteError(c, h.logger, err)
		return
	}

	session := sessions.Default(c)
	session.Set(SessionUserKey, user.ID.String())
	session.Set(SessionUsernameKey, user.Username)
	if err := session.Save(); err != nil {
		h.logger.Error("Failed to save session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	h.logger.Info("Successful login", zap.String("user_id", user.ID.String()), zap.String("username", user.Username))
	c.JSON(http.StatusCreated, SessionResponse{User: user, Token: token})
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{MaxAge: -1, Path: "/"})
	if err := session.Save(); err != nil {
		h.logger.Error("Failed to clear session", zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}

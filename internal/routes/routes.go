package routes

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/app/domain/auth"
	"github.com/parlorchat/parlor/internal/app/domain/chatroom"
	"github.com/parlorchat/parlor/internal/app/domain/friendship"
	"github.com/parlorchat/parlor/internal/app/domain/membership"
	"github.com/parlorchat/parlor/internal/app/domain/message"
	"github.com/parlorchat/parlor/internal/app/domain/updates"
	"github.com/parlorchat/parlor/internal/app/domain/user"
	"github.com/parlorchat/parlor/internal/app/middleware"
	"github.com/parlorchat/parlor/internal/pkg/config"
)

type AppHandlers struct {
	Auth       *auth.Handler
	User       *user.Handler
	Chatroom   *chatroom.Handler
	Membership *membership.Handler
	Friendship *friendship.Handler
	Message    *message.Handler
	Updates    *updates.Handler
}

// Setup wires repositories, services and handlers and mounts every route on
// the engine.
func Setup(r *gin.Engine, dbPool *pgxpool.Pool, cfg *config.Config, log *zap.Logger) {
	handlers := setupDependencies(dbPool, cfg, log)
	setupRouter(r, handlers, cfg, log)
}

func setupDependencies(dbPool *pgxpool.Pool, cfg *config.Config, log *zap.Logger) *AppHandlers {
	slogLog := slog.Default()

	hub := updates.NewHub(slogLog)

	authRepo := auth.NewPostgresRepository(dbPool, slogLog)
	userRepo := user.NewPostgresRepository(dbPool, slogLog)
	chatroomRepo := chatroom.NewPostgresRepository(dbPool, slogLog)
	membershipRepo := membership.NewPostgresRepository(dbPool, slogLog)
	friendshipRepo := friendship.NewPostgresRepository(dbPool, slogLog)
	messageRepo := message.NewPostgresRepository(dbPool, slogLog)

	authService := auth.NewService(authRepo, cfg, slogLog)
	userService := user.NewService(userRepo, slogLog)
	chatroomService := chatroom.NewService(chatroomRepo, hub, slogLog)
	membershipService := membership.NewService(membershipRepo, hub, slogLog)
	friendshipService := friendship.NewService(friendshipRepo, hub, slogLog)
	messageService := message.NewService(messageRepo, hub,
		cfg.Limits.MessageQuota, cfg.Limits.LongPollTimeout, slogLog)

	return &AppHandlers{
		Auth:       auth.NewHandler(authService, log),
		User:       user.NewHandler(userService, authService, log),
		Chatroom:   chatroom.NewHandler(chatroomService, log),
		Membership: membership.NewHandler(membershipService, log),
		Friendship: friendship.NewHandler(friendshipService, log),
		Message:    message.NewHandler(messageService, log),
		Updates:    updates.NewHandler(hub, cfg.Limits.LongPollTimeout, log),
	}
}

func setupRouter(r *gin.Engine, h *AppHandlers, cfg *config.Config, log *zap.Logger) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	// Anonymous endpoints are throttled by client IP; the limiter runs after
	// RequireAuth on the rest so authenticated traffic is keyed by user id.
	limiter := middleware.NewRateLimiter(cfg.Limits.RequestsPerSecond, cfg.Limits.Burst, log)

	public := api.Group("/auth")
	public.Use(limiter.Middleware())
	{
		public.POST("/register", h.Auth.Register)
		public.POST("/login", h.Auth.Login)
	}

	protected := api.Group("/")
	protected.Use(middleware.RequireAuth(cfg, log), limiter.Middleware())
	{
		protected.GET("/auth/session", h.Auth.CurrentSession)
		protected.POST("/auth/logout", h.Auth.Logout)

		protected.GET("/users", h.User.List)
		protected.GET("/users/:username", h.User.Get)
		protected.PATCH("/users/:username", h.User.Update)

		protected.POST("/chatrooms", h.Chatroom.Create)
		protected.GET("/chatrooms", h.Chatroom.List)
		protected.GET("/chatrooms/:id", h.Chatroom.Get)
		protected.PATCH("/chatrooms/:id", h.Chatroom.Update)
		protected.DELETE("/chatrooms/:id", h.Chatroom.Delete)

		protected.GET("/memberships", h.Membership.List)
		protected.GET("/memberships/:id", h.Membership.Get)
		protected.PATCH("/memberships/:id", h.Membership.Update)
		protected.POST("/memberships/:id/promote", h.Membership.Promote)
		protected.POST("/memberships/:id/demote", h.Membership.Demote)
		protected.DELETE("/memberships/:id", h.Membership.Delete)

		protected.POST("/membership-groups", h.Membership.CreateGroup)
		protected.GET("/membership-groups", h.Membership.ListGroups)
		protected.PATCH("/membership-groups/:id", h.Membership.UpdateGroup)
		protected.DELETE("/membership-groups/:id", h.Membership.DeleteGroup)

		protected.POST("/membership-requests", h.Membership.CreateRequest)
		protected.GET("/membership-requests", h.Membership.ListRequests)
		protected.POST("/membership-requests/:id/accept", h.Membership.AcceptRequest)
		protected.POST("/membership-requests/:id/reject", h.Membership.RejectRequest)
		protected.DELETE("/membership-requests/:id", h.Membership.DeleteRequest)

		protected.GET("/friendships", h.Friendship.List)
		protected.GET("/friendships/:id", h.Friendship.Get)
		protected.PATCH("/friendships/:id", h.Friendship.Update)
		protected.DELETE("/friendships/:id", h.Friendship.Delete)

		protected.POST("/friendship-groups", h.Friendship.CreateGroup)
		protected.GET("/friendship-groups", h.Friendship.ListGroups)
		protected.PATCH("/friendship-groups/:id", h.Friendship.UpdateGroup)
		protected.DELETE("/friendship-groups/:id", h.Friendship.DeleteGroup)

		protected.POST("/friendship-requests", h.Friendship.CreateRequest)
		protected.GET("/friendship-requests", h.Friendship.ListRequests)
		protected.POST("/friendship-requests/:id/accept", h.Friendship.AcceptRequest)
		protected.POST("/friendship-requests/:id/reject", h.Friendship.RejectRequest)
		protected.DELETE("/friendship-requests/:id", h.Friendship.DeleteRequest)

		protected.POST("/messages", h.Message.Create)
		protected.GET("/messages", h.Message.List)

		protected.GET("/updates", h.Updates.Poll)
		protected.DELETE("/updates", h.Updates.Clear)
	}

	// WebSocket feed, authenticated via session or token query parameter.
	r.GET("/ws/updates", middleware.RequireAuth(cfg, log), limiter.Middleware(), h.Updates.ServeWS)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

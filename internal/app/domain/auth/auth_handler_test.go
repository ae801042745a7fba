package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/app/models"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, username, password string) (*models.User, string, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*models.User), args.String(1), args.Error(2)
}

func (m *MockAuthService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*models.User), args.String(1), args.Error(2)
}

func (m *MockAuthService) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	args := m.Called(ctx, userID, current, next)
	return args.Error(0)
}

func newAuthRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))
	h := NewHandler(svc, zap.NewNop())
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/logout", h.Logout)
	return r
}

func postJSON(r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterHandler(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := new(MockAuthService)
		r := newAuthRouter(svc)

		userID := uuid.New()
		svc.On("Register", mock.Anything, "alice", "password123").
			Return(&models.User{ID: userID, Username: "alice"}, "a.jwt.token", nil)

		w := postJSON(r, "/auth/register", gin.H{"username": "alice", "password": "password123"})
		require.Equal(t, http.StatusCreated, w.Code)

		var resp SessionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "alice", resp.User.Username)
		assert.Equal(t, "a.jwt.token", resp.Token)
	})

	t.Run("missing fields", func(t *testing.T) {
		svc := new(MockAuthService)
		r := newAuthRouter(svc)

		w := postJSON(r, "/auth/register", gin.H{"username": "alice"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Register")
	})

	t.Run("conflict maps to 409", func(t *testing.T) {
		svc := new(MockAuthService)
		r := newAuthRouter(svc)

		svc.On("Register", mock.Anything, "alice", "password123").
			Return(nil, "", models.ErrConflict)

		w := postJSON(r, "/auth/register", gin.H{"username": "alice", "password": "password123"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestLoginHandler(t *testing.T) {
	t.Run("sets the session cookie", func(t *testing.T) {
		svc := new(MockAuthService)
		r := newAuthRouter(svc)

		userID := uuid.New()
		svc.On("Login", mock.Anything, "alice", "password123").
			Return(&models.User{ID: userID, Username: "alice"}, "a.jwt.token", nil)

		w := postJSON(r, "/auth/login", gin.H{"username": "alice", "password": "password123"})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.NotEmpty(t, w.Header().Get("Set-Cookie"))
	})

	t.Run("bad credentials map to 401", func(t *testing.T) {
		svc := new(MockAuthService)
		r := newAuthRouter(svc)

		svc.On("Login", mock.Anything, "alice", "wrong").
			Return(nil, "", models.ErrUnauthenticated)

		w := postJSON(r, "/auth/login", gin.H{"username": "alice", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestLogoutHandler(t *testing.T) {
	svc := new(MockAuthService)
	r := newAuthRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

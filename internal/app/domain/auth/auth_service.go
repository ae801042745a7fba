package auth

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"go.opentelemetry.io/otel"

	"github.com/parlorchat/parlor/internal/app/models"
	"github.com/parlorchat/parlor/internal/pkg/config"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,150}$`)

const minPasswordLength = 8

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	// Register creates an account and returns the user with a fresh access token.
	Register(ctx context.Context, username, password string) (*models.User, string, error)
	// Login validates credentials and returns the user with a fresh access token.
	Login(ctx context.Context, username, password string) (*models.User, string, error)
	// GetUser fetches the public profile by id.
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	// ChangePassword verifies the current password before storing a new hash.
	ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error
}

type ServiceImpl struct {
	repo   Repository
	cfg    *config.Config
	logger *slog.Logger
}

func NewService(repo Repository, cfg *config.Config, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *ServiceImpl) Register(ctx context.Context, username, password string) (*models.User, string, error) {
	ctx, span := otel.Tracer("parlor").Start(ctx, "AuthService.Register")
	defer span.End()
	span.SetAttributes(attribute.String("username", username))

	if !usernamePattern.MatchString(username) {
		return nil, "", fmt.Errorf("username must be 3-150 characters of letters, digits, '_', '.' or '-': %w", models.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, "", fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, models.ErrValidation)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, username, hash)
	if err != nil {
		return nil, "", err
	}

	token, err := GenerateToken(s.cfg.JWT, user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "User registered", slog.String("user_id", user.ID.String()), slog.String("username", user.Username))
	return user, token, nil
}

func (s *ServiceImpl) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	ctx, span := otel.Tracer("parlor").Start(ctx, "AuthService.Login")
	defer span.End()

	cred, err := s.repo.GetUserAuthByUsername(ctx, username)
	if err != nil {
		// Hide the not-found/bad-password distinction from the caller.
		return nil, "", models.ErrUnauthenticated
	}
	if !CheckPassword(cred.PasswordHash, password) {
		s.logger.WarnContext(ctx, "Invalid login credentials", slog.String("username", username))
		return nil, "", models.ErrUnauthenticated
	}

	user, err := s.repo.GetUserByID(ctx, cred.ID)
	if err != nil {
		return nil, "", err
	}

	token, err := GenerateToken(s.cfg.JWT, user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *ServiceImpl) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

func (s *ServiceImpl) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	cred, err := s.repo.GetUserAuthByUsername(ctx, user.Username)
	if err != nil {
		return err
	}
	if !CheckPassword(cred.PasswordHash, current) {
		return models.ErrUnauthenticated
	}
	if len(next) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, models.ErrValidation)
	}
	hash, err := HashPassword(next)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, userID, hash)
}

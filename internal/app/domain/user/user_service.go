package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/parlorchat/parlor/internal/app/models"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
	maxBioLength    = 50
)

var caseFolder = cases.Fold()

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	List(ctx context.Context, search string, page, pageSize int) (*models.UserPage, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// UpdateProfile patches the caller's own profile.
	UpdateProfile(ctx context.Context, callerID uuid.UUID, username string, bio, sex *string) (*models.User, error)
}

type ServiceImpl struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		repo:   repo,
		logger: logger,
	}
}

func (s *ServiceImpl) List(ctx context.Context, search string, page, pageSize int) (*models.UserPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	// Case-fold the needle so the ILIKE match behaves for non-ASCII names.
	search = caseFolder.String(strings.TrimSpace(search))

	users, total, err := s.repo.List(ctx, search, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &models.UserPage{
		Items:    users,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}

func (s *ServiceImpl) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

func (s *ServiceImpl) UpdateProfile(ctx context.Context, callerID uuid.UUID, username string, bio, sex *string) (*models.User, error) {
	target, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if target.ID != callerID {
		return nil, models.ErrForbidden
	}

	if bio != nil && utf8.RuneCountInString(*bio) > maxBioLength {
		return nil, fmt.Errorf("bio exceeds %d characters: %w", maxBioLength, models.ErrValidation)
	}
	if sex != nil {
		switch *sex {
		case models.SexMale, models.SexFemale, models.SexSecret:
		default:
			return nil, fmt.Errorf("sex must be one of M, F, X: %w", models.ErrValidation)
		}
	}

	return s.repo.UpdateProfile(ctx, target.ID, bio, sex)
}

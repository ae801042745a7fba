package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/parlorchat/parlor/internal/app/models"
	database "github.com/parlorchat/parlor/internal/db"
)

var _ Repository = (*PostgresRepository)(nil)

type Repository interface {
	// CreateUser stores a new user with a hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	// GetUserAuthByUsername fetches the credential row used by login.
	GetUserAuthByUsername(ctx context.Context, username string) (*models.UserAuth, error)
	// GetUserByID fetches the public profile by id.
	GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	// UpdatePassword replaces the stored hash.
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
}

type PostgresRepository struct {
	logger *slog.Logger
	pgpool database.PGX
}

func NewPostgresRepository(pgpool database.PGX, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresRepository) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	var user models.User
	query := `INSERT INTO users (username, password_hash)
	          VALUES ($1, $2)
	          RETURNING id, username, bio, sex, created_at`
	err := r.pgpool.QueryRow(ctx, query, username, passwordHash).
		Scan(&user.ID, &user.Username, &user.Bio, &user.Sex, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("username %s is taken: %w", username, models.ErrConflict)
		}
		r.logger.ErrorContext(ctx, "Error creating user", slog.Any("error", err), slog.String("username", username))
		return nil, fmt.Errorf("database error creating user: %w", err)
	}
	return &user, nil
}

func (r *PostgresRepository) GetUserAuthByUsername(ctx context.Context, username string) (*models.UserAuth, error) {
	var user models.UserAuth
	query := `SELECT id, username, password_hash FROM users WHERE username = $1`
	err := r.pgpool.QueryRow(ctx, query, username).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s not found: %w", username, models.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error fetching user by username", slog.Any("error", err), slog.String("username", username))
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}
	return &user, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	query := `SELECT id, username, bio, sex, created_at FROM users WHERE id = $1`
	err := r.pgpool.QueryRow(ctx, query, userID).
		Scan(&user.ID, &user.Username, &user.Bio, &user.Sex, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s not found: %w", userID, models.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error fetching user by ID", slog.Any("error", err), slog.String("user_id", userID.String()))
		return nil, fmt.Errorf("database error fetching user by ID: %w", err)
	}
	return &user, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	tag, err := r.pgpool.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating password", slog.Any("error", err), slog.String("user_id", userID.String()))
		return fmt.Errorf("database error updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s not found: %w", userID, models.ErrNotFound)
	}
	return nil
}

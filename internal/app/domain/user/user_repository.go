package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/parlorchat/parlor/internal/app/models"
	database "github.com/parlorchat/parlor/internal/db"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var _ Repository = (*PostgresRepository)(nil)

type Repository interface {
	// List returns one page of the user directory, optionally filtered by a
	// case-folded username substring, together with the total match count.
	List(ctx context.Context, search string, page, pageSize int) ([]models.User, int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// UpdateProfile patches bio and/or sex; nil fields are left unchanged.
	UpdateProfile(ctx context.Context, userID uuid.UUID, bio, sex *string) (*models.User, error)
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

func (r *PostgresRepository) List(ctx context.Context, search string, page, pageSize int) ([]models.User, int, error) {
	base := psql.Select().From("users")
	if search != "" {
		base = base.Where(sq.ILike{"username": "%" + search + "%"})
	}

	countSQL, countArgs, err := base.Columns("COUNT(*)").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var total int
	if err := r.pgpool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		r.logger.ErrorContext(ctx, "Error counting users", slog.Any("error", err))
		return nil, 0, fmt.Errorf("database error counting users: %w", err)
	}

	listSQL, listArgs, err := base.
		Columns("id", "username", "bio", "sex", "created_at").
		OrderBy("username ASC").
		Limit(uint64(pageSize)).
		Offset(uint64((page - 1) * pageSize)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := r.pgpool.Query(ctx, listSQL, listArgs...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing users", slog.Any("error", err))
		return nil, 0, fmt.Errorf("database error listing users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0, pageSize)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Bio, &u.Sex, &u.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("database error scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("database error iterating users: %w", err)
	}
	return users, total, nil
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	query := `SELECT id, username, bio, sex, created_at FROM users WHERE username = $1`
	err := r.pgpool.QueryRow(ctx, query, username).Scan(&u.ID, &u.Username, &u.Bio, &u.Sex, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s not found: %w", username, models.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error fetching user", slog.Any("error", err), slog.String("username", username))
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}
	return &u, nil
}

func (r *PostgresRepository) getByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var u models.User
	query := `SELECT id, username, bio, sex, created_at FROM users WHERE id = $1`
	err := r.pgpool.QueryRow(ctx, query, userID).Scan(&u.ID, &u.Username, &u.Bio, &u.Sex, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s not found: %w", userID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}
	return &u, nil
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, userID uuid.UUID, bio, sex *string) (*models.User, error) {
	// A patch may carry no profile fields at all (password-only); squirrel
	// refuses an UPDATE without SET clauses, so just return the current row.
	if bio == nil && sex == nil {
		return r.getByID(ctx, userID)
	}

	update := psql.Update("users").Where(sq.Eq{"id": userID})
	if bio != nil {
		update = update.Set("bio", *bio)
	}
	if sex != nil {
		update = update.Set("sex", *sex)
	}
	update = update.Suffix("RETURNING id, username, bio, sex, created_at")

	sqlStr, args, err := update.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update query: %w", err)
	}

	var u models.User
	err = r.pgpool.QueryRow(ctx, sqlStr, args...).Scan(&u.ID, &u.Username, &u.Bio, &u.Sex, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s not found: %w", userID, models.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error updating profile", slog.Any("error", err), slog.String("user_id", userID.String()))
		return nil, fmt.Errorf("database error updating profile: %w", err)
	}
	return &u, nil
}

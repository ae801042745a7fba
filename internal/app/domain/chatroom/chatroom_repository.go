package chatroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/parlorchat/parlor/internal/app/models"
	database "github.com/parlorchat/parlor/internal/db"
)

const membershipColumns = `m.id, m.user_id, m.chatroom_id, m.is_manager, m.last_read, m.created_at,
	c.friendship_exclusive,
	CASE WHEN NOT m.is_manager THEN 0 WHEN c.creator_id = m.user_id THEN 2 ELSE 1 END`

var _ Repository = (*PostgresRepository)(nil)

type Repository interface {
	// Create inserts the room and the creator's manager membership in one
	// transaction.
	Create(ctx context.Context, name string, creatorID uuid.UUID) (*models.Chatroom, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Chatroom, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chatroom, error)
	Rename(ctx context.Context, id uuid.UUID, name string) (*models.Chatroom, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// GetMembership returns the user's membership in the room, with the
	// level and exclusivity joined in for policy checks.
	GetMembership(ctx context.Context, chatroomID, userID uuid.UUID) (*models.ChatroomMembership, error)
	MemberIDs(ctx context.Context, chatroomID uuid.UUID) ([]uuid.UUID, error)
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

func (r *PostgresRepository) Create(ctx context.Context, name string, creatorID uuid.UUID) (*models.Chatroom, error) {
	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("database error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var room models.Chatroom
	err = tx.QueryRow(ctx,
		`INSERT INTO chatrooms (name, creator_id)
		 VALUES ($1, $2)
		 RETURNING id, name, creator_id, friendship_exclusive, created_at`,
		name, creatorID).
		Scan(&room.ID, &room.Name, &room.CreatorID, &room.FriendshipExclusive, &room.CreatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating chatroom", slog.Any("error", err))
		return nil, fmt.Errorf("database error creating chatroom: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO chatroom_memberships (user_id, chatroom_id, is_manager) VALUES ($1, $2, TRUE)`,
		creatorID, room.ID)
	if err != nil {
		return nil, fmt.Errorf("database error creating creator membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("database error committing chatroom: %w", err)
	}
	return &room, nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Chatroom, error) {
	rows, err := r.pgpool.Query(ctx,
		`SELECT c.id, c.name, c.creator_id, c.friendship_exclusive, c.created_at
		 FROM chatrooms c
		 JOIN chatroom_memberships m ON m.chatroom_id = c.id
		 WHERE m.user_id = $1
		 ORDER BY c.created_at`,
		userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing chatrooms", slog.Any("error", err))
		return nil, fmt.Errorf("database error listing chatrooms: %w", err)
	}
	defer rows.Close()

	var rooms []models.Chatroom
	for rows.Next() {
		var room models.Chatroom
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatorID, &room.FriendshipExclusive, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("database error scanning chatroom: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Chatroom, error) {
	var room models.Chatroom
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, name, creator_id, friendship_exclusive, created_at FROM chatrooms WHERE id = $1`, id).
		Scan(&room.ID, &room.Name, &room.CreatorID, &room.FriendshipExclusive, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("chatroom %s not found: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching chatroom: %w", err)
	}
	return &room, nil
}

func (r *PostgresRepository) Rename(ctx context.Context, id uuid.UUID, name string) (*models.Chatroom, error) {
	var room models.Chatroom
	err := r.pgpool.QueryRow(ctx,
		`UPDATE chatrooms SET name = $1 WHERE id = $2
		 RETURNING id, name, creator_id, friendship_exclusive, created_at`,
		name, id).
		Scan(&room.ID, &room.Name, &room.CreatorID, &room.FriendshipExclusive, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("chatroom %s not found: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("database error renaming chatroom: %w", err)
	}
	return &room, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM chatrooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("database error deleting chatroom: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chatroom %s not found: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) GetMembership(ctx context.Context, chatroomID, userID uuid.UUID) (*models.ChatroomMembership, error) {
	var m models.ChatroomMembership
	query := `SELECT ` + membershipColumns + `
		 FROM chatroom_memberships m
		 JOIN chatrooms c ON c.id = m.chatroom_id
		 WHERE m.chatroom_id = $1 AND m.user_id = $2`
	err := r.pgpool.QueryRow(ctx, query, chatroomID, userID).
		Scan(&m.ID, &m.UserID, &m.ChatroomID, &m.IsManager, &m.LastRead, &m.CreatedAt, &m.Exclusive, &m.Level)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("membership not found: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching membership: %w", err)
	}
	return &m, nil
}

func (r *PostgresRepository) MemberIDs(ctx context.Context, chatroomID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pgpool.Query(ctx,
		`SELECT user_id FROM chatroom_memberships WHERE chatroom_id = $1`, chatroomID)
	if err != nil {
		return nil, fmt.Errorf("database error listing members: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("database error scanning member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

package message

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

const messageSelect = `
	SELECT msg.id, msg.chatroom_id, msg.sender_membership_id, m.user_id, msg.text, msg.created_at
	FROM messages msg
	JOIN chatroom_memberships m ON m.id = msg.sender_membership_id`

var _ Repository = (*PostgresRepository)(nil)

type Repository interface {
	Create(ctx context.Context, chatroomID, senderMembershipID uuid.UUID, text string) (*models.Message, error)
	// Trim drops the oldest messages of a room beyond keep.
	Trim(ctx context.Context, chatroomID uuid.UUID, keep int) error
	// List returns messages with id > since from the user's rooms, oldest
	// first, optionally restricted to one room.
	List(ctx context.Context, userID uuid.UUID, since int64, chatroomID *uuid.UUID, limit int) ([]models.Message, error)
	GetMembership(ctx context.Context, userID, chatroomID uuid.UUID) (*models.ChatroomMembership, error)
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

func (r *PostgresRepository) Create(ctx context.Context, chatroomID, senderMembershipID uuid.UUID, text string) (*models.Message, error) {
	var msg models.Message
	err := r.pgpool.QueryRow(ctx,
		`INSERT INTO messages (chatroom_id, sender_membership_id, text)
		 VALUES ($1, $2, $3)
		 RETURNING id, chatroom_id, sender_membership_id, text, created_at`,
		chatroomID, senderMembershipID, text).
		Scan(&msg.ID, &msg.ChatroomID, &msg.SenderMembershipID, &msg.Text, &msg.CreatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating message", slog.Any("error", err))
		return nil, fmt.Errorf("database error creating message: %w", err)
	}
	return &msg, nil
}

func (r *PostgresRepository) Trim(ctx context.Context, chatroomID uuid.UUID, keep int) error {
	_, err := r.pgpool.Exec(ctx,
		`DELETE FROM messages
		 WHERE chatroom_id = $1
		   AND id NOT IN (
		       SELECT id FROM messages WHERE chatroom_id = $1 ORDER BY id DESC LIMIT $2
		   )`, chatroomID, keep)
	if err != nil {
		return fmt.Errorf("database error trimming messages: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, userID uuid.UUID, since int64, chatroomID *uuid.UUID, limit int) ([]models.Message, error) {
	query := messageSelect + `
	 WHERE msg.id > $1
	   AND msg.chatroom_id IN (SELECT chatroom_id FROM chatroom_memberships WHERE user_id = $2)`
	args := []any{since, userID}
	if chatroomID != nil {
		query += ` AND msg.chatroom_id = $3`
		args = append(args, *chatroomID)
	}
	query += fmt.Sprintf(` ORDER BY msg.id LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing messages", slog.Any("error", err))
		return nil, fmt.Errorf("database error listing messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ChatroomID, &msg.SenderMembershipID, &msg.SenderID, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("database error scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *PostgresRepository) GetMembership(ctx context.Context, userID, chatroomID uuid.UUID) (*models.ChatroomMembership, error) {
	var m models.ChatroomMembership
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, user_id, chatroom_id, is_manager, last_read, created_at
		 FROM chatroom_memberships WHERE user_id = $1 AND chatroom_id = $2`,
		userID, chatroomID).
		Scan(&m.ID, &m.UserID, &m.ChatroomID, &m.IsManager, &m.LastRead, &m.CreatedAt)
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

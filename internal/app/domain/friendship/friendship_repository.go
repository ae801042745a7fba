package friendship

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

const friendshipSelect = `
	SELECT f.id, f.user_id, f.target_id, f.nickname, f.important, f.chatroom_id,
	       COALESCE(array_agg(g.group_id) FILTER (WHERE g.group_id IS NOT NULL), '{}')
	FROM friendships f
	LEFT JOIN friendship_group_members g ON g.friendship_id = f.id`

const friendshipGroupBy = ` GROUP BY f.id`

var _ Repository = (*PostgresRepository)(nil)

type Repository interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Friendship, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Friendship, error)
	GetByUserAndTarget(ctx context.Context, userID, targetID uuid.UUID) (*models.Friendship, error)
	// CreatePair builds the whole friendship in one transaction: the
	// exclusive chatroom, manager memberships for both users, and the two
	// mirrored friendship rows. It returns the requester's side.
	CreatePair(ctx context.Context, userID, targetID uuid.UUID) (*models.Friendship, error)
	Update(ctx context.Context, id uuid.UUID, nickname *string, important *bool) (*models.Friendship, error)
	SetGroups(ctx context.Context, id, ownerID uuid.UUID, groupIDs []uuid.UUID) error
	// DeletePair removes the exclusive chatroom; both friendship rows, the
	// memberships and the messages go with it.
	DeletePair(ctx context.Context, chatroomID uuid.UUID) error

	CreateGroup(ctx context.Context, userID uuid.UUID, name string) (*models.FriendshipGroup, error)
	ListGroups(ctx context.Context, userID uuid.UUID) ([]models.FriendshipGroup, error)
	GetGroup(ctx context.Context, id uuid.UUID) (*models.FriendshipGroup, error)
	RenameGroup(ctx context.Context, id uuid.UUID, name string) (*models.FriendshipGroup, error)
	DeleteGroup(ctx context.Context, id uuid.UUID) error

	CreateRequest(ctx context.Context, userID, targetID uuid.UUID, message string) (*models.FriendshipRequest, error)
	// ListRequests returns requests the user sent or received.
	ListRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendshipRequest, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*models.FriendshipRequest, error)
	SetRequestState(ctx context.Context, id uuid.UUID, state string) (*models.FriendshipRequest, error)
	// AcceptRequest resolves the request and creates the friendship pair in
	// one transaction, so a failed create leaves the request pending.
	AcceptRequest(ctx context.Context, id uuid.UUID) (*models.FriendshipRequest, *models.Friendship, error)
	DeleteRequest(ctx context.Context, id uuid.UUID) error
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

func scanFriendships(rows pgx.Rows) ([]models.Friendship, error) {
	defer rows.Close()
	var out []models.Friendship
	for rows.Next() {
		var f models.Friendship
		if err := rows.Scan(&f.ID, &f.UserID, &f.TargetID, &f.Nickname, &f.Important, &f.ChatroomID, &f.GroupIDs); err != nil {
			return nil, fmt.Errorf("database error scanning friendship: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Friendship, error) {
	rows, err := r.pgpool.Query(ctx,
		friendshipSelect+` WHERE f.user_id = $1`+friendshipGroupBy+` ORDER BY f.important DESC, f.id`, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing friendships", slog.Any("error", err))
		return nil, fmt.Errorf("database error listing friendships: %w", err)
	}
	return scanFriendships(rows)
}

func (r *PostgresRepository) one(ctx context.Context, where string, args ...any) (*models.Friendship, error) {
	rows, err := r.pgpool.Query(ctx, friendshipSelect+where+friendshipGroupBy, args...)
	if err != nil {
		return nil, fmt.Errorf("database error fetching friendship: %w", err)
	}
	friendships, err := scanFriendships(rows)
	if err != nil {
		return nil, err
	}
	if len(friendships) == 0 {
		return nil, fmt.Errorf("friendship not found: %w", models.ErrNotFound)
	}
	return &friendships[0], nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Friendship, error) {
	return r.one(ctx, ` WHERE f.id = $1`, id)
}

func (r *PostgresRepository) GetByUserAndTarget(ctx context.Context, userID, targetID uuid.UUID) (*models.Friendship, error) {
	return r.one(ctx, ` WHERE f.user_id = $1 AND f.target_id = $2`, userID, targetID)
}

func (r *PostgresRepository) CreatePair(ctx context.Context, userID, targetID uuid.UUID) (*models.Friendship, error) {
	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("database error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	f, err := createPair(ctx, tx, userID, targetID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("database error committing friendship: %w", err)
	}
	return f, nil
}

// createPair runs inside the caller's transaction: the exclusive chatroom,
// manager memberships for both users, and the two mirrored friendship rows.
func createPair(ctx context.Context, tx pgx.Tx, userID, targetID uuid.UUID) (*models.Friendship, error) {
	var chatroomID uuid.UUID
	err := tx.QueryRow(ctx,
		`INSERT INTO chatrooms (creator_id, friendship_exclusive) VALUES ($1, TRUE) RETURNING id`,
		userID).Scan(&chatroomID)
	if err != nil {
		return nil, fmt.Errorf("database error creating exclusive chatroom: %w", err)
	}

	for _, memberID := range []uuid.UUID{userID, targetID} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO chatroom_memberships (user_id, chatroom_id, is_manager) VALUES ($1, $2, TRUE)`,
			memberID, chatroomID); err != nil {
			return nil, fmt.Errorf("database error creating membership: %w", err)
		}
	}

	var f models.Friendship
	err = tx.QueryRow(ctx,
		`INSERT INTO friendships (user_id, target_id, chatroom_id) VALUES ($1, $2, $3)
		 RETURNING id, user_id, target_id, nickname, important, chatroom_id`,
		userID, targetID, chatroomID).
		Scan(&f.ID, &f.UserID, &f.TargetID, &f.Nickname, &f.Important, &f.ChatroomID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("already friends: %w", models.ErrConflict)
		}
		return nil, fmt.Errorf("database error creating friendship: %w", err)
	}
	f.GroupIDs = []uuid.UUID{}

	if _, err := tx.Exec(ctx,
		`INSERT INTO friendships (user_id, target_id, chatroom_id) VALUES ($1, $2, $3)`,
		targetID, userID, chatroomID); err != nil {
		return nil, fmt.Errorf("database error creating mirrored friendship: %w", err)
	}

	return &f, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id uuid.UUID, nickname *string, important *bool) (*models.Friendship, error) {
	if nickname != nil {
		var value any
		if *nickname != "" {
			value = *nickname
		}
		if _, err := r.pgpool.Exec(ctx,
			`UPDATE friendships SET nickname = $1 WHERE id = $2`, value, id); err != nil {
			return nil, fmt.Errorf("database error updating nickname: %w", err)
		}
	}
	if important != nil {
		if _, err := r.pgpool.Exec(ctx,
			`UPDATE friendships SET important = $1 WHERE id = $2`, *important, id); err != nil {
			return nil, fmt.Errorf("database error updating importance: %w", err)
		}
	}
	return r.GetByID(ctx, id)
}

func (r *PostgresRepository) SetGroups(ctx context.Context, id, ownerID uuid.UUID, groupIDs []uuid.UUID) error {
	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("database error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if len(groupIDs) > 0 {
		var owned int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM friendship_groups WHERE id = ANY($1) AND user_id = $2`,
			groupIDs, ownerID).Scan(&owned)
		if err != nil {
			return fmt.Errorf("database error verifying groups: %w", err)
		}
		if owned != len(groupIDs) {
			return fmt.Errorf("unknown group: %w", models.ErrValidation)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM friendship_group_members WHERE friendship_id = $1`, id); err != nil {
		return fmt.Errorf("database error clearing groups: %w", err)
	}
	for _, groupID := range groupIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO friendship_group_members (group_id, friendship_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			groupID, id); err != nil {
			return fmt.Errorf("database error assigning group: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) DeletePair(ctx context.Context, chatroomID uuid.UUID) error {
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM chatrooms WHERE id = $1 AND friendship_exclusive`, chatroomID)
	if err != nil {
		return fmt.Errorf("database error deleting friendship: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("friendship chatroom not found: %w", models.ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) CreateGroup(ctx context.Context, userID uuid.UUID, name string) (*models.FriendshipGroup, error) {
	var g models.FriendshipGroup
	err := r.pgpool.QueryRow(ctx,
		`INSERT INTO friendship_groups (user_id, name) VALUES ($1, $2) RETURNING id, user_id, name`,
		userID, name).Scan(&g.ID, &g.UserID, &g.Name)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("group name %q is taken: %w", name, models.ErrConflict)
		}
		return nil, fmt.Errorf("database error creating group: %w", err)
	}
	return &g, nil
}

func (r *PostgresRepository) ListGroups(ctx context.Context, userID uuid.UUID) ([]models.FriendshipGroup, error) {
	rows, err := r.pgpool.Query(ctx,
		`SELECT id, user_id, name FROM friendship_groups WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("database error listing groups: %w", err)
	}
	defer rows.Close()

	var groups []models.FriendshipGroup
	for rows.Next() {
		var g models.FriendshipGroup
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name); err != nil {
			return nil, fmt.Errorf("database error scanning group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *PostgresRepository) GetGroup(ctx context.Context, id uuid.UUID) (*models.FriendshipGroup, error) {
	var g models.FriendshipGroup
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, user_id, name FROM friendship_groups WHERE id = $1`, id).
		Scan(&g.ID, &g.UserID, &g.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("group %s not found: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching group: %w", err)
	}
	return &g, nil
}

func (r *PostgresRepository) RenameGroup(ctx context.Context, id uuid.UUID, name string) (*models.FriendshipGroup, error) {
	var g models.FriendshipGroup
	err := r.pgpool.QueryRow(ctx,
		`UPDATE friendship_groups SET name = $1 WHERE id = $2 RETURNING id, user_id, name`,
		name, id).Scan(&g.ID, &g.UserID, &g.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("group %s not found: %w", id, models.ErrNotFound)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("group name %q is taken: %w", name, models.ErrConflict)
		}
		return nil, fmt.Errorf("database error renaming group: %w", err)
	}
	return &g, nil
}

func (r *PostgresRepository) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM friendship_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("database error deleting group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("group %s not found: %w", id, models.ErrNotFound)
	}
	return nil
}

const requestColumns = `id, user_id, target_id, message, state, created_at`

func (r *PostgresRepository) CreateRequest(ctx context.Context, userID, targetID uuid.UUID, message string) (*models.FriendshipRequest, error) {
	var req models.FriendshipRequest
	err := r.pgpool.QueryRow(ctx,
		`INSERT INTO friendship_requests (user_id, target_id, message)
		 VALUES ($1, $2, $3) RETURNING `+requestColumns,
		userID, targetID, message).
		Scan(&req.ID, &req.UserID, &req.TargetID, &req.Message, &req.State, &req.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, fmt.Errorf("a pending request already exists: %w", models.ErrConflict)
			case "23503":
				return nil, fmt.Errorf("user not found: %w", models.ErrNotFound)
			}
		}
		return nil, fmt.Errorf("database error creating request: %w", err)
	}
	return &req, nil
}

func (r *PostgresRepository) ListRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendshipRequest, error) {
	rows, err := r.pgpool.Query(ctx,
		`SELECT `+requestColumns+` FROM friendship_requests
		 WHERE user_id = $1 OR target_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("database error listing requests: %w", err)
	}
	defer rows.Close()

	var reqs []models.FriendshipRequest
	for rows.Next() {
		var req models.FriendshipRequest
		if err := rows.Scan(&req.ID, &req.UserID, &req.TargetID, &req.Message, &req.State, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("database error scanning request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (r *PostgresRepository) GetRequest(ctx context.Context, id uuid.UUID) (*models.FriendshipRequest, error) {
	var req models.FriendshipRequest
	err := r.pgpool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM friendship_requests WHERE id = $1`, id).
		Scan(&req.ID, &req.UserID, &req.TargetID, &req.Message, &req.State, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("request %s not found: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching request: %w", err)
	}
	return &req, nil
}

func (r *PostgresRepository) SetRequestState(ctx context.Context, id uuid.UUID, state string) (*models.FriendshipRequest, error) {
	var req models.FriendshipRequest
	err := r.pgpool.QueryRow(ctx,
		`UPDATE friendship_requests SET state = $1 WHERE id = $2 RETURNING `+requestColumns,
		state, id).
		Scan(&req.ID, &req.UserID, &req.TargetID, &req.Message, &req.State, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("request %s not found: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("database error updating request: %w", err)
	}
	return &req, nil
}

func (r *PostgresRepository) AcceptRequest(ctx context.Context, id uuid.UUID) (*models.FriendshipRequest, *models.Friendship, error) {
	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("database error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var req models.FriendshipRequest
	err = tx.QueryRow(ctx,
		`UPDATE friendship_requests SET state = $1 WHERE id = $2 RETURNING `+requestColumns,
		models.StateAccepted, id).
		Scan(&req.ID, &req.UserID, &req.TargetID, &req.Message, &req.State, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("request %s not found: %w", id, models.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("database error updating request: %w", err)
	}

	f, err := createPair(ctx, tx, req.UserID, req.TargetID)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("database error committing accept: %w", err)
	}
	return &req, f, nil
}

func (r *PostgresRepository) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM friendship_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("database error deleting request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %s not found: %w", id, models.ErrNotFound)
	}
	return nil
}

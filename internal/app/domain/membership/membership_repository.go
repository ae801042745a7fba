package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/parlorchat/parlor/internal/app/models"
	database "github.com/parlorchat/parlor/internal/db"
)

// membershipSelect joins the room in so every row carries its level and the
// exclusivity flag, plus the aggregated group ids.
const membershipSelect = `
	SELECT m.id, m.user_id, m.chatroom_id, m.is_manager, m.last_read, m.created_at,
	       c.friendship_exclusive,
	       CASE WHEN NOT m.is_manager THEN 0 WHEN c.creator_id = m.user_id THEN 2 ELSE 1 END,
	       COALESCE(array_agg(g.group_id) FILTER (WHERE g.group_id IS NOT NULL), '{}')
	FROM chatroom_memberships m
	JOIN chatrooms c ON c.id = m.chatroom_id
	LEFT JOIN membership_group_members g ON g.membership_id = m.id`

const membershipGroupBy = ` GROUP BY m.id, c.friendship_exclusive, c.creator_id`

var _ Repository = (*PostgresRepository)(nil)

type Repository interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.ChatroomMembership, error)
	ListForChatroom(ctx context.Context, chatroomID uuid.UUID) ([]models.ChatroomMembership, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ChatroomMembership, error)
	GetByUserAndChatroom(ctx context.Context, userID, chatroomID uuid.UUID) (*models.ChatroomMembership, error)
	Create(ctx context.Context, userID, chatroomID uuid.UUID, isManager bool) (*models.ChatroomMembership, error)
	// AdvanceLastRead moves last_read forward; older timestamps are ignored.
	AdvanceLastRead(ctx context.Context, id uuid.UUID, t time.Time) error
	// SetGroups replaces the membership's group assignments. Groups not
	// owned by ownerID are rejected.
	SetGroups(ctx context.Context, id, ownerID uuid.UUID, groupIDs []uuid.UUID) error
	SetManager(ctx context.Context, id uuid.UUID, isManager bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	ManagerIDs(ctx context.Context, chatroomID uuid.UUID) ([]uuid.UUID, error)
	MemberIDs(ctx context.Context, chatroomID uuid.UUID) ([]uuid.UUID, error)

	CreateGroup(ctx context.Context, userID uuid.UUID, name string) (*models.MembershipGroup, error)
	ListGroups(ctx context.Context, userID uuid.UUID) ([]models.MembershipGroup, error)
	GetGroup(ctx context.Context, id uuid.UUID) (*models.MembershipGroup, error)
	RenameGroup(ctx context.Context, id uuid.UUID, name string) (*models.MembershipGroup, error)
	DeleteGroup(ctx context.Context, id uuid.UUID) error

	CreateRequest(ctx context.Context, userID, chatroomID uuid.UUID, message string) (*models.MembershipRequest, error)
	// ListRequests returns the user's own requests plus pending requests to
	// rooms the user manages.
	ListRequests(ctx context.Context, userID uuid.UUID) ([]models.MembershipRequest, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*models.MembershipRequest, error)
	SetRequestState(ctx context.Context, id uuid.UUID, state string) (*models.MembershipRequest, error)
	// AcceptRequest resolves the request and creates the membership in one
	// transaction, so a failed create leaves the request pending.
	AcceptRequest(ctx context.Context, id uuid.UUID) (*models.MembershipRequest, *models.ChatroomMembership, error)
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

func scanMemberships(rows pgx.Rows) ([]models.ChatroomMembership, error) {
	defer rows.Close()
	var out []models.ChatroomMembership
	for rows.Next() {
		var m models.ChatroomMembership
		if err := rows.Scan(&m.ID, &m.UserID, &m.ChatroomID, &m.IsManager, &m.LastRead, &m.CreatedAt,
			&m.Exclusive, &m.Level, &m.GroupIDs); err != nil {
			return nil, fmt.Errorf("database error scanning membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.ChatroomMembership, error) {
	rows, err := r.pgpool.Query(ctx,
		membershipSelect+` WHERE m.user_id = $1`+membershipGroupBy+` ORDER BY m.created_at`, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing memberships", slog.Any("error", err))
		return nil, fmt.Errorf("database error listing memberships: %w", err)
	}
	return scanMemberships(rows)
}

func (r *PostgresRepository) ListForChatroom(ctx context.Context, chatroomID uuid.UUID) ([]models.ChatroomMembership, error) {
	rows, err := r.pgpool.Query(ctx,
		membershipSelect+` WHERE m.chatroom_id = $1`+membershipGroupBy+` ORDER BY m.created_at`, chatroomID)
	if err != nil {
		return nil, fmt.Errorf("database error listing memberships: %w", err)
	}
	return scanMemberships(rows)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ChatroomMembership, error) {
	rows, err := r.pgpool.Query(ctx, membershipSelect+` WHERE m.id = $1`+membershipGroupBy, id)
	if err != nil {
		return nil, fmt.Errorf("database error fetching membership: %w", err)
	}
	memberships, err := scanMemberships(rows)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, fmt.Errorf("membership %s not found: %w", id, models.ErrNotFound)
	}
	return &memberships[0], nil
}

func (r *PostgresRepository) GetByUserAndChatroom(ctx context.Context, userID, chatroomID uuid.UUID) (*models.ChatroomMembership, error) {
	rows, err := r.pgpool.Query(ctx,
		membershipSelect+` WHERE m.user_id = $1 AND m.chatroom_id = $2`+membershipGroupBy, userID, chatroomID)
	if err != nil {
		return nil, fmt.Errorf("database error fetching membership: %w", err)
	}
	memberships, err := scanMemberships(rows)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, fmt.Errorf("membership not found: %w", models.ErrNotFound)
	}
	return &memberships[0], nil
}

func (r *PostgresRepository) Create(ctx context.Context, userID, chatroomID uuid.UUID, isManager bool) (*models.ChatroomMembership, error) {
	var id uuid.UUID
	err := r.pgpool.QueryRow(ctx,
		`INSERT INTO chatroom_memberships (user_id, chatroom_id, is_manager)
		 VALUES ($1, $2, $3) RETURNING id`,
		userID, chatroomID, isManager).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("already a member: %w", models.ErrConflict)
		}
		r.logger.ErrorContext(ctx, "Error creating membership", slog.Any("error", err))
		return nil, fmt.Errorf("database error creating membership: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *PostgresRepository) AdvanceLastRead(ctx context.Context, id uuid.UUID, t time.Time) error {
	_, err := r.pgpool.Exec(ctx,
		`UPDATE chatroom_memberships SET last_read = $1 WHERE id = $2 AND last_read < $1`, t, id)
	if err != nil {
		return fmt.Errorf("database error advancing last_read: %w", err)
	}
	return nil
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
			`SELECT COUNT(*) FROM chatroom_membership_groups WHERE id = ANY($1) AND user_id = $2`,
			groupIDs, ownerID).Scan(&owned)
		if err != nil {
			return fmt.Errorf("database error verifying groups: %w", err)
		}
		if owned != len(groupIDs) {
			return fmt.Errorf("unknown group: %w", models.ErrValidation)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM membership_group_members WHERE membership_id = $1`, id); err != nil {
		return fmt.Errorf("database error clearing groups: %w", err)
	}
	for _, groupID := range groupIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO membership_group_members (group_id, membership_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			groupID, id); err != nil {
			return fmt.Errorf("database error assigning group: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) SetManager(ctx context.Context, id uuid.UUID, isManager bool) error {
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE chatroom_memberships SET is_manager = $1 WHERE id = $2`, isManager, id)
	if err != nil {
		return fmt.Errorf("database error updating membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("membership %s not found: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM chatroom_memberships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("database error deleting membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("membership %s not found: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) collectUserIDs(ctx context.Context, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database error listing user ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("database error scanning user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) ManagerIDs(ctx context.Context, chatroomID uuid.UUID) ([]uuid.UUID, error) {
	return r.collectUserIDs(ctx,
		`SELECT user_id FROM chatroom_memberships WHERE chatroom_id = $1 AND is_manager`, chatroomID)
}

func (r *PostgresRepository) MemberIDs(ctx context.Context, chatroomID uuid.UUID) ([]uuid.UUID, error) {
	return r.collectUserIDs(ctx,
		`SELECT user_id FROM chatroom_memberships WHERE chatroom_id = $1`, chatroomID)
}

func (r *PostgresRepository) CreateGroup(ctx context.Context, userID uuid.UUID, name string) (*models.MembershipGroup, error) {
	var g models.MembershipGroup
	err := r.pgpool.QueryRow(ctx,
		`INSERT INTO chatroom_membership_groups (user_id, name) VALUES ($1, $2)
		 RETURNING id, user_id, name`,
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

func (r *PostgresRepository) ListGroups(ctx context.Context, userID uuid.UUID) ([]models.MembershipGroup, error) {
	rows, err := r.pgpool.Query(ctx,
		`SELECT id, user_id, name FROM chatroom_membership_groups WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("database error listing groups: %w", err)
	}
	defer rows.Close()

	var groups []models.MembershipGroup
	for rows.Next() {
		var g models.MembershipGroup
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name); err != nil {
			return nil, fmt.Errorf("database error scanning group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *PostgresRepository) GetGroup(ctx context.Context, id uuid.UUID) (*models.MembershipGroup, error) {
	var g models.MembershipGroup
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, user_id, name FROM chatroom_membership_groups WHERE id = $1`, id).
		Scan(&g.ID, &g.UserID, &g.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("group %s not found: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching group: %w", err)
	}
	return &g, nil
}

func (r *PostgresRepository) RenameGroup(ctx context.Context, id uuid.UUID, name string) (*models.MembershipGroup, error) {
	var g models.MembershipGroup
	err := r.pgpool.QueryRow(ctx,
		`UPDATE chatroom_membership_groups SET name = $1 WHERE id = $2 RETURNING id, user_id, name`,
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
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM chatroom_membership_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("database error deleting group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("group %s not found: %w", id, models.ErrNotFound)
	}
	return nil
}

const requestColumns = `id, user_id, chatroom_id, message, state, created_at`

func (r *PostgresRepository) CreateRequest(ctx context.Context, userID, chatroomID uuid.UUID, message string) (*models.MembershipRequest, error) {
	var req models.MembershipRequest
	err := r.pgpool.QueryRow(ctx,
		`INSERT INTO chatroom_membership_requests (user_id, chatroom_id, message)
		 VALUES ($1, $2, $3) RETURNING `+requestColumns,
		userID, chatroomID, message).
		Scan(&req.ID, &req.UserID, &req.ChatroomID, &req.Message, &req.State, &req.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, fmt.Errorf("a pending request already exists: %w", models.ErrConflict)
			case "23503":
				return nil, fmt.Errorf("chatroom not found: %w", models.ErrNotFound)
			}
		}
		return nil, fmt.Errorf("database error creating request: %w", err)
	}
	return &req, nil
}

func (r *PostgresRepository) ListRequests(ctx context.Context, userID uuid.UUID) ([]models.MembershipRequest, error) {
	rows, err := r.pgpool.Query(ctx,
		`SELECT `+requestColumns+` FROM chatroom_membership_requests
		 WHERE user_id = $1
		    OR chatroom_id IN (SELECT chatroom_id FROM chatroom_memberships WHERE user_id = $1 AND is_manager)
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("database error listing requests: %w", err)
	}
	defer rows.Close()

	var reqs []models.MembershipRequest
	for rows.Next() {
		var req models.MembershipRequest
		if err := rows.Scan(&req.ID, &req.UserID, &req.ChatroomID, &req.Message, &req.State, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("database error scanning request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (r *PostgresRepository) GetRequest(ctx context.Context, id uuid.UUID) (*models.MembershipRequest, error) {
	var req models.MembershipRequest
	err := r.pgpool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM chatroom_membership_requests WHERE id = $1`, id).
		Scan(&req.ID, &req.UserID, &req.ChatroomID, &req.Message, &req.State, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("request %s not found: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching request: %w", err)
	}
	return &req, nil
}

func (r *PostgresRepository) SetRequestState(ctx context.Context, id uuid.UUID, state string) (*models.MembershipRequest, error) {
	var req models.MembershipRequest
	err := r.pgpool.QueryRow(ctx,
		`UPDATE chatroom_membership_requests SET state = $1 WHERE id = $2 RETURNING `+requestColumns,
		state, id).
		Scan(&req.ID, &req.UserID, &req.ChatroomID, &req.Message, &req.State, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("request %s not found: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("database error updating request: %w", err)
	}
	return &req, nil
}

func (r *PostgresRepository) AcceptRequest(ctx context.Context, id uuid.UUID) (*models.MembershipRequest, *models.ChatroomMembership, error) {
	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("database error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var req models.MembershipRequest
	err = tx.QueryRow(ctx,
		`UPDATE chatroom_membership_requests SET state = $1 WHERE id = $2 RETURNING `+requestColumns,
		models.StateAccepted, id).
		Scan(&req.ID, &req.UserID, &req.ChatroomID, &req.Message, &req.State, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("request %s not found: %w", id, models.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("database error updating request: %w", err)
	}

	var membershipID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO chatroom_memberships (user_id, chatroom_id, is_manager)
		 VALUES ($1, $2, FALSE) RETURNING id`,
		req.UserID, req.ChatroomID).Scan(&membershipID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, nil, fmt.Errorf("already a member: %w", models.ErrConflict)
		}
		r.logger.ErrorContext(ctx, "Error creating membership", slog.Any("error", err))
		return nil, nil, fmt.Errorf("database error creating membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("database error committing accept: %w", err)
	}

	m, err := r.GetByID(ctx, membershipID)
	if err != nil {
		return nil, nil, err
	}
	return &req, m, nil
}

func (r *PostgresRepository) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM chatroom_membership_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("database error deleting request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %s not found: %w", id, models.ErrNotFound)
	}
	return nil
}

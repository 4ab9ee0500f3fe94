package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"circles-service/internal/models"
)

var ErrGroupNotFound = errors.New("group not found")

// GroupRepository abstracts group and membership persistence.
type GroupRepository interface {
	ListGroups(ctx context.Context) ([]models.Group, error)
	GetGroup(ctx context.Context, groupID string) (models.Group, error)
	GetGroupByJoinCode(ctx context.Context, code string) (models.Group, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	AddMember(ctx context.Context, groupID, userID, role string) error
	ListMembers(ctx context.Context, groupID string) ([]models.Member, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// ListGroups returns all discoverable groups.
func (r *GroupRepo) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups,
		`SELECT id, name, description, interest, join_code, owner_id, created_at FROM groups ORDER BY created_at DESC`)
	return groups, err
}

// GetGroup fetches a group by id.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group,
		`SELECT id, name, description, interest, join_code, owner_id, created_at FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// GetGroupByJoinCode resolves an invite code to its group.
func (r *GroupRepo) GetGroupByJoinCode(ctx context.Context, code string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group,
		`SELECT id, name, description, interest, join_code, owner_id, created_at FROM groups WHERE join_code=$1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// IsMember checks whether a user belongs to the group.
func (r *GroupRepo) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// AddMember inserts a membership row; joining twice is a no-op.
func (r *GroupRepo) AddMember(ctx context.Context, groupID, userID, role string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3)
         ON CONFLICT (group_id, user_id) DO NOTHING`, groupID, userID, role)
	return err
}

// ListMembers returns the membership list joined with profile display info.
func (r *GroupRepo) ListMembers(ctx context.Context, groupID string) ([]models.Member, error) {
	var members []models.Member
	err := r.db.SelectContext(ctx, &members,
		`SELECT gm.user_id, COALESCE(p.display_name, '') AS display_name,
                COALESCE(p.avatar_url, '') AS avatar_url, gm.role
         FROM group_members gm
         LEFT JOIN profiles p ON p.user_id = gm.user_id
         WHERE gm.group_id=$1
         ORDER BY gm.joined_at ASC`, groupID)
	return members, err
}

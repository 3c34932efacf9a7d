package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/shubham07069/chatgod/internal/models"
)

func (s *SQLStore) CreateGroup(ctx context.Context, group *models.Group, memberIDs []int) (err error) {
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now()
	}
	group.CreatedAt = group.CreatedAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	id, err := s.insert(ctx, tx,
		"INSERT INTO chat_groups (name, creator_id, created_at, is_channel) VALUES (?, ?, ?, ?)",
		group.Name, group.CreatorID, group.CreatedAt, group.IsChannel)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}

	memberQuery := s.rebind("INSERT INTO group_members (group_id, user_id, is_admin) VALUES (?, ?, ?)")
	if _, err = tx.ExecContext(ctx, memberQuery, id, group.CreatorID, true); err != nil {
		return fmt.Errorf("insert creator: %w", translate(err))
	}
	seen := map[int]bool{group.CreatorID: true}
	for _, uid := range memberIDs {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		if _, err = tx.ExecContext(ctx, memberQuery, id, uid, false); err != nil {
			return fmt.Errorf("insert member %d: %w", uid, translate(err))
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	group.ID = id
	return nil
}

func (s *SQLStore) GetGroup(ctx context.Context, id int) (*models.Group, error) {
	query := s.rebind("SELECT id, name, creator_id, created_at, is_channel FROM chat_groups WHERE id = ?")
	var g models.Group
	err := s.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.Name, &g.CreatorID, &g.CreatedAt, &g.IsChannel)
	if err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

func (s *SQLStore) GetUserGroups(ctx context.Context, userID int) ([]models.Group, error) {
	query := s.rebind(`
		SELECT g.id, g.name, g.creator_id, g.created_at, g.is_channel
		FROM chat_groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = ?
		ORDER BY g.created_at, g.id`)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatorID, &g.CreatedAt, &g.IsChannel); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *SQLStore) GetMembership(ctx context.Context, groupID, userID int) (*models.GroupMember, error) {
	query := s.rebind("SELECT group_id, user_id, is_admin FROM group_members WHERE group_id = ? AND user_id = ?")
	var m models.GroupMember
	if err := s.db.QueryRowContext(ctx, query, groupID, userID).Scan(&m.GroupID, &m.UserID, &m.IsAdmin); err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *SQLStore) GetGroupMembers(ctx context.Context, groupID int) ([]models.GroupMember, error) {
	query := s.rebind("SELECT group_id, user_id, is_admin FROM group_members WHERE group_id = ? ORDER BY user_id")
	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.GroupMember
	for rows.Next() {
		var m models.GroupMember
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.IsAdmin); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

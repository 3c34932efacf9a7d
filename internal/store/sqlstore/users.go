package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shubham07069/chatgod/internal/models"
)

const userColumns = "id, username, COALESCE(public_username, ''), COALESCE(email, ''), password_hash, COALESCE(profile_pic, ''), last_seen, is_online"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var lastSeen sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.PublicUsername, &u.Email, &u.PasswordHash, &u.ProfilePic, &lastSeen, &u.IsOnline); err != nil {
		return nil, translate(err)
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		u.LastSeen = &t
	}
	return &u, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	id, err := s.insert(ctx, s.db,
		"INSERT INTO users (username, public_username, email, password_hash, profile_pic, is_online) VALUES (?, ?, ?, ?, ?, ?)",
		user.Username, nullString(user.PublicUsername), nullString(user.Email), user.PasswordHash, nullString(user.ProfilePic), false)
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	query := s.rebind("SELECT " + userColumns + " FROM users WHERE id = ?")
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := s.rebind("SELECT " + userColumns + " FROM users WHERE username = ?")
	return scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := s.rebind("SELECT " + userColumns + " FROM users WHERE email = ?")
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLStore) ListUsersExcept(ctx context.Context, id int) ([]models.User, error) {
	query := s.rebind("SELECT " + userColumns + " FROM users WHERE id <> ? ORDER BY username")
	return s.queryUsers(ctx, query, true, id)
}

func (s *SQLStore) SearchUsers(ctx context.Context, queryStr string) ([]models.User, error) {
	query := s.rebind("SELECT " + userColumns + " FROM users WHERE username LIKE ? OR public_username LIKE ? ORDER BY username LIMIT 10")
	pattern := "%" + queryStr + "%"
	return s.queryUsers(ctx, query, true, pattern, pattern)
}

func (s *SQLStore) queryUsers(ctx context.Context, query string, mask bool, args ...any) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		if mask {
			u.Email = maskEmail(u.Email)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *SQLStore) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	return s.execOne(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, id)
}

// UpdateProfile sets the public username and profile picture. Empty
// values leave the column unchanged.
func (s *SQLStore) UpdateProfile(ctx context.Context, id int, publicUsername, profilePic string) error {
	return s.execOne(ctx,
		"UPDATE users SET public_username = COALESCE(?, public_username), profile_pic = COALESCE(?, profile_pic) WHERE id = ?",
		nullString(publicUsername), nullString(profilePic), id)
}

func (s *SQLStore) SetPresence(ctx context.Context, id int, online bool, at time.Time) error {
	return s.execOne(ctx, "UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?", online, at.UTC(), id)
}

func maskEmail(email string) string {
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}
	local, domain := parts[0], parts[1]
	length := len(local)
	visible := 1
	if length > 2 {
		visible = length / 2
		if visible > 3 {
			visible = 3
		}
	}
	if length == 0 {
		return "@" + domain
	}

	maskedLocal := local[:visible] + strings.Repeat("*", length-visible)
	return maskedLocal + "@" + domain
}

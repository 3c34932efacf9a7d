package sqlstore

import (
	"context"
	"time"

	"github.com/shubham07069/chatgod/internal/models"
)

func (s *SQLStore) CreateStatus(ctx context.Context, status *models.Status) error {
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	status.Timestamp = status.Timestamp.UTC()
	if status.ContentType == "" {
		status.ContentType = models.ContentText
	}

	id, err := s.insert(ctx, s.db,
		"INSERT INTO statuses (user_id, content, file_path, content_type, timestamp) VALUES (?, ?, ?, ?, ?)",
		status.UserID, nullString(status.Content), nullString(status.FilePath), string(status.ContentType), status.Timestamp)
	if err != nil {
		return err
	}
	status.ID = id
	return nil
}

// ListStatuses returns every status, newest first.
func (s *SQLStore) ListStatuses(ctx context.Context) ([]models.Status, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, u.username, COALESCE(s.content, ''), COALESCE(s.file_path, ''), s.content_type, s.timestamp
		FROM statuses s JOIN users u ON u.id = s.user_id
		ORDER BY s.timestamp DESC, s.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []models.Status
	for rows.Next() {
		var st models.Status
		var contentType string
		if err := rows.Scan(&st.ID, &st.UserID, &st.Username, &st.Content, &st.FilePath, &contentType, &st.Timestamp); err != nil {
			return nil, err
		}
		st.ContentType = models.ContentType(contentType)
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

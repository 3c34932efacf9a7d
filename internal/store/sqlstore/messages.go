package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/shubham07069/chatgod/internal/models"
	"github.com/shubham07069/chatgod/internal/store"
)

const messageColumns = `m.id, m.sender_id, u.username, m.receiver_id, m.group_id, COALESCE(m.content, ''),
	m.content_type, COALESCE(m.file_path, ''), m.timestamp, m.is_read, m.is_secret, m.disappear_timer, m.edited`

const messageFrom = " FROM messages m JOIN users u ON u.id = m.sender_id"

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	var receiver, group, timer sql.NullInt64
	var contentType string
	err := row.Scan(&m.ID, &m.SenderID, &m.SenderUsername, &receiver, &group, &m.Content,
		&contentType, &m.FilePath, &m.Timestamp, &m.IsRead, &m.IsSecret, &timer, &m.Edited)
	if err != nil {
		return nil, translate(err)
	}
	m.ContentType = models.ContentType(contentType)
	m.ReceiverID = intPtr(receiver)
	m.GroupID = intPtr(group)
	m.DisappearTimer = intPtr(timer)
	return &m, nil
}

func (s *SQLStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.Timestamp = msg.Timestamp.UTC()
	if msg.ContentType == "" {
		msg.ContentType = models.ContentText
	}

	id, err := s.insert(ctx, s.db, `INSERT INTO messages
		(sender_id, receiver_id, group_id, content, content_type, file_path, timestamp, is_read, is_secret, disappear_timer, edited)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.SenderID, nullInt(msg.ReceiverID), nullInt(msg.GroupID), nullString(msg.Content),
		string(msg.ContentType), nullString(msg.FilePath), msg.Timestamp, msg.IsRead, msg.IsSecret,
		nullInt(msg.DisappearTimer), msg.Edited)
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

func (s *SQLStore) GetMessage(ctx context.Context, id int) (*models.Message, error) {
	query := s.rebind("SELECT " + messageColumns + messageFrom + " WHERE m.id = ?")
	return scanMessage(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLStore) GetDirectMessages(ctx context.Context, a, b int) ([]models.Message, error) {
	query := s.rebind("SELECT " + messageColumns + messageFrom + `
		WHERE (m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?)
		ORDER BY m.timestamp, m.id`)
	return s.queryMessages(ctx, query, a, b, b, a)
}

func (s *SQLStore) GetGroupMessages(ctx context.Context, groupID int) ([]models.Message, error) {
	query := s.rebind("SELECT " + messageColumns + messageFrom + " WHERE m.group_id = ? ORDER BY m.timestamp, m.id")
	return s.queryMessages(ctx, query, groupID)
}

func (s *SQLStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func (s *SQLStore) MarkRead(ctx context.Context, id int) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind("UPDATE messages SET is_read = ? WHERE id = ? AND is_read = ?"), true, id, false)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	// Either already read or missing.
	if _, err := s.GetMessage(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *SQLStore) MarkConversationRead(ctx context.Context, senderID, receiverID int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE messages SET is_read = ? WHERE sender_id = ? AND receiver_id = ? AND is_read = ?"),
		true, senderID, receiverID, false)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) UpdateMessageContent(ctx context.Context, id int, content string) error {
	return s.execOne(ctx, "UPDATE messages SET content = ?, edited = ? WHERE id = ?", content, true, id)
}

func (s *SQLStore) SetDisappearTimer(ctx context.Context, id int, seconds int) error {
	return s.execOne(ctx, "UPDATE messages SET disappear_timer = ? WHERE id = ?", seconds, id)
}

var _ store.MessageStore = (*SQLStore)(nil)

package sqlstore

import (
	"context"
	"time"

	"github.com/shubham07069/chatgod/internal/models"
)

func (s *SQLStore) SaveTurn(ctx context.Context, turn *models.ChatTurn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	turn.Timestamp = turn.Timestamp.UTC()

	id, err := s.insert(ctx, s.db,
		"INSERT INTO chat_history (user_id, chat_name, user_message, bot_reply, timestamp) VALUES (?, ?, ?, ?, ?)",
		turn.UserID, turn.ChatName, turn.UserMessage, turn.BotReply, turn.Timestamp)
	if err != nil {
		return err
	}
	turn.ID = id
	return nil
}

func (s *SQLStore) GetTurns(ctx context.Context, userID int, chatName string) ([]models.ChatTurn, error) {
	query := s.rebind(`
		SELECT id, user_id, chat_name, user_message, bot_reply, timestamp
		FROM chat_history
		WHERE user_id = ? AND chat_name = ?
		ORDER BY timestamp, id`)
	rows, err := s.db.QueryContext(ctx, query, userID, chatName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []models.ChatTurn
	for rows.Next() {
		var t models.ChatTurn
		if err := rows.Scan(&t.ID, &t.UserID, &t.ChatName, &t.UserMessage, &t.BotReply, &t.Timestamp); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *SQLStore) GetChatNames(ctx context.Context, userID int) ([]string, error) {
	query := s.rebind(`
		SELECT chat_name FROM chat_history
		WHERE user_id = ?
		GROUP BY chat_name
		ORDER BY MIN(timestamp), MIN(id)`)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLStore) ChatExists(ctx context.Context, userID int, chatName string) (bool, error) {
	query := s.rebind("SELECT EXISTS (SELECT 1 FROM chat_history WHERE user_id = ? AND chat_name = ?)")
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, userID, chatName).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *SQLStore) DeleteHistory(ctx context.Context, userID int) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM chat_history WHERE user_id = ?"), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

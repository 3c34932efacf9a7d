package conversation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shubham07069/chatgod/internal/models"
)

const (
	EventCreated = "message.created"
	EventEdited  = "message.edited"
	EventRead    = "message.read"
)

// Event describes a message state change for downstream consumers. It
// never carries message content.
type Event struct {
	Type        string    `json:"type"`
	MessageID   int       `json:"message_id"`
	SenderID    int       `json:"sender_id"`
	ReceiverID  *int      `json:"receiver_id,omitempty"`
	GroupID     *int      `json:"group_id,omitempty"`
	Room        string    `json:"room"`
	ContentType string    `json:"content_type"`
	At          time.Time `json:"at"`
}

// Sink receives message events after they are committed.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

func (s *Service) emit(ctx context.Context, typ string, m *models.Message, roomToken string) {
	if s.sink == nil {
		return
	}
	ev := Event{
		Type:        typ,
		MessageID:   m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		GroupID:     m.GroupID,
		Room:        roomToken,
		ContentType: string(m.ContentType),
		At:          s.now().UTC(),
	}
	if err := s.sink.Emit(ctx, ev); err != nil {
		s.logger.Warn("Failed to emit message event", zap.String("type", typ), zap.Int("message_id", m.ID), zap.Error(err))
	}
}

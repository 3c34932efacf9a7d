// Package conversation implements sending, reading and editing 1:1 and group
// messages on top of the store. Text content is encrypted before it is
// persisted and every state change is published to the message's room.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shubham07069/chatgod/internal/apperr"
	"github.com/shubham07069/chatgod/internal/cipher"
	"github.com/shubham07069/chatgod/internal/events"
	"github.com/shubham07069/chatgod/internal/logging"
	"github.com/shubham07069/chatgod/internal/metrics"
	"github.com/shubham07069/chatgod/internal/models"
	"github.com/shubham07069/chatgod/internal/room"
	"github.com/shubham07069/chatgod/internal/store"
)

// Publisher delivers events to live connections.
type Publisher interface {
	Publish(room, event string, data any)
	Broadcast(event string, data any)
}

// Cipher encrypts text content at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	DecryptOrPlaceholder(token string) (string, bool)
}

type Service struct {
	store            store.Store
	cipher           Cipher
	pub              Publisher
	sink             Sink
	logger           *zap.Logger
	now              func() time.Time
	enforceDisappear bool
}

type Option func(*Service)

func WithSink(sink Sink) Option { return func(s *Service) { s.sink = sink } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = logging.OrNop(l) } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithDisappearEnforcement hides messages from History once their
// disappear timer has elapsed.
func WithDisappearEnforcement(on bool) Option { return func(s *Service) { s.enforceDisappear = on } }

func NewService(st store.Store, c Cipher, pub Publisher, opts ...Option) *Service {
	s := &Service{
		store:  st,
		cipher: c,
		pub:    pub,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pub == nil {
		s.pub = nopPublisher{}
	}
	return s
}

type SendRequest struct {
	SenderID       int
	ReceiverID     *int
	GroupID        *int
	Content        string
	ContentType    models.ContentType
	FilePath       string
	IsSecret       bool
	DisappearTimer *int
}

// Sent is the stored row (text content still encrypted) and the plaintext
// projection that was delivered to the room.
type Sent struct {
	Stored    models.Message
	Plaintext string
	Room      string
}

// Delivered returns the message as subscribers see it.
func (s *Sent) Delivered() models.Message {
	m := s.Stored
	m.Content = s.Plaintext
	return m
}

func (s *Service) Send(ctx context.Context, req SendRequest) (*Sent, error) {
	if req.ReceiverID != nil && req.GroupID != nil {
		return nil, apperr.Validationf("message cannot have both a receiver and a group")
	}
	roomToken, err := room.For(req.SenderID, req.ReceiverID, req.GroupID)
	if err != nil {
		return nil, err
	}
	if req.ContentType == "" {
		req.ContentType = models.ContentText
	}
	if !req.ContentType.Valid() {
		return nil, apperr.Validationf("unsupported content type %q", req.ContentType)
	}
	if req.ContentType == models.ContentText && req.Content == "" {
		return nil, apperr.Validationf("text message needs content")
	}
	if req.ContentType != models.ContentText && req.FilePath == "" {
		return nil, apperr.Validationf("%s message needs a file path", req.ContentType)
	}
	if req.DisappearTimer != nil && *req.DisappearTimer < 0 {
		return nil, apperr.Validationf("disappear timer must not be negative")
	}

	sender, err := s.store.GetUserByID(ctx, req.SenderID)
	if err != nil {
		return nil, notFound(err, "sender %d", req.SenderID)
	}
	if req.GroupID != nil {
		if err := s.checkGroupSender(ctx, *req.GroupID, req.SenderID); err != nil {
			return nil, err
		}
	} else if _, err := s.store.GetUserByID(ctx, *req.ReceiverID); err != nil {
		return nil, notFound(err, "receiver %d", *req.ReceiverID)
	}

	stored := req.Content
	if req.ContentType == models.ContentText {
		if stored, err = s.cipher.Encrypt(req.Content); err != nil {
			return nil, err
		}
	}

	msg := &models.Message{
		SenderID:       req.SenderID,
		SenderUsername: sender.Username,
		ReceiverID:     req.ReceiverID,
		GroupID:        req.GroupID,
		Content:        stored,
		ContentType:    req.ContentType,
		FilePath:       req.FilePath,
		Timestamp:      s.now().UTC(),
		IsSecret:       req.IsSecret,
		DisappearTimer: req.DisappearTimer,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues(string(msg.ContentType)).Inc()

	sent := &Sent{Stored: *msg, Plaintext: req.Content, Room: roomToken}
	s.pub.Publish(roomToken, events.ReceiveMessage, payloadFor(sent.Delivered()))
	s.emit(ctx, EventCreated, msg, roomToken)
	return sent, nil
}

func (s *Service) checkGroupSender(ctx context.Context, groupID, senderID int) error {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return notFound(err, "group %d", groupID)
	}
	m, err := s.store.GetMembership(ctx, groupID, senderID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Permissionf("user %d is not a member of group %d", senderID, groupID)
	}
	if err != nil {
		return err
	}
	if g.IsChannel && !m.IsAdmin {
		return apperr.Permissionf("only admins can post in channel %d", groupID)
	}
	return nil
}

func (s *Service) requireMember(ctx context.Context, groupID, userID int) error {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return notFound(err, "group %d", groupID)
	}
	_, err := s.store.GetMembership(ctx, groupID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Permissionf("user %d is not a member of group %d", userID, groupID)
	}
	return err
}

// History returns the conversation between userID and either peerID or
// groupID, oldest first, with text content decrypted.
func (s *Service) History(ctx context.Context, userID int, peerID, groupID *int) ([]models.Message, error) {
	if peerID != nil && groupID != nil {
		return nil, apperr.Validationf("history needs a peer or a group, not both")
	}

	var (
		msgs []models.Message
		err  error
	)
	switch {
	case groupID != nil:
		if err := s.requireMember(ctx, *groupID, userID); err != nil {
			return nil, err
		}
		msgs, err = s.store.GetGroupMessages(ctx, *groupID)
	case peerID != nil:
		msgs, err = s.store.GetDirectMessages(ctx, userID, *peerID)
	default:
		return nil, room.ErrInvalidAddress
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := msgs[:0]
	for _, m := range msgs {
		if s.enforceDisappear && m.Expired(now) {
			continue
		}
		if m.ContentType == models.ContentText {
			plain, ok := s.cipher.DecryptOrPlaceholder(m.Content)
			if !ok {
				s.logger.Warn("Could not decrypt message", zap.Int("message_id", m.ID))
			}
			m.Content = plain
		}
		out = append(out, m)
	}
	return out, nil
}

// OpenConversation marks the peer's messages to userID as read and returns
// the history.
func (s *Service) OpenConversation(ctx context.Context, userID int, peerID, groupID *int) ([]models.Message, error) {
	if peerID != nil && groupID == nil {
		if _, err := s.store.GetUserByID(ctx, *peerID); err != nil {
			return nil, notFound(err, "user %d", *peerID)
		}
		n, err := s.store.MarkConversationRead(ctx, *peerID, userID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			s.logger.Debug("Marked conversation read", zap.Int("user_id", userID), zap.Int("peer_id", *peerID), zap.Int64("count", n))
		}
	}
	return s.History(ctx, userID, peerID, groupID)
}

// MarkRead marks the message read on behalf of readerID and reports whether
// anything changed. The sender reading their own message is a no-op.
func (s *Service) MarkRead(ctx context.Context, messageID, readerID int) (bool, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return false, notFound(err, "message %d", messageID)
	}
	if msg.SenderID == readerID {
		return false, nil
	}
	if msg.GroupID != nil {
		if err := s.requireMember(ctx, *msg.GroupID, readerID); err != nil {
			return false, err
		}
	} else if *msg.ReceiverID != readerID {
		return false, apperr.Permissionf("user %d cannot read message %d", readerID, messageID)
	}

	changed, err := s.store.MarkRead(ctx, messageID)
	if err != nil || !changed {
		return false, err
	}
	roomToken, err := room.For(msg.SenderID, msg.ReceiverID, msg.GroupID)
	if err != nil {
		return true, err
	}
	s.pub.Publish(roomToken, events.MessageRead, events.ReadPayload{MessageID: messageID})
	s.emit(ctx, EventRead, msg, roomToken)
	return true, nil
}

// Edit replaces the content of a text message. Only the sender may edit.
func (s *Service) Edit(ctx context.Context, messageID, editorID int, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validationf("edited content must not be empty")
	}
	msg, err := s.owned(ctx, messageID, editorID)
	if err != nil {
		return nil, err
	}
	if msg.ContentType != models.ContentText {
		return nil, apperr.Validationf("only text messages can be edited")
	}

	token, err := s.cipher.Encrypt(content)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateMessageContent(ctx, messageID, token); err != nil {
		return nil, err
	}
	msg.Content = content
	msg.Edited = true

	roomToken, err := room.For(msg.SenderID, msg.ReceiverID, msg.GroupID)
	if err != nil {
		return nil, err
	}
	s.pub.Publish(roomToken, events.MessageEdited, events.EditedPayload{MessageID: messageID, Content: content, Edited: true})
	s.emit(ctx, EventEdited, msg, roomToken)
	return msg, nil
}

// SetDisappearTimer records the timer on a message the editor sent. The
// timer is advisory unless disappear enforcement is enabled.
func (s *Service) SetDisappearTimer(ctx context.Context, messageID, editorID, seconds int) (*models.Message, error) {
	if seconds < 0 {
		return nil, apperr.Validationf("disappear timer must not be negative")
	}
	msg, err := s.owned(ctx, messageID, editorID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetDisappearTimer(ctx, messageID, seconds); err != nil {
		return nil, err
	}
	msg.DisappearTimer = &seconds
	if msg.ContentType == models.ContentText {
		msg.Content, _ = s.cipher.DecryptOrPlaceholder(msg.Content)
	}

	roomToken, err := room.For(msg.SenderID, msg.ReceiverID, msg.GroupID)
	if err != nil {
		return nil, err
	}
	s.pub.Publish(roomToken, events.DisappearTimerSet, events.TimerPayload{MessageID: messageID, Timer: seconds})
	return msg, nil
}

func (s *Service) owned(ctx context.Context, messageID, userID int) (*models.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, notFound(err, "message %d", messageID)
	}
	if msg.SenderID != userID {
		return nil, apperr.Permissionf("user %d did not send message %d", userID, messageID)
	}
	return msg, nil
}

// SetPresence stamps last_seen and broadcasts the user's status to every
// connection.
func (s *Service) SetPresence(ctx context.Context, userID int, online bool) error {
	at := s.now().UTC()
	if err := s.store.SetPresence(ctx, userID, online, at); err != nil {
		return err
	}
	status := events.StatusOffline
	if online {
		status = events.StatusOnline
	}
	s.pub.Broadcast(events.UserStatus, events.StatusPayload{UserID: userID, Status: status, LastSeen: &at})
	return nil
}

func (s *Service) CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int, isChannel bool) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validationf("group name must not be empty")
	}
	for _, id := range memberIDs {
		if _, err := s.store.GetUserByID(ctx, id); err != nil {
			return nil, notFound(err, "user %d", id)
		}
	}
	g := &models.Group{Name: name, CreatorID: creatorID, CreatedAt: s.now().UTC(), IsChannel: isChannel}
	if err := s.store.CreateGroup(ctx, g, memberIDs); err != nil {
		return nil, err
	}
	s.logger.Info("Created group", zap.Int("group_id", g.ID), zap.Int("creator_id", creatorID), zap.Bool("channel", isChannel))
	return g, nil
}

func (s *Service) ListGroups(ctx context.Context, userID int) ([]models.Group, error) {
	return s.store.GetUserGroups(ctx, userID)
}

func (s *Service) PostStatus(ctx context.Context, userID int, content string, contentType models.ContentType, filePath string) (*models.Status, error) {
	if contentType == "" {
		contentType = models.ContentText
	}
	if !contentType.Valid() {
		return nil, apperr.Validationf("unsupported content type %q", contentType)
	}
	if contentType == models.ContentText && strings.TrimSpace(content) == "" {
		return nil, apperr.Validationf("text status needs content")
	}
	if contentType != models.ContentText && filePath == "" {
		return nil, apperr.Validationf("%s status needs a file path", contentType)
	}
	st := &models.Status{UserID: userID, Content: content, FilePath: filePath, ContentType: contentType, Timestamp: s.now().UTC()}
	if err := s.store.CreateStatus(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) ListStatuses(ctx context.Context) ([]models.Status, error) {
	return s.store.ListStatuses(ctx)
}

func payloadFor(m models.Message) events.MessagePayload {
	return events.MessagePayload{
		MessageID:      m.ID,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
		ReceiverID:     m.ReceiverID,
		GroupID:        m.GroupID,
		Content:        m.Content,
		ContentType:    string(m.ContentType),
		FilePath:       m.FilePath,
		Timestamp:      m.Timestamp,
		IsSecret:       m.IsSecret,
		DisappearTimer: m.DisappearTimer,
	}
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFoundf(format, args...)
	}
	return err
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, any) {}
func (nopPublisher) Broadcast(string, any)       {}

var _ Cipher = (*cipher.Cipher)(nil)

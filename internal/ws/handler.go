package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shubham07069/chatgod/internal/apperr"
	"github.com/shubham07069/chatgod/internal/conversation"
	"github.com/shubham07069/chatgod/internal/events"
	"github.com/shubham07069/chatgod/internal/logging"
	"github.com/shubham07069/chatgod/internal/models"
	"github.com/shubham07069/chatgod/internal/room"
	"github.com/shubham07069/chatgod/internal/store"
)

const eventTimeout = 10 * time.Second

// Identity is the authenticated user behind a connection. A zero UserID
// means the connection is anonymous.
type Identity struct {
	UserID   int
	Username string
}

// Authenticator resolves the identity of an upgrade request.
type Authenticator func(r *http.Request) (Identity, bool)

// Messaging is the subset of the conversation service driven by socket
// events.
type Messaging interface {
	Send(ctx context.Context, req conversation.SendRequest) (*conversation.Sent, error)
	MarkRead(ctx context.Context, messageID, readerID int) (bool, error)
	SetPresence(ctx context.Context, userID int, online bool) error
}

// Memberships reports group membership for join authorization.
type Memberships interface {
	GetMembership(ctx context.Context, groupID, userID int) (*models.GroupMember, error)
}

type Handler struct {
	hub       *Hub
	messaging Messaging
	members   Memberships
	auth      Authenticator
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

func NewHandler(hub *Hub, messaging Messaging, members Memberships, auth Authenticator, allowedOrigins []string, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:       hub,
		messaging: messaging,
		members:   members,
		auth:      auth,
		logger:    logging.OrNop(logger),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(allowedOrigins),
	}
	return h
}

// checkOrigin allows the listed origins, or any origin for "*". With no
// list the upgrader's same-origin check applies.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, _ := h.auth(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h.hub, conn, id)
	if n := h.hub.Register(client); client.authenticated() && n == 1 {
		h.presence(client.userID, true)
	}
	h.logger.Debug("Websocket connected", zap.String("conn_id", client.id), zap.Int("user_id", client.userID))

	go client.writePump()
	client.readPump(h.handle, h.logger)

	if n := h.hub.Unregister(client); client.authenticated() && n == 0 {
		h.presence(client.userID, false)
	}
	h.logger.Debug("Websocket disconnected", zap.String("conn_id", client.id), zap.Int("user_id", client.userID))
}

func (h *Handler) presence(userID int, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := h.messaging.SetPresence(ctx, userID, online); err != nil {
		h.logger.Warn("Failed to update presence", zap.Int("user_id", userID), zap.Bool("online", online), zap.Error(err))
	}
}

func (h *Handler) handle(c *Client, data []byte) {
	if !c.authenticated() {
		return
	}
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.reply(c, apperr.Validationf("malformed frame"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var err error
	switch env.Event {
	case events.Join:
		err = h.onJoin(ctx, c, env.Data)
	case events.Leave:
		var req events.RoomRequest
		if err = decode(env.Data, &req); err == nil {
			h.hub.Leave(c, req.Room)
		}
	case events.Typing, events.StopTyping:
		err = h.onTyping(ctx, c, env.Event, env.Data)
	case events.SendMessage:
		err = h.onSend(ctx, c, env.Data)
	case events.MessageRead:
		var req events.MessageReadRequest
		if err = decode(env.Data, &req); err == nil {
			_, err = h.messaging.MarkRead(ctx, req.MessageID, c.userID)
		}
	default:
		err = apperr.Validationf("unknown event %q", env.Event)
	}
	if err != nil {
		h.reply(c, err)
	}
}

func (h *Handler) onJoin(ctx context.Context, c *Client, data json.RawMessage) error {
	var req events.RoomRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := h.authorize(ctx, c, req.Room); err != nil {
		return err
	}
	h.hub.Join(c, req.Room)
	return nil
}

func (h *Handler) onTyping(ctx context.Context, c *Client, event string, data json.RawMessage) error {
	var req events.RoomRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := h.authorize(ctx, c, req.Room); err != nil {
		return err
	}
	h.hub.Publish(req.Room, event, events.TypingPayload{UserID: c.userID, Username: c.username, Room: req.Room})
	return nil
}

func (h *Handler) onSend(ctx context.Context, c *Client, data json.RawMessage) error {
	var req events.SendMessageRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	_, err := h.messaging.Send(ctx, conversation.SendRequest{
		SenderID:       c.userID,
		ReceiverID:     req.ReceiverID,
		GroupID:        req.GroupID,
		Content:        req.Content,
		ContentType:    models.ContentType(req.ContentType),
		FilePath:       req.FilePath,
		IsSecret:       req.IsSecret,
		DisappearTimer: req.DisappearTimer,
	})
	return err
}

// authorize checks that the connection's user belongs to the room.
func (h *Handler) authorize(ctx context.Context, c *Client, token string) error {
	addr, err := room.Parse(token)
	if err != nil {
		return err
	}
	if !addr.IsGroup() {
		if !addr.Includes(c.userID) {
			return apperr.Permissionf("user %d is not part of %s", c.userID, token)
		}
		return nil
	}
	_, err = h.members.GetMembership(ctx, addr.GroupID, c.userID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Permissionf("user %d is not a member of %s", c.userID, token)
	}
	return err
}

func (h *Handler) reply(c *Client, err error) {
	if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
		h.logger.Error("Websocket event failed", zap.String("conn_id", c.id), zap.Int("user_id", c.userID), zap.Error(err))
	}
	h.hub.SendTo(c, events.Error, events.ErrorPayload{Message: apperr.Public(err)})
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperr.Validationf("missing event data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Validationf("malformed event data: %v", err)
	}
	return nil
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shubham07069/chatgod/internal/apperr"
	"github.com/shubham07069/chatgod/internal/conversation"
	"github.com/shubham07069/chatgod/internal/logging"
	"github.com/shubham07069/chatgod/internal/models"
	"github.com/shubham07069/chatgod/internal/room"
	"github.com/shubham07069/chatgod/internal/store"
)

type ChatHandler struct {
	Conversations *conversation.Service
	Users         store.UserStore
	Logger        *zap.Logger
}

type CreateGroupRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	MemberIDs []int  `json:"member_ids" validate:"dive,gt=0"`
	IsChannel bool   `json:"is_channel"`
}

type StatusRequest struct {
	Content     string `json:"content" validate:"max=4096"`
	ContentType string `json:"content_type"`
	FilePath    string `json:"file_path" validate:"max=512"`
}

type EditMessageRequest struct {
	Content string `json:"content" validate:"required,max=65536"`
}

type DisappearTimerRequest struct {
	Timer int `json:"timer" validate:"gte=0"`
}

// MessagingView is the state of the messaging screen.
type MessagingView struct {
	Users    []models.User    `json:"users"`
	Groups   []models.Group   `json:"groups"`
	Messages []models.Message `json:"messages"`
	ChatType string           `json:"chat_type"`
	Room     string           `json:"room,omitempty"`
}

func (h *ChatHandler) log() *zap.Logger { return logging.OrNop(h.Logger) }

// Messaging lists the caller's contacts and groups and, when user_id or
// group_id is given, opens that conversation.
func (h *ChatHandler) Messaging(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	peerID, err := queryID(r, "user_id")
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	groupID, err := queryID(r, "group_id")
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	// With both ids present chat_type picks one.
	switch {
	case groupID != nil && (peerID == nil || r.URL.Query().Get("chat_type") == "group"):
		peerID = nil
	case peerID != nil:
		groupID = nil
	}

	ctx := r.Context()
	view := MessagingView{ChatType: "user", Messages: []models.Message{}}
	if view.Users, err = h.Users.ListUsersExcept(ctx, ac.UserID); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	if view.Groups, err = h.Conversations.ListGroups(ctx, ac.UserID); err != nil {
		writeError(w, h.log(), r, err)
		return
	}

	if peerID != nil || groupID != nil {
		if groupID != nil {
			view.ChatType = "group"
		}
		msgs, err := h.Conversations.OpenConversation(ctx, ac.UserID, peerID, groupID)
		if err != nil {
			writeError(w, h.log(), r, err)
			return
		}
		if msgs != nil {
			view.Messages = msgs
		}
		view.Room, _ = room.For(ac.UserID, peerID, groupID)
	}
	if view.Users == nil {
		view.Users = []models.User{}
	}
	if view.Groups == nil {
		view.Groups = []models.Group{}
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ChatHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	var req CreateGroupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	group, err := h.Conversations.CreateGroup(r.Context(), ac.UserID, req.Name, req.MemberIDs, req.IsChannel)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *ChatHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	groups, err := h.Conversations.ListGroups(r.Context(), ac.UserID)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *ChatHandler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.Conversations.ListStatuses(r.Context())
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	if statuses == nil {
		statuses = []models.Status{}
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *ChatHandler) PostStatus(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	var req StatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	status, err := h.Conversations.PostStatus(r.Context(), ac.UserID, req.Content, models.ContentType(req.ContentType), req.FilePath)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	writeJSON(w, http.StatusCreated, status)
}

func (h *ChatHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	var req EditMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	msg, err := h.Conversations.Edit(r.Context(), id, ac.UserID, req.Content)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Message edited successfully!",
		"message_id": msg.ID,
		"content":    msg.Content,
		"edited":     msg.Edited,
	})
}

func (h *ChatHandler) SetDisappearTimer(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	var req DisappearTimerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	msg, err := h.Conversations.SetDisappearTimer(r.Context(), id, ac.UserID, req.Timer)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Disappear timer set successfully!",
		"message_id": msg.ID,
		"timer":      req.Timer,
	})
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Healthz reports whether the store answers.
func Healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": apperr.Public(err)})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

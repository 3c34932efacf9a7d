package store

import (
	"context"
	"time"

	"github.com/shubham07069/chatgod/internal/apperr"
	"github.com/shubham07069/chatgod/internal/models"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = apperr.ErrNotFound

// ErrDuplicate is returned when a unique column already holds the value.
var ErrDuplicate = apperr.ErrConflict

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsersExcept(ctx context.Context, id int) ([]models.User, error)
	SearchUsers(ctx context.Context, query string) ([]models.User, error)
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
	UpdateProfile(ctx context.Context, id int, publicUsername, profilePic string) error
	SetPresence(ctx context.Context, id int, online bool, at time.Time) error
}

type GroupStore interface {
	// CreateGroup inserts the group, its creator as an admin member and the
	// other members in one transaction.
	CreateGroup(ctx context.Context, group *models.Group, memberIDs []int) error
	GetGroup(ctx context.Context, id int) (*models.Group, error)
	GetUserGroups(ctx context.Context, userID int) ([]models.Group, error)
	GetMembership(ctx context.Context, groupID, userID int) (*models.GroupMember, error)
	GetGroupMembers(ctx context.Context, groupID int) ([]models.GroupMember, error)
}

type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id int) (*models.Message, error)
	// GetDirectMessages returns the messages exchanged between a and b,
	// oldest first.
	GetDirectMessages(ctx context.Context, a, b int) ([]models.Message, error)
	GetGroupMessages(ctx context.Context, groupID int) ([]models.Message, error)
	// MarkRead flips is_read and reports whether the row changed.
	MarkRead(ctx context.Context, id int) (bool, error)
	// MarkConversationRead marks every unread message from senderID to
	// receiverID as read and returns the number of rows changed.
	MarkConversationRead(ctx context.Context, senderID, receiverID int) (int64, error)
	UpdateMessageContent(ctx context.Context, id int, content string) error
	SetDisappearTimer(ctx context.Context, id int, seconds int) error
}

type StatusStore interface {
	CreateStatus(ctx context.Context, status *models.Status) error
	ListStatuses(ctx context.Context) ([]models.Status, error)
}

type HistoryStore interface {
	SaveTurn(ctx context.Context, turn *models.ChatTurn) error
	GetTurns(ctx context.Context, userID int, chatName string) ([]models.ChatTurn, error)
	// GetChatNames lists the user's chat names in order of first use.
	GetChatNames(ctx context.Context, userID int) ([]string, error)
	ChatExists(ctx context.Context, userID int, chatName string) (bool, error)
	DeleteHistory(ctx context.Context, userID int) (int64, error)
}

type Store interface {
	UserStore
	GroupStore
	MessageStore
	StatusStore
	HistoryStore

	Close() error
}

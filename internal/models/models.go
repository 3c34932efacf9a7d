package models

import "time"

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentVideo ContentType = "video"
	ContentFile  ContentType = "file"
)

func (c ContentType) Valid() bool {
	switch c {
	case ContentText, ContentImage, ContentVideo, ContentFile:
		return true
	}
	return false
}

type User struct {
	ID             int        `json:"id"`
	Username       string     `json:"username"`
	PublicUsername string     `json:"public_username,omitempty"`
	Email          string     `json:"email,omitempty"`
	PasswordHash   string     `json:"-"`
	ProfilePic     string     `json:"profile_pic,omitempty"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	IsOnline       bool       `json:"is_online"`
}

type Group struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatorID int       `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
	IsChannel bool      `json:"is_channel"`
}

type GroupMember struct {
	GroupID int  `json:"group_id"`
	UserID  int  `json:"user_id"`
	IsAdmin bool `json:"is_admin"`
}

// Message is a 1:1 or group message. Exactly one of ReceiverID and GroupID
// is set. Content holds ciphertext for text messages as stored, and the
// decrypted text when returned from history.
type Message struct {
	ID             int         `json:"id"`
	SenderID       int         `json:"sender_id"`
	SenderUsername string      `json:"sender_username,omitempty"`
	ReceiverID     *int        `json:"receiver_id,omitempty"`
	GroupID        *int        `json:"group_id,omitempty"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"content_type"`
	FilePath       string      `json:"file_path,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
	IsRead         bool        `json:"is_read"`
	IsSecret       bool        `json:"is_secret"`
	DisappearTimer *int        `json:"disappear_timer,omitempty"`
	Edited         bool        `json:"edited"`
}

// Expired reports whether the message's disappear timer has elapsed at now.
func (m *Message) Expired(now time.Time) bool {
	if m.DisappearTimer == nil || *m.DisappearTimer <= 0 {
		return false
	}
	return !now.Before(m.Timestamp.Add(time.Duration(*m.DisappearTimer) * time.Second))
}

type Status struct {
	ID          int         `json:"id"`
	UserID      int         `json:"user_id"`
	Username    string      `json:"username,omitempty"`
	Content     string      `json:"content,omitempty"`
	FilePath    string      `json:"file_path,omitempty"`
	ContentType ContentType `json:"content_type"`
	Timestamp   time.Time   `json:"timestamp"`
}

// ChatTurn is one user message and the assistant's reply within a named
// AI conversation.
type ChatTurn struct {
	ID          int       `json:"id"`
	UserID      int       `json:"user_id"`
	ChatName    string    `json:"chat_name"`
	UserMessage string    `json:"user_message"`
	BotReply    string    `json:"bot_reply"`
	Timestamp   time.Time `json:"timestamp"`
}

// Package events defines the real-time event names and payloads exchanged
// over the websocket channel.
package events

import (
	"encoding/json"
	"time"
)

// Client to server.
const (
	Join        = "join"
	Leave       = "leave"
	Typing      = "typing"
	StopTyping  = "stop_typing"
	SendMessage = "send_message"
	MessageRead = "message_read"
)

// Server to client.
const (
	ReceiveMessage    = "receive_message"
	MessageEdited     = "message_edited"
	DisappearTimerSet = "disappear_timer_set"
	UserStatus        = "user_status"
	Error             = "error"
)

// Envelope is the frame written to and read from every connection.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals data into an envelope frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

type RoomRequest struct {
	Room string `json:"room"`
}

type SendMessageRequest struct {
	ReceiverID     *int   `json:"receiver_id,omitempty"`
	GroupID        *int   `json:"group_id,omitempty"`
	Content        string `json:"content"`
	ContentType    string `json:"content_type"`
	FilePath       string `json:"file_path,omitempty"`
	IsSecret       bool   `json:"is_secret,omitempty"`
	DisappearTimer *int   `json:"disappear_timer,omitempty"`
}

type MessageReadRequest struct {
	MessageID int `json:"message_id"`
}

type MessagePayload struct {
	MessageID      int       `json:"message_id"`
	SenderID       int       `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	ReceiverID     *int      `json:"receiver_id,omitempty"`
	GroupID        *int      `json:"group_id,omitempty"`
	Content        string    `json:"content"`
	ContentType    string    `json:"content_type"`
	FilePath       string    `json:"file_path,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	IsSecret       bool      `json:"is_secret"`
	DisappearTimer *int      `json:"disappear_timer,omitempty"`
}

type EditedPayload struct {
	MessageID int    `json:"message_id"`
	Content   string `json:"content"`
	Edited    bool   `json:"edited"`
}

type TimerPayload struct {
	MessageID int `json:"message_id"`
	Timer     int `json:"timer"`
}

type ReadPayload struct {
	MessageID int `json:"message_id"`
}

type TypingPayload struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Room     string `json:"room"`
}

type StatusPayload struct {
	UserID   int        `json:"user_id"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

package models

import "time"

// Client -> server websocket event types.
const (
	ClientEventJoinTopic    = "join_topic"
	ClientEventLeaveTopic   = "leave_topic"
	ClientEventMessage      = "client_message"
	ClientEventReadMessage  = "client_read_message"
	ClientEventManagerJoin  = "manager_join_chat"
	ClientEventManagerLeave = "manager_leave_chat"
	ClientEventSelectIntent = "select_bot_intent"
)

// Server -> client websocket event types.
const (
	ServerEventChatMessage    = "chat_message"
	ServerEventMessageWasRead = "chat_message_was_read"
	ServerEventLastMsgUpdated = "chat_last_msg_updated"
	ServerEventStateUpdated   = "chat_state_updated"
	ServerEventCounters       = "counters_for_indicators"
	ServerEventError          = "error"
)

// Websocket error codes surfaced in ErrorEvent.
const (
	ErrCodeNotAuthorized = "NOT_AUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeInternal      = "INTERNAL"
)

// ClientEvent is the flat inbound websocket frame. Which fields are required
// depends on Type.
type ClientEvent struct {
	Type        string      `json:"type" validate:"required"`
	Topic       string      `json:"topic,omitempty"`
	ChatID      int         `json:"chatId,omitempty"`
	UUID        string      `json:"uuid,omitempty"`
	MessageType MessageType `json:"messageType,omitempty"`
	Text        string      `json:"text,omitempty"`
	Attachments Attachments `json:"attachments,omitempty"`
	Intent      string      `json:"intent,omitempty"`
}

// ChatMessageEvent delivers a new or updated message with the recipient's own
// unread state. CommonUUID is shared with the push sent for the same event.
type ChatMessageEvent struct {
	Type               string     `json:"type"`
	ChatID             int        `json:"chatId"`
	Message            *Message   `json:"message"`
	UnreadCount        int        `json:"unreadCount"`
	FirstUnreadMessage *Message   `json:"firstUnreadMessage,omitempty"`
	BlockedAt          *time.Time `json:"blockedAt,omitempty"`
	CommonUUID         string     `json:"commonUuid"`
}

// MessageWasReadEvent tells the author their message got its first read.
type MessageWasReadEvent struct {
	Type               string     `json:"type"`
	ChatID             int        `json:"chatId"`
	MessageUUID        string     `json:"messageUuid"`
	UnreadCount        int        `json:"unreadCount"`
	FirstUnreadMessage *Message   `json:"firstUnreadMessage,omitempty"`
	BlockedAt          *time.Time `json:"blockedAt,omitempty"`
}

// LastMsgUpdatedEvent refreshes the chat-list preview for room subscribers.
type LastMsgUpdatedEvent struct {
	Type    string   `json:"type"`
	ChatID  int      `json:"chatId"`
	Message *Message `json:"message"`
}

// StateUpdatedEvent broadcasts a chat state transition.
type StateUpdatedEvent struct {
	Type              string     `json:"type"`
	ChatID            int        `json:"chatId"`
	State             ChatState  `json:"state"`
	ActiveManagersIDs []int      `json:"activeManagersIds"`
	BlockedAt         *time.Time `json:"blockedAt,omitempty"`
	CommonUUID        string     `json:"commonUuid"`
}

// CountersEvent carries the badge counters for the client's indicators.
type CountersEvent struct {
	Type                string `json:"type"`
	ChatsUnreadMessages int    `json:"chatsUnreadMessages"`
}

// ErrorEvent is sent on point-to-point connections instead of closing.
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// NewErrorEvent builds an error frame.
func NewErrorEvent(code, details string) ErrorEvent {
	return ErrorEvent{Type: ServerEventError, Code: code, Details: details}
}

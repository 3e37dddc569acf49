package models

import (
	"encoding/json"
	"time"
)

// MessageType distinguishes user text from system and interactive messages.
type MessageType string

const (
	MessageTypeSimple  MessageType = "simple"
	MessageTypeInfo    MessageType = "info"
	MessageTypeCommand MessageType = "command"
	MessageTypeForm    MessageType = "form"
)

// Attachment is a reference to an uploaded media object.
type Attachment struct {
	Kind string `json:"kind"`
	ID   int    `json:"id"`
}

// Message is a chat message keyed by a globally unique uuid. A nil AuthorID
// means the message was authored by the bot. ReadAt is set on first read by
// anyone other than the author and never changes afterwards.
type Message struct {
	UUID        string      `db:"uuid" json:"uuid"`
	ChatID      int         `db:"chat_id" json:"chatId"`
	AuthorID    *int        `db:"author_id" json:"authorId,omitempty"`
	Type        MessageType `db:"message_type" json:"messageType"`
	Text        string      `db:"text" json:"text"`
	Attachments Attachments `db:"attachments" json:"attachments,omitempty"`
	ReadAt      *time.Time  `db:"read_at" json:"readAt,omitempty"`
	Deleted     bool        `db:"deleted" json:"-"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
}

// AuthoredBy reports whether the message was written by the given user.
func (m Message) AuthoredBy(userID int) bool {
	return m.AuthorID != nil && *m.AuthorID == userID
}

// Attachments is a JSON-encoded attachment list stored in a single column.
type Attachments []Attachment

// Value implements driver.Valuer.
func (a Attachments) Value() (interface{}, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]Attachment(a))
	return string(b), err
}

// Scan implements sql.Scanner.
func (a *Attachments) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, (*[]Attachment)(a))
	case string:
		return json.Unmarshal([]byte(v), (*[]Attachment)(a))
	}
	return nil
}

// MessageStat is the per-(message, reader) read flag. It is distinct from the
// message's global ReadAt, which answers "has anyone besides the author read
// this yet".
type MessageStat struct {
	MessageUUID string `db:"message_uuid" json:"messageUuid"`
	UserID      int    `db:"user_id" json:"userId"`
	IsRead      bool   `db:"is_read" json:"isRead"`
}

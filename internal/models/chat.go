package models

import "time"

// ChatState is the handling mode of a chat.
type ChatState string

const (
	ChatStateBot              ChatState = "bot_is_used"
	ChatStateNeedManager      ChatState = "need_manager"
	ChatStateManagerConnected ChatState = "manager_connected"
)

// TargetKind identifies the entity a chat is about.
type TargetKind string

const (
	TargetNone    TargetKind = ""
	TargetVacancy TargetKind = "vacancy"
	TargetShop    TargetKind = "shop"
)

// ChatTarget is a tagged reference to the vacancy or shop a chat discusses.
// Kind == TargetNone means a direct chat with no target.
type ChatTarget struct {
	Kind TargetKind `json:"kind"`
	ID   int        `json:"id"`
}

// Chat is a conversation owned by one subject user, optionally tied to a target.
type Chat struct {
	ID            int        `db:"id" json:"id"`
	Title         *string    `db:"title" json:"title,omitempty"`
	SubjectUserID int        `db:"subject_user_id" json:"subjectUserId"`
	TargetKind    TargetKind `db:"target_kind" json:"targetKind,omitempty"`
	TargetID      *int       `db:"target_id" json:"targetId,omitempty"`
	State         ChatState  `db:"state" json:"state"`
	Deleted       bool       `db:"deleted" json:"-"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// Target assembles the tagged target reference from the stored columns.
func (c Chat) Target() ChatTarget {
	if c.TargetKind == TargetNone || c.TargetID == nil {
		return ChatTarget{}
	}
	return ChatTarget{Kind: c.TargetKind, ID: *c.TargetID}
}

// ChatUser is the per-user membership row of a chat.
type ChatUser struct {
	ChatID          int        `db:"chat_id" json:"chatId"`
	UserID          int        `db:"user_id" json:"userId"`
	IsManager       bool       `db:"is_manager" json:"isManager"`
	IsActiveManager bool       `db:"is_active_manager" json:"isActiveManager"`
	BlockedAt       *time.Time `db:"blocked_at" json:"blockedAt,omitempty"`
}

// ChatSummary is the list-view projection of a chat for one user.
type ChatSummary struct {
	ChatID          int        `json:"chatId"`
	Title           *string    `json:"title,omitempty"`
	State           ChatState  `json:"state"`
	UnreadCount     int        `json:"unreadCount"`
	FirstUnreadUUID *string    `json:"firstUnreadMessage,omitempty"`
	BlockedAt       *time.Time `json:"blockedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

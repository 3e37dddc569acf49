package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"giberno-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for messages and per-reader stats.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, uuid string) (models.Message, error)
	ListChatMessages(ctx context.Context, chatID, limit, offset int) ([]models.Message, error)
	MarkReadBefore(ctx context.Context, chatID, readerID int, upTo time.Time) error
	SetReadAt(ctx context.Context, uuid string, at time.Time) (bool, error)
	UnreadCount(ctx context.Context, chatID, userID int) (int, error)
	FirstUnread(ctx context.Context, chatID, userID int) (*models.Message, error)
	TotalUnread(ctx context.Context, userID int) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `uuid, chat_id, author_id, message_type, text, attachments, read_at, deleted, created_at`

// CreateMessage persists a message under its caller-supplied uuid.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var stored models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (uuid, chat_id, author_id, message_type, text, attachments)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+messageColumns,
		msg.UUID, msg.ChatID, msg.AuthorID, msg.Type, msg.Text, msg.Attachments,
	).StructScan(&stored)
	return stored, err
}

// GetMessage retrieves a single message by uuid.
func (r *MessageRepo) GetMessage(ctx context.Context, uuid string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE uuid=$1 AND deleted = FALSE`, uuid)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListChatMessages returns chat history in send order.
func (r *MessageRepo) ListChatMessages(ctx context.Context, chatID, limit, offset int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE chat_id=$1 AND deleted = FALSE
         ORDER BY created_at ASC LIMIT $2 OFFSET $3`, chatID, limit, offset)
	return msgs, err
}

// MarkReadBefore upserts read stats for every foreign message in the chat sent
// at or before upTo. Repeating the call is harmless: the flag only ever moves
// towards read.
func (r *MessageRepo) MarkReadBefore(ctx context.Context, chatID, readerID int, upTo time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO message_stats (message_uuid, user_id, is_read)
         SELECT m.uuid, $2, TRUE FROM messages m
         WHERE m.chat_id=$1 AND m.deleted = FALSE AND m.created_at <= $3
           AND (m.author_id IS NULL OR m.author_id <> $2)
         ON CONFLICT (message_uuid, user_id) DO UPDATE SET is_read = TRUE`,
		chatID, readerID, upTo)
	return err
}

// SetReadAt stamps the message's global first-read time. The first reader
// wins; subsequent calls leave the original timestamp and return false.
func (r *MessageRepo) SetReadAt(ctx context.Context, uuid string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET read_at=$2 WHERE uuid=$1 AND read_at IS NULL`, uuid, at)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UnreadCount counts chat messages the user has not read and did not author.
func (r *MessageRepo) UnreadCount(ctx context.Context, chatID, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages m
         LEFT JOIN message_stats s ON s.message_uuid = m.uuid AND s.user_id=$2 AND s.is_read = TRUE
         WHERE m.chat_id=$1 AND m.deleted = FALSE
           AND (m.author_id IS NULL OR m.author_id <> $2)
           AND s.message_uuid IS NULL`, chatID, userID)
	return count, err
}

// FirstUnread returns the oldest unread foreign message, or nil when caught up.
func (r *MessageRepo) FirstUnread(ctx context.Context, chatID, userID int) (*models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumnsPrefixed+` FROM messages m
         LEFT JOIN message_stats s ON s.message_uuid = m.uuid AND s.user_id=$2 AND s.is_read = TRUE
         WHERE m.chat_id=$1 AND m.deleted = FALSE
           AND (m.author_id IS NULL OR m.author_id <> $2)
           AND s.message_uuid IS NULL
         ORDER BY m.created_at ASC LIMIT 1`, chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// TotalUnread aggregates unread counts across the chats visible to the user,
// applying the manager filter (only actively handled or human-requested chats
// count for managers).
func (r *MessageRepo) TotalUnread(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages m
         JOIN chats c ON c.id = m.chat_id AND c.deleted = FALSE
         JOIN chat_users cu ON cu.chat_id = c.id AND cu.user_id=$1
         LEFT JOIN message_stats s ON s.message_uuid = m.uuid AND s.user_id=$1 AND s.is_read = TRUE
         WHERE m.deleted = FALSE
           AND (m.author_id IS NULL OR m.author_id <> $1)
           AND s.message_uuid IS NULL
           AND (cu.is_manager = FALSE OR cu.is_active_manager = TRUE OR c.state = $2)`,
		userID, models.ChatStateNeedManager)
	return count, err
}

const messageColumnsPrefixed = `m.uuid, m.chat_id, m.author_id, m.message_type, m.text, m.attachments, m.read_at, m.deleted, m.created_at`

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"giberno-chat-service/internal/models"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrNotInChat    = errors.New("user is not a chat participant")
)

// ChatRepository abstracts chat and membership persistence.
type ChatRepository interface {
	CreateOrGetChat(ctx context.Context, subjectUserID int, target models.ChatTarget) (models.Chat, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	GetChatUser(ctx context.Context, chatID, userID int) (models.ChatUser, error)
	Participants(ctx context.Context, chatID int) ([]models.ChatUser, error)
	AddParticipants(ctx context.Context, chatID int, userIDs []int, asManagers bool) error
	ListChatsForUser(ctx context.Context, userID int) ([]models.Chat, error)
	SetState(ctx context.Context, chatID int, state models.ChatState) error
	SetActiveManager(ctx context.Context, chatID, userID int, active bool) error
	ClearActiveManagers(ctx context.Context, chatID int) error
	ActiveManagerIDs(ctx context.Context, chatID int) ([]int, error)
	BlockChatForUser(ctx context.Context, chatID, userID int) error
	UnblockChatForUser(ctx context.Context, chatID, userID int) error
	IdleChats(ctx context.Context, cutoff time.Time) ([]models.Chat, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, title, subject_user_id, target_kind, target_id, state, deleted, created_at`

// CreateOrGetChat returns the existing chat for (subject, target) or creates one
// with the subject enrolled as its first participant.
func (r *ChatRepo) CreateOrGetChat(ctx context.Context, subjectUserID int, target models.ChatTarget) (models.Chat, error) {
	var chat models.Chat
	query := `SELECT ` + chatColumns + ` FROM chats
        WHERE subject_user_id=$1 AND target_kind=$2 AND COALESCE(target_id, 0)=$3 AND deleted = FALSE`
	err := r.db.GetContext(ctx, &chat, query, subjectUserID, target.Kind, target.ID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, err
	}

	var targetID *int
	if target.Kind != models.TargetNone {
		targetID = &target.ID
	}
	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO chats (subject_user_id, target_kind, target_id) VALUES ($1, $2, $3)
         RETURNING `+chatColumns,
		subjectUserID, target.Kind, targetID,
	).StructScan(&chat)
	if err != nil {
		return models.Chat{}, err
	}

	if err := r.AddParticipants(ctx, chat.ID, []int{subjectUserID}, false); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// GetChat fetches a chat by id; soft-deleted chats are treated as absent.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`SELECT `+chatColumns+` FROM chats WHERE id=$1 AND deleted = FALSE`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// GetChatUser fetches the membership row for one user.
func (r *ChatRepo) GetChatUser(ctx context.Context, chatID, userID int) (models.ChatUser, error) {
	var cu models.ChatUser
	err := r.db.GetContext(ctx, &cu,
		`SELECT chat_id, user_id, is_manager, is_active_manager, blocked_at
         FROM chat_users WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatUser{}, ErrNotInChat
	}
	return cu, err
}

// Participants lists all membership rows of a chat.
func (r *ChatRepo) Participants(ctx context.Context, chatID int) ([]models.ChatUser, error) {
	var users []models.ChatUser
	err := r.db.SelectContext(ctx, &users,
		`SELECT chat_id, user_id, is_manager, is_active_manager, blocked_at
         FROM chat_users WHERE chat_id=$1 ORDER BY user_id`, chatID)
	return users, err
}

// AddParticipants enrolls users into a chat. The union is idempotent: existing
// rows are left untouched except that a plain participant can be promoted to
// manager, never demoted.
func (r *ChatRepo) AddParticipants(ctx context.Context, chatID int, userIDs []int, asManagers bool) error {
	for _, userID := range userIDs {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO chat_users (chat_id, user_id, is_manager) VALUES ($1, $2, $3)
             ON CONFLICT (chat_id, user_id) DO UPDATE SET is_manager = chat_users.is_manager OR EXCLUDED.is_manager`,
			chatID, userID, asManagers)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListChatsForUser returns the chats visible to the user. Managers only see
// chats they are actively handling or where a human has been requested.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID int) ([]models.Chat, error) {
	query := `SELECT c.id, c.title, c.subject_user_id, c.target_kind, c.target_id, c.state, c.deleted, c.created_at
        FROM chats c
        JOIN chat_users cu ON cu.chat_id = c.id AND cu.user_id=$1
        WHERE c.deleted = FALSE
          AND (cu.is_manager = FALSE OR cu.is_active_manager = TRUE OR c.state = $2)
        ORDER BY c.created_at DESC`
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, query, userID, models.ChatStateNeedManager)
	return chats, err
}

// SetState updates the chat state. Last writer wins on concurrent transitions;
// the following state broadcast is authoritative for clients.
func (r *ChatRepo) SetState(ctx context.Context, chatID int, state models.ChatState) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET state=$2 WHERE id=$1 AND deleted = FALSE`, chatID, state)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}

// SetActiveManager flips the active flag for one manager participant.
func (r *ChatRepo) SetActiveManager(ctx context.Context, chatID, userID int, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_users SET is_active_manager=$3 WHERE chat_id=$1 AND user_id=$2 AND is_manager = TRUE`,
		chatID, userID, active)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotInChat
	}
	return nil
}

// ClearActiveManagers resets the active-managers set of a chat.
func (r *ChatRepo) ClearActiveManagers(ctx context.Context, chatID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_users SET is_active_manager = FALSE WHERE chat_id=$1`, chatID)
	return err
}

// ActiveManagerIDs returns ids of managers currently engaged in the chat.
func (r *ChatRepo) ActiveManagerIDs(ctx context.Context, chatID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM chat_users WHERE chat_id=$1 AND is_active_manager = TRUE ORDER BY user_id`,
		chatID)
	return ids, err
}

// BlockChatForUser records the block timestamp for a participant.
func (r *ChatRepo) BlockChatForUser(ctx context.Context, chatID, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_users SET blocked_at = NOW() WHERE chat_id=$1 AND user_id=$2 AND blocked_at IS NULL`,
		chatID, userID)
	if err != nil {
		return err
	}
	_, err = res.RowsAffected()
	return err
}

// UnblockChatForUser clears the block timestamp for a participant.
func (r *ChatRepo) UnblockChatForUser(ctx context.Context, chatID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_users SET blocked_at = NULL WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	return err
}

// IdleChats selects manager-handled chats whose newest message (or creation
// time, for empty chats) is older than the cutoff. Timestamps are truncated to
// millisecond precision to match storage granularity.
func (r *ChatRepo) IdleChats(ctx context.Context, cutoff time.Time) ([]models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats c
        WHERE c.deleted = FALSE
          AND c.state IN ($1, $2)
          AND date_trunc('milliseconds', COALESCE(
                (SELECT MAX(m.created_at) FROM messages m WHERE m.chat_id = c.id AND m.deleted = FALSE),
                c.created_at)) < $3`
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, query,
		models.ChatStateNeedManager, models.ChatStateManagerConnected, cutoff.Truncate(time.Millisecond))
	return chats, err
}

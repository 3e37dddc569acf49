package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"giberno-chat-service/internal/models"
)

// PushTokenRepository serves device tokens and notification preferences.
type PushTokenRepository interface {
	TokensForUser(ctx context.Context, userID int) ([]models.PushToken, error)
	SettingsForUser(ctx context.Context, userID int) (models.NotificationSettings, error)
}

// PushTokenRepo is a sqlx implementation of PushTokenRepository.
type PushTokenRepo struct {
	db *sqlx.DB
}

// NewPushTokenRepo constructs a PushTokenRepo.
func NewPushTokenRepo(db *sqlx.DB) *PushTokenRepo {
	return &PushTokenRepo{db: db}
}

// TokensForUser lists the user's registered device tokens.
func (r *PushTokenRepo) TokensForUser(ctx context.Context, userID int) ([]models.PushToken, error) {
	var tokens []models.PushToken
	err := r.db.SelectContext(ctx, &tokens,
		`SELECT id, user_id, token, platform FROM push_tokens WHERE user_id=$1 ORDER BY id`, userID)
	return tokens, err
}

// SettingsForUser returns the user's notification preferences. Users without a
// stored row get every category enabled with sound on.
func (r *PushTokenRepo) SettingsForUser(ctx context.Context, userID int) (models.NotificationSettings, error) {
	row := struct {
		UserID       int            `db:"user_id"`
		EnabledTypes pq.StringArray `db:"enabled_types"`
		SoundTypes   pq.StringArray `db:"sound_types"`
	}{}
	err := r.db.GetContext(ctx, &row,
		`SELECT user_id, enabled_types, sound_types FROM notification_settings WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		allTypes := []string{models.NotificationTypeChat, models.NotificationTypeSystem}
		return models.NotificationSettings{
			UserID:       userID,
			EnabledTypes: allTypes,
			SoundTypes:   allTypes,
		}, nil
	}
	if err != nil {
		return models.NotificationSettings{}, err
	}
	return models.NotificationSettings{
		UserID:       row.UserID,
		EnabledTypes: []string(row.EnabledTypes),
		SoundTypes:   []string(row.SoundTypes),
	}, nil
}

package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return database, nil
}

func runMigrations(database *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chats (
            id SERIAL PRIMARY KEY,
            title TEXT,
            subject_user_id INT NOT NULL,
            target_kind TEXT NOT NULL DEFAULT '',
            target_id INT,
            state TEXT NOT NULL DEFAULT 'bot_is_used',
            deleted BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS chats_subject_target_idx
            ON chats (subject_user_id, target_kind, COALESCE(target_id, 0))
            WHERE deleted = FALSE;`,
		`CREATE TABLE IF NOT EXISTS chat_users (
            chat_id INT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            user_id INT NOT NULL,
            is_manager BOOLEAN NOT NULL DEFAULT FALSE,
            is_active_manager BOOLEAN NOT NULL DEFAULT FALSE,
            blocked_at TIMESTAMPTZ,
            PRIMARY KEY (chat_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            uuid UUID PRIMARY KEY,
            chat_id INT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            author_id INT,
            message_type TEXT NOT NULL DEFAULT 'simple',
            text TEXT NOT NULL DEFAULT '',
            attachments JSONB NOT NULL DEFAULT '[]',
            read_at TIMESTAMPTZ,
            deleted BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS messages_chat_created_idx ON messages (chat_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS message_stats (
            message_uuid UUID NOT NULL REFERENCES messages(uuid) ON DELETE CASCADE,
            user_id INT NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            PRIMARY KEY (message_uuid, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS shops (
            id SERIAL PRIMARY KEY,
            title TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS shop_staff (
            shop_id INT NOT NULL REFERENCES shops(id) ON DELETE CASCADE,
            user_id INT NOT NULL,
            PRIMARY KEY (shop_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS vacancies (
            id SERIAL PRIMARY KEY,
            shop_id INT NOT NULL REFERENCES shops(id) ON DELETE CASCADE,
            title TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS push_tokens (
            id SERIAL PRIMARY KEY,
            user_id INT NOT NULL,
            token TEXT NOT NULL,
            platform TEXT NOT NULL,
            UNIQUE (user_id, token)
        );`,
		`CREATE TABLE IF NOT EXISTS notification_settings (
            user_id INT PRIMARY KEY,
            enabled_types TEXT[] NOT NULL DEFAULT '{chat,system}',
            sound_types TEXT[] NOT NULL DEFAULT '{chat,system}'
        );`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	log.Info().Msg("database migrations applied")
	return nil
}

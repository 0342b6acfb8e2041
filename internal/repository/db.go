package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// schema is applied at startup. Statements are idempotent so restarting the
// server against an existing database is safe.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_name     VARCHAR(255) NOT NULL,
		email         VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(512) NOT NULL,
		created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS chats (
		id         BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT NOT NULL,
		title      VARCHAR(255) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		CONSTRAINT fk_chats_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		INDEX idx_chats_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         BIGINT AUTO_INCREMENT PRIMARY KEY,
		chat_id    BIGINT NOT NULL,
		sender     ENUM('user', 'ai') NOT NULL,
		content    TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		CONSTRAINT fk_messages_chat FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE,
		INDEX idx_messages_chat (chat_id)
	)`,
}

// NewDB creates a new MySQL database connection pool with the given DSN and
// applies the schema.
func NewDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("database ping: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}

	return db, nil
}

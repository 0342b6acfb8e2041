package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dataground/dataground-go/internal/model"
)

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrMessageNotFound = errors.New("message not found")
)

const messageColumns = `id, chat_id, sender, content, created_at`

// ChatRepository handles chat and message persistence operations.
type ChatRepository struct {
	db *sql.DB
}

// NewChatRepository creates a new ChatRepository.
func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateChat inserts a new chat and sets the generated ID and creation time
// on the chat struct.
func (r *ChatRepository) CreateChat(ctx context.Context, chat *model.Chat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO chats (user_id, title, created_at) VALUES (?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query, chat.UserID, chat.Title, chat.CreatedAt)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	chat.ID = id
	return nil
}

// CreateChatWithFirstMessage inserts a chat and its first user message in a
// single transaction. Both rows share one creation timestamp so the pair is
// never observed half-committed or out of order.
func (r *ChatRepository) CreateChatWithFirstMessage(ctx context.Context, chat *model.Chat, msg *model.Message) error {
	now := time.Now().UTC()
	chat.CreatedAt = now
	msg.CreatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO chats (user_id, title, created_at) VALUES (?, ?, ?)`,
		chat.UserID, chat.Title, chat.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting chat: %w", err)
	}
	chatID, err := result.LastInsertId()
	if err != nil {
		return err
	}
	chat.ID = chatID
	msg.ChatID = chatID

	result, err = tx.ExecContext(ctx,
		`INSERT INTO messages (chat_id, sender, content, created_at) VALUES (?, ?, ?, ?)`,
		msg.ChatID, msg.Sender, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting first message: %w", err)
	}
	msgID, err := result.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = msgID

	return tx.Commit()
}

// ListByUser retrieves all chats owned by a user in insertion order.
func (r *ChatRepository) ListByUser(ctx context.Context, userID int64) ([]model.Chat, error) {
	query := `SELECT id, user_id, title, created_at FROM chats WHERE user_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []model.Chat
	for rows.Next() {
		var c model.Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}

	return chats, rows.Err()
}

// GetOwned retrieves a chat by ID scoped to its owner. A chat that does not
// exist and a chat owned by someone else both return ErrChatNotFound; the
// two cases must stay indistinguishable to callers.
func (r *ChatRepository) GetOwned(ctx context.Context, chatID, userID int64) (*model.Chat, error) {
	query := `SELECT id, user_id, title, created_at FROM chats WHERE id = ? AND user_id = ?`

	chat := &model.Chat{}
	err := r.db.QueryRowContext(ctx, query, chatID, userID).Scan(
		&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}

	return chat, nil
}

// UpdateTitle sets a chat's title, scoped to its owner like every other
// write. MySQL reports zero affected rows both for a missing row and for a
// no-op rename to the identical title, so the zero case falls back to a
// scoped existence check before reporting ErrChatNotFound.
func (r *ChatRepository) UpdateTitle(ctx context.Context, chatID, userID int64, title string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE chats SET title = ? WHERE id = ? AND user_id = ?`,
		title, chatID, userID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var one int
	err = r.db.QueryRowContext(ctx,
		`SELECT 1 FROM chats WHERE id = ? AND user_id = ?`, chatID, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrChatNotFound
	}
	return err
}

// InsertMessage appends a message to a chat's log and sets the generated ID
// and creation time on the message struct.
func (r *ChatRepository) InsertMessage(ctx context.Context, msg *model.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO messages (chat_id, sender, content, created_at) VALUES (?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query, msg.ChatID, msg.Sender, msg.Content, msg.CreatedAt)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	msg.ID = id
	return nil
}

// ListMessages retrieves a chat's messages in creation order.
func (r *ChatRepository) ListMessages(ctx context.Context, chatID int64) ([]model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id = ? ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// LastUserMessage retrieves the most recent user-sent message in a chat,
// scanning from the newest message backward. Returns ErrMessageNotFound when
// the chat has no user messages.
func (r *ChatRepository) LastUserMessage(ctx context.Context, chatID int64) (*model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE chat_id = ? AND sender = ? ORDER BY created_at DESC, id DESC LIMIT 1`

	msg := &model.Message{}
	err := r.db.QueryRowContext(ctx, query, chatID, model.SenderUser).Scan(
		&msg.ID, &msg.ChatID, &msg.Sender, &msg.Content, &msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}

	return msg, nil
}

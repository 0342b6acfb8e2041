package model

import "time"

// Sender roles for chat messages. The set is closed: messages are written
// either by the authenticated user or by the AI agent.
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Chat represents a conversation owned by a single user.
type Chat struct {
	ID        int64
	UserID    int64
	Title     string
	CreatedAt time.Time
}

// Message represents a single entry in a chat's append-only message log.
type Message struct {
	ID        int64
	ChatID    int64
	Sender    string
	Content   string
	CreatedAt time.Time
}

// CreateChatRequest represents a chat creation request.
type CreateChatRequest struct {
	Title string `json:"title"`
}

// UpdateTitleRequest represents a chat rename request.
type UpdateTitleRequest struct {
	Title string `json:"title"`
}

// SendMessageRequest represents a user message appended to a chat.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// FirstMessageRequest creates a chat together with its first user message.
type FirstMessageRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ChatResponse represents a chat in API responses.
type ChatResponse struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatWithMessageResponse is returned when a chat and its first message are
// created in one call.
type ChatWithMessageResponse struct {
	Chat    ChatResponse    `json:"chat"`
	Message MessageResponse `json:"message"`
}

// ChatView converts a Chat to its API representation.
func ChatView(c *Chat) ChatResponse {
	return ChatResponse{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt}
}

// MessageView converts a Message to its API representation.
func MessageView(m *Message) MessageResponse {
	return MessageResponse{ID: m.ID, Sender: m.Sender, Content: m.Content, CreatedAt: m.CreatedAt}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dataground/dataground-go/internal/agent"
	"github.com/dataground/dataground-go/internal/model"
	"github.com/dataground/dataground-go/internal/repository"
)

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrTitleRequired   = errors.New("title is required")
	ErrContentRequired = errors.New("content is required")
)

// noUserMessageReply is stored when a reply is requested for a chat that has
// no user messages to respond to. The gateway is not called in that case.
const noUserMessageReply = "I don't see any user messages to respond to."

// ChatStore is the persistence interface the chat service depends on.
// *repository.ChatRepository satisfies it.
type ChatStore interface {
	CreateChat(ctx context.Context, chat *model.Chat) error
	CreateChatWithFirstMessage(ctx context.Context, chat *model.Chat, msg *model.Message) error
	ListByUser(ctx context.Context, userID int64) ([]model.Chat, error)
	GetOwned(ctx context.Context, chatID, userID int64) (*model.Chat, error)
	UpdateTitle(ctx context.Context, chatID, userID int64, title string) error
	InsertMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, chatID int64) ([]model.Message, error)
	LastUserMessage(ctx context.Context, chatID int64) (*model.Message, error)
}

// ChatService enforces that all chat and message access is scoped to the
// authenticated caller. Every operation that touches an existing chat runs
// the ownership check first; a chat owned by another user is reported the
// same way as a chat that does not exist.
type ChatService struct {
	chats        ChatStore
	gateway      agent.Gateway
	agentTimeout time.Duration
}

// NewChatService creates a new ChatService. The gateway is injected so tests
// can substitute a fake.
func NewChatService(chats ChatStore, gateway agent.Gateway, agentTimeout time.Duration) *ChatService {
	return &ChatService{
		chats:        chats,
		gateway:      gateway,
		agentTimeout: agentTimeout,
	}
}

// ListChats returns the caller's chats in insertion order.
func (s *ChatService) ListChats(ctx context.Context, userID int64) ([]model.ChatResponse, error) {
	chats, err := s.chats.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]model.ChatResponse, 0, len(chats))
	for i := range chats {
		out = append(out, model.ChatView(&chats[i]))
	}
	return out, nil
}

// CreateChat creates an empty chat owned by the caller.
func (s *ChatService) CreateChat(ctx context.Context, userID int64, req model.CreateChatRequest) (model.ChatResponse, error) {
	if req.Title == "" {
		return model.ChatResponse{}, ErrTitleRequired
	}

	chat := &model.Chat{UserID: userID, Title: req.Title}
	if err := s.chats.CreateChat(ctx, chat); err != nil {
		return model.ChatResponse{}, err
	}

	return model.ChatView(chat), nil
}

// CreateChatWithFirstMessage creates a chat and its first user message in one
// atomic step; both carry the same creation timestamp.
func (s *ChatService) CreateChatWithFirstMessage(ctx context.Context, userID int64, req model.FirstMessageRequest) (model.ChatWithMessageResponse, error) {
	if req.Title == "" {
		return model.ChatWithMessageResponse{}, ErrTitleRequired
	}
	if req.Content == "" {
		return model.ChatWithMessageResponse{}, ErrContentRequired
	}

	chat := &model.Chat{UserID: userID, Title: req.Title}
	msg := &model.Message{Sender: model.SenderUser, Content: req.Content}
	if err := s.chats.CreateChatWithFirstMessage(ctx, chat, msg); err != nil {
		return model.ChatWithMessageResponse{}, err
	}

	return model.ChatWithMessageResponse{
		Chat:    model.ChatView(chat),
		Message: model.MessageView(msg),
	}, nil
}

// GetMessages returns a chat's messages in creation order.
func (s *ChatService) GetMessages(ctx context.Context, userID, chatID int64) ([]model.MessageResponse, error) {
	if _, err := s.ownedChat(ctx, chatID, userID); err != nil {
		return nil, err
	}

	messages, err := s.chats.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}

	out := make([]model.MessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, model.MessageView(&messages[i]))
	}
	return out, nil
}

// RenameChat updates a chat's title.
func (s *ChatService) RenameChat(ctx context.Context, userID, chatID int64, req model.UpdateTitleRequest) (model.ChatResponse, error) {
	if req.Title == "" {
		return model.ChatResponse{}, ErrTitleRequired
	}

	chat, err := s.ownedChat(ctx, chatID, userID)
	if err != nil {
		return model.ChatResponse{}, err
	}

	if err := s.chats.UpdateTitle(ctx, chatID, userID, req.Title); err != nil {
		return model.ChatResponse{}, err
	}
	chat.Title = req.Title

	return model.ChatView(chat), nil
}

// SendMessage appends a user message to the chat, then requests and stores
// the assistant's reply to it. The stored assistant message is returned; the
// caller ends up with exactly two new messages in creation order.
func (s *ChatService) SendMessage(ctx context.Context, userID, chatID int64, req model.SendMessageRequest) (model.MessageResponse, error) {
	if req.Content == "" {
		return model.MessageResponse{}, ErrContentRequired
	}

	if _, err := s.ownedChat(ctx, chatID, userID); err != nil {
		return model.MessageResponse{}, err
	}

	userMsg := &model.Message{ChatID: chatID, Sender: model.SenderUser, Content: req.Content}
	if err := s.chats.InsertMessage(ctx, userMsg); err != nil {
		return model.MessageResponse{}, err
	}

	return s.storeReply(ctx, chatID, userMsg.Content)
}

// RegenerateReply requests and stores an assistant reply to the most recent
// user message in the chat. A chat with no user messages still receives a
// stored assistant message with a fixed fallback text.
func (s *ChatService) RegenerateReply(ctx context.Context, userID, chatID int64) (model.MessageResponse, error) {
	if _, err := s.ownedChat(ctx, chatID, userID); err != nil {
		return model.MessageResponse{}, err
	}

	last, err := s.chats.LastUserMessage(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return s.storeAIMessage(ctx, chatID, noUserMessageReply)
		}
		return model.MessageResponse{}, err
	}

	return s.storeReply(ctx, chatID, last.Content)
}

// storeReply asks the gateway for a reply to prompt and stores it as an AI
// message. Gateway failures (including timeout) are downgraded to a stored
// error-text message so the conversation always receives an assistant reply.
// No storage transaction is held while the gateway call is in flight.
func (s *ChatService) storeReply(ctx context.Context, chatID int64, prompt string) (model.MessageResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.agentTimeout)
	defer cancel()

	content, err := s.gateway.Reply(callCtx, prompt)
	if err != nil {
		slog.Warn("agent gateway failed, storing fallback reply", "chat_id", chatID, "error", err)
		content = fmt.Sprintf("[AI Error: %v]", err)
	}

	return s.storeAIMessage(ctx, chatID, content)
}

func (s *ChatService) storeAIMessage(ctx context.Context, chatID int64, content string) (model.MessageResponse, error) {
	msg := &model.Message{ChatID: chatID, Sender: model.SenderAI, Content: content}
	if err := s.chats.InsertMessage(ctx, msg); err != nil {
		return model.MessageResponse{}, err
	}
	return model.MessageView(msg), nil
}

// ownedChat is the single ownership predicate: it resolves a chat only when
// it exists and belongs to userID, and maps both absence and foreign
// ownership to ErrChatNotFound.
func (s *ChatService) ownedChat(ctx context.Context, chatID, userID int64) (*model.Chat, error) {
	chat, err := s.chats.GetOwned(ctx, chatID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrChatNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return chat, nil
}

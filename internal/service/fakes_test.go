package service

import (
	"context"
	"time"

	"github.com/dataground/dataground-go/internal/model"
	"github.com/dataground/dataground-go/internal/repository"
)

// fakeUserStore is an in-memory UserStore for tests.
type fakeUserStore struct {
	nextID int64
	users  map[int64]*model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[int64]*model.User)}
}

func (s *fakeUserStore) Create(_ context.Context, user *model.User) error {
	for _, u := range s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	s.nextID++
	user.ID = s.nextID
	user.CreatedAt = time.Now().UTC()
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *fakeUserStore) GetByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

// fakeChatStore is an in-memory ChatStore for tests. Messages are kept in
// insertion order, which matches the repository's creation-order contract.
type fakeChatStore struct {
	nextChatID int64
	nextMsgID  int64
	chats      map[int64]*model.Chat
	messages   []model.Message
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{chats: make(map[int64]*model.Chat)}
}

func (s *fakeChatStore) CreateChat(_ context.Context, chat *model.Chat) error {
	s.nextChatID++
	chat.ID = s.nextChatID
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	clone := *chat
	s.chats[chat.ID] = &clone
	return nil
}

func (s *fakeChatStore) CreateChatWithFirstMessage(ctx context.Context, chat *model.Chat, msg *model.Message) error {
	now := time.Now().UTC()
	chat.CreatedAt = now
	if err := s.CreateChat(ctx, chat); err != nil {
		return err
	}
	msg.ChatID = chat.ID
	msg.CreatedAt = now
	s.nextMsgID++
	msg.ID = s.nextMsgID
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *fakeChatStore) ListByUser(_ context.Context, userID int64) ([]model.Chat, error) {
	var out []model.Chat
	for id := int64(1); id <= s.nextChatID; id++ {
		if c, ok := s.chats[id]; ok && c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeChatStore) GetOwned(_ context.Context, chatID, userID int64) (*model.Chat, error) {
	c, ok := s.chats[chatID]
	if !ok || c.UserID != userID {
		return nil, repository.ErrChatNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *fakeChatStore) UpdateTitle(_ context.Context, chatID, userID int64, title string) error {
	c, ok := s.chats[chatID]
	if !ok || c.UserID != userID {
		return repository.ErrChatNotFound
	}
	c.Title = title
	return nil
}

func (s *fakeChatStore) InsertMessage(_ context.Context, msg *model.Message) error {
	s.nextMsgID++
	msg.ID = s.nextMsgID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *fakeChatStore) ListMessages(_ context.Context, chatID int64) ([]model.Message, error) {
	var out []model.Message
	for _, m := range s.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeChatStore) LastUserMessage(_ context.Context, chatID int64) (*model.Message, error) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.ChatID == chatID && m.Sender == model.SenderUser {
			return &m, nil
		}
	}
	return nil, repository.ErrMessageNotFound
}

// fakeGateway is an agent.Gateway whose behavior is set per test.
type fakeGateway struct {
	reply func(ctx context.Context, prompt string) (string, error)
}

func (g *fakeGateway) Reply(ctx context.Context, prompt string) (string, error) {
	return g.reply(ctx, prompt)
}

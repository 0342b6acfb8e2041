package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dataground/dataground-go/internal/middleware"
	"github.com/dataground/dataground-go/internal/model"
	"github.com/dataground/dataground-go/internal/repository"
	"github.com/dataground/dataground-go/internal/service"
)

// In-memory stores backing the handler tests. They mirror the repository
// contracts: sentinel errors, insertion order, ownership-scoped lookups.

type memUserStore struct {
	nextID int64
	users  []*model.User
}

func (s *memUserStore) Create(_ context.Context, user *model.User) error {
	for _, u := range s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	s.nextID++
	user.ID = s.nextID
	user.CreatedAt = time.Now().UTC()
	clone := *user
	s.users = append(s.users, &clone)
	return nil
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *memUserStore) GetByID(_ context.Context, id int64) (*model.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type memChatStore struct {
	nextChatID int64
	nextMsgID  int64
	chats      []*model.Chat
	messages   []model.Message
}

func (s *memChatStore) CreateChat(_ context.Context, chat *model.Chat) error {
	s.nextChatID++
	chat.ID = s.nextChatID
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	clone := *chat
	s.chats = append(s.chats, &clone)
	return nil
}

func (s *memChatStore) CreateChatWithFirstMessage(ctx context.Context, chat *model.Chat, msg *model.Message) error {
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

func (s *memChatStore) ListByUser(_ context.Context, userID int64) ([]model.Chat, error) {
	var out []model.Chat
	for _, c := range s.chats {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *memChatStore) GetOwned(_ context.Context, chatID, userID int64) (*model.Chat, error) {
	for _, c := range s.chats {
		if c.ID == chatID && c.UserID == userID {
			clone := *c
			return &clone, nil
		}
	}
	return nil, repository.ErrChatNotFound
}

func (s *memChatStore) UpdateTitle(_ context.Context, chatID, userID int64, title string) error {
	for _, c := range s.chats {
		if c.ID == chatID && c.UserID == userID {
			c.Title = title
			return nil
		}
	}
	return repository.ErrChatNotFound
}

func (s *memChatStore) InsertMessage(_ context.Context, msg *model.Message) error {
	s.nextMsgID++
	msg.ID = s.nextMsgID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *memChatStore) ListMessages(_ context.Context, chatID int64) ([]model.Message, error) {
	var out []model.Message
	for _, m := range s.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memChatStore) LastUserMessage(_ context.Context, chatID int64) (*model.Message, error) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.ChatID == chatID && m.Sender == model.SenderUser {
			return &m, nil
		}
	}
	return nil, repository.ErrMessageNotFound
}

type stubGateway struct {
	reply func(ctx context.Context, prompt string) (string, error)
}

func (g *stubGateway) Reply(ctx context.Context, prompt string) (string, error) {
	return g.reply(ctx, prompt)
}

const testSecret = "test-secret"

// newTestRouter wires the full route table the way cmd/api does, backed by
// in-memory stores and the given gateway.
func newTestRouter(t *testing.T, gw *stubGateway) http.Handler {
	t.Helper()

	users := &memUserStore{}
	chats := &memChatStore{}

	authService := service.NewAuthService(users, testSecret, time.Hour)
	chatService := service.NewChatService(chats, gw, time.Second)
	uploadService, err := service.NewUploadService(t.TempDir())
	if err != nil {
		t.Fatalf("NewUploadService() unexpected error: %v", err)
	}

	authHandler := NewAuthHandler(authService)
	chatHandler := NewChatHandler(chatService)
	uploadHandler := NewUploadHandler(uploadService)

	r := chi.NewRouter()
	r.Post("/auth/signup", authHandler.HandleSignup)
	r.Post("/auth/login", authHandler.HandleLogin)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(testSecret, users))
		r.Get("/auth/me", authHandler.HandleMe)
		r.Route("/chat/chats", func(r chi.Router) {
			r.Get("/", chatHandler.HandleListChats)
			r.Post("/", chatHandler.HandleCreateChat)
			r.Post("/first", chatHandler.HandleCreateChatWithFirstMessage)
			r.Get("/{id}/messages", chatHandler.HandleGetMessages)
			r.Post("/{id}/messages", chatHandler.HandleSendMessage)
			r.Post("/{id}/ai_response", chatHandler.HandleRegenerateReply)
			r.Patch("/{id}/title", chatHandler.HandleRenameChat)
		})
		r.Post("/files/upload", uploadHandler.HandleUpload)
	})

	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func signupAndLogin(t *testing.T, h http.Handler, name, email, password string) string {
	t.Helper()

	rec := doJSON(t, h, http.MethodPost, "/auth/signup", "", model.SignupRequest{
		UserName: name, Email: email, Password: password, ConfirmPassword: password,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/auth/login", "", model.LoginRequest{Email: email, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}

	return decodeBody[model.TokenResponse](t, rec).AccessToken
}

func echoStub() *stubGateway {
	return &stubGateway{reply: func(_ context.Context, prompt string) (string, error) {
		return "echo: " + prompt, nil
	}}
}

func TestAuthFlow(t *testing.T) {
	h := newTestRouter(t, echoStub())

	token := signupAndLogin(t, h, "alice", "a@x.com", "secret1")

	rec := doJSON(t, h, http.MethodGet, "/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, body %s", rec.Code, rec.Body.String())
	}
	me := decodeBody[model.UserResponse](t, rec)
	if me.UserName != "alice" || me.Email != "a@x.com" {
		t.Errorf("me = %+v, want alice/a@x.com", me)
	}

	// Without a token the same endpoint is a generic 401.
	rec = doJSON(t, h, http.MethodGet, "/auth/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("me without token status = %d, want 401", rec.Code)
	}
}

func TestSignupRejections(t *testing.T) {
	h := newTestRouter(t, echoStub())

	rec := doJSON(t, h, http.MethodPost, "/auth/signup", "", model.SignupRequest{
		UserName: "alice", Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d", rec.Code)
	}

	// Duplicate email.
	rec = doJSON(t, h, http.MethodPost, "/auth/signup", "", model.SignupRequest{
		UserName: "bob", Email: "a@x.com", Password: "other12", ConfirmPassword: "other12",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate email status = %d, want 400", rec.Code)
	}

	// Password mismatch.
	rec = doJSON(t, h, http.MethodPost, "/auth/signup", "", model.SignupRequest{
		UserName: "carol", Email: "c@x.com", Password: "secret1", ConfirmPassword: "secret2",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("password mismatch status = %d, want 400", rec.Code)
	}
}

func TestChatFlow(t *testing.T) {
	h := newTestRouter(t, echoStub())

	alice := signupAndLogin(t, h, "alice", "a@x.com", "secret1")
	bob := signupAndLogin(t, h, "bob", "b@x.com", "secret2")

	rec := doJSON(t, h, http.MethodPost, "/chat/chats", alice, model.CreateChatRequest{Title: "Trip plan"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create chat status = %d, body %s", rec.Code, rec.Body.String())
	}
	chat := decodeBody[model.ChatResponse](t, rec)

	// Bob probing Alice's chat sees 404, same as a chat that does not exist.
	for _, path := range []string{
		fmt.Sprintf("/chat/chats/%d/messages", chat.ID),
		"/chat/chats/9999/messages",
	} {
		rec = doJSON(t, h, http.MethodGet, path, bob, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s as bob status = %d, want 404", path, rec.Code)
		}
	}

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/chat/chats/%d/messages", chat.ID), alice,
		model.SendMessageRequest{Content: "Where should I go?"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send message status = %d, body %s", rec.Code, rec.Body.String())
	}
	reply := decodeBody[model.MessageResponse](t, rec)
	if reply.Sender != model.SenderAI || reply.Content != "echo: Where should I go?" {
		t.Errorf("reply = %+v, want ai echo", reply)
	}

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/chat/chats/%d/messages", chat.ID), alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get messages status = %d", rec.Code)
	}
	messages := decodeBody[[]model.MessageResponse](t, rec)
	if len(messages) != 2 || messages[0].Sender != model.SenderUser || messages[1].Sender != model.SenderAI {
		t.Errorf("messages = %+v, want user then ai", messages)
	}

	rec = doJSON(t, h, http.MethodPatch, fmt.Sprintf("/chat/chats/%d/title", chat.ID), alice,
		model.UpdateTitleRequest{Title: "Renamed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[model.ChatResponse](t, rec); got.Title != "Renamed" {
		t.Errorf("renamed title = %q, want %q", got.Title, "Renamed")
	}
}

func TestCreateChatWithFirstMessageEndpoint(t *testing.T) {
	h := newTestRouter(t, echoStub())
	alice := signupAndLogin(t, h, "alice", "a@x.com", "secret1")

	rec := doJSON(t, h, http.MethodPost, "/chat/chats/first", alice, model.FirstMessageRequest{
		Title: "Trip plan", Content: "Where should I go?",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("first status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[model.ChatWithMessageResponse](t, rec)
	if !resp.Chat.CreatedAt.Equal(resp.Message.CreatedAt) {
		t.Errorf("chat and first message timestamps differ: %v vs %v",
			resp.Chat.CreatedAt, resp.Message.CreatedAt)
	}

	rec = doJSON(t, h, http.MethodGet, "/chat/chats", alice, nil)
	chats := decodeBody[[]model.ChatResponse](t, rec)
	if len(chats) != 1 || chats[0].ID != resp.Chat.ID {
		t.Errorf("list chats = %+v, want the created chat", chats)
	}
}

func TestRegenerateReplyEndpointFallback(t *testing.T) {
	h := newTestRouter(t, echoStub())
	alice := signupAndLogin(t, h, "alice", "a@x.com", "secret1")

	rec := doJSON(t, h, http.MethodPost, "/chat/chats", alice, model.CreateChatRequest{Title: "Empty"})
	chat := decodeBody[model.ChatResponse](t, rec)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/chat/chats/%d/ai_response", chat.ID), alice, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ai_response status = %d, body %s", rec.Code, rec.Body.String())
	}
	reply := decodeBody[model.MessageResponse](t, rec)
	if reply.Content != "I don't see any user messages to respond to." {
		t.Errorf("fallback content = %q", reply.Content)
	}
}

func TestGatewayFailureStaysHTTP201(t *testing.T) {
	gw := &stubGateway{reply: func(context.Context, string) (string, error) {
		return "", fmt.Errorf("model unavailable")
	}}
	h := newTestRouter(t, gw)
	alice := signupAndLogin(t, h, "alice", "a@x.com", "secret1")

	rec := doJSON(t, h, http.MethodPost, "/chat/chats", alice, model.CreateChatRequest{Title: "Doomed"})
	chat := decodeBody[model.ChatResponse](t, rec)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/chat/chats/%d/messages", chat.ID), alice,
		model.SendMessageRequest{Content: "hello"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send message status = %d on gateway failure, want 201", rec.Code)
	}
	reply := decodeBody[model.MessageResponse](t, rec)
	if !strings.HasPrefix(reply.Content, "[AI Error: ") {
		t.Errorf("reply content = %q, want [AI Error: ...] form", reply.Content)
	}
}

func TestUploadEndpoint(t *testing.T) {
	h := newTestRouter(t, echoStub())
	alice := signupAndLogin(t, h, "alice", "a@x.com", "secret1")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	part.Write([]byte("field notes"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+alice)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[model.UploadResponse](t, rec)
	if resp.OriginalFilename != "notes.txt" {
		t.Errorf("original filename = %q, want %q", resp.OriginalFilename, "notes.txt")
	}
	if resp.Filename == "notes.txt" {
		t.Error("upload stored the client-supplied filename verbatim")
	}
	if resp.Size != int64(len("field notes")) {
		t.Errorf("size = %d, want %d", resp.Size, len("field notes"))
	}

	// Unauthenticated upload is rejected.
	req = httptest.NewRequest(http.MethodPost, "/files/upload", strings.NewReader(""))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated upload status = %d, want 401", rec.Code)
	}
}

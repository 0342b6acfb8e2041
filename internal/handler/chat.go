package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dataground/dataground-go/internal/middleware"
	"github.com/dataground/dataground-go/internal/model"
	"github.com/dataground/dataground-go/internal/service"
)

// ChatHandler handles HTTP requests for chats and messages.
type ChatHandler struct {
	service *service.ChatService
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc *service.ChatService) *ChatHandler {
	return &ChatHandler{service: svc}
}

// HandleListChats handles GET /chat/chats requests.
func (h *ChatHandler) HandleListChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("not authenticated"))
		return
	}

	chats, err := h.service.ListChats(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	writeJSON(w, http.StatusOK, chats)
}

// HandleCreateChat handles POST /chat/chats requests.
func (h *ChatHandler) HandleCreateChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("not authenticated"))
		return
	}

	var req model.CreateChatRequest
	if !decodeJSON(w, r, &req, 1<<20) {
		return
	}

	resp, err := h.service.CreateChat(r.Context(), userID, req)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// HandleCreateChatWithFirstMessage handles POST /chat/chats/first requests.
func (h *ChatHandler) HandleCreateChatWithFirstMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("not authenticated"))
		return
	}

	var req model.FirstMessageRequest
	if !decodeJSON(w, r, &req, 1<<20) {
		return
	}

	resp, err := h.service.CreateChatWithFirstMessage(r.Context(), userID, req)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// HandleGetMessages handles GET /chat/chats/{id}/messages requests.
func (h *ChatHandler) HandleGetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("not authenticated"))
		return
	}

	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	messages, err := h.service.GetMessages(r.Context(), userID, chatID)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// HandleSendMessage handles POST /chat/chats/{id}/messages requests. The
// user message is stored, then the assistant's stored reply is returned.
func (h *ChatHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("not authenticated"))
		return
	}

	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if !decodeJSON(w, r, &req, 1<<20) {
		return
	}

	resp, err := h.service.SendMessage(r.Context(), userID, chatID, req)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// HandleRegenerateReply handles POST /chat/chats/{id}/ai_response requests.
func (h *ChatHandler) HandleRegenerateReply(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("not authenticated"))
		return
	}

	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	resp, err := h.service.RegenerateReply(r.Context(), userID, chatID)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// HandleRenameChat handles PATCH /chat/chats/{id}/title requests.
func (h *ChatHandler) HandleRenameChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("not authenticated"))
		return
	}

	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	var req model.UpdateTitleRequest
	if !decodeJSON(w, r, &req, 1<<20) {
		return
	}

	resp, err := h.service.RenameChat(r.Context(), userID, chatID, req)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeChatError maps chat service errors to HTTP statuses. Ownership
// violations surface as 404, never 403.
func (h *ChatHandler) writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrChatNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrTitleRequired), errors.Is(err, service.ErrContentRequired):
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
	}
}

// chatIDParam parses the {id} URL parameter. A non-numeric ID cannot name any
// chat, so it reports not found rather than a validation error.
func chatIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusNotFound, errorResponse("chat not found"))
		return 0, false
	}
	return id, true
}

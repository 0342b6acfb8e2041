package handler

import (
	"net/http"

	"github.com/dataground/dataground-go/internal/middleware"
	"github.com/dataground/dataground-go/internal/service"
)

// maxUploadBytes caps multipart upload size.
const maxUploadBytes = 32 << 20 // 32MB

// UploadHandler handles HTTP requests for file uploads.
type UploadHandler struct {
	service *service.UploadService
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(svc *service.UploadService) *UploadHandler {
	return &UploadHandler{service: svc}
}

// HandleUpload handles POST /files/upload requests. Expects a multipart form
// with a "file" part.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserIDFromContext(r.Context()); !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("not authenticated"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("file is required"))
		return
	}
	defer file.Close()

	resp, err := h.service.Save(file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

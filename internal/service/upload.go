package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/dataground/dataground-go/internal/model"
)

var ErrFileRequired = errors.New("file is required")

// UploadService stores uploaded files on local disk. Files are stored under a
// generated name; the client-supplied filename is never used as a path, which
// rules out traversal and collision issues.
type UploadService struct {
	dir string
}

// NewUploadService creates an UploadService rooted at dir, creating the
// directory if needed.
func NewUploadService(dir string) (*UploadService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &UploadService{dir: dir}, nil
}

// Save writes the uploaded content to disk and returns the stored file's
// metadata.
func (s *UploadService) Save(src io.Reader, originalName, contentType string) (model.UploadResponse, error) {
	if originalName == "" {
		return model.UploadResponse{}, ErrFileRequired
	}

	stored := uuid.NewString() + safeExt(originalName)
	path := filepath.Join(s.dir, stored)

	dst, err := os.Create(path)
	if err != nil {
		return model.UploadResponse{}, fmt.Errorf("creating file: %w", err)
	}

	size, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return model.UploadResponse{}, fmt.Errorf("writing file: %w", err)
	}

	return model.UploadResponse{
		Filename:         stored,
		OriginalFilename: filepath.Base(originalName),
		ContentType:      contentType,
		Size:             size,
	}, nil
}

// safeExt extracts a conservative extension from the client filename: short,
// and restricted to alphanumerics after the dot. Anything else is dropped.
func safeExt(name string) string {
	ext := filepath.Ext(filepath.Base(name))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		alnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !alnum {
			return ""
		}
	}
	return strings.ToLower(ext)
}

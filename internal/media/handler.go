// Package media accepts image uploads and stores them in object storage.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ayush/socialgate/internal/apperr"
	"github.com/ayush/socialgate/internal/auth"
	"github.com/ayush/socialgate/internal/models"
)

// FileField is the only multipart field accepted by Upload.
const FileField = "file"

// DefaultMaxBytes is used when the handler is built with a non-positive limit.
const DefaultMaxBytes int64 = 5 << 20

// multipart framing allowance on top of the file itself
const formOverhead = 64 << 10

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// FileStore defines the interface for object storage.
type FileStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
}

// Handler holds the media upload handler.
type Handler struct {
	files    FileStore
	maxBytes int64
	identity func(ctx context.Context) (auth.Identity, bool)
}

func NewHandler(files FileStore, maxBytes int64, identity func(ctx context.Context) (auth.Identity, bool)) *Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Handler{files: files, maxBytes: maxBytes, identity: identity}
}

// Upload stores a single image sent as multipart field "file".
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) error {
	caller, ok := h.identity(r.Context())
	if !ok {
		return auth.ErrTokenMissing
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formOverhead)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		return fmt.Errorf("parse upload: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	fh, err := singleFile(r.MultipartForm)
	if err != nil {
		return err
	}
	if fh.Size > h.maxBytes {
		return apperr.Upload(apperr.UploadFileTooLarge, fmt.Sprintf("File exceeds %d bytes", h.maxBytes))
	}

	f, err := fh.Open()
	if err != nil {
		return apperr.Upload(apperr.UploadInvalid, "Could not read uploaded file").Wrap(err)
	}
	defer f.Close()

	contentType, err := sniff(f)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("media/%s/%s%s", caller.ID, uuid.NewString(), allowedTypes[contentType])
	if err := h.files.Put(r.Context(), key, f, fh.Size, contentType); err != nil {
		return err
	}
	// the caller is gone and will never learn the key
	if err := r.Context().Err(); err != nil {
		h.discard(r.Context(), key)
		return fmt.Errorf("upload abandoned: %w", err)
	}
	slog.Info("Media uploaded", "user_id", caller.ID, "key", key, "size", fh.Size)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(models.Media{Key: key, ContentType: contentType, Size: fh.Size})
	return nil
}

// discard removes an object nobody references. It outlives the request
// context, which is usually what was cancelled.
func (h *Handler) discard(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := h.files.Remove(ctx, key); err != nil {
		slog.Warn("Orphaned media not removed", "key", key, "error", err)
		return
	}
	slog.Info("Orphaned media removed", "key", key)
}

// singleFile enforces exactly one file, sent under FileField.
func singleFile(form *multipart.Form) (*multipart.FileHeader, error) {
	for field := range form.File {
		if field != FileField {
			return nil, apperr.Upload(apperr.UploadUnexpectedField, fmt.Sprintf("Unexpected file field %q", field))
		}
	}
	files := form.File[FileField]
	switch {
	case len(files) == 0:
		return nil, apperr.Upload(apperr.UploadMissingFile, "No file uploaded")
	case len(files) > 1:
		return nil, apperr.Upload(apperr.UploadTooManyFiles, "Only one file may be uploaded")
	}
	return files[0], nil
}

// sniff detects the content type from the file's leading bytes and rewinds.
// The client-declared type is ignored.
func sniff(f multipart.File) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", apperr.Upload(apperr.UploadInvalid, "Could not read uploaded file").Wrap(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", apperr.Upload(apperr.UploadInvalid, "Could not read uploaded file").Wrap(err)
	}

	contentType := http.DetectContentType(head[:n])
	if _, ok := allowedTypes[contentType]; !ok {
		return "", apperr.Upload(apperr.UploadInvalidType, "Only JPEG, PNG, GIF and WebP images are allowed")
	}
	return contentType, nil
}

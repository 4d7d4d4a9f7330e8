package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"audioportal/logger"
	"audioportal/storage"
)

// StaticHandler serves stored blobs under /static/{path}. The path may be a
// storagePath or albumArtPath from a record, or a bare blob key.
type StaticHandler struct {
	blobs  storage.BlobStore
	prefix string
}

func NewStaticHandler(blobs storage.BlobStore, prefix string) *StaticHandler {
	return &StaticHandler{blobs: blobs, prefix: prefix}
}

// ServeHTTP 实现 http.Handler 接口
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	objectPath := strings.TrimPrefix(r.URL.Path, h.prefix)

	object, err := h.blobs.Open(r.Context(), objectPath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrInvalidPath) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		logger.Error("Error opening blob", logger.String("path", objectPath), logger.ErrorField(err))
		http.Error(w, "Error reading file", http.StatusInternalServerError)
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", storage.ContentTypeFor(objectPath))
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if _, err := io.Copy(w, object); err != nil {
		logger.Error("Error serving blob", logger.String("path", objectPath), logger.ErrorField(err))
	}
}

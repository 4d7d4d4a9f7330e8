package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Key prefixes inside the blob store.
const (
	KindAudio = "audio"
	KindCover = "covers"
)

var (
	// ErrObjectNotFound is returned by Open when nothing is stored at the path.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidPath is returned for paths that escape the store.
	ErrInvalidPath = errors.New("invalid object path")
)

// BlobStore stores opaque byte blobs and hands back a location string that
// can later be passed to Open.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// List returns every stored object; ObjectInfo.Path matches what Put returned.
	List(ctx context.Context) ([]ObjectInfo, error)
}

// ObjectInfo 文件信息
type ObjectInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// BucketStats 存储统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// NewKey builds a collision-free key such as "audio/<uuid>.mp3". Only the
// extension of the client-supplied name is kept.
func NewKey(kind, originalName string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(originalName, "\\", "/")))
	if strings.ContainsAny(ext, " /?#%") {
		ext = ""
	}
	return kind + "/" + uuid.NewString() + ext
}

// ContentTypeFor guesses a MIME type from the file extension.
func ContentTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Summarize aggregates a listing.
func Summarize(objects []ObjectInfo) BucketStats {
	var stats BucketStats
	for _, obj := range objects {
		stats.TotalObjects++
		stats.TotalSize += obj.Size
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
	}
	return stats
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

package portal

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"strings"

	"audioportal/logger"
	"audioportal/model"
	"audioportal/storage"
)

// MinAlbumArtSize is the smallest accepted width and height of album art, in pixels.
const MinAlbumArtSize = 150

// FileInput is an optional uploaded file.
type FileInput struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// MetadataInput is a metadata submission. Every field is a raw form value.
type MetadataInput struct {
	AlbumArt       *FileInput
	Title          string
	Description    string
	Lyrics         string
	Tags           string
	Category       string
	AgeRestriction string
}

// ParseTags splits a comma-separated list, trimming each element and dropping
// empty ones. The result is never nil.
func ParseTags(raw string) []string {
	tags := make([]string, 0)
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// SubmitMetadata replaces the metadata of record id with the submitted values.
func (s *Service) SubmitMetadata(ctx context.Context, id string, in MetadataInput) (*model.AudioRecord, error) {
	const op = "submit metadata"

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, newError(ErrPersistence, op, err)
	}
	if existing == nil {
		return nil, newError(ErrNotFound, op, nil)
	}

	var albumArtPath string
	if in.AlbumArt != nil {
		if albumArtPath, err = s.storeAlbumArt(ctx, op, in.AlbumArt); err != nil {
			return nil, err
		}
	}

	meta := &model.Metadata{
		AlbumArtPath:   albumArtPath,
		Title:          in.Title,
		Description:    in.Description,
		Lyrics:         in.Lyrics,
		Tags:           ParseTags(in.Tags),
		Category:       in.Category,
		AgeRestriction: in.AgeRestriction,
	}
	updated, err := s.repo.ReplaceMetadata(ctx, id, meta)
	if err != nil {
		return nil, newError(ErrPersistence, op, err)
	}
	if updated == nil {
		if albumArtPath != "" {
			logger.Warn("Album art stored for a record that no longer exists",
				logger.String("id", id), logger.String("storagePath", albumArtPath))
		}
		return nil, newError(ErrNotFound, op, nil)
	}

	logger.Info("Metadata saved",
		logger.String("id", id),
		logger.String("title", meta.Title),
		logger.Strings("tags", meta.Tags),
		logger.Bool("albumArt", albumArtPath != ""))
	s.refreshCache(ctx, updated)
	return updated, nil
}

func (s *Service) storeAlbumArt(ctx context.Context, op string, art *FileInput) (string, error) {
	if art.Body == nil {
		return "", invalid(op, "album art has no content")
	}
	mediaType, _, err := mime.ParseMediaType(art.ContentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return "", invalid(op, "Invalid file type. Only images are allowed for album art.")
	}

	data, err := io.ReadAll(io.LimitReader(art.Body, s.maxUploadSize+1))
	if err != nil {
		return "", newError(ErrInvalidInput, op, fmt.Errorf("read album art: %w", err))
	}
	if int64(len(data)) > s.maxUploadSize {
		return "", invalid(op, "album art exceeds the %d MB upload limit", s.maxUploadSize>>20)
	}

	// Formats without a registered decoder are accepted unchecked.
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if cfg.Width < MinAlbumArtSize || cfg.Height < MinAlbumArtSize {
			return "", invalid(op, "album art must be at least %dx%d pixels, got %dx%d",
				MinAlbumArtSize, MinAlbumArtSize, cfg.Width, cfg.Height)
		}
	}

	key := storage.NewKey(storage.KindCover, art.Filename)
	storagePath, err := s.blobs.Put(ctx, key, mediaType, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", newError(ErrPersistence, op, err)
	}
	return storagePath, nil
}

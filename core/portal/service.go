// Package portal implements the upload, metadata and query flows of the audio portal.
package portal

import (
	"context"
	"time"

	"audioportal/core/transcribe"
	"audioportal/logger"
	"audioportal/model"
	"audioportal/repository"
	"audioportal/storage"
)

const (
	// DefaultMaxUploadSize applies when Deps.MaxUploadSize is not set.
	DefaultMaxUploadSize = 100 << 20
	// DefaultInFlightGrace applies when Deps.InFlightGrace is not set.
	DefaultInFlightGrace = 5 * time.Minute
)

// TranscriptionCache is a read-through cache in front of the record store.
type TranscriptionCache interface {
	GetTranscription(ctx context.Context, id string) (string, bool, error)
	SetTranscription(ctx context.Context, id, text string) error
	InvalidateTranscription(ctx context.Context, id string) error
}

// Notifier receives every stage transition of an upload.
type Notifier interface {
	Publish(event model.FlowEvent)
}

// Deps are the collaborators of a Service. Cache and Notifier are optional.
type Deps struct {
	Repo          repository.AudioRepository
	Blobs         storage.BlobStore
	Transcriber   transcribe.Transcriber
	Cache         TranscriptionCache
	Notifier      Notifier
	MaxUploadSize int64
	// InFlightGrace is how long a record may stay "transcribing" before it
	// counts as stalled. It should exceed the transcription timeout.
	InFlightGrace time.Duration
}

type Service struct {
	repo          repository.AudioRepository
	blobs         storage.BlobStore
	transcriber   transcribe.Transcriber
	cache         TranscriptionCache
	notifier      Notifier
	maxUploadSize int64
	inFlightGrace time.Duration
	now           func() time.Time
}

func NewService(deps Deps) *Service {
	s := &Service{
		repo:          deps.Repo,
		blobs:         deps.Blobs,
		transcriber:   deps.Transcriber,
		cache:         deps.Cache,
		notifier:      deps.Notifier,
		maxUploadSize: deps.MaxUploadSize,
		inFlightGrace: deps.InFlightGrace,
		now:           time.Now,
	}
	if s.cache == nil {
		s.cache = noCache{}
	}
	if s.notifier == nil {
		s.notifier = noNotifier{}
	}
	if s.maxUploadSize <= 0 {
		s.maxUploadSize = DefaultMaxUploadSize
	}
	if s.inFlightGrace <= 0 {
		s.inFlightGrace = DefaultInFlightGrace
	}
	return s
}

// MaxUploadSize is the largest accepted file, in bytes.
func (s *Service) MaxUploadSize() int64 { return s.maxUploadSize }

// emit logs a stage transition and forwards it to the notifier.
func (s *Service) emit(recordID, filename, stage string, err error) {
	event := model.FlowEvent{
		RecordID:  recordID,
		Filename:  filename,
		Stage:     stage,
		Timestamp: s.now().UnixMilli(),
	}
	if err != nil {
		event.Error = err.Error()
		logger.Warn("Upload stage failed",
			logger.String("id", recordID),
			logger.String("filename", filename),
			logger.String("stage", stage),
			logger.ErrorField(err))
	} else {
		logger.Info("Upload stage reached",
			logger.String("id", recordID),
			logger.String("filename", filename),
			logger.String("stage", stage))
	}
	s.notifier.Publish(event)
}

// refreshCache keeps the cached transcription in line with the stored lyrics.
// When the new text cannot be cached the old entry is dropped, so a stale
// transcription is never served.
func (s *Service) refreshCache(ctx context.Context, record *model.AudioRecord) {
	if lyrics := record.Lyrics(); lyrics != "" {
		err := s.cache.SetTranscription(ctx, record.ID, lyrics)
		if err == nil {
			return
		}
		logger.Warn("Failed to cache transcription", logger.String("id", record.ID), logger.ErrorField(err))
	}
	if err := s.cache.InvalidateTranscription(ctx, record.ID); err != nil {
		logger.Error("Failed to invalidate cached transcription, stale text may be served until it expires",
			logger.String("id", record.ID), logger.ErrorField(err))
	}
}

type noCache struct{}

func (noCache) GetTranscription(context.Context, string) (string, bool, error) { return "", false, nil }
func (noCache) SetTranscription(context.Context, string, string) error         { return nil }
func (noCache) InvalidateTranscription(context.Context, string) error          { return nil }

type noNotifier struct{}

func (noNotifier) Publish(model.FlowEvent) {}

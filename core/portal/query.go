package portal

import (
	"context"

	"audioportal/logger"
	"audioportal/model"
)

// ListRecords returns all records, newest upload first.
func (s *Service) ListRecords(ctx context.Context) ([]*model.AudioRecord, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, newError(ErrPersistence, "list records", err)
	}
	return records, nil
}

func (s *Service) GetRecord(ctx context.Context, id string) (*model.AudioRecord, error) {
	const op = "get record"
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, newError(ErrPersistence, op, err)
	}
	if record == nil {
		return nil, newError(ErrNotFound, op, nil)
	}
	return record, nil
}

// GetTranscription returns the stored lyrics of a record.
func (s *Service) GetTranscription(ctx context.Context, id string) (string, error) {
	const op = "get transcription"

	text, ok, err := s.cache.GetTranscription(ctx, id)
	if err != nil {
		logger.Warn("Transcription cache read failed", logger.String("id", id), logger.ErrorField(err))
	} else if ok && text != "" {
		return text, nil
	}

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", newError(ErrPersistence, op, err)
	}
	if record == nil {
		return "", newError(ErrNotFound, op, nil)
	}
	lyrics := record.Lyrics()
	if lyrics == "" {
		return "", newError(ErrTranscriptionUnavailable, op, nil)
	}

	if err := s.cache.SetTranscription(ctx, id, lyrics); err != nil {
		logger.Warn("Failed to cache transcription", logger.String("id", id), logger.ErrorField(err))
	}
	return lyrics, nil
}

package portal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"

	"audioportal/core/checksum"
	"audioportal/logger"
	"audioportal/model"
	"audioportal/storage"
)

// AllowedAudioTypes are the media types accepted by Upload.
var AllowedAudioTypes = []string{"audio/mpeg", "audio/wav"}

// UploadInput is one uploaded audio file.
type UploadInput struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// audioMediaType returns the bare media type when it is an accepted audio type.
func audioMediaType(contentType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	for _, allowed := range AllowedAudioTypes {
		if mediaType == allowed {
			return mediaType, true
		}
	}
	return "", false
}

// Upload stores the audio, creates its record and transcribes it.
//
// A transcription failure does not undo the upload: the persisted record is
// returned together with an ErrTranscription error.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*model.AudioRecord, error) {
	const op = "upload"

	if in.Body == nil || in.Filename == "" {
		return nil, invalid(op, "No file uploaded")
	}
	mediaType, ok := audioMediaType(in.ContentType)
	if !ok {
		return nil, invalid(op, "Invalid file type. Only MP3 and WAV are allowed.")
	}
	s.emit("", in.Filename, model.StageReceived, nil)

	data, err := io.ReadAll(io.LimitReader(in.Body, s.maxUploadSize+1))
	if err != nil {
		return nil, newError(ErrInvalidInput, op, fmt.Errorf("read upload: %w", err))
	}
	if int64(len(data)) > s.maxUploadSize {
		return nil, invalid(op, "file exceeds the %d MB upload limit", s.maxUploadSize>>20)
	}

	key := storage.NewKey(storage.KindAudio, in.Filename)
	storagePath, err := s.blobs.Put(ctx, key, mediaType, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		s.emit("", in.Filename, model.StageStored, err)
		return nil, newError(ErrPersistence, op, err)
	}
	s.emit("", in.Filename, model.StageStored, nil)

	record := &model.AudioRecord{
		Filename:    in.Filename,
		StoragePath: storagePath,
		ContentType: mediaType,
		Size:        int64(len(data)),
		Checksum:    checksum.FromBytes(data),
		Status:      model.StageRecorded,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		logger.Warn("Audio blob stored without a record",
			logger.String("storagePath", storagePath),
			logger.String("filename", in.Filename),
			logger.ErrorField(err))
		s.emit("", in.Filename, model.StageRecorded, err)
		return nil, newError(ErrPersistence, op, err)
	}
	s.emit(record.ID, record.Filename, model.StageRecorded, nil)

	return s.transcribeRecord(ctx, op, record, data)
}

// transcribeRecord runs the transcription stage for a stored record.
//
// Only the transcriber call is bound to ctx. Stage writes use a context that
// survives cancellation so the persisted status always matches the returned one.
func (s *Service) transcribeRecord(ctx context.Context, op string, record *model.AudioRecord, audio []byte) (*model.AudioRecord, error) {
	bookkeeping := context.WithoutCancel(ctx)

	if err := s.repo.UpdateStatus(bookkeeping, record.ID, model.StageTranscribing, ""); err != nil {
		s.emit(record.ID, record.Filename, model.StageTranscribing, err)
		return record, newError(ErrPersistence, op, err)
	}
	record.Status = model.StageTranscribing
	record.LastError = ""
	s.emit(record.ID, record.Filename, model.StageTranscribing, nil)

	text, err := s.transcriber.Transcribe(ctx, path.Base(record.StoragePath), audio)
	if err != nil {
		if uerr := s.repo.UpdateStatus(bookkeeping, record.ID, model.StageTranscriptionFailed, err.Error()); uerr != nil {
			logger.Error("Failed to record transcription failure",
				logger.String("id", record.ID), logger.ErrorField(uerr))
			s.emit(record.ID, record.Filename, model.StageTranscriptionFailed, err)
			return record, newError(ErrPersistence, op, uerr)
		}
		record.Status = model.StageTranscriptionFailed
		record.LastError = err.Error()
		s.emit(record.ID, record.Filename, model.StageTranscriptionFailed, err)
		return record, newError(ErrTranscription, op, err)
	}

	// The whole metadata object is replaced; lyrics are the only field at this point.
	updated, err := s.repo.ReplaceMetadata(bookkeeping, record.ID, &model.Metadata{Lyrics: text, Tags: []string{}})
	if err == nil && updated == nil {
		err = fmt.Errorf("record %s disappeared during transcription", record.ID)
	}
	if err != nil {
		s.emit(record.ID, record.Filename, model.StageCompleted, err)
		return record, newError(ErrPersistence, op, err)
	}
	if err := s.repo.UpdateStatus(bookkeeping, updated.ID, model.StageCompleted, ""); err != nil {
		s.emit(updated.ID, updated.Filename, model.StageCompleted, err)
		return updated, newError(ErrPersistence, op, err)
	}
	updated.Status = model.StageCompleted
	updated.LastError = ""

	s.refreshCache(bookkeeping, updated)
	s.emit(updated.ID, updated.Filename, model.StageCompleted, nil)
	return updated, nil
}

package portal

import (
	"context"
	"fmt"
	"io"

	"audioportal/model"
	"audioportal/storage"
)

// Stalled returns records whose upload never reached completion and that have
// no metadata yet, oldest first. Records still within the in-flight grace
// period of their transcription are left out.
func (s *Service) Stalled(ctx context.Context) ([]*model.AudioRecord, error) {
	records, err := s.repo.ListByStatus(ctx, model.StalledStages...)
	if err != nil {
		return nil, newError(ErrPersistence, "list stalled records", err)
	}
	stalled := make([]*model.AudioRecord, 0, len(records))
	for _, r := range records {
		if r.Metadata == nil && !s.inFlight(r) {
			stalled = append(stalled, r)
		}
	}
	return stalled, nil
}

// inFlight reports whether a transcription of r may still be running.
func (s *Service) inFlight(r *model.AudioRecord) bool {
	return r.Status == model.StageTranscribing && s.now().Sub(r.UpdatedAt) < s.inFlightGrace
}

// RetryTranscription re-runs transcription for a record, reading its audio
// back from the blob store. Records that already carry metadata are refused so
// that a retry never overwrites user input.
func (s *Service) RetryTranscription(ctx context.Context, id string) (*model.AudioRecord, error) {
	const op = "retry transcription"

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, newError(ErrPersistence, op, err)
	}
	if record == nil {
		return nil, newError(ErrNotFound, op, nil)
	}
	if record.Metadata != nil {
		return nil, invalid(op, "audio %s already has metadata", id)
	}
	if s.inFlight(record) {
		return nil, invalid(op, "audio %s is still being transcribed", id)
	}

	rc, err := s.blobs.Open(ctx, record.StoragePath)
	if err != nil {
		return nil, newError(ErrPersistence, op, fmt.Errorf("open %s: %w", record.StoragePath, err))
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, newError(ErrPersistence, op, fmt.Errorf("read %s: %w", record.StoragePath, err))
	}

	return s.transcribeRecord(ctx, op, record, data)
}

// Orphans lists stored blobs that no record points at, either as its audio or
// as its album art.
func (s *Service) Orphans(ctx context.Context) ([]storage.ObjectInfo, error) {
	const op = "find orphans"

	objects, err := s.blobs.List(ctx)
	if err != nil {
		return nil, newError(ErrPersistence, op, err)
	}
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, newError(ErrPersistence, op, err)
	}

	referenced := make(map[string]bool, len(records)*2)
	for _, r := range records {
		referenced[r.StoragePath] = true
		if r.Metadata != nil && r.Metadata.AlbumArtPath != "" {
			referenced[r.Metadata.AlbumArtPath] = true
		}
	}

	orphans := make([]storage.ObjectInfo, 0)
	for _, obj := range objects {
		if !referenced[obj.Path] {
			orphans = append(orphans, obj)
		}
	}
	return orphans, nil
}

package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"audioportal/config"
	"audioportal/db"
	"audioportal/model"
)

func newTestRepository(t *testing.T) AudioRepository {
	t.Helper()

	cfg := &config.Config{DBDriver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "records.db")}
	gdb, err := db.Open(cfg)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		// go-sqlite3 built without cgo fails on first use rather than on open.
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close(gdb) })
	return NewGormAudioRepository(gdb)
}

func TestCreateAssignsIDAndTimestamp(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	record := &model.AudioRecord{Filename: "song.mp3", StoragePath: "uploads/audio/a.mp3", Status: model.StageRecorded}
	if err := repo.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.ID == "" {
		t.Fatal("expected an id to be assigned")
	}
	if record.UploadTimestamp.IsZero() {
		t.Fatal("expected an upload timestamp")
	}

	got, err := repo.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Filename != "song.mp3" {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.Metadata != nil {
		t.Fatalf("expected no metadata, got %+v", got.Metadata)
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	repo := newTestRepository(t)

	got, err := repo.GetByID(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"first.mp3", "second.mp3", "third.mp3"} {
		record := &model.AudioRecord{
			Filename:        name,
			StoragePath:     "uploads/audio/" + name,
			UploadTimestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, record); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	records, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Filename != "third.mp3" || records[2].Filename != "first.mp3" {
		t.Fatalf("unexpected order: %s, %s, %s", records[0].Filename, records[1].Filename, records[2].Filename)
	}
}

func TestReplaceMetadataOverwritesWholeObject(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	record := &model.AudioRecord{Filename: "song.wav", StoragePath: "uploads/audio/b.wav"}
	if err := repo.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := repo.ReplaceMetadata(ctx, record.ID, &model.Metadata{Lyrics: "la la", Tags: []string{}}); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	updated, err := repo.ReplaceMetadata(ctx, record.ID, &model.Metadata{Title: "Test", Tags: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("second replace: %v", err)
	}
	if updated == nil {
		t.Fatal("expected updated record")
	}

	got, err := repo.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Metadata == nil || got.Metadata.Title != "Test" {
		t.Fatalf("unexpected metadata %+v", got.Metadata)
	}
	if got.Metadata.Lyrics != "" {
		t.Fatalf("expected lyrics from the first write to be gone, got %q", got.Metadata.Lyrics)
	}
	if len(got.Metadata.Tags) != 2 || got.Metadata.Tags[1] != "b" {
		t.Fatalf("unexpected tags %v", got.Metadata.Tags)
	}
}

func TestReplaceMetadataUnknownID(t *testing.T) {
	repo := newTestRepository(t)

	got, err := repo.ReplaceMetadata(context.Background(), "missing", &model.Metadata{Title: "x"})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil record, got %+v", got)
	}
}

func TestUpdateStatusAndListByStatus(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	stalled := &model.AudioRecord{Filename: "a.mp3", StoragePath: "p/a", Status: model.StageTranscribing}
	done := &model.AudioRecord{Filename: "b.mp3", StoragePath: "p/b", Status: model.StageCompleted}
	for _, r := range []*model.AudioRecord{stalled, done} {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	if err := repo.UpdateStatus(ctx, stalled.ID, model.StageTranscriptionFailed, "timeout"); err != nil {
		t.Fatalf("update status: %v", err)
	}

	records, err := repo.ListByStatus(ctx, model.StalledStages...)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(records) != 1 || records[0].ID != stalled.ID {
		t.Fatalf("unexpected stalled records %+v", records)
	}
	if records[0].LastError != "timeout" {
		t.Fatalf("expected last error to be stored, got %q", records[0].LastError)
	}
}

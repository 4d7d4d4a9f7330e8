package portal_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"reflect"
	"strings"
	"testing"
	"time"

	"audioportal/core/portal"
	"audioportal/core/portal/portaltest"
	"audioportal/model"
)

type fixture struct {
	svc         *portal.Service
	repo        *portaltest.Repository
	blobs       *portaltest.BlobStore
	transcriber *portaltest.Transcriber
	cache       *portaltest.Cache
	notifier    *portaltest.Notifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:        portaltest.NewRepository(),
		blobs:       portaltest.NewBlobStore(),
		transcriber: &portaltest.Transcriber{Text: "la la la"},
		cache:       portaltest.NewCache(),
		notifier:    &portaltest.Notifier{},
	}
	f.svc = portal.NewService(portal.Deps{
		Repo:          f.repo,
		Blobs:         f.blobs,
		Transcriber:   f.transcriber,
		Cache:         f.cache,
		Notifier:      f.notifier,
		MaxUploadSize: 1 << 20,
	})
	return f
}

func mp3(name string) portal.UploadInput {
	return portal.UploadInput{Filename: name, ContentType: "audio/mpeg", Body: strings.NewReader("ID3\x03fake-mp3-frames")}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestUploadRecordExistsBeforeTranscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var seen *model.AudioRecord
	f.transcriber.OnTranscribe = func(filename string, audio []byte) {
		records, err := f.repo.List(ctx)
		if err != nil || len(records) != 1 {
			t.Errorf("expected one record mid-flow, got %d (err %v)", len(records), err)
			return
		}
		seen = records[0]
	}

	record, err := f.svc.Upload(ctx, mp3("song.mp3"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if seen == nil {
		t.Fatal("transcriber was not called")
	}
	if seen.Filename != "song.mp3" || seen.StoragePath == "" {
		t.Fatalf("record mid-flow missing filename or path: %+v", seen)
	}
	if seen.Metadata != nil {
		t.Fatalf("metadata should be empty before transcription, got %+v", seen.Metadata)
	}
	if seen.Status != model.StageTranscribing {
		t.Fatalf("status mid-flow = %q", seen.Status)
	}

	if record.Lyrics() != "la la la" || record.Status != model.StageCompleted {
		t.Fatalf("unexpected final record %+v", record)
	}
	if record.Checksum == "" || record.Size == 0 || record.ContentType != "audio/mpeg" {
		t.Fatalf("blob details not recorded: %+v", record)
	}
	if !strings.HasPrefix(record.StoragePath, "mem/audio/") || !strings.HasSuffix(record.StoragePath, ".mp3") {
		t.Fatalf("unexpected storage path %q", record.StoragePath)
	}

	want := []string{model.StageReceived, model.StageStored, model.StageRecorded, model.StageTranscribing, model.StageCompleted}
	if got := f.notifier.Stages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
	if text, ok, _ := f.cache.GetTranscription(ctx, record.ID); !ok || text != "la la la" {
		t.Fatalf("cache not primed: %q %v", text, ok)
	}
}

func TestUploadAcceptsWavWithParameters(t *testing.T) {
	f := newFixture(t)

	record, err := f.svc.Upload(context.Background(), portal.UploadInput{
		Filename:    "take1.WAV",
		ContentType: "audio/wav; codecs=1",
		Body:        strings.NewReader("RIFF....WAVE"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if record.ContentType != "audio/wav" || !strings.HasSuffix(record.StoragePath, ".wav") {
		t.Fatalf("unexpected record %+v", record)
	}
	if calls := f.transcriber.Calls(); len(calls) != 1 || !strings.HasSuffix(calls[0], ".wav") {
		t.Fatalf("transcriber should see the stored file name, got %v", calls)
	}
}

func TestUploadRejectsInvalidInput(t *testing.T) {
	cases := map[string]portal.UploadInput{
		"non-audio":     {Filename: "notes.txt", ContentType: "text/plain", Body: strings.NewReader("hi")},
		"other audio":   {Filename: "song.flac", ContentType: "audio/flac", Body: strings.NewReader("fLaC")},
		"missing file":  {Filename: "", ContentType: "audio/mpeg"},
		"no body":       {Filename: "song.mp3", ContentType: "audio/mpeg"},
		"too large":     {Filename: "big.mp3", ContentType: "audio/mpeg", Body: bytes.NewReader(make([]byte, 1<<20+1))},
		"bad mime type": {Filename: "song.mp3", ContentType: ";;", Body: strings.NewReader("x")},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			record, err := f.svc.Upload(context.Background(), in)
			if !errors.Is(err, portal.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if record != nil {
				t.Fatalf("expected no record, got %+v", record)
			}
			if f.blobs.Len() != 0 || f.repo.Len() != 0 {
				t.Fatalf("nothing should be stored: %d blobs, %d records", f.blobs.Len(), f.repo.Len())
			}
			if len(f.transcriber.Calls()) != 0 {
				t.Fatal("transcriber should not be called")
			}
		})
	}
}

func TestUploadTranscriptionFailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	f.transcriber.Err = portaltest.ErrTranscriberDown
	ctx := context.Background()

	record, err := f.svc.Upload(ctx, mp3("song.mp3"))
	if !errors.Is(err, portal.ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
	if !errors.Is(err, portaltest.ErrTranscriberDown) {
		t.Fatalf("cause should be reachable through Unwrap, got %v", err)
	}
	if record == nil || record.ID == "" {
		t.Fatal("the persisted record should be returned with the error")
	}

	stored, err := f.svc.GetRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("record should still be fetchable: %v", err)
	}
	if stored.Lyrics() != "" || stored.Metadata != nil {
		t.Fatalf("no lyrics expected, got %+v", stored.Metadata)
	}
	if stored.Status != model.StageTranscriptionFailed || stored.LastError == "" {
		t.Fatalf("unexpected status %q / %q", stored.Status, stored.LastError)
	}
	if _, err := f.svc.GetTranscription(ctx, record.ID); !errors.Is(err, portal.ErrTranscriptionUnavailable) {
		t.Fatalf("expected ErrTranscriptionUnavailable, got %v", err)
	}

	events := f.notifier.Events()
	last := events[len(events)-1]
	if last.Stage != model.StageTranscriptionFailed || last.Error == "" || last.RecordID != record.ID {
		t.Fatalf("unexpected last event %+v", last)
	}
}

func TestUploadStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.blobs.PutErr = errors.New("disk full")

	_, err := f.svc.Upload(context.Background(), mp3("song.mp3"))
	if !errors.Is(err, portal.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if f.repo.Len() != 0 {
		t.Fatal("no record should be created")
	}
}

func TestUploadRecordFailureLeavesBlob(t *testing.T) {
	f := newFixture(t)
	f.repo.CreateErr = errors.New("db down")

	_, err := f.svc.Upload(context.Background(), mp3("song.mp3"))
	if !errors.Is(err, portal.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if f.blobs.Len() != 1 {
		t.Fatalf("the stored blob is not rolled back, expected 1 blob, got %d", f.blobs.Len())
	}

	f.repo.CreateErr = nil
	orphans, err := f.svc.Orphans(context.Background())
	if err != nil {
		t.Fatalf("orphans: %v", err)
	}
	if len(orphans) != 1 {
		t.Fatalf("expected the blob to show up as an orphan, got %+v", orphans)
	}
}

func TestParseTags(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"rock, pop ,  jazz", []string{"rock", "pop", "jazz"}},
		{"", []string{}},
		{"   ", []string{}},
		{"a,b,", []string{"a", "b"}},
		{" , ,", []string{}},
		{"single", []string{"single"}},
	}
	for _, c := range cases {
		got := portal.ParseTags(c.in)
		if got == nil || !reflect.DeepEqual(got, c.want) {
			t.Errorf("ParseTags(%q) = %#v, want %#v", c.in, got, c.want)
		}
	}
}

func TestSubmitMetadataReplacesExactly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.svc.Upload(ctx, mp3("song.mp3"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	updated, err := f.svc.SubmitMetadata(ctx, record.ID, portal.MetadataInput{
		Title:          "Test",
		Description:    "desc",
		Tags:           "rock, pop ,  jazz",
		Category:       "music",
		AgeRestriction: "all",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	want := &model.Metadata{
		Title:          "Test",
		Description:    "desc",
		Tags:           []string{"rock", "pop", "jazz"},
		Category:       "music",
		AgeRestriction: "all",
	}
	if !reflect.DeepEqual(updated.Metadata, want) {
		t.Fatalf("metadata = %+v, want %+v", updated.Metadata, want)
	}

	stored, _ := f.svc.GetRecord(ctx, record.ID)
	if !reflect.DeepEqual(stored.Metadata, want) {
		t.Fatalf("stored metadata = %+v, want %+v", stored.Metadata, want)
	}

	// Lyrics were cleared by the submission, so the cached copy must go too.
	if _, err := f.svc.GetTranscription(ctx, record.ID); !errors.Is(err, portal.ErrTranscriptionUnavailable) {
		t.Fatalf("expected ErrTranscriptionUnavailable after clearing lyrics, got %v", err)
	}
}

func TestSubmitMetadataUnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SubmitMetadata(context.Background(), "missing", portal.MetadataInput{
		Title:    "x",
		AlbumArt: &portal.FileInput{Filename: "cover.png", ContentType: "image/png", Body: bytes.NewReader(pngBytes(t, 200, 200))},
	})
	if !errors.Is(err, portal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.blobs.Len() != 0 {
		t.Fatal("album art must not be stored for an unknown record")
	}
}

func TestSubmitMetadataAlbumArt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record, err := f.svc.Upload(ctx, mp3("song.mp3"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	t.Run("not an image", func(t *testing.T) {
		_, err := f.svc.SubmitMetadata(ctx, record.ID, portal.MetadataInput{
			AlbumArt: &portal.FileInput{Filename: "cover.txt", ContentType: "text/plain", Body: strings.NewReader("x")},
		})
		if !errors.Is(err, portal.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("too small", func(t *testing.T) {
		_, err := f.svc.SubmitMetadata(ctx, record.ID, portal.MetadataInput{
			AlbumArt: &portal.FileInput{Filename: "cover.png", ContentType: "image/png", Body: bytes.NewReader(pngBytes(t, 100, 300))},
		})
		if !errors.Is(err, portal.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("valid", func(t *testing.T) {
		art := pngBytes(t, 150, 150)
		updated, err := f.svc.SubmitMetadata(ctx, record.ID, portal.MetadataInput{
			Title:    "With cover",
			AlbumArt: &portal.FileInput{Filename: "cover.png", ContentType: "image/png", Body: bytes.NewReader(art)},
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		p := updated.Metadata.AlbumArtPath
		if !strings.HasPrefix(p, "mem/covers/") || !strings.HasSuffix(p, ".png") {
			t.Fatalf("unexpected album art path %q", p)
		}
		if data, ok := f.blobs.Data(p); !ok || !bytes.Equal(data, art) {
			t.Fatal("album art bytes not stored")
		}
	})

	t.Run("undecodable image accepted", func(t *testing.T) {
		updated, err := f.svc.SubmitMetadata(ctx, record.ID, portal.MetadataInput{
			AlbumArt: &portal.FileInput{Filename: "cover.webp", ContentType: "image/webp", Body: strings.NewReader("RIFF....WEBP")},
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if updated.Metadata.AlbumArtPath == "" {
			t.Fatal("expected album art path")
		}
	})
}

func TestGetTranscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.GetTranscription(ctx, "nope"); !errors.Is(err, portal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	record, err := f.svc.Upload(ctx, mp3("song.mp3"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	text, err := f.svc.GetTranscription(ctx, record.ID)
	if err != nil || text != "la la la" {
		t.Fatalf("GetTranscription = %q, %v", text, err)
	}

	if _, err := f.svc.SubmitMetadata(ctx, record.ID, portal.MetadataInput{Lyrics: "edited words"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if text, _ := f.svc.GetTranscription(ctx, record.ID); text != "edited words" {
		t.Fatalf("expected submitted lyrics, got %q", text)
	}
}

func TestGetTranscriptionWithoutCache(t *testing.T) {
	repo := portaltest.NewRepository()
	svc := portal.NewService(portal.Deps{
		Repo:        repo,
		Blobs:       portaltest.NewBlobStore(),
		Transcriber: &portaltest.Transcriber{Text: "words"},
	})
	ctx := context.Background()

	record, err := svc.Upload(ctx, mp3("a.mp3"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if text, err := svc.GetTranscription(ctx, record.ID); err != nil || text != "words" {
		t.Fatalf("GetTranscription = %q, %v", text, err)
	}
}

func TestListRecordsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"one.mp3", "two.mp3", "three.mp3"} {
		if _, err := f.svc.Upload(ctx, mp3(name)); err != nil {
			t.Fatalf("upload %s: %v", name, err)
		}
	}
	records, err := f.svc.ListRecords(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 || records[0].Filename != "three.mp3" || records[2].Filename != "one.mp3" {
		t.Fatalf("unexpected order %+v", records)
	}

	f.repo.Err = errors.New("db down")
	if _, err := f.svc.ListRecords(ctx); !errors.Is(err, portal.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestRetryTranscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.transcriber.Err = portaltest.ErrTranscriberDown

	record, _ := f.svc.Upload(ctx, mp3("song.mp3"))
	stalled, err := f.svc.Stalled(ctx)
	if err != nil {
		t.Fatalf("stalled: %v", err)
	}
	if len(stalled) != 1 || stalled[0].ID != record.ID {
		t.Fatalf("expected the failed record to be stalled, got %+v", stalled)
	}

	f.transcriber.Err = nil
	f.transcriber.Text = "second try"
	retried, err := f.svc.RetryTranscription(ctx, record.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Lyrics() != "second try" || retried.Status != model.StageCompleted || retried.LastError != "" {
		t.Fatalf("unexpected retried record %+v", retried)
	}

	if stalled, _ := f.svc.Stalled(ctx); len(stalled) != 0 {
		t.Fatalf("nothing should be stalled after retry, got %+v", stalled)
	}

	if _, err := f.svc.RetryTranscription(ctx, record.ID); !errors.Is(err, portal.ErrInvalidInput) {
		t.Fatalf("retry over existing metadata should be refused, got %v", err)
	}
	if _, err := f.svc.RetryTranscription(ctx, "missing"); !errors.Is(err, portal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrphansIgnoresReferencedBlobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.svc.Upload(ctx, mp3("song.mp3"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := f.svc.SubmitMetadata(ctx, record.ID, portal.MetadataInput{
		AlbumArt: &portal.FileInput{Filename: "c.png", ContentType: "image/png", Body: bytes.NewReader(pngBytes(t, 160, 160))},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	stray, err := f.blobs.Put(ctx, "audio/stray.mp3", "audio/mpeg", strings.NewReader("x"), 1)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	orphans, err := f.svc.Orphans(ctx)
	if err != nil {
		t.Fatalf("orphans: %v", err)
	}
	if len(orphans) != 1 || orphans[0].Path != stray {
		t.Fatalf("expected only %q, got %+v", stray, orphans)
	}
}

func TestErrorCarriesOperationAndCause(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetRecord(context.Background(), "missing")
	var perr *portal.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *portal.Error, got %T", err)
	}
	if perr.Op != "get record" || perr.Kind != portal.ErrNotFound {
		t.Fatalf("unexpected error %+v", perr)
	}
	if errors.Is(err, portal.ErrPersistence) {
		t.Fatal("kinds must not match each other")
	}
	if perr.Cause() != portal.ErrNotFound.Error() {
		t.Fatalf("Cause() = %q", perr.Cause())
	}
}

func TestFailedCacheWriteDropsStaleTranscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.transcriber.Text = "first draft"

	record, err := f.svc.Upload(ctx, mp3("song.mp3"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if text, _ := f.svc.GetTranscription(ctx, record.ID); text != "first draft" {
		t.Fatalf("got %q", text)
	}

	f.cache.SetErr = errors.New("redis down")
	if _, err := f.svc.SubmitMetadata(ctx, record.ID, portal.MetadataInput{Lyrics: "corrected"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	text, err := f.svc.GetTranscription(ctx, record.ID)
	if err != nil || text != "corrected" {
		t.Fatalf("GetTranscription = %q, %v; want the submitted lyrics", text, err)
	}
}

func TestInFlightTranscriptionIsNotStalled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.transcriber.Err = portaltest.ErrTranscriberDown

	record, _ := f.svc.Upload(ctx, mp3("song.mp3"))
	// Another process has just started transcribing it.
	if err := f.repo.UpdateStatus(ctx, record.ID, model.StageTranscribing, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}

	if stalled, _ := f.svc.Stalled(ctx); len(stalled) != 0 {
		t.Fatalf("in-flight record reported as stalled: %+v", stalled)
	}
	if _, err := f.svc.RetryTranscription(ctx, record.ID); !errors.Is(err, portal.ErrInvalidInput) {
		t.Fatalf("retry of an in-flight record should be refused, got %v", err)
	}

	f.repo.Age(record.ID, portal.DefaultInFlightGrace+time.Second)
	stalled, err := f.svc.Stalled(ctx)
	if err != nil || len(stalled) != 1 || stalled[0].ID != record.ID {
		t.Fatalf("abandoned record should be stalled, got %+v %v", stalled, err)
	}

	f.transcriber.Err = nil
	f.transcriber.Text = "recovered"
	retried, err := f.svc.RetryTranscription(ctx, record.ID)
	if err != nil || retried.Lyrics() != "recovered" {
		t.Fatalf("retry: %+v %v", retried, err)
	}
}

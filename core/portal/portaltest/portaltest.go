// Package portaltest provides in-memory collaborators for exercising the
// portal flows and the HTTP layer without a database, blob backend or
// transcription service.
package portaltest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"audioportal/model"
	"audioportal/storage"

	"github.com/google/uuid"
)

// Repository is an in-memory AudioRepository. Set Err to make every call fail.
type Repository struct {
	mu      sync.Mutex
	records map[string]*model.AudioRecord
	clock   time.Time

	Err       error
	CreateErr error
}

func NewRepository() *Repository {
	return &Repository{records: make(map[string]*model.AudioRecord), clock: time.Now()}
}

func clone(r *model.AudioRecord) *model.AudioRecord {
	c := *r
	if r.Metadata != nil {
		m := *r.Metadata
		m.Tags = append([]string{}, r.Metadata.Tags...)
		c.Metadata = &m
	}
	return &c
}

func (r *Repository) Create(ctx context.Context, record *model.AudioRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if r.CreateErr != nil {
		return r.CreateErr
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.UploadTimestamp.IsZero() {
		// Strictly increasing so ordering is deterministic.
		r.clock = r.clock.Add(time.Millisecond)
		record.UploadTimestamp = r.clock
	}
	record.UpdatedAt = time.Now()
	r.records[record.ID] = clone(record)
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*model.AudioRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	return clone(rec), nil
}

func (r *Repository) List(ctx context.Context) ([]*model.AudioRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*model.AudioRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, clone(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadTimestamp.After(out[j].UploadTimestamp) })
	return out, nil
}

func (r *Repository) ListByStatus(ctx context.Context, statuses ...string) ([]*model.AudioRecord, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	out := make([]*model.AudioRecord, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if want[all[i].Status] {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id, status, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if rec, ok := r.records[id]; ok {
		rec.Status = status
		rec.LastError = lastError
		rec.UpdatedAt = time.Now()
	}
	return nil
}

func (r *Repository) ReplaceMetadata(ctx context.Context, id string, meta *model.Metadata) (*model.AudioRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	if meta == nil {
		rec.Metadata = nil
	} else {
		m := *meta
		m.Tags = append([]string{}, meta.Tags...)
		rec.Metadata = &m
	}
	return clone(rec), nil
}

// Age moves the last update of a record d into the past.
func (r *Repository) Age(id string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.UpdatedAt = rec.UpdatedAt.Add(-d)
	}
}

// Delete removes a record, simulating a concurrent deletion.
func (r *Repository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
}

// Len returns the number of stored records.
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// BlobStore is an in-memory BlobStore. Paths are returned as "mem/<key>".
type BlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string

	PutErr error
}

func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (b *BlobStore) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error) {
	if b.PutErr != nil {
		return "", b.PutErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p := "mem/" + key
	b.objects[p] = data
	b.types[p] = contentType
	return p, nil
}

func (b *BlobStore) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[p]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *BlobStore) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]storage.ObjectInfo, 0, len(b.objects))
	for p, data := range b.objects {
		out = append(out, storage.ObjectInfo{Path: p, Size: int64(len(data)), ContentType: b.types[p]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Len returns the number of stored blobs.
func (b *BlobStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// Data returns the bytes stored at p.
func (b *BlobStore) Data(p string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[p]
	return data, ok
}

// ErrTranscriberDown is what a failing Transcriber returns by default.
var ErrTranscriberDown = errors.New("transcription service unavailable")

// Transcriber returns Text, or Err when set. OnTranscribe runs before the
// result is returned, letting tests observe state mid-flow.
type Transcriber struct {
	mu    sync.Mutex
	calls []string

	Text         string
	Err          error
	OnTranscribe func(filename string, audio []byte)
}

func (t *Transcriber) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	t.mu.Lock()
	t.calls = append(t.calls, filename)
	t.mu.Unlock()
	if t.OnTranscribe != nil {
		t.OnTranscribe(filename, audio)
	}
	if t.Err != nil {
		return "", t.Err
	}
	return t.Text, nil
}

// Calls returns the filenames passed to Transcribe so far.
func (t *Transcriber) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

// Cache is an in-memory transcription cache. Set SetErr to make writes fail.
type Cache struct {
	mu      sync.Mutex
	entries map[string]string

	SetErr error
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

func (c *Cache) GetTranscription(ctx context.Context, id string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, ok := c.entries[id]
	return text, ok, nil
}

func (c *Cache) SetTranscription(ctx context.Context, id, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SetErr != nil {
		return c.SetErr
	}
	c.entries[id] = text
	return nil
}

func (c *Cache) InvalidateTranscription(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

// Notifier records published events.
type Notifier struct {
	mu     sync.Mutex
	events []model.FlowEvent
}

func (n *Notifier) Publish(event model.FlowEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

// Stages returns the stages of all published events, in order.
func (n *Notifier) Stages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	stages := make([]string, len(n.events))
	for i, e := range n.events {
		stages[i] = e.Stage
	}
	return stages
}

// Events returns a copy of all published events.
func (n *Notifier) Events() []model.FlowEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.FlowEvent(nil), n.events...)
}

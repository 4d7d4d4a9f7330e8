package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"audioportal/logger"
)

// LocalStore keeps blobs as files below a single root directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root and the per-kind directories.
func NewLocalStore(root string) (*LocalStore, error) {
	for _, dir := range []string{KindAudio, KindCover} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, fmt.Errorf("create upload dir: %w", err)
		}
	}
	logger.Info("Using filesystem blob store", logger.String("root", root))
	return &LocalStore{root: filepath.Clean(root)}, nil
}

// Put writes r to root/key and returns the key. Like the MinIO backend, the
// returned path never contains the root.
func (s *LocalStore) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if !s.within(full) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, key)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create blob %s: %w", key, err)
	}
	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(full)
		return "", fmt.Errorf("write blob %s: %w", key, err)
	}
	if size >= 0 && written != size {
		os.Remove(full)
		return "", fmt.Errorf("write blob %s: wrote %d of %d bytes", key, written, size)
	}
	return s.keyOf(full), nil
}

// Open accepts a key, and also a path that still carries the root (with or
// without its leading slash) as older records stored them.
func (s *LocalStore) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	candidates, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	for _, full := range candidates {
		f, err := os.Open(full)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		if info, err := f.Stat(); err == nil && info.IsDir() {
			f.Close()
			continue
		}
		return f, nil
	}
	return nil, ErrObjectNotFound
}

func (s *LocalStore) List(ctx context.Context) ([]ObjectInfo, error) {
	objects := make([]ObjectInfo, 0)
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Path:         s.keyOf(p),
			Size:         info.Size(),
			LastModified: info.ModTime(),
			ContentType:  ContentTypeFor(p),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk upload dir: %w", err)
	}
	return objects, nil
}

// resolve maps p onto the files below the root it may name, key form first.
// Anything outside the root is rejected.
func (s *LocalStore) resolve(p string) ([]string, error) {
	native := filepath.FromSlash(p)
	candidates := make([]string, 0, 3)
	for _, c := range []string{
		filepath.Join(s.root, native),
		filepath.Clean(native),
		filepath.Join(string(filepath.Separator), native),
	} {
		if s.within(c) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, p)
	}
	return candidates, nil
}

// keyOf turns a file below the root into its slash-separated key.
func (s *LocalStore) keyOf(full string) string {
	rel, err := filepath.Rel(s.root, full)
	if err != nil {
		return filepath.ToSlash(full)
	}
	return filepath.ToSlash(rel)
}

func (s *LocalStore) within(p string) bool {
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

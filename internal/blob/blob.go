// Package blob implements a directory-backed object store with object-created
// notifications. It stands in for the upload bucket: objects live under
// namespace prefixes ("uploaded/", "parsed/") encoded in their keys.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when no object exists at the requested key.
var ErrNotFound = errors.New("object not found")

// ObjectCreated describes a newly stored object.
type ObjectCreated struct {
	Bucket string
	Key    string
}

// Store is a filesystem-backed object store. Keys use forward slashes; the
// prefix up to the first slash acts as the namespace.
type Store struct {
	bucket  string
	baseDir string
	events  chan ObjectCreated
}

// New creates a Store rooted at baseDir, creating the directory if needed.
func New(bucket, baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Store{
		bucket:  bucket,
		baseDir: baseDir,
		events:  make(chan ObjectCreated, 64),
	}, nil
}

// Notifications exposes the object-created event stream.
func (s *Store) Notifications() <-chan ObjectCreated { return s.events }

// path resolves a key to a filesystem path, rejecting traversal outside the
// base directory.
func (s *Store) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	p := filepath.Join(s.baseDir, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.baseDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return p, nil
}

// Put streams r into the object at key and emits an ObjectCreated event.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	p, err := s.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	f, err := os.Create(p)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(p)
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	select {
	case s.events <- ObjectCreated{Bucket: s.bucket, Key: key}:
	default:
		log.Warn().Str("bucket", s.bucket).Str("key", key).Msg("blob event channel full, notification dropped")
	}
	return n, nil
}

// Open returns a reader over the object at key. The caller owns closing it.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

// Exists reports whether an object is stored at key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

// Copy duplicates the object at src to dst. It does not emit a notification;
// relocations inside the store must not retrigger ingestion.
func (s *Store) Copy(ctx context.Context, src, dst string) error {
	in, err := s.Open(ctx, src)
	if err != nil {
		return err
	}
	defer in.Close()
	p, err := s.path(dst)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	out, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(p)
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// Delete removes the object at key. Deleting a missing object is an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List returns the keys stored under the given prefix, unordered.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}

// SweepIncoming deletes objects under prefix older than maxAge. It backs the
// retention rule for uploads that were never processed.
func (s *Store) SweepIncoming(ctx context.Context, prefix string, maxAge time.Duration) (int, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, key := range keys {
		p, err := s.path(key)
		if err != nil {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(p); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("retention sweep delete failed")
				continue
			}
			removed++
			log.Info().Str("key", key).Msg("expired upload removed")
		}
	}
	return removed, nil
}

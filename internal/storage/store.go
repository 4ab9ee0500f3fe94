package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Buckets known to the service.
const (
	BucketChatUploads = "chat-uploads"
	BucketAvatars     = "avatars"
)

var (
	ErrUnknownBucket = errors.New("unknown bucket")
	ErrInvalidPath   = errors.New("invalid object path")
	ErrNotFound      = errors.New("object not found")
)

// Store is a disk-backed object store with named buckets.
type Store struct {
	root string
}

// NewStore creates the bucket directories under root.
func NewStore(root string) (*Store, error) {
	for _, bucket := range []string{BucketChatUploads, BucketAvatars} {
		if err := os.MkdirAll(filepath.Join(root, bucket), 0o755); err != nil {
			return nil, fmt.Errorf("create bucket dir: %w", err)
		}
	}
	return &Store{root: root}, nil
}

// RandomPath builds an object path namespaced by prefix with a randomized file
// name that keeps the original extension.
func RandomPath(prefix, originalName string) string {
	ext := filepath.Ext(originalName)
	name := uuid.NewString() + ext
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Save writes an object and returns its size.
func (s *Store) Save(bucket, path string, src io.Reader) (int64, error) {
	full, err := s.resolve(bucket, path)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, err
	}
	dst, err := os.Create(full)
	if err != nil {
		return 0, err
	}
	defer dst.Close()
	return io.Copy(dst, src)
}

// Open returns a reader for a stored object.
func (s *Store) Open(bucket, path string) (io.ReadCloser, error) {
	full, err := s.resolve(bucket, path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *Store) resolve(bucket, path string) (string, error) {
	if bucket != BucketChatUploads && bucket != BucketAvatars {
		return "", ErrUnknownBucket
	}
	clean := filepath.Clean("/" + path)
	if clean == "/" || strings.Contains(path, "..") {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, bucket, clean), nil
}

// Package storage persists uploaded image variants and returns their public URLs.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"restjam/internal/config"
)

// ObjectStore writes immutable objects addressed by key.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Name() string
}

// New returns the store selected by IMAGE_STORE.
func New(cfg *config.Config) (ObjectStore, error) {
	switch cfg.ImageStore {
	case "s3":
		return NewS3Store(cfg.S3Bucket, cfg.S3Region)
	case "", "local":
		return NewLocalStore(cfg.ImageUploadDir, cfg.ImagePublicURL), nil
	default:
		return nil, fmt.Errorf("unknown image store %q", cfg.ImageStore)
	}
}

// LocalStore keeps objects on disk under dir; the server exposes dir at publicURL.
type LocalStore struct {
	dir       string
	publicURL string
}

func NewLocalStore(dir, publicURL string) *LocalStore {
	return &LocalStore{dir: dir, publicURL: strings.TrimRight(publicURL, "/")}
}

func (s *LocalStore) Name() string { return "local" }

// Dir is the root directory objects are written under.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	abs := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := writeBytesToFile(abs, data); err != nil {
		return "", err
	}
	return s.publicURL + clean, nil
}

func writeBytesToFile(absPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(absPath), 0o750); err != nil {
		return err
	}
	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, absPath)
}

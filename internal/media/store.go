// Package media stores uploaded account photos.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// MaxPhotoBytes caps a single photo upload.
const MaxPhotoBytes = 5 << 20

var (
	ErrEmpty           = errors.New("empty upload")
	ErrTooLarge        = fmt.Errorf("photo exceeds %d bytes", MaxPhotoBytes)
	ErrUnsupportedType = errors.New("unsupported photo type")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store persists a photo and returns the URL it is reachable at.
type Store interface {
	Save(ctx context.Context, owner string, body io.Reader) (string, error)
}

// LocalStore keeps photos on disk, named by owner and content hash.
type LocalStore struct {
	dir     string
	baseURL string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates dir if needed and serves URLs under baseURL.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the directory photos are written to.
func (s *LocalStore) Dir() string { return s.dir }

// Save sniffs the content type, rejects non-images and writes the photo.
// Identical uploads for the same owner map to the same file.
func (s *LocalStore) Save(ctx context.Context, owner string, body io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxPhotoBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if len(data) > MaxPhotoBytes {
		return "", ErrTooLarge
	}
	ext, ok := extensions[http.DetectContentType(data)]
	if !ok {
		return "", ErrUnsupportedType
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%016x%s", filepath.Base(owner), xxhash.Sum64(data), ext)
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close photo: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("store photo: %w", err)
	}
	return s.baseURL + "/" + name, nil
}

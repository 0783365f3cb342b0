// Package blobstore stores user-uploaded images on local disk and serves them back by name.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/decora/internal/models"
	"go.uber.org/zap"
)

// MaxUploadBytes is the largest accepted upload.
const MaxUploadBytes = 10 << 20

// ErrNotFound is returned when a stored file does not exist.
var ErrNotFound = errors.New("file not found")

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// DiskStore keeps uploads in a single directory. Files are addressed by generated
// names so callers never choose paths.
type DiskStore struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

// NewDiskStore creates dir if needed. baseURL is the public server URL; stored files are
// reachable at baseURL + "/files/" + name.
func NewDiskStore(dir, baseURL string, logger *zap.Logger) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: uploads path is required", models.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}, nil
}

// Extension returns the file extension for an accepted image content type.
func Extension(contentType string) (string, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	ext, ok := extensions[ct]
	return ext, ok
}

// Put stores the content of r under a new name and returns its public URL. filename is
// the client's name for the file and is only logged.
// Only jpeg, png, webp, and gif images up to MaxUploadBytes are accepted.
func (d *DiskStore) Put(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	ext, ok := Extension(contentType)
	if !ok {
		return "", fmt.Errorf("%w: unsupported content type %q", models.ErrInvalidInput, contentType)
	}
	name := uuid.NewString() + ext
	path := filepath.Join(d.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create upload: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, MaxUploadBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > MaxUploadBytes {
		err = fmt.Errorf("%w: upload exceeds %d bytes", models.ErrInvalidInput, MaxUploadBytes)
	}
	if err == nil && n == 0 {
		err = fmt.Errorf("%w: upload is empty", models.ErrInvalidInput)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, models.ErrInvalidInput) {
			return "", err
		}
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	d.logger.Debug("upload stored",
		zap.String("name", name),
		zap.String("filename", filename),
		zap.Int64("bytes", n))
	return d.URL(name), nil
}

// URL returns the public URL of a stored file.
func (d *DiskStore) URL(name string) string {
	return d.baseURL + "/files/" + name
}

// Open returns a reader for a stored file. The caller must close it.
func (d *DiskStore) Open(name string) (*os.File, error) {
	path, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	return f, nil
}

// path rejects names that could escape the uploads directory.
func (d *DiskStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return filepath.Join(d.dir, name), nil
}

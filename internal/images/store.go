// Package images stores uploaded post images on the local filesystem.
package images

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"example.com/livefeed/internal/logger"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var logg = logger.New()

var (
	// ErrUnsupportedType is returned by Save for content types other than
	// png and jpeg.
	ErrUnsupportedType = errors.New("unsupported image type")

	// ErrOutsideStore is returned by Delete for paths that do not resolve
	// inside the store directory.
	ErrOutsideStore = errors.New("path is outside the image store")
)

var allowedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
}

// Allowed reports whether contentType is accepted for upload.
func Allowed(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return allowedTypes[ct]
}

// Store writes images into Dir. Returned paths are Dir-relative URLs such as
// "images/<token>.png", which is also how the files are served.
type Store struct {
	Dir string
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image dir: %w", err)
	}
	return &Store{Dir: dir}, nil
}

// Save writes r under a random name and returns its path.
func (s *Store) Save(r io.Reader, contentType, originalName string) (string, error) {
	if !Allowed(contentType) {
		return "", ErrUnsupportedType
	}

	name := uuid.NewString() + extension(contentType, originalName)
	full := filepath.Join(s.Dir, name)

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("failed to close image file: %w", err)
	}

	return filepath.ToSlash(full), nil
}

// Delete removes the file at p. p must resolve inside the store directory.
func (s *Store) Delete(p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	return os.Remove(full)
}

func (s *Store) resolve(p string) (string, error) {
	if p == "" {
		return "", ErrOutsideStore
	}
	clean := filepath.Clean(filepath.FromSlash(strings.ReplaceAll(p, `\`, "/")))
	base := filepath.Clean(s.Dir)
	rel, err := filepath.Rel(base, clean)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", ErrOutsideStore
	}
	return clean, nil
}

// FromRequest saves the multipart file in field and returns its path. An
// absent field or a rejected content type yields ("", nil): the upload is
// dropped and callers see no file.
func (s *Store) FromRequest(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	ct := header.Header.Get("Content-Type")
	p, err := s.Save(file, ct, header.Filename)
	if errors.Is(err, ErrUnsupportedType) {
		logg.Info("images", "Dropped upload with unsupported type", logger.F("content_type", ct))
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return p, nil
}

// extension prefers the uploaded file's extension and falls back to the one
// registered for contentType.
func extension(contentType, originalName string) string {
	if ext := path.Ext(strings.ReplaceAll(originalName, `\`, "/")); ext != "" && len(ext) <= 8 {
		return strings.ToLower(ext)
	}
	if contentType == "image/jpg" {
		contentType = "image/jpeg"
	}
	if m := mimetype.Lookup(contentType); m != nil {
		return m.Extension()
	}
	return ""
}

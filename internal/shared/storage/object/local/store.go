package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"schedule-backend/internal/shared/storage/object"
)

// Store implements ObjectStore using the local filesystem.
type Store struct {
	baseDir string
}

// New creates a new local object store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Save writes the reader to disk under the submitter's namespace with a random prefix.
func (s *Store) Save(ctx context.Context, submitterID string, fileName string, r io.Reader) (string, int64, string, error) {
	key, err := object.NewKey(submitterID, fileName)
	if err != nil {
		return "", 0, "", err
	}
	if err := ctx.Err(); err != nil {
		return "", 0, "", err
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", 0, "", eris.Wrap(err, "mkdir")
	}

	mimeType, body, err := object.Sniff(r)
	if err != nil {
		return "", 0, "", err
	}

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", 0, "", eris.Wrap(err, "open file")
	}
	size, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(fullPath)
		return "", 0, "", eris.Wrap(copyErr, "write body")
	}
	if closeErr != nil {
		return "", 0, "", eris.Wrap(closeErr, "close file")
	}
	return key, size, mimeType, nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := filepath.Clean(filepath.FromSlash(storageKey))
	if storageKey == "" || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, eris.New("invalid storage key")
	}

	f, err := os.Open(filepath.Join(s.baseDir, clean))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(object.ErrNotFound, "key %s", storageKey)
		}
		return nil, eris.Wrap(err, "open object")
	}
	return f, nil
}

var _ object.ObjectStore = (*Store)(nil)

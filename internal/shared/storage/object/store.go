package object

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"schedule-backend/internal/shared/util"
)

// ErrNotFound is returned by Open when the key has no stored object.
var ErrNotFound = eris.New("object not found")

// ObjectStore defines the contract for saving and retrieving binary objects.
type ObjectStore interface {
	Save(ctx context.Context, submitterID string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}

// NewKey builds a storage key of the form <hashed submitter>/<random>_<name>.
func NewKey(submitterID, fileName string) (string, error) {
	sanitized, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", eris.Wrap(err, "sanitize file name")
	}
	return util.HashSubmitterKey(submitterID) + "/" + uuid.NewString() + "_" + sanitized, nil
}

// Sniff detects the content type from the first 512 bytes of r and returns a
// reader that still yields the whole stream.
func Sniff(r io.Reader) (string, io.Reader, error) {
	var head [512]byte
	n, err := io.ReadFull(r, head[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, eris.Wrap(err, "read sniff")
	}
	return http.DetectContentType(head[:n]), io.MultiReader(bytes.NewReader(head[:n]), r), nil
}

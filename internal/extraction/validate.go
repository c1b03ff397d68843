package extraction

import (
	"strings"

	"github.com/rotisserie/eris"
)

// MaxImageBytes is the largest schedule image accepted.
const MaxImageBytes = 10 << 20

// ValidateImage checks that the upload plausibly is a schedule photo: an
// image/* type, non-empty and at most MaxImageBytes.
func ValidateImage(mimeType string, size int64) error {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if !strings.HasPrefix(mt, "image/") {
		return eris.Wrapf(ErrInvalidImage, "unsupported content type %q", mimeType)
	}
	if size <= 0 {
		return eris.Wrap(ErrInvalidImage, "empty image")
	}
	if size > MaxImageBytes {
		return eris.Wrapf(ErrInvalidImage, "image too large: %d bytes (max %d)", size, MaxImageBytes)
	}
	return nil
}

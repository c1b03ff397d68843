package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateImage(t *testing.T) {
	assert.NoError(t, ValidateImage("image/jpeg", 1024))
	assert.NoError(t, ValidateImage(" IMAGE/PNG ", MaxImageBytes))
	assert.ErrorIs(t, ValidateImage("application/pdf", 1024), ErrInvalidImage)
	assert.ErrorIs(t, ValidateImage("image/png", 0), ErrInvalidImage)
	assert.ErrorIs(t, ValidateImage("image/png", MaxImageBytes+1), ErrInvalidImage)
}

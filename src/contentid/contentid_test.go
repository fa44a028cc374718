package contentid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentifyDeterministic(t *testing.T) {
	a := Identify([]byte("tonight on Ethel the Frog"), "text/plain")
	b := Identify([]byte("tonight on Ethel the Frog"), "text/plain")

	assert.Equal(t, a, b)
	assert.Equal(t, 25, a.Length)
	assert.NotEmpty(t, a.ID)
	assert.Len(t, a.Hash, 32)
}

func TestIdentifyDiffers(t *testing.T) {
	base := Identify([]byte("gangland violence"), "text/plain")

	t.Run("different bytes", func(t *testing.T) {
		other := Identify([]byte("gangland violence!"), "text/plain")
		assert.NotEqual(t, base.ID, other.ID)
		assert.NotEqual(t, base.Hash, other.Hash)
	})

	t.Run("different mime type", func(t *testing.T) {
		other := Identify([]byte("gangland violence"), "application/octet-stream")
		assert.NotEqual(t, base.ID, other.ID)
		// Same bytes, so the raw content hash matches.
		assert.Equal(t, base.Hash, other.Hash)
	})
}

func TestIdentifyEmptyContent(t *testing.T) {
	id := Identify(nil, "text/plain")
	assert.Equal(t, 0, id.Length)
	assert.NotEmpty(t, id.ID)
	assert.NotEmpty(t, id.Hash)
}

func TestIdentifierAlphabet(t *testing.T) {
	id := Identify([]byte("some attachment bytes"), "image/png")
	for _, r := range id.ID {
		assert.True(t, strings.ContainsRune(base62Alphabet, r), "identifier must be base62, got %q", id.ID)
	}
}

func TestBase62Zero(t *testing.T) {
	assert.Equal(t, "0", base62([]byte{0, 0, 0}))
}

package archive

import (
	"context"
	"testing"

	"git.listhouse.net/lhn/lhn/src/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindOrphanedBlobs(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemStore()

	archiver := &Archiver{Blobs: blobs}
	_, err := archiver.Archive(ctx, ArchiveInput{
		Content:     []byte("British gangland by night."),
		Filename:    "gangland.txt",
		ContentType: "text/plain",
		TopicTitle:  "Violence",
		GroupID:     "violence",
		Creator:     "ethel@example.com",
	})
	require.NoError(t, err)

	// Bytes written, metadata never set. This is what a crash between Add
	// and SetMetadata leaves behind.
	orphan, err := blobs.Add(ctx, []byte("half-archived"))
	require.NoError(t, err)

	orphans, err := FindOrphanedBlobs(ctx, blobs)
	require.NoError(t, err)
	assert.Equal(t, []string{orphan}, orphans)
}

func TestFindOrphanedBlobsEmptyStore(t *testing.T) {
	orphans, err := FindOrphanedBlobs(context.Background(), blobstore.NewMemStore())
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestFindOrphanedBlobsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blobs := blobstore.NewMemStore()
	_, err := blobs.Add(ctx, []byte("whatever"))
	require.NoError(t, err)

	cancel()
	_, err = FindOrphanedBlobs(ctx, blobs)
	assert.ErrorIs(t, err, context.Canceled)
}

package archive

import (
	"context"

	"git.listhouse.net/lhn/lhn/src/blobstore"
	"git.listhouse.net/lhn/lhn/src/logging"
	"git.listhouse.net/lhn/lhn/src/oops"
)

// Archiver writes attachment bytes to the blob store and decorates them
// with descriptive metadata. The store is injected; the archiver owns no
// ambient state.
type Archiver struct {
	Blobs blobstore.Store
}

type ArchiveInput struct {
	Content     []byte
	Filename    string
	ContentType string

	TopicTitle string
	GroupID    string
	Creator    string
}

// Archive stores the bytes, sets metadata, and reindexes the blob. Returns
// the blob store's handle.
//
// If the metadata or reindex step fails after the bytes are written, the
// blob is orphaned: bytes with no discoverable metadata. The condition is
// logged for the sweep tooling and the error propagates; there is no retry
// here.
func (a *Archiver) Archive(ctx context.Context, in ArchiveInput) (string, error) {
	handle, err := a.Blobs.Add(ctx, in.Content)
	if err != nil {
		return "", oops.New(err, "failed to store attachment bytes")
	}

	meta := blobstore.Metadata{
		ContentType: in.ContentType,
		Title:       stripPath(in.Filename),
		Tags:        []string{"attachment"},
		GroupIDs:    []string{in.GroupID},
		Creator:     in.Creator,
		Topic:       in.TopicTitle,
	}
	if err := a.Blobs.SetMetadata(ctx, handle, meta); err != nil {
		logOrphanedBlob(ctx, handle, in.Filename)
		return "", oops.New(err, "failed to set attachment metadata")
	}

	if err := a.Blobs.Reindex(ctx, handle); err != nil {
		logOrphanedBlob(ctx, handle, in.Filename)
		return "", oops.New(err, "failed to reindex attachment")
	}

	return handle, nil
}

func logOrphanedBlob(ctx context.Context, handle string, filename string) {
	logging.ExtractLogger(ctx).Warn().
		Str("handle", handle).
		Str("filename", filename).
		Msg("attachment bytes written but metadata was not; blob is orphaned until swept")
}

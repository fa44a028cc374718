package blobstore

import "context"

// Descriptive metadata attached to a stored blob. The blob store is the
// source of truth for what was actually persisted; readers should trust
// these values over whatever the uploader thought it sent.
type Metadata struct {
	ContentType string
	Title       string
	Tags        []string
	GroupIDs    []string
	Creator     string
	Topic       string
}

type Blob struct {
	Handle   string
	Size     int
	Content  []byte
	Metadata Metadata
}

// Store is the binary storage backend for attachment bytes. Handles are
// assigned by the store and are opaque; they are unrelated to the
// content-derived attachment identifier.
//
// Implementations are safe for concurrent use.
type Store interface {
	// Add persists the content and returns the store's handle for it.
	Add(ctx context.Context, content []byte) (string, error)
	// Get returns the blob for the handle, bytes and metadata included.
	Get(ctx context.Context, handle string) (*Blob, error)
	// SetMetadata replaces the descriptive metadata on the handle.
	SetMetadata(ctx context.Context, handle string, meta Metadata) error
	// Reindex asks the store to make the handle visible to search.
	Reindex(ctx context.Context, handle string) error
	// List returns every handle in the store, for sweep tooling.
	List(ctx context.Context) ([]string, error)
}

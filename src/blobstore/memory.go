package blobstore

import (
	"context"
	"sync"

	"git.listhouse.net/lhn/lhn/src/oops"
	"github.com/google/uuid"
)

// MemStore is an in-memory Store for tests and local development.
type MemStore struct {
	mu        sync.Mutex
	blobs     map[string]*Blob
	reindexes map[string]int
}

var _ Store = &MemStore{}

func NewMemStore() *MemStore {
	return &MemStore{
		blobs:     make(map[string]*Blob),
		reindexes: make(map[string]int),
	}
}

func (s *MemStore) Add(ctx context.Context, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle := uuid.New().String()
	stored := make([]byte, len(content))
	copy(stored, content)
	s.blobs[handle] = &Blob{
		Handle:  handle,
		Size:    len(stored),
		Content: stored,
	}
	return handle, nil
}

func (s *MemStore) Get(ctx context.Context, handle string) (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.blobs[handle]
	if !ok {
		return nil, oops.New(nil, "no blob with handle %s", handle)
	}
	copied := *blob
	return &copied, nil
}

func (s *MemStore) SetMetadata(ctx context.Context, handle string, meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.blobs[handle]
	if !ok {
		return oops.New(nil, "no blob with handle %s", handle)
	}
	blob.Metadata = meta
	return nil
}

func (s *MemStore) Reindex(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[handle]; !ok {
		return oops.New(nil, "no blob with handle %s", handle)
	}
	s.reindexes[handle]++
	return nil
}

func (s *MemStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles := make([]string, 0, len(s.blobs))
	for handle := range s.blobs {
		handles = append(handles, handle)
	}
	return handles, nil
}

// ReindexCount reports how many times Reindex was called for the handle.
func (s *MemStore) ReindexCount(handle string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reindexes[handle]
}

package documents

import (
	"context"
	"io"
	"sync"
)

// MemoryStore keeps blobs in process. Used for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Exists(ctx context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[path]
	return ok, nil
}

func (s *MemoryStore) Upload(ctx context.Context, path string, r io.Reader, contentType string) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.blobs[path] = data
	s.mu.Unlock()
	return int64(len(data)), nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[path]; !ok {
		return ErrNotExist
	}
	delete(s.blobs, path)
	return nil
}

var (
	_ BlobStore = (*MemoryStore)(nil)
	_ BlobStore = (*GCSStore)(nil)
)

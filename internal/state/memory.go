package state

import (
	"fmt"
	"sync"

	"github.com/cascadewire/chunkupload/internal/models"
)

// MemoryStore is a process-local Store, useful for tests and for
// callers that only need resumability within a single run.
type MemoryStore struct {
	mu      sync.RWMutex
	uploads map[string]*models.FileUpload
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{uploads: make(map[string]*models.FileUpload)}
}

func (s *MemoryStore) Save(u *models.FileUpload) error {
	if u == nil {
		return fmt.Errorf("state: cannot save nil upload")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[u.FileID] = u.Clone()
	return nil
}

func (s *MemoryStore) Load(fileID string) (*models.FileUpload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.uploads[fileID]
	if !ok {
		return nil, nil
	}
	return u.Clone(), nil
}

func (s *MemoryStore) Delete(fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, fileID)
	return nil
}

func (s *MemoryStore) List() ([]*models.FileUpload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.FileUpload, 0, len(s.uploads))
	for _, u := range s.uploads {
		out = append(out, u.Clone())
	}
	return out, nil
}

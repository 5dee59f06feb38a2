package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cascadewire/chunkupload/internal/diskspace"
	"github.com/cascadewire/chunkupload/internal/models"
)

const sidecarSuffix = ".upload.resume.json"

// FileStore persists each FileUpload as a JSON sidecar file under dir,
// written atomically via a temp-file-plus-rename, grounded on the
// teacher's SaveUploadState/LoadUploadState pair.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if
// necessary.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("state: create store dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(fileID string) string {
	return filepath.Join(s.dir, fileID+sidecarSuffix)
}

func (s *FileStore) Save(u *models.FileUpload) error {
	if u == nil {
		return fmt.Errorf("state: cannot save nil upload")
	}
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal %s: %w", u.FileID, err)
	}

	// Sidecars are small but a store directory living on a nearly-full
	// volume is a sign the resumable state itself is unsafe to trust;
	// fail the save rather than risk a truncated write.
	final := s.path(u.FileID)
	if err := diskspace.CheckAvailableSpace(final, int64(len(data)), 1.5); err != nil {
		return fmt.Errorf("state: %w", err)
	}

	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("state: write temp sidecar: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("state: rename sidecar into place: %w", err)
	}
	return nil
}

func (s *FileStore) Load(fileID string) (*models.FileUpload, error) {
	data, err := os.ReadFile(s.path(fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("state: read sidecar %s: %w", fileID, err)
	}
	var u models.FileUpload
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("state: unmarshal sidecar %s: %w", fileID, err)
	}
	return &u, nil
}

func (s *FileStore) Delete(fileID string) error {
	err := os.Remove(s.path(fileID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("state: delete sidecar %s: %w", fileID, err)
	}
	return nil
}

func (s *FileStore) List() ([]*models.FileUpload, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("state: read store dir: %w", err)
	}

	var out []*models.FileUpload
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), sidecarSuffix) {
			continue
		}
		fileID := strings.TrimSuffix(e.Name(), sidecarSuffix)
		u, err := s.Load(fileID)
		if err != nil {
			return nil, err
		}
		if u != nil {
			out = append(out, u)
		}
	}
	return out, nil
}

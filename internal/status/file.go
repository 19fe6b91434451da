package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists the recovery status as a JSON file, written atomically
// via tmp+rename so dashboard readers never see a torn record.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store, creating parent directories.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create status dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Write(ctx context.Context, rs RecoveryStatus) error {
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal recovery status: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil { // #nosec G306 - readable by ops group
		return fmt.Errorf("write recovery status: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit recovery status: %w", err)
	}
	return nil
}

func (s *FileStore) Read(ctx context.Context) (RecoveryStatus, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return RecoveryStatus{}, ErrNotFound
		}
		return RecoveryStatus{}, fmt.Errorf("read recovery status: %w", err)
	}

	var rs RecoveryStatus
	if err := json.Unmarshal(data, &rs); err != nil {
		return RecoveryStatus{}, fmt.Errorf("parse recovery status: %w", err)
	}
	return rs, nil
}

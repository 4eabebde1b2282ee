package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// CredentialStore persists one credential per user.
type CredentialStore interface {
	Load(ctx context.Context, userID int64) (Credential, bool, error)
	Save(ctx context.Context, userID int64, c Credential) error
	Delete(ctx context.Context, userID int64) error
}

// FileStore keeps credentials as owner-only JSON files under a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credentials directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(userID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("user-%d.json", userID))
}

func (s *FileStore) Load(_ context.Context, userID int64) (Credential, bool, error) {
	data, err := os.ReadFile(s.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, fmt.Errorf("read credential: %w", err)
	}
	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return Credential{}, false, fmt.Errorf("decode credential: %w", err)
	}
	return c, true, nil
}

// Save writes the credential through a temp file and rename so readers never
// see a partial file.
func (s *FileStore) Save(_ context.Context, userID int64, c Credential) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, fmt.Sprintf(".user-%d-*.tmp", userID))
	if err != nil {
		return fmt.Errorf("create temp credential: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credential: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credential: %w", err)
	}
	if err := os.Rename(tmpName, s.path(userID)); err != nil {
		return fmt.Errorf("replace credential: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, userID int64) error {
	if err := os.Remove(s.path(userID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

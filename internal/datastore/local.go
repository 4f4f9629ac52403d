package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore хранит артефакты JSON-файлами в директории.
type LocalStore struct {
	root string
}

// NewLocalStore создаёт LocalStore с корнем root.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Root возвращает корневую директорию.
func (s *LocalStore) Root() string {
	return s.root
}

// Location возвращает путь к файлу артефактов.
func (s *LocalStore) Location(key Key) string {
	return filepath.Join(s.root, filepath.FromSlash(key.Path()))
}

// Save записывает артефакты атомарно: во временный файл, затем rename.
func (s *LocalStore) Save(ctx context.Context, key Key, artifacts map[string]any) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}

	dst := s.Location(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".artifacts-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifacts: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifacts: %w", err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename artifacts: %w", err)
	}
	return nil
}

// Load читает артефакты.
func (s *LocalStore) Load(ctx context.Context, key Key) (map[string]any, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Location(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key.Path())
		}
		return nil, fmt.Errorf("read artifacts: %w", err)
	}

	return decode(data)
}

func decode(data []byte) (map[string]any, error) {
	var artifacts map[string]any
	if err := json.Unmarshal(data, &artifacts); err != nil {
		return nil, fmt.Errorf("unmarshal artifacts: %w", err)
	}
	if artifacts == nil {
		artifacts = make(map[string]any)
	}
	return artifacts, nil
}

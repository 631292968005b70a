package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/vaultsweep/vaultsweep/internal/models"
)

// FSStore implements Backend on the local filesystem. Object keys map
// directly to paths under root.
type FSStore struct {
	root     string
	provider string
}

// NewFSStore creates a filesystem-backed store rooted at root.
func NewFSStore(root string) (*FSStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid root path: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root dir: %w", err)
	}
	return &FSStore{root: absRoot, provider: "filesystem"}, nil
}

func (s *FSStore) Provider() string { return s.provider }

func (s *FSStore) ListItems(_ context.Context, userID uuid.UUID, category models.Category) ([]models.StorageItem, error) {
	prefix := filepath.Join(s.root, filepath.FromSlash(ItemPrefix(userID, category)))

	var items []models.StorageItem
	err := filepath.WalkDir(prefix, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				// Nothing stored yet for this prefix.
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		item, err := ParseItemKey(filepath.ToSlash(rel))
		if err != nil {
			// Foreign file under the vault tree; not ours to manage.
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		item.SizeBytes = info.Size()
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: walk %s: %w", prefix, err)
	}
	return items, nil
}

func (s *FSStore) PutItem(_ context.Context, userID uuid.UUID, category models.Category, uploadedAt time.Time, contentHash string, payload []byte) (string, error) {
	key := BuildItemKey(userID, category, uploadedAt, contentHash)
	fullPath := filepath.Join(s.root, filepath.FromSlash(key))
	dir := filepath.Dir(fullPath)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: mkdir: %w", err)
	}

	// Atomic write: temp file then rename (same partition).
	tmpFile, err := os.CreateTemp(dir, "vaultsweep-*.tmp")
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmpFile.Name()
	defer os.Remove(tmpName) // ignored if renamed successfully

	if err := tmpFile.Chmod(0o600); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("storage: chmod: %w", err)
	}
	if _, err := tmpFile.Write(payload); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return "", fmt.Errorf("storage: rename: %w", err)
	}
	return key, nil
}

func (s *FSStore) DeleteItem(_ context.Context, reference string) error {
	fullPath := filepath.Join(s.root, filepath.FromSlash(reference))
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil // idempotent delete
		}
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}

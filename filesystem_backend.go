package firmstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FilesystemBackend implements Backend on the local filesystem.
// Intended for development and tests; one base directory per shard.
type FilesystemBackend struct {
	basePath string
}

// NewFilesystemBackend creates a filesystem backend rooted at basePath
func NewFilesystemBackend(basePath string) *FilesystemBackend {
	return &FilesystemBackend{basePath: basePath}
}

func (b *FilesystemBackend) path(key string) string {
	return filepath.Join(b.basePath, filepath.FromSlash(key))
}

func (b *FilesystemBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		if os.IsPermission(err) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return data, nil
}

func (b *FilesystemBackend) Put(ctx context.Context, key string, data []byte) error {
	path := b.path(key)
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return err
	}
	return os.WriteFile(path, data, DefaultFilePermissions)
}

func (b *FilesystemBackend) Delete(ctx context.Context, key string) error {
	err := os.Remove(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (b *FilesystemBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *FilesystemBackend) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	searchPath := b.path(prefix)

	if _, err := os.Stat(searchPath); os.IsNotExist(err) {
		return keys, nil
	}

	err := filepath.Walk(searchPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			relPath, err := filepath.Rel(b.basePath, path)
			if err != nil {
				return err
			}
			// Forward slashes for consistency with the object-store backends
			keys = append(keys, filepath.ToSlash(relPath))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(keys)
	return keys, nil
}

func (b *FilesystemBackend) Ping(ctx context.Context) error {
	info, err := os.Stat(b.basePath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("base path is not a directory: %s", b.basePath)
	}

	testFile := filepath.Join(b.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), DefaultFilePermissions); err != nil {
		return fmt.Errorf("cannot write to base path: %w", err)
	}
	os.Remove(testFile)

	return nil
}

func (b *FilesystemBackend) Close() error {
	return nil
}

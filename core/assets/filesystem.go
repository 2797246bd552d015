package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem is the local filesystem implementation of the asset Driver.
type Filesystem struct {
	basePath string
}

// NewFilesystem returns a filesystem driver rooted at the configured base
// path, creating it if necessary.
func NewFilesystem(config LocalConfiguration) (*Filesystem, error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("BasePath must not be empty")
	}
	if err := os.MkdirAll(config.BasePath, 0700); err != nil {
		return nil, err
	}
	return &Filesystem{basePath: config.BasePath}, nil
}

// Put implements Driver.
func (f *Filesystem) Put(ctx context.Context, key string, data []byte) error {
	if strings.Contains(key, "..") {
		return fmt.Errorf("'..' is not allowed in a key")
	}
	path := filepath.Join(f.basePath, key)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Delete implements Driver.
func (f *Filesystem) Delete(ctx context.Context, key string) error {
	if strings.Contains(key, "..") {
		return fmt.Errorf("'..' is not allowed in a key")
	}
	return os.Remove(filepath.Join(f.basePath, key))
}

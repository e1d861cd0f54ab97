package persistence

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

const (
	fileStoreExtension      = ".json"
	fileStoreTempPrefix     = ".tmp-"
	fileStoreDirPermissions = 0o755
	errMessageCreateDir     = "create persistence directory"
	errMessageReadValue     = "read value"
	errMessageWriteValue    = "write value"
	errMessageRemoveValue   = "remove value"
)

// FileStore keeps each value in <directory>/<key>.json. Writes go to a temporary file in
// the same directory and are renamed into place, so readers never observe a partial value.
type FileStore struct {
	directory string
}

// NewFileStore constructs a FileStore rooted at directory, creating it when absent.
func NewFileStore(directory string) (*FileStore, error) {
	if directory == "" {
		return nil, ErrMissingPath
	}
	if err := os.MkdirAll(directory, fileStoreDirPermissions); err != nil {
		return nil, fmt.Errorf("%s %s: %w", errMessageCreateDir, directory, err)
	}
	return &FileStore{directory: directory}, nil
}

// Get reads the value stored under key.
func (store *FileStore) Get(key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	content, err := os.ReadFile(store.valuePath(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", errMessageReadValue, err)
	}
	return string(content), true, nil
}

// Set atomically replaces the value stored under key.
func (store *FileStore) Set(key string, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	finalPath := store.valuePath(key)
	tempFile, err := os.CreateTemp(store.directory, fileStoreTempPrefix+filepath.Base(finalPath)+"-")
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageWriteValue, err)
	}
	tempPath := tempFile.Name()
	if _, err := tempFile.WriteString(value); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("%s: %w", errMessageWriteValue, err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("%s: %w", errMessageWriteValue, err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%s: %w", errMessageWriteValue, err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%s: %w", errMessageWriteValue, err)
	}
	return nil
}

// Remove deletes the file holding key. A missing file is not an error.
func (store *FileStore) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := os.Remove(store.valuePath(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", errMessageRemoveValue, err)
	}
	return nil
}

// Close is a no-op.
func (store *FileStore) Close() error {
	return nil
}

// Directory reports where values are written.
func (store *FileStore) Directory() string {
	return store.directory
}

func (store *FileStore) valuePath(key string) string {
	return filepath.Join(store.directory, url.PathEscape(key)+fileStoreExtension)
}

package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const errMessageReadExportFile = "read export file"

// ExportFile is the complete content of one user-supplied file together with the
// modification time reported by its source.
type ExportFile struct {
	Name       string
	Content    string
	ModifiedAt time.Time
}

// FileSource reads a whole file in one request.
type FileSource interface {
	ReadExportFile(ctx context.Context, path string) (ExportFile, error)
}

// LocalFileSource reads export files from the local filesystem.
type LocalFileSource struct{}

// ReadExportFile reads path and stamps it with the file's modification time.
func (LocalFileSource) ReadExportFile(ctx context.Context, path string) (ExportFile, error) {
	if err := ctx.Err(); err != nil {
		return ExportFile{}, err
	}
	fileInfo, err := os.Stat(path)
	if err != nil {
		return ExportFile{}, fmt.Errorf("%s %s: %w", errMessageReadExportFile, path, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return ExportFile{}, fmt.Errorf("%s %s: %w", errMessageReadExportFile, path, err)
	}
	return ExportFile{
		Name:       filepath.Base(path),
		Content:    string(content),
		ModifiedAt: fileInfo.ModTime(),
	}, nil
}

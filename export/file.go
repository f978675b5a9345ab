package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultDir is the sub directory snapshots are saved into
const DefaultDir = "CamDetect"

// IndexFile is the name of the media index kept alongside the snapshots
const IndexFile = "index.txt"

// FileExporter saves snapshots to a directory and registers each one in a
// media index file so gallery tools pick them up without rescanning
type FileExporter struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFileExporter returns an exporter writing into dir, the directory is
// created on the first export
func NewFileExporter(dir string) *FileExporter {

	if dir == "" {
		dir = DefaultDir
	}

	return &FileExporter{
		dir: dir,
		now: time.Now,
	}
}

// Dir returns the directory snapshots are written to
func (e *FileExporter) Dir() string {
	return e.dir
}

// Export writes data to the named file and appends it to the media index.
// The returned location is the file path.
func (e *FileExporter) Export(ctx context.Context, name string, data []byte) (string, error) {

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid snapshot name %q", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating snapshot directory: %w", err)
	}

	path := filepath.Join(e.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("error writing snapshot: %w", err)
	}

	if err := e.register(name, len(data)); err != nil {
		return "", err
	}

	return path, nil
}

// register appends the snapshot to the media index
func (e *FileExporter) register(name string, size int) error {

	f, err := os.OpenFile(filepath.Join(e.dir, IndexFile),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)

	if err != nil {
		return fmt.Errorf("error opening media index: %w", err)
	}

	defer f.Close()

	_, err = fmt.Fprintf(f, "%s\t%s\t%s\t%d\n", e.now().UTC().Format(time.RFC3339),
		name, "image/jpeg", size)

	if err != nil {
		return fmt.Errorf("error writing media index: %w", err)
	}

	return nil
}

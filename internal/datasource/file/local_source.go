// Package file implements a local filesystem-backed data source.
package file

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
)

// Local is a filesystem data source that opens files from the local disk.
// Exports are read front to back once, so the kernel is told to read ahead.
type Local struct{ path string }

// NewLocal returns a Local bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the bound path.
func (l *Local) Path() string { return l.path }

// Open opens the configured path for reading. A context that is already done
// short-circuits without touching the filesystem; filesystem errors are
// wrapped with the path and still match errors.Is(err, os.ErrNotExist).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	if err := adviseSequential(f); err != nil {
		log.Printf("file: fadvise %s: %v", l.path, err)
	}
	return f, nil
}

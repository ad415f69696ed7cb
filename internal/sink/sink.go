// Package sink persists accepted images to an output directory.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kozaktomas/frame-curator/internal/source"
)

// ErrWrite marks an output location that could not be created or written.
var ErrWrite = errors.New("cannot write output")

// Dir writes byte-identical copies of accepted images under their original
// filenames. Same-name files overwrite each other.
type Dir struct {
	path string
}

// NewDir creates the output directory if needed.
func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrWrite, path, err)
	}
	return &Dir{path: path}, nil
}

// Path returns the output directory.
func (d *Dir) Path() string {
	return d.path
}

// Target returns where a candidate would be written.
func (d *Dir) Target(c *source.Candidate) string {
	return filepath.Join(d.path, c.Name)
}

// Persist writes the candidate's original bytes. The file is written to a
// temporary name first and renamed, so readers never see partial output.
func (d *Dir) Persist(c *source.Candidate) error {
	target := d.Target(c)
	tmp, err := os.CreateTemp(d.path, "."+c.Name+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, target, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(c.Data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", ErrWrite, target, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", ErrWrite, target, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", ErrWrite, target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", ErrWrite, target, err)
	}
	return nil
}

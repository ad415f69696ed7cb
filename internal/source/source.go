// Package source enumerates and loads candidate images from an input directory.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kozaktomas/frame-curator/internal/quality"
)

// ErrDecode marks a candidate that could not be read or decoded.
var ErrDecode = errors.New("cannot decode image")

// ErrList marks an input directory that could not be enumerated.
var ErrList = errors.New("cannot list input directory")

// supportedExts are matched case-insensitively.
var supportedExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// Candidate is a decoded input image. It is immutable once loaded.
type Candidate struct {
	Path  string      // path as enumerated
	Name  string      // base filename, used for output
	Data  []byte      // original file bytes
	Image image.Image // decoded pixels
	Luma  *image.Gray // single-channel luminance
}

// LoadError reports a candidate that was skipped.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

// Unwrap lets errors.Is match both ErrDecode and the underlying cause.
func (e *LoadError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// Decoder turns raw file bytes into pixels.
type Decoder interface {
	Decode(data []byte) (image.Image, error)
}

// StdDecoder decodes JPEG and PNG through the image package registry.
type StdDecoder struct{}

// Decode implements Decoder.
func (StdDecoder) Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("image has no pixels")
	}
	return img, nil
}

// Source lists and loads candidates from a single directory.
type Source struct {
	dir     string
	decoder Decoder
}

// Option configures a Source.
type Option func(*Source)

// WithDecoder replaces the default decoder.
func WithDecoder(d Decoder) Option {
	return func(s *Source) {
		s.decoder = d
	}
}

// New creates a Source for dir.
func New(dir string, opts ...Option) *Source {
	s := &Source{dir: dir, decoder: StdDecoder{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the input directory.
func (s *Source) Dir() string {
	return s.dir
}

// IsSupported reports whether name has a supported image extension.
func IsSupported(name string) bool {
	_, ok := supportedExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// List returns the paths of supported files directly inside the directory,
// sorted by filename. Subdirectories are not traversed.
func (s *Source) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrList, s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsSupported(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	// ReadDir already sorts, but the order is part of the contract.
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(s.dir, name)
	}
	return paths, nil
}

// Load reads and decodes a single file. Failures are returned as *LoadError.
func (s *Source) Load(path string) (*Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	img, err := s.decoder.Decode(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return &Candidate{
		Path:  path,
		Name:  filepath.Base(path),
		Data:  data,
		Image: img,
		Luma:  quality.Luminance(img),
	}, nil
}

// All lazily loads every candidate in List order. Each step yields either a
// candidate or a *LoadError; iteration continues after load errors. A
// listing failure is yielded once and ends the sequence.
func (s *Source) All() iter.Seq2[*Candidate, error] {
	return func(yield func(*Candidate, error) bool) {
		paths, err := s.List()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, path := range paths {
			if !yield(s.Load(path)) {
				return
			}
		}
	}
}

// Count returns the number of supported files without loading them.
func (s *Source) Count() (int, error) {
	paths, err := s.List()
	if err != nil {
		return 0, err
	}
	return len(paths), nil
}

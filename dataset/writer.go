// Package dataset stores captured samples as training images.
//
// Each sample is one PNG whose file name carries the capture time and the
// steering angle and speed in effect when the frame was pulled. A Writer
// can also keep a SQLite manifest of everything it wrote.
package dataset

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/teranos/picar"
)

// Writer persists samples into one directory. It is safe for concurrent use.
type Writer struct {
	dir      string
	mu       sync.Mutex
	last     time.Time
	manifest *Manifest
	encoder  png.Encoder
}

// Option configures a Writer.
type Option func(*Writer)

// WithManifest records every saved sample in m. The writer does not close it.
func WithManifest(m *Manifest) Option {
	return func(w *Writer) { w.manifest = m }
}

// WithCompression sets the PNG compression level.
func WithCompression(level png.CompressionLevel) Option {
	return func(w *Writer) { w.encoder.CompressionLevel = level }
}

// NewWriter binds a writer to dir, creating it when missing.
func NewWriter(dir string, opts ...Option) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("dataset directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dataset directory: %w", err)
	}

	w := &Writer{dir: filepath.Clean(dir)}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the directory samples are written to.
func (w *Writer) Dir() string { return w.dir }

// Save encodes the sample and returns the file name it was stored under.
// When the manifest insert fails the file stays and its name is returned
// with the error. Timestamps are kept strictly increasing so names never collide; a tie is
// moved forward by one microsecond.
func (w *Writer) Save(s picar.CapturedSample) (string, error) {
	if s.Frame == nil {
		return "", fmt.Errorf("sample has no frame")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	ts := s.Timestamp.Truncate(time.Microsecond)
	if !w.last.IsZero() && !ts.After(w.last) {
		ts = w.last.Add(time.Microsecond)
	}
	s.Timestamp = ts

	name := picar.SampleFileName(s)
	if err := w.writeFile(name, s); err != nil {
		return "", err
	}
	w.last = ts

	if w.manifest != nil {
		if err := w.manifest.Record(name, s); err != nil {
			return name, fmt.Errorf("manifest: %w", err)
		}
	}
	return name, nil
}

func (w *Writer) writeFile(name string, s picar.CapturedSample) error {
	tmp, err := os.CreateTemp(w.dir, ".sample-*.png")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := w.encoder.Encode(tmp, s.Frame); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(w.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

var _ picar.Persister = (*Writer)(nil)

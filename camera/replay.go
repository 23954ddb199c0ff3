package camera

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/teranos/picar"
)

var replayExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".webp": true,
}

// Replay plays the images of a directory in file name order, as if they
// came from a camera. Sample directories written by a logging session sort
// chronologically within a day.
type Replay struct {
	mu    sync.Mutex
	dir   string
	files []string
	next  int
	open  bool
	now   func() time.Time
}

// OpenReplay lists the images of dir. It fails when there are none.
func OpenReplay(dir string) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if replayExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("replay: no images in %s", dir)
	}
	sort.Strings(files)

	return &Replay{dir: dir, files: files, open: true, now: time.Now}, nil
}

func (r *Replay) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// ReadFrame decodes the next file. Frames are stamped with the read time.
func (r *Replay) ReadFrame() (picar.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open || r.next >= len(r.files) {
		return picar.Frame{}, picar.ErrStreamEnded
	}

	name := r.files[r.next]
	r.next++

	f, err := os.Open(filepath.Join(r.dir, name))
	if err != nil {
		return picar.Frame{}, fmt.Errorf("replay %s: %w", name, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return picar.Frame{}, fmt.Errorf("replay %s: %w", name, err)
	}
	return picar.Frame{Image: img, Timestamp: r.now()}, nil
}

// Remaining returns how many files are left.
func (r *Replay) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files) - r.next
}

func (r *Replay) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	return nil
}

var _ picar.Camera = (*Replay)(nil)

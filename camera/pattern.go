// Package camera provides frame sources for the capture loop.
//
// Pattern synthesizes frames, Replay plays back an image directory and
// Webcam (linux) reads MJPEG frames from a V4L2 device.
package camera

import (
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/teranos/picar"
)

// Default frame size, matching the reference car's camera setup.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Pattern produces a moving test pattern: a color gradient with a bar that
// sweeps across the frame, one step per frame.
type Pattern struct {
	mu       sync.Mutex
	width    int
	height   int
	limit    int // 0 means unlimited
	interval time.Duration
	count    int
	last     time.Time
	open     bool
	now      func() time.Time
	sleep    func(time.Duration)
}

// PatternOption configures a Pattern.
type PatternOption func(*Pattern)

// WithFrameLimit ends the stream after n frames.
func WithFrameLimit(n int) PatternOption {
	return func(p *Pattern) { p.limit = n }
}

// WithFPS paces frames at the given rate.
func WithFPS(fps int) PatternOption {
	return func(p *Pattern) {
		if fps > 0 {
			p.interval = time.Second / time.Duration(fps)
		}
	}
}

// WithSize sets the frame size.
func WithSize(width, height int) PatternOption {
	return func(p *Pattern) {
		if width > 0 && height > 0 {
			p.width, p.height = width, height
		}
	}
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) PatternOption {
	return func(p *Pattern) { p.now = now }
}

// NewPattern returns an open pattern source.
func NewPattern(opts ...PatternOption) *Pattern {
	p := &Pattern{
		width:  DefaultWidth,
		height: DefaultHeight,
		open:   true,
		now:    time.Now,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pattern) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// ReadFrame returns the next frame, or picar.ErrStreamEnded once the frame
// limit is reached or the source was released.
func (p *Pattern) ReadFrame() (picar.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open || (p.limit > 0 && p.count >= p.limit) {
		return picar.Frame{}, picar.ErrStreamEnded
	}

	if p.interval > 0 && !p.last.IsZero() {
		if wait := p.interval - p.now().Sub(p.last); wait > 0 {
			p.sleep(wait)
		}
	}

	img := p.render(p.count)
	p.count++
	p.last = p.now()

	return picar.Frame{Image: img, Timestamp: p.last}, nil
}

func (p *Pattern) render(n int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	bar := (n * 8) % p.width

	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			c := color.RGBA{
				R: uint8(x * 255 / p.width),
				G: uint8(y * 255 / p.height),
				B: uint8((n * 4) % 256),
				A: 255,
			}
			if x >= bar && x < bar+8 {
				c = color.RGBA{255, 255, 255, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// Frames returns how many frames were produced.
func (p *Pattern) Frames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func (p *Pattern) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
	return nil
}

var _ picar.Camera = (*Pattern)(nil)

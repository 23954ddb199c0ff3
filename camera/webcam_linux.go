//go:build linux

package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"sort"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"github.com/teranos/picar"
)

// maxBadFrames is how many undecodable frames in a row end the stream.
const maxBadFrames = 10

// Webcam reads MJPEG frames from a V4L2 device.
type Webcam struct {
	mu   sync.Mutex
	cam  *webcam.Webcam
	path string
	open bool
}

func fourcc(code string) webcam.PixelFormat {
	return webcam.PixelFormat(uint32(code[0]) | uint32(code[1])<<8 | uint32(code[2])<<16 | uint32(code[3])<<24)
}

type frameSizes []webcam.FrameSize

func (f frameSizes) Len() int      { return len(f) }
func (f frameSizes) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f frameSizes) Less(i, j int) bool {
	return uint64(f[i].MaxWidth)*uint64(f[i].MaxHeight) > uint64(f[j].MaxWidth)*uint64(f[j].MaxHeight)
}

// OpenWebcam opens the device, selects an MJPEG format at the requested size
// (or the largest one offered when it is not available) and starts streaming.
func OpenWebcam(path string, width, height int) (*Webcam, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	format := webcam.PixelFormat(0)
	formats := cam.GetSupportedFormats()
	for _, code := range []string{"MJPG", "JPEG"} {
		if _, ok := formats[fourcc(code)]; ok {
			format = fourcc(code)
			break
		}
	}
	if format == 0 {
		cam.Close()
		return nil, fmt.Errorf("%s: no MJPEG format", path)
	}

	w, h := uint32(width), uint32(height)
	if !sizeSupported(cam.GetSupportedFrameSizes(format), w, h) {
		sizes := frameSizes(cam.GetSupportedFrameSizes(format))
		if len(sizes) == 0 {
			cam.Close()
			return nil, fmt.Errorf("%s: no frame sizes", path)
		}
		sort.Sort(sizes)
		w, h = sizes[0].MaxWidth, sizes[0].MaxHeight
	}

	if _, _, _, err := cam.SetImageFormat(format, w, h); err != nil {
		cam.Close()
		return nil, fmt.Errorf("%s: set format: %w", path, err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("%s: start streaming: %w", path, err)
	}

	return &Webcam{cam: cam, path: path, open: true}, nil
}

func sizeSupported(sizes []webcam.FrameSize, w, h uint32) bool {
	for _, s := range sizes {
		if w >= s.MinWidth && w <= s.MaxWidth && h >= s.MinHeight && h <= s.MaxHeight {
			return true
		}
	}
	return false
}

func (c *Webcam) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// ReadFrame blocks until the device delivers a decodable frame. Driver
// timeouts are retried; there is no overall deadline.
func (c *Webcam) ReadFrame() (picar.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return picar.Frame{}, picar.ErrStreamEnded
	}

	bad := 0
	for {
		err := c.cam.WaitForFrame(5)
		var timeout *webcam.Timeout
		switch {
		case err == nil:
		case errors.As(err, &timeout):
			continue
		default:
			return picar.Frame{}, fmt.Errorf("%s: wait for frame: %w", c.path, err)
		}

		data, err := c.cam.ReadFrame()
		if err != nil {
			return picar.Frame{}, fmt.Errorf("%s: read frame: %w", c.path, err)
		}
		if len(data) == 0 {
			continue
		}
		ts := time.Now()

		// data belongs to the driver's buffer; decoding copies it out.
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			bad++
			if bad >= maxBadFrames {
				return picar.Frame{}, fmt.Errorf("%s: decode frame: %w", c.path, err)
			}
			continue
		}
		return picar.Frame{Image: img, Timestamp: ts}, nil
	}
}

func (c *Webcam) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	c.open = false
	_ = c.cam.StopStreaming()
	return c.cam.Close()
}

var _ picar.Camera = (*Webcam)(nil)

func openDevice(path string, s Settings) (picar.Camera, error) {
	w, h := s.Width, s.Height
	if w <= 0 || h <= 0 {
		w, h = DefaultWidth, DefaultHeight
	}
	return OpenWebcam(path, w, h)
}

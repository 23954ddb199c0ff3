package camera

import (
	"strings"

	"github.com/teranos/picar"
)

// Source prefixes and names accepted by Open.
const (
	PatternSource = "pattern"
	ReplayPrefix  = "replay:"
)

// Settings sizes and paces the opened source. Zero values pick defaults.
type Settings struct {
	Width  int
	Height int
	FPS    int
	// Frames ends a pattern source after this many frames.
	Frames int
}

// Open resolves a source description: "pattern", "replay:<dir>" or a
// V4L2 device path.
func Open(source string, s Settings) (picar.Camera, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == PatternSource:
		return NewPattern(WithSize(s.Width, s.Height), WithFPS(s.FPS), WithFrameLimit(s.Frames)), nil
	case strings.HasPrefix(source, ReplayPrefix):
		return OpenReplay(strings.TrimPrefix(source, ReplayPrefix))
	default:
		return openDevice(source, s)
	}
}

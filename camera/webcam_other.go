//go:build !linux

package camera

import (
	"fmt"
	"runtime"

	"github.com/teranos/picar"
)

func openDevice(path string, _ Settings) (picar.Camera, error) {
	return nil, fmt.Errorf("camera device %s: V4L2 capture is not available on %s", path, runtime.GOOS)
}

package driver

import (
	"strings"

	"github.com/teranos/picar"
)

// SimPort selects the in-memory driver instead of a serial port.
const SimPort = "sim"

// Open returns the simulator for SimPort and a serial driver otherwise.
func Open(port string, baud int) (picar.Actuator, error) {
	if strings.EqualFold(strings.TrimSpace(port), SimPort) {
		return NewSim(), nil
	}
	return OpenSerial(port, baud)
}

package driver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/teranos/picar"
)

// DefaultBaudRate of the motor controller link.
const DefaultBaudRate = 115200

// ReadyLine is the greeting the board prints after reset.
const ReadyLine = "ready"

// ReadTimeout bounds the wait for one line from the board.
const ReadTimeout = 2 * time.Second

// ErrTimeout is returned when the board sends no line within ReadTimeout.
var ErrTimeout = errors.New("board did not answer")

// inputResetter is implemented by ports that can drop unread input.
type inputResetter interface {
	ResetInputBuffer() error
}

// Serial drives the car through a motor controller board. Each command is
// one newline-terminated line; the board answers "ok" or "err <reason>".
//
//	C<steer>,<pan>,<tilt>  calibration trims
//	T<angle>               front wheel angle
//	P<angle> / L<angle>    camera pan / tilt
//	S<speed>               rear wheel speed 0-100
//	F / B / X              run forward / run backward / stop
//
// The port's Read must return (0, nil) once its read timeout expires, as
// go.bug.st/serial ports do. A reply that missed its deadline is dropped
// before the next command so answers never pair with the wrong command.
type Serial struct {
	mu      sync.Mutex
	port    io.ReadWriteCloser
	w       *bufio.Writer
	buf     [64]byte
	pending []byte
	stale   bool
	closed  bool
}

// OpenSerial opens the board on the named port and waits for its ready line.
func OpenSerial(name string, baud int) (*Serial, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}

	s := NewSerial(port)
	if err := s.waitReady(); err != nil {
		port.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return s, nil
}

// NewSerial wraps an already open link. It does not wait for the ready line.
func NewSerial(port io.ReadWriteCloser) *Serial {
	return &Serial{
		port: port,
		w:    bufio.NewWriter(port),
	}
}

func (s *Serial) waitReady() error {
	line, err := s.readLine()
	if err != nil {
		return fmt.Errorf("waiting for board: %w", err)
	}
	if line != ReadyLine {
		return fmt.Errorf("unexpected greeting %q", line)
	}
	return nil
}

// readLine returns the next line from the board, trimmed. A read that
// times out fails at once and marks any later input as stale.
func (s *Serial) readLine() (string, error) {
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := string(s.pending[:i])
			s.pending = s.pending[i+1:]
			return strings.TrimSpace(line), nil
		}

		n, err := s.port.Read(s.buf[:])
		s.pending = append(s.pending, s.buf[:n]...)
		if err != nil {
			return "", err
		}
		if n == 0 {
			s.stale = true
			return "", ErrTimeout
		}
	}
}

// discardStale drops input left over from a command that timed out.
func (s *Serial) discardStale() error {
	if !s.stale {
		return nil
	}
	s.pending = nil
	s.stale = false
	if r, ok := s.port.(inputResetter); ok {
		return r.ResetInputBuffer()
	}
	return nil
}

// send writes one command line and reads the board's answer.
func (s *Serial) send(format string, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := fmt.Sprintf(format, args...)
	if s.closed {
		return fmt.Errorf("%s: %w", cmd, ErrClosed)
	}
	if err := s.discardStale(); err != nil {
		return fmt.Errorf("%s: reset input: %w", cmd, err)
	}

	if _, err := s.w.WriteString(cmd + "\n"); err != nil {
		return fmt.Errorf("%s: write: %w", cmd, err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("%s: write: %w", cmd, err)
	}

	reply, err := s.readLine()
	if err != nil {
		return fmt.Errorf("%s: read reply: %w", cmd, err)
	}
	switch {
	case reply == "ok":
		return nil
	case strings.HasPrefix(reply, "err"):
		return fmt.Errorf("%s: board: %s", cmd, strings.TrimSpace(strings.TrimPrefix(reply, "err")))
	default:
		return fmt.Errorf("%s: unexpected reply %q", cmd, reply)
	}
}

func (s *Serial) Configure(c picar.Calibration) error {
	return s.send("C%d,%d,%d", c.SteeringOffset, c.PanOffset, c.TiltOffset)
}

func (s *Serial) Turn(angle int) error { return s.send("T%d", angle) }

func (s *Serial) SetSpeed(speed int) error { return s.send("S%d", speed) }

func (s *Serial) Forward() error { return s.send("F") }

func (s *Serial) Backward() error { return s.send("B") }

func (s *Serial) Stop() error { return s.send("X") }

func (s *Serial) Pan(angle int) error { return s.send("P%d", angle) }

func (s *Serial) Tilt(angle int) error { return s.send("L%d", angle) }

// Close closes the link. Later calls fail with ErrClosed.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

var _ picar.Actuator = (*Serial)(nil)

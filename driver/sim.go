// Package driver provides actuator drivers for the car.
//
// Sim keeps everything in memory and records every call, for dry runs and
// tests. Serial talks to a motor controller board over a serial line.
package driver

import (
	"errors"
	"fmt"
	"sync"

	"github.com/teranos/picar"
)

// ErrClosed is returned by calls on a closed driver.
var ErrClosed = errors.New("driver closed")

// Call is one recorded driver call.
type Call struct {
	Method string
	Value  int
}

func (c Call) String() string {
	return fmt.Sprintf("%s(%d)", c.Method, c.Value)
}

// Sim is an in-memory actuator. It is safe for concurrent use.
type Sim struct {
	mu          sync.Mutex
	calibration picar.Calibration
	angle       int
	speed       int
	running     string // "", "forward" or "backward"
	pan, tilt   int
	closed      bool
	calls       []Call
	failures    map[string]int // method -> remaining failures
	failErr     error
}

// NewSim returns a simulated actuator resting at neutral.
func NewSim() *Sim {
	return &Sim{
		angle:    picar.CenterSteeringAngle,
		pan:      picar.CenterSteeringAngle,
		tilt:     picar.CenterSteeringAngle,
		failures: make(map[string]int),
		failErr:  errors.New("simulated actuator failure"),
	}
}

// FailNext makes the next n calls of method fail.
func (s *Sim) FailNext(method string, n int) *Sim {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = n
	return s
}

func (s *Sim) record(method string, value int) error {
	s.calls = append(s.calls, Call{Method: method, Value: value})
	if s.closed && method != "Close" {
		return ErrClosed
	}
	if n := s.failures[method]; n > 0 {
		s.failures[method] = n - 1
		return fmt.Errorf("%s: %w", method, s.failErr)
	}
	return nil
}

func (s *Sim) Configure(c picar.Calibration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("Configure", c.SteeringOffset); err != nil {
		return err
	}
	s.calibration = c
	return nil
}

func (s *Sim) Turn(angle int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("Turn", angle); err != nil {
		return err
	}
	if angle < picar.MinSteeringAngle || angle > picar.MaxSteeringAngle {
		return fmt.Errorf("turn: angle %d out of range", angle)
	}
	s.angle = angle
	return nil
}

func (s *Sim) SetSpeed(speed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("SetSpeed", speed); err != nil {
		return err
	}
	if speed < picar.MinSpeed || speed > picar.MaxSpeed {
		return fmt.Errorf("set speed: %d out of range", speed)
	}
	s.speed = speed
	return nil
}

func (s *Sim) Forward() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("Forward", s.speed); err != nil {
		return err
	}
	s.running = "forward"
	return nil
}

func (s *Sim) Backward() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("Backward", s.speed); err != nil {
		return err
	}
	s.running = "backward"
	return nil
}

// Stop zeroes the speed.
func (s *Sim) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("Stop", 0); err != nil {
		return err
	}
	s.speed = 0
	s.running = ""
	return nil
}

func (s *Sim) Pan(angle int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("Pan", angle); err != nil {
		return err
	}
	s.pan = angle
	return nil
}

func (s *Sim) Tilt(angle int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("Tilt", angle); err != nil {
		return err
	}
	s.tilt = angle
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.record("Close", 0)
	s.closed = true
	return nil
}

// Angle returns the last commanded steering angle.
func (s *Sim) Angle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle
}

// Speed returns the current speed.
func (s *Sim) Speed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// Running returns "forward", "backward" or "" when stopped.
func (s *Sim) Running() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Calibration returns the applied calibration.
func (s *Sim) Calibration() picar.Calibration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibration
}

// Closed reports whether Close was called.
func (s *Sim) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Calls returns a copy of every recorded call.
func (s *Sim) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the recorded values of one method, in order.
func (s *Sim) CallsTo(method string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, c := range s.calls {
		if c.Method == method {
			out = append(out, c.Value)
		}
	}
	return out
}

var _ picar.Actuator = (*Sim)(nil)

package picar

import (
	"fmt"
	"sync"
)

// Steering and speed bounds of the car.
const (
	MinSteeringAngle    = 45
	MaxSteeringAngle    = 135
	CenterSteeringAngle = 90

	MinSpeed = 0
	MaxSpeed = 100
)

// Direction is the wheel direction the operator asked for.
type Direction int

const (
	// Stopped means the rear wheels are not driven.
	Stopped Direction = iota
	// Forward means the operator is holding the forward key.
	Forward
	// Backward means the operator is holding the backward key.
	Backward
)

func (d Direction) String() string {
	switch d {
	case Stopped:
		return "stopped"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// MarshalYAML writes the direction by name.
func (d Direction) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// ActuatorState is the commanded steering angle and drive of the car.
type ActuatorState struct {
	SteeringAngle int       `yaml:"steering_angle"`
	Speed         int       `yaml:"speed"`
	Direction     Direction `yaml:"direction"`
}

// Neutral returns the safe resting state: wheels centered, not moving.
func Neutral() ActuatorState {
	return ActuatorState{
		SteeringAngle: CenterSteeringAngle,
		Speed:         0,
		Direction:     Stopped,
	}
}

// IsNeutral reports whether the state is centered and stopped.
func (s ActuatorState) IsNeutral() bool {
	return s == Neutral()
}

// Valid reports whether every field is within bounds and the direction
// agrees with the speed.
func (s ActuatorState) Valid() bool {
	if s.SteeringAngle < MinSteeringAngle || s.SteeringAngle > MaxSteeringAngle {
		return false
	}
	if s.Speed < MinSpeed || s.Speed > MaxSpeed {
		return false
	}
	switch s.Direction {
	case Stopped:
		return s.Speed == 0
	case Forward, Backward:
		return true
	default:
		return false
	}
}

func (s ActuatorState) String() string {
	return fmt.Sprintf("angle=%d speed=%d %s", s.SteeringAngle, s.Speed, s.Direction)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// stateGuard holds the one shared ActuatorState. Writers commit whole
// states; readers get a copy.
type stateGuard struct {
	mu    sync.RWMutex
	state ActuatorState
}

func newStateGuard(initial ActuatorState) *stateGuard {
	return &stateGuard{state: initial}
}

// Snapshot returns a copy of the state as of the last completed commit.
func (g *stateGuard) Snapshot() ActuatorState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// update applies fn to the current state under the write lock and
// commits its result.
func (g *stateGuard) update(fn func(ActuatorState) ActuatorState) (ActuatorState, ActuatorState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.state
	g.state = fn(prev)
	return prev, g.state
}

package picar

import (
	"errors"
	"image"
	"time"
)

// ErrStreamEnded is returned by Camera.ReadFrame when no more frames will come.
var ErrStreamEnded = errors.New("capture stream ended")

// Calibration holds the servo center offsets applied once at startup.
type Calibration struct {
	SteeringOffset int `yaml:"steering_offset"` // front wheel servo trim
	PanOffset      int `yaml:"pan_offset"`      // camera pan servo trim
	TiltOffset     int `yaml:"tilt_offset"`     // camera tilt servo trim
}

// DefaultCalibration returns the trims of the reference car.
func DefaultCalibration() Calibration {
	return Calibration{
		SteeringOffset: 20,
		PanOffset:      -40,
		TiltOffset:     -120,
	}
}

// Actuator drives the steering servo, the rear wheel motor and the camera
// mount servos. Calls are made from one goroutine at a time.
type Actuator interface {
	// Configure applies servo trims. Called once before any other call.
	Configure(Calibration) error
	// Turn sets the front wheel angle, 45 (left) to 135 (right).
	Turn(angle int) error
	// SetSpeed sets the rear wheel speed, 0 to 100.
	SetSpeed(speed int) error
	// Forward runs the rear wheels with the driver's forward polarity.
	Forward() error
	// Backward runs the rear wheels with the driver's backward polarity.
	Backward() error
	// Stop stops the rear wheels.
	Stop() error
	// Pan and Tilt point the camera mount.
	Pan(angle int) error
	Tilt(angle int) error
	// Close releases the driver.
	Close() error
}

// Frame is one captured image. The image is only valid until the next
// ReadFrame call on the same camera.
type Frame struct {
	Image     image.Image
	Timestamp time.Time
}

// Camera is a frame source owned by the capture loop.
type Camera interface {
	IsOpen() bool
	// ReadFrame blocks for the next frame. It returns ErrStreamEnded when
	// the device has no more frames.
	ReadFrame() (Frame, error)
	Release() error
}

// Display shows frames to the operator.
type Display interface {
	Show(Frame, ActuatorState) error
}

// CapturedSample pairs a frame with the actuation state at capture time.
type CapturedSample struct {
	Timestamp     time.Time
	Frame         image.Image
	SteeringAngle int
	Speed         int
	Direction     Direction
}

// NewSample builds a sample from a frame and the state snapshot taken right
// after the frame was pulled.
func NewSample(f Frame, s ActuatorState) CapturedSample {
	return CapturedSample{
		Timestamp:     f.Timestamp,
		Frame:         f.Image,
		SteeringAngle: s.SteeringAngle,
		Speed:         s.Speed,
		Direction:     s.Direction,
	}
}

// Persister stores captured samples and returns the file name it wrote.
// A name returned together with an error means the file is on disk but a
// later step, such as indexing, failed.
type Persister interface {
	Save(CapturedSample) (string, error)
}

// Devices opens the hardware of a session. Both openers are required.
type Devices struct {
	OpenActuator func() (Actuator, error)
	OpenCamera   func() (Camera, error)
}

// StaticDevices returns a Devices bundle for already constructed devices.
func StaticDevices(a Actuator, c Camera) Devices {
	return Devices{
		OpenActuator: func() (Actuator, error) { return a, nil },
		OpenCamera:   func() (Camera, error) { return c, nil },
	}
}

type nullDisplay struct{}

func (nullDisplay) Show(Frame, ActuatorState) error { return nil }

// NullDisplay discards frames, for headless runs.
func NullDisplay() Display { return nullDisplay{} }

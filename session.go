// Package picar drives a small wheeled robot from operator key presses.
//
// A Session acquires the steering/drive actuator and the camera, runs two
// input channels that turn key events into bounded steering and speed
// commands, and runs a capture loop that shows every frame and, when
// logging is enabled, saves it together with the actuation state that was
// in force when it was captured. However the session ends, the car is left
// centered and stopped.
//
// Basic usage:
//
//	opts := picar.DefaultOptions()
//	opts.Input = console
//	opts.Display = console
//
//	sess, err := picar.NewSession(opts, picar.Devices{
//		OpenActuator: func() (picar.Actuator, error) { return driver.OpenSerial("/dev/ttyUSB0", 115200) },
//		OpenCamera:   func() (picar.Camera, error) { return camera.OpenWebcam("/dev/video0", 640, 480) },
//	})
//	if err != nil {
//		return err
//	}
//
//	report, err := sess.Run(ctx)
//
// For headless runs and tests the input can be scripted:
//
//	opts.Input = picar.NewScript().Tap(picar.KeyRight, 3).Press(picar.KeyQuit)
package picar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/teranos/picar/trip"
)

var (
	// ErrSessionUsed is returned when Run is called on a session that already ran.
	ErrSessionUsed = errors.New("session already used")
	// ErrInvalidOptions wraps every NewSession validation failure.
	ErrInvalidOptions = errors.New("invalid session options")
)

// Phase is the lifecycle position of a Session.
type Phase int32

const (
	PhaseConfigured Phase = iota
	PhaseRunning
	PhaseStopping
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseConfigured:
		return "configured"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// MarshalYAML writes the phase by name.
func (p Phase) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// Options configures a Session. Everything is fixed once the session is built.
type Options struct {
	// Translator holds the steering step and drive speed.
	Translator Translator
	// SaveImages enables sample logging through Persister.
	SaveImages bool
	// Persister stores samples. Required when SaveImages is set.
	Persister Persister
	// Input delivers operator key events. Required.
	Input InputSource
	// Display shows frames. Defaults to NullDisplay.
	Display Display
	// Calibration is applied to the actuator at startup.
	Calibration Calibration
	// Logger defaults to a null logger.
	Logger hclog.Logger
	// Policy controls trip handling. Defaults to trip.DefaultPolicy.
	Policy *trip.Policy
}

// DefaultOptions returns options with the default step, speed and
// calibration. Input must still be set.
func DefaultOptions() Options {
	return Options{
		Translator:  NewTranslator(),
		Calibration: DefaultCalibration(),
	}
}

// Session owns the devices of one driving run. It is not reusable.
type Session struct {
	opts   Options
	devs   Devices
	logger hclog.Logger
	trips  *trip.Handler

	phase atomic.Int32
	used  atomic.Bool
	guard *stateGuard
	stats sessionStats

	actMu       sync.Mutex
	releaseOnce sync.Once
	releaseErr  error
}

// NewSession validates opts and devs and returns a configured Session.
func NewSession(opts Options, devs Devices) (*Session, error) {
	if err := opts.Translator.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if opts.Input == nil {
		return nil, fmt.Errorf("%w: no input source", ErrInvalidOptions)
	}
	if opts.SaveImages && opts.Persister == nil {
		return nil, fmt.Errorf("%w: image logging enabled without a persister", ErrInvalidOptions)
	}
	if devs.OpenActuator == nil || devs.OpenCamera == nil {
		return nil, fmt.Errorf("%w: missing device opener", ErrInvalidOptions)
	}
	if opts.Display == nil {
		opts.Display = NullDisplay()
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	s := &Session{
		opts:   opts,
		devs:   devs,
		logger: opts.Logger,
		trips:  trip.NewHandler("session", opts.Policy),
		guard:  newStateGuard(Neutral()),
	}
	s.phase.Store(int32(PhaseConfigured))
	return s, nil
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *Session) setPhase(p Phase) {
	s.phase.Store(int32(p))
	s.logger.Debug("phase", "phase", p.String())
}

// State returns a snapshot of the commanded actuator state.
func (s *Session) State() ActuatorState {
	return s.guard.Snapshot()
}

// Trips returns the session's trip handler.
func (s *Session) Trips() *trip.Handler {
	return s.trips
}

// Run acquires the devices, drives until a quit, end of stream, context
// cancellation or fault, and always leaves the actuator neutral and the
// camera released. The error is non-nil only for faults.
func (s *Session) Run(ctx context.Context) (rep *Report, err error) {
	if !s.used.CompareAndSwap(false, true) {
		return nil, ErrSessionUsed
	}

	started := time.Now()
	stop := newStopFlag()

	act, cam, err := s.acquire()
	if err != nil {
		s.setPhase(PhaseStopped)
		stop.Fault(err)
		return s.report(started, stop, nil), err
	}

	var (
		ctl     *controlLoop
		capture *captureLoop
	)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session panicked", "panic", r)
			recordTrip(s.trips, stop, trip.NewFall(trip.Panic, "session panicked", trip.Context{"panic": r}))
		}
		stop.Signal(ReasonFault)

		s.setPhase(PhaseStopping)
		if ctl != nil {
			ctl.wait()
		}
		relErr := s.release(act, cam)
		s.setPhase(PhaseStopped)

		rep = s.report(started, stop, capture)
		err = errors.Join(stop.Err(), relErr)
		s.logger.Info("session stopped", "reason", rep.StopReason, "frames", rep.Frames, "samples", rep.Samples)
	}()

	s.setPhase(PhaseRunning)
	s.logger.Info("session running",
		"step", s.opts.Translator.Step, "speed", s.opts.Translator.Speed, "save_images", s.opts.SaveImages)

	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info("context canceled")
			stop.Signal(ReasonCanceled)
		case <-stop.Done():
		}
	}()

	ctl = newControlLoop(s.opts.Translator, s.guard, act, &s.actMu, stop, s.trips, &s.stats, s.logger)
	ctl.start(s.opts.Input)

	capture = &captureLoop{
		cam:     cam,
		display: s.opts.Display,
		guard:   s.guard,
		stop:    stop,
		trips:   s.trips,
		stats:   &s.stats,
		logger:  s.logger,
	}
	if s.opts.SaveImages {
		capture.persister = s.opts.Persister
	}
	capture.run()

	return rep, err
}

// acquire opens and prepares both devices. On failure, including a panic
// in a driver, every handle that was opened is released and a fall is
// returned.
func (s *Session) acquire() (act Actuator, cam Camera, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("device acquisition panicked", "panic", r)
			fall := trip.NewFall(trip.Panic, "device acquisition panicked", trip.Context{"panic": r})
			s.trips.Record(fall)
			relErr := s.release(act, cam)
			act, cam, err = nil, nil, errors.Join(fall, relErr)
		}
	}()

	unavailable := func(device, msg string, cause error) error {
		s.logger.Error("device unavailable", "device", device, "error", cause)
		fall := trip.NewFall(trip.DeviceUnavailable, msg, trip.Context{"device": device}).Wrap(cause)
		s.trips.Record(fall)
		return fall
	}

	act, err = s.devs.OpenActuator()
	if err != nil {
		return nil, nil, unavailable("actuator", "actuator did not open", err)
	}
	if err := prepareActuator(act, s.opts.Calibration); err != nil {
		relErr := s.release(act, nil)
		return nil, nil, errors.Join(unavailable("actuator", "actuator did not initialize", err), relErr)
	}

	cam, err = s.devs.OpenCamera()
	if err != nil {
		relErr := s.release(act, nil)
		return nil, nil, errors.Join(unavailable("camera", "camera did not open", err), relErr)
	}
	if !cam.IsOpen() {
		relErr := s.release(act, cam)
		return nil, nil, errors.Join(unavailable("camera", "camera is not open", nil), relErr)
	}

	return act, cam, nil
}

func prepareActuator(act Actuator, cal Calibration) error {
	if err := act.Configure(cal); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	if err := act.Pan(CenterSteeringAngle); err != nil {
		return fmt.Errorf("center pan: %w", err)
	}
	if err := act.Tilt(CenterSteeringAngle); err != nil {
		return fmt.Errorf("center tilt: %w", err)
	}
	return neutralize(act)
}

// neutralize stops the rear wheels and centers the steering. Every call is
// attempted even when an earlier one fails.
func neutralize(act Actuator) error {
	var errs []error
	if err := act.Stop(); err != nil {
		if err = act.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop: %w", err))
		}
	}
	if err := act.SetSpeed(0); err != nil {
		errs = append(errs, fmt.Errorf("zero speed: %w", err))
	}
	if err := act.Turn(CenterSteeringAngle); err != nil {
		errs = append(errs, fmt.Errorf("center steering: %w", err))
	}
	return errors.Join(errs...)
}

// release forces the actuator neutral and releases both devices. It runs
// at most once per session.
func (s *Session) release(act Actuator, cam Camera) error {
	s.releaseOnce.Do(func() {
		s.actMu.Lock()
		defer s.actMu.Unlock()

		s.logger.Info("stopping the car, resetting hardware")

		var errs []error
		if act != nil {
			if err := neutralize(act); err != nil {
				errs = append(errs, fmt.Errorf("neutralize actuator: %w", err))
			}
			if err := act.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close actuator: %w", err))
			}
		}
		if cam != nil {
			if err := cam.Release(); err != nil {
				errs = append(errs, fmt.Errorf("release camera: %w", err))
			}
		}
		s.guard.update(func(ActuatorState) ActuatorState { return Neutral() })

		s.releaseErr = errors.Join(errs...)
		if s.releaseErr != nil {
			s.logger.Error("release failed", "error", s.releaseErr)
		}
	})
	return s.releaseErr
}

package picar

import "fmt"

// Default steering step in degrees and drive speed of a Translator.
const (
	DefaultSteerStep = 5
	DefaultSpeed     = 80
)

// CommandKind names the actuator primitive a Command drives.
type CommandKind int

const (
	// CommandNone means the event changed nothing on the hardware.
	CommandNone CommandKind = iota
	// CommandTurn turns the front wheels to Command.Angle.
	CommandTurn
	// CommandDriveForward sets Command.Speed and runs the driver's forward primitive.
	CommandDriveForward
	// CommandDriveBackward sets Command.Speed and runs the driver's backward primitive.
	CommandDriveBackward
	// CommandStop stops the rear wheels. It is the safety stop.
	CommandStop
)

func (k CommandKind) String() string {
	switch k {
	case CommandNone:
		return "none"
	case CommandTurn:
		return "turn"
	case CommandDriveForward:
		return "drive_forward"
	case CommandDriveBackward:
		return "drive_backward"
	case CommandStop:
		return "stop"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Command is one call sequence to issue to the actuator driver.
type Command struct {
	Kind  CommandKind
	Angle int
	Speed int
}

// IsNone reports whether there is nothing to issue.
func (c Command) IsNone() bool { return c.Kind == CommandNone }

func (c Command) String() string {
	switch c.Kind {
	case CommandTurn:
		return fmt.Sprintf("turn(%d)", c.Angle)
	case CommandDriveForward, CommandDriveBackward:
		return fmt.Sprintf("%s(speed=%d)", c.Kind, c.Speed)
	default:
		return c.Kind.String()
	}
}

// Translator maps key events onto state transitions. Step and Speed are
// fixed for the life of a session.
type Translator struct {
	Step  int // degrees per steering key press
	Speed int // drive speed while a drive key is held
}

// NewTranslator returns a Translator with the default step and speed.
func NewTranslator() Translator {
	return Translator{Step: DefaultSteerStep, Speed: DefaultSpeed}
}

// Validate checks the step and speed bounds.
func (t Translator) Validate() error {
	if t.Step < 1 || t.Step > MaxSteeringAngle-MinSteeringAngle {
		return fmt.Errorf("steer step %d out of range 1..%d", t.Step, MaxSteeringAngle-MinSteeringAngle)
	}
	if t.Speed < MinSpeed || t.Speed > MaxSpeed {
		return fmt.Errorf("speed %d out of range %d..%d", t.Speed, MinSpeed, MaxSpeed)
	}
	return nil
}

// Apply returns the state after ev, the command to issue for it, and
// whether ev asks the session to quit. It does not touch hardware.
//
// The forward key drives the wheel driver's backward primitive and the
// backward key its forward primitive: the rear motor is mounted reversed
// relative to the driver's naming.
func (t Translator) Apply(state ActuatorState, ev KeyEvent) (ActuatorState, Command, bool) {
	switch ev.Key {
	case KeyQuit:
		return state, Command{}, ev.Phase == Press

	case KeyLeft, KeyRight:
		if ev.Phase != Press {
			return state, Command{}, false
		}
		delta := -t.Step
		if ev.Key == KeyRight {
			delta = t.Step
		}
		state.SteeringAngle = clamp(state.SteeringAngle+delta, MinSteeringAngle, MaxSteeringAngle)
		return state, Command{Kind: CommandTurn, Angle: state.SteeringAngle}, false

	case KeyForward, KeyBackward:
		if ev.Phase == Release {
			state.Speed = 0
			state.Direction = Stopped
			return state, Command{Kind: CommandStop}, false
		}
		state.Speed = t.Speed
		if ev.Key == KeyForward {
			state.Direction = Forward
			return state, Command{Kind: CommandDriveBackward, Speed: t.Speed}, false
		}
		state.Direction = Backward
		return state, Command{Kind: CommandDriveForward, Speed: t.Speed}, false
	}

	return state, Command{}, false
}

package picar

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslator_AngleStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	keys := []Key{KeyLeft, KeyRight, KeyForward, KeyBackward, KeyUnknown}

	for _, step := range []int{1, 5, 17, 90} {
		tr := Translator{Step: step, Speed: 60}
		state := Neutral()
		for i := 0; i < 2000; i++ {
			ev := KeyEvent{Key: keys[rng.Intn(len(keys))], Phase: KeyPhase(rng.Intn(2))}
			next, cmd, quit := tr.Apply(state, ev)
			require.False(t, quit)
			require.True(t, next.Valid(), "step %d event %d %s gave %s", step, i, ev, next)
			if cmd.Kind == CommandTurn {
				require.Equal(t, next.SteeringAngle, cmd.Angle)
			}
			state = next
		}
	}
}

func TestTranslator_FloorAndCeilingAreIdempotent(t *testing.T) {
	tr := NewTranslator()

	floor := ActuatorState{SteeringAngle: MinSteeringAngle}
	next, cmd, _ := tr.Apply(floor, PressOf(KeyLeft))
	assert.Equal(t, MinSteeringAngle, next.SteeringAngle)
	assert.Equal(t, Command{Kind: CommandTurn, Angle: MinSteeringAngle}, cmd, "turn is still issued at the floor")

	ceiling := ActuatorState{SteeringAngle: MaxSteeringAngle}
	next, cmd, _ = tr.Apply(ceiling, PressOf(KeyRight))
	assert.Equal(t, MaxSteeringAngle, next.SteeringAngle)
	assert.Equal(t, Command{Kind: CommandTurn, Angle: MaxSteeringAngle}, cmd)

	near := ActuatorState{SteeringAngle: 47}
	next, _, _ = tr.Apply(near, PressOf(KeyLeft))
	assert.Equal(t, MinSteeringAngle, next.SteeringAngle, "clamped, not wrapped")
}

func TestTranslator_ForwardPressRelease(t *testing.T) {
	tr := NewTranslator()

	pressed, cmd, quit := tr.Apply(Neutral(), PressOf(KeyForward))
	assert.False(t, quit)
	assert.Equal(t, ActuatorState{SteeringAngle: 90, Speed: 80, Direction: Forward}, pressed)
	assert.Equal(t, Command{Kind: CommandDriveBackward, Speed: 80}, cmd, "forward key runs the backward primitive")

	released, cmd, _ := tr.Apply(pressed, ReleaseOf(KeyForward))
	assert.Equal(t, Neutral(), released)
	assert.Equal(t, Command{Kind: CommandStop}, cmd)
}

func TestTranslator_BackwardPressRelease(t *testing.T) {
	tr := Translator{Step: 2, Speed: 40}
	start := ActuatorState{SteeringAngle: 100}

	pressed, cmd, _ := tr.Apply(start, PressOf(KeyBackward))
	assert.Equal(t, ActuatorState{SteeringAngle: 100, Speed: 40, Direction: Backward}, pressed)
	assert.Equal(t, Command{Kind: CommandDriveForward, Speed: 40}, cmd)

	released, cmd, _ := tr.Apply(pressed, ReleaseOf(KeyBackward))
	assert.Equal(t, ActuatorState{SteeringAngle: 100, Speed: 0, Direction: Stopped}, released)
	assert.Equal(t, CommandStop, cmd.Kind)
}

func TestTranslator_Quit(t *testing.T) {
	tr := NewTranslator()
	state := ActuatorState{SteeringAngle: 110, Speed: 80, Direction: Forward}

	next, cmd, quit := tr.Apply(state, PressOf(KeyQuit))
	assert.True(t, quit)
	assert.Equal(t, state, next, "quit changes nothing")
	assert.True(t, cmd.IsNone())

	_, _, quit = tr.Apply(state, ReleaseOf(KeyQuit))
	assert.False(t, quit, "quit release is ignored")
}

func TestTranslator_NoOps(t *testing.T) {
	tr := NewTranslator()
	state := ActuatorState{SteeringAngle: 95}

	for _, ev := range []KeyEvent{
		PressOf(KeyUnknown),
		ReleaseOf(KeyUnknown),
		ReleaseOf(KeyLeft),
		ReleaseOf(KeyRight),
	} {
		next, cmd, quit := tr.Apply(state, ev)
		assert.Equal(t, state, next, ev.String())
		assert.True(t, cmd.IsNone(), ev.String())
		assert.False(t, quit, ev.String())
	}
}

func TestTranslator_Validate(t *testing.T) {
	assert.NoError(t, NewTranslator().Validate())
	assert.NoError(t, Translator{Step: 90, Speed: 0}.Validate())

	for _, tr := range []Translator{
		{Step: 0, Speed: 50},
		{Step: 91, Speed: 50},
		{Step: 5, Speed: -1},
		{Step: 5, Speed: 101},
	} {
		assert.Error(t, tr.Validate(), "%+v", tr)
	}
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "turn(95)", Command{Kind: CommandTurn, Angle: 95}.String())
	assert.Equal(t, "drive_backward(speed=80)", Command{Kind: CommandDriveBackward, Speed: 80}.String())
	assert.Equal(t, "stop", Command{Kind: CommandStop}.String())
	assert.Equal(t, "none", Command{}.String())
}

package operators

import (
	"image"
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/picar"
)

type recorder struct {
	events []picar.KeyEvent
}

func (r *recorder) emit(ev picar.KeyEvent) { r.events = append(r.events, ev) }

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testModel(now *time.Time) (*consoleModel, *recorder) {
	rec := &recorder{}
	m := newConsoleModel(rec.emit)
	m.now = func() time.Time { return *now }
	return m, rec
}

func TestModel_KeysMapToPresses(t *testing.T) {
	now := time.Unix(0, 0)
	m, rec := testModel(&now)

	m.Update(runes("a"))
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m.Update(runes("S"))
	m.Update(runes("x"))
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	assert.Equal(t, []picar.KeyEvent{
		picar.PressOf(picar.KeyLeft),
		picar.PressOf(picar.KeyRight),
		picar.PressOf(picar.KeyForward),
		picar.PressOf(picar.KeyBackward),
		picar.PressOf(picar.KeyUnknown),
		picar.PressOf(picar.KeyQuit),
	}, rec.events)
}

func TestModel_ReleaseSynthesizedAfterQuiet(t *testing.T) {
	now := time.Unix(0, 0)
	m, rec := testModel(&now)

	_, cmd := m.Update(runes("w"))
	require.NotNil(t, cmd, "first press schedules a release check")

	// Autorepeat keeps the key held.
	now = now.Add(400 * time.Millisecond)
	_, cmd = m.Update(runes("w"))
	assert.Nil(t, cmd, "a check is already pending")

	now = now.Add(200 * time.Millisecond)
	_, cmd = m.Update(releaseCheckMsg{key: picar.KeyForward})
	assert.NotNil(t, cmd, "key was seen 200ms ago, check again later")
	assert.Equal(t, []picar.KeyEvent{picar.PressOf(picar.KeyForward), picar.PressOf(picar.KeyForward)}, rec.events)

	now = now.Add(400 * time.Millisecond)
	_, cmd = m.Update(releaseCheckMsg{key: picar.KeyForward})
	assert.Nil(t, cmd)
	assert.Equal(t, picar.ReleaseOf(picar.KeyForward), rec.events[len(rec.events)-1])

	// A stale check after the release does nothing.
	m.Update(releaseCheckMsg{key: picar.KeyForward})
	assert.Len(t, rec.events, 3)
}

func TestModel_QuitIsNeverReleased(t *testing.T) {
	now := time.Unix(0, 0)
	m, rec := testModel(&now)

	_, cmd := m.Update(runes("q"))
	assert.Nil(t, cmd)
	assert.Empty(t, m.held)
	assert.Equal(t, []picar.KeyEvent{picar.PressOf(picar.KeyQuit)}, rec.events)
}

func TestModel_CustomBindings(t *testing.T) {
	rec := &recorder{}
	c := NewConsole(WithBindings(map[string]picar.Key{"J": picar.KeyLeft}), WithReleaseAfter(time.Second))
	c.model.emit = rec.emit

	c.model.Update(runes("j"))
	c.model.Update(runes("a"))

	assert.Equal(t, time.Second, c.model.releaseAfter)
	assert.Equal(t, []picar.KeyEvent{picar.PressOf(picar.KeyLeft), picar.PressOf(picar.KeyUnknown)}, rec.events)
}

func TestModel_ViewShowsState(t *testing.T) {
	now := time.Unix(0, 0)
	m, _ := testModel(&now)

	assert.Contains(t, m.View(), "waiting for camera")

	m.Update(tea.WindowSizeMsg{Width: 40, Height: 12})
	cols, rows := m.frameArea()
	assert.Equal(t, 40, cols)
	assert.Equal(t, 10, rows)

	m.Update(frameMsg{view: "FRAME", state: picar.ActuatorState{SteeringAngle: 100, Speed: 80, Direction: picar.Forward}})
	view := picar.StripANSI(m.View())
	assert.Contains(t, view, "FRAME")
	assert.Contains(t, view, "angle 100")
	assert.Contains(t, view, "speed  80")
	assert.Contains(t, view, "forward")
	assert.Contains(t, view, "frames 1")
}

func TestConsole_ProgramLifecycle(t *testing.T) {
	c := NewConsole(WithProgramOptions(tea.WithInput(nil), tea.WithOutput(io.Discard)))
	require.NoError(t, c.Start())
	assert.ErrorIs(t, c.Start(), ErrConsoleRunning)

	c.program.Send(runes("d"))
	select {
	case ev := <-c.Events():
		assert.Equal(t, picar.PressOf(picar.KeyRight), ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no event from console")
	}

	frame := picar.Frame{Image: image.NewRGBA(image.Rect(0, 0, 16, 12)), Timestamp: time.Now()}
	assert.NoError(t, c.Show(frame, picar.Neutral()))
	c.CountSample()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// Drain whatever is left; the channel must end up closed.
	for range c.Events() {
	}
	assert.NoError(t, c.Show(frame, picar.Neutral()))
}

func TestConsole_CloseWithoutStart(t *testing.T) {
	c := NewConsole()
	require.NoError(t, c.Close())
	_, ok := <-c.Events()
	assert.False(t, ok)
}
